package netcodec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/goburrow/dynamic"

	"voxelrelay.ai/internal/sim/entity"
)

var ErrUnknownEvent = errors.New("unknown event type")

// dynamic keeps one process-wide name registry; remember what we put there.
var (
	dynMu      sync.Mutex
	dynamicSet = map[string]reflect.Type{}
)

func registerDynamic(name string, t reflect.Type) {
	dynMu.Lock()
	defer dynMu.Unlock()
	if prev, ok := dynamicSet[name]; ok {
		if prev != t {
			panic(fmt.Sprintf("netcodec: event name %q registered for %v and %v", name, prev, t))
		}
		return
	}
	dynamicSet[name] = t
	dynamic.Register(name, func() interface{} { return reflect.New(t).Interface() })
}

// Library holds the network metadata of every event type that may cross the
// wire.
type Library struct {
	mu   sync.RWMutex
	meta map[string]entity.EventMetadata
}

func NewLibrary() *Library {
	l := &Library{meta: map[string]entity.EventMetadata{}}
	l.Register(&entity.AttackEvent{}, entity.NetworkEventServer, true)
	l.Register(&entity.SayEvent{}, entity.NetworkEventServer, false)
	l.Register(&entity.PlaceBlockEvent{}, entity.NetworkEventServer, false)
	l.Register(&entity.DigBlockEvent{}, entity.NetworkEventServer, false)
	l.Register(&entity.ViewDistanceEvent{}, entity.NetworkEventServer, false)
	l.Register(&entity.DamagedEvent{}, entity.NetworkEventOwner, false)
	l.Register(&entity.ChatMessageEvent{}, entity.NetworkEventBroadcast, false)
	return l
}

// Register adds a pointer-to-struct event prototype.
func (l *Library) Register(proto entity.Event, network entity.NetworkEventType, lagCompensated bool) {
	t := reflect.TypeOf(proto)
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("netcodec: event %T must be a pointer to struct", proto))
	}
	name := proto.EventName()
	registerDynamic(name, t.Elem())
	l.mu.Lock()
	l.meta[name] = entity.EventMetadata{Name: name, Network: network, LagCompensated: lagCompensated}
	l.mu.Unlock()
}

func (l *Library) Metadata(ev entity.Event) (entity.EventMetadata, bool) {
	return l.MetadataByName(ev.EventName())
}

func (l *Library) MetadataByName(name string) (entity.EventMetadata, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.meta[name]
	return m, ok
}

// Encode writes ev as {"Type": name, ...fields}.
func (l *Library) Encode(ev entity.Event) (json.RawMessage, error) {
	if _, ok := l.Metadata(ev); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.EventName())
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: not a JSON object", ev.EventName())
	}
	name, _ := json.Marshal(ev.EventName())
	var buf bytes.Buffer
	buf.WriteString(`{"Type":`)
	buf.Write(name)
	if rest := bytes.TrimSpace(body[1:]); len(rest) > 1 {
		buf.WriteByte(',')
		buf.Write(rest)
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Decode resolves the "Type" tag through the dynamic registry. Names this
// library does not know yield ErrUnknownEvent.
func (l *Library) Decode(raw json.RawMessage) (entity.Event, error) {
	var head struct {
		Type string
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if _, ok := l.MetadataByName(head.Type); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, head.Type)
	}
	var dt dynamic.Type
	if err := json.Unmarshal(raw, &dt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	ev, ok := dt.Value().(entity.Event)
	if !ok {
		return nil, fmt.Errorf("decode %s: got %T", head.Type, dt.Value())
	}
	return ev, nil
}
