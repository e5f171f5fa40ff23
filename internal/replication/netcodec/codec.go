package netcodec

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"voxelrelay.ai/internal/sim/entity"
)

var (
	ErrUnknownComponent = errors.New("unknown component type")
	ErrBadField         = errors.New("bad component field")
)

// Packed is the wire form of an entity state or delta.
type Packed struct {
	Components map[entity.ComponentType]map[string]json.RawMessage `json:"components,omitempty"`
	Removed    []entity.ComponentType                              `json:"removed,omitempty"`
}

type fieldInfo struct {
	index int
	name  string
	kind  string
}

type schema struct {
	typ    reflect.Type // struct type
	fields []fieldInfo
	byName map[string]fieldInfo
}

// Codec packs entity components as JSON objects keyed by field, filtered by
// each field's `net` tag. It reads components from the store it was built with.
type Codec struct {
	store *entity.Store
	lib   *Library

	mu      sync.RWMutex
	schemas map[entity.ComponentType]*schema
}

func New(store *entity.Store, lib *Library) *Codec {
	c := &Codec{
		store:   store,
		lib:     lib,
		schemas: map[entity.ComponentType]*schema{},
	}
	for _, proto := range []entity.Component{
		&entity.Location{},
		&entity.Block{},
		&entity.Network{},
		&entity.DisplayName{},
		&entity.Color{},
		&entity.Health{},
		&entity.Character{},
	} {
		c.RegisterComponent(proto)
	}
	return c
}

// RegisterComponent records the schema of a pointer-to-struct component.
func (c *Codec) RegisterComponent(proto entity.Component) {
	t := reflect.TypeOf(proto)
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("netcodec: component %T must be a pointer to struct", proto))
	}
	st := t.Elem()
	s := &schema{typ: st, byName: map[string]fieldInfo{}}
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag := f.Tag.Get("json"); tag != "" {
			if n, _, _ := strings.Cut(tag, ","); n == "-" {
				continue
			} else if n != "" {
				name = n
			}
		}
		fi := fieldInfo{index: i, name: name, kind: f.Tag.Get("net")}
		s.fields = append(s.fields, fi)
		s.byName[name] = fi
	}
	c.mu.Lock()
	c.schemas[proto.ComponentType()] = s
	c.mu.Unlock()
}

func (c *Codec) schema(t entity.ComponentType) (*schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[t]
	return s, ok
}

func (c *Codec) pack(comp entity.Component, rule entity.FieldRule) (map[string]json.RawMessage, bool, error) {
	s, ok := c.schema(comp.ComponentType())
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownComponent, comp.ComponentType())
	}
	v := reflect.ValueOf(comp).Elem()
	out := map[string]json.RawMessage{}
	for _, f := range s.fields {
		if !rule.Allows(f.kind) {
			continue
		}
		b, err := json.Marshal(v.Field(f.index).Interface())
		if err != nil {
			return nil, false, fmt.Errorf("%s.%s: %w", comp.ComponentType(), f.name, err)
		}
		out[f.name] = b
	}
	// Marker components with no fields still replicate their presence.
	return out, len(out) > 0 || len(s.fields) == 0, nil
}

// SerializeFull packs every component with at least one field passing rule.
func (c *Codec) SerializeFull(e *entity.Entity, rule entity.FieldRule) (json.RawMessage, error) {
	if !e.Exists() {
		return nil, entity.ErrNotFound
	}
	p := Packed{Components: map[entity.ComponentType]map[string]json.RawMessage{}}
	for _, t := range c.store.ComponentTypes(e) {
		comp, _ := c.store.Component(e, t)
		if _, known := c.schema(t); !known {
			continue
		}
		fields, keep, err := c.pack(comp, rule)
		if err != nil {
			return nil, err
		}
		if keep {
			p.Components[t] = fields
		}
	}
	return json.Marshal(p)
}

// SerializeDelta packs added and dirty components plus removed type names. It
// returns nil when nothing passes rule.
func (c *Codec) SerializeDelta(e *entity.Entity, added, dirty, removed []entity.ComponentType, rule entity.FieldRule) (json.RawMessage, error) {
	if !e.Exists() {
		return nil, entity.ErrNotFound
	}
	p := Packed{Components: map[entity.ComponentType]map[string]json.RawMessage{}}
	for _, t := range added {
		comp, ok := c.store.Component(e, t)
		if !ok {
			continue
		}
		fields, _, err := c.pack(comp, rule)
		if err != nil {
			return nil, err
		}
		p.Components[t] = fields
	}
	for _, t := range dirty {
		comp, ok := c.store.Component(e, t)
		if !ok {
			continue
		}
		fields, _, err := c.pack(comp, rule)
		if err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			p.Components[t] = fields
		}
	}
	for _, t := range removed {
		if _, ok := c.schema(t); ok {
			p.Removed = append(p.Removed, t)
		}
	}
	if len(p.Components) == 0 && len(p.Removed) == 0 {
		return nil, nil
	}
	return json.Marshal(p)
}

// DeserializeDelta overlays the fields of packed that pass rule onto copies of
// e's current components. Fields that fail the rule are ignored; removals are
// never accepted from a client.
func (c *Codec) DeserializeDelta(e *entity.Entity, packed json.RawMessage, rule entity.FieldRule) ([]entity.Component, error) {
	if !e.Exists() {
		return nil, entity.ErrNotFound
	}
	var p Packed
	if err := json.Unmarshal(packed, &p); err != nil {
		return nil, fmt.Errorf("decode entity delta: %w", err)
	}
	var out []entity.Component
	for t, fields := range p.Components {
		s, ok := c.schema(t)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownComponent, t)
		}
		cur, ok := c.store.Component(e, t)
		if !ok {
			return nil, fmt.Errorf("%w: %s not on %s", ErrUnknownComponent, t, e)
		}
		cp := reflect.New(s.typ)
		cp.Elem().Set(reflect.ValueOf(cur).Elem())
		changed := false
		for name, raw := range fields {
			f, ok := s.byName[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s", ErrBadField, t, name)
			}
			if !rule.Allows(f.kind) {
				continue
			}
			if err := json.Unmarshal(raw, cp.Elem().Field(f.index).Addr().Interface()); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrBadField, t, name, err)
			}
			changed = true
		}
		if changed {
			out = append(out, cp.Interface().(entity.Component))
		}
	}
	sortComponents(out)
	return out, nil
}

func sortComponents(cs []entity.Component) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].ComponentType() < cs[j].ComponentType() })
}

// SerializeEvent writes ev as {"Type": name, ...fields}.
func (c *Codec) SerializeEvent(ev entity.Event) (json.RawMessage, error) {
	return c.lib.Encode(ev)
}

func (c *Codec) DeserializeEvent(raw json.RawMessage) (entity.Event, error) {
	return c.lib.Decode(raw)
}
