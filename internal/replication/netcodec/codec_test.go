package netcodec

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"voxelrelay.ai/internal/sim/entity"
	"voxelrelay.ai/internal/sim/mathx"
)

func newFixture(t *testing.T) (*entity.Store, *Codec, *entity.Entity) {
	t.Helper()
	s := entity.NewStore()
	c := New(s, NewLibrary())
	e := s.Create("S1",
		&entity.Network{AlwaysRelevant: true},
		&entity.Location{Pos: mathx.Vec3f{X: 1, Y: 2, Z: 3}, Yaw: 90},
		&entity.Health{Current: 7, Max: 10, Regen: 2},
		&entity.Character{Session: "S1"},
	)
	return s, c, e
}

func unpack(t *testing.T, raw json.RawMessage) Packed {
	t.Helper()
	var p Packed
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return p
}

func TestSerializeFull_FieldRules(t *testing.T) {
	_, c, e := newFixture(t)

	raw, err := c.SerializeFull(e, entity.FieldRule{Initial: true})
	if err != nil {
		t.Fatalf("SerializeFull: %v", err)
	}
	p := unpack(t, raw)
	if _, ok := p.Components[entity.TypeHealth]["regen"]; ok {
		t.Fatalf("owner-only field leaked to another client: %s", raw)
	}
	if _, ok := p.Components[entity.TypeNetwork]["always_relevant"]; ok {
		t.Fatalf("never field replicated: %s", raw)
	}
	if _, ok := p.Components[entity.TypeCharacter]["session"]; !ok {
		t.Fatalf("initial field missing on create: %s", raw)
	}

	raw, _ = c.SerializeFull(e, entity.FieldRule{Owner: true, Initial: true})
	p = unpack(t, raw)
	if string(p.Components[entity.TypeHealth]["regen"]) != "2" {
		t.Fatalf("owner create should carry regen: %s", raw)
	}
	if string(p.Components[entity.TypeLocation]["yaw"]) != "90" {
		t.Fatalf("owner create should carry client fields: %s", raw)
	}
}

func TestSerializeDelta(t *testing.T) {
	_, c, e := newFixture(t)

	raw, err := c.SerializeDelta(e, nil, []entity.ComponentType{entity.TypeCharacter}, nil, entity.FieldRule{})
	if err != nil {
		t.Fatalf("SerializeDelta: %v", err)
	}
	if raw != nil {
		t.Fatalf("delta with only initial fields should be nil, got %s", raw)
	}

	raw, err = c.SerializeDelta(e,
		[]entity.ComponentType{entity.TypeHealth},
		[]entity.ComponentType{entity.TypeLocation},
		[]entity.ComponentType{entity.TypeColor},
		entity.FieldRule{Owner: true})
	if err != nil {
		t.Fatalf("SerializeDelta: %v", err)
	}
	p := unpack(t, raw)
	if _, ok := p.Components[entity.TypeLocation]["yaw"]; ok {
		t.Fatalf("owner update must not echo client fields: %s", raw)
	}
	if _, ok := p.Components[entity.TypeHealth]["regen"]; !ok {
		t.Fatalf("owner update should include owner fields: %s", raw)
	}
	if len(p.Removed) != 1 || p.Removed[0] != entity.TypeColor {
		t.Fatalf("removed=%v want [Color]", p.Removed)
	}
}

func TestDeserializeDelta_OnlyClientFields(t *testing.T) {
	s, c, e := newFixture(t)
	in := json.RawMessage(`{"components":{"Location":{"pos":{"x":99,"y":0,"z":0},"yaw":45}}}`)

	comps, err := c.DeserializeDelta(e, in, entity.FieldRule{Owner: true, Inbound: true})
	if err != nil {
		t.Fatalf("DeserializeDelta: %v", err)
	}
	if len(comps) != 1 {
		t.Fatalf("components=%d want 1", len(comps))
	}
	loc := comps[0].(*entity.Location)
	if loc.Yaw != 45 || loc.Pos.X != 1 {
		t.Fatalf("loc=%+v want yaw 45 and server position kept", loc)
	}
	cur, _ := s.Component(e, entity.TypeLocation)
	if cur.(*entity.Location).Yaw != 90 {
		t.Fatalf("deserialize mutated the live component")
	}
}

func TestDeserializeDelta_Errors(t *testing.T) {
	_, c, e := newFixture(t)
	rule := entity.FieldRule{Owner: true, Inbound: true}
	if _, err := c.DeserializeDelta(e, json.RawMessage(`{"components":{"Nope":{}}}`), rule); !errors.Is(err, ErrUnknownComponent) {
		t.Fatalf("err=%v want ErrUnknownComponent", err)
	}
	if _, err := c.DeserializeDelta(e, json.RawMessage(`{"components":{"Location":{"bogus":1}}}`), rule); !errors.Is(err, ErrBadField) {
		t.Fatalf("err=%v want ErrBadField", err)
	}
	if _, err := c.DeserializeDelta(e, json.RawMessage(`{"components":{"Location":{"yaw":"x"}}}`), rule); !errors.Is(err, ErrBadField) {
		t.Fatalf("err=%v want ErrBadField", err)
	}
	if _, err := c.DeserializeDelta(e, json.RawMessage(`{`), rule); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestEvents_RoundTrip(t *testing.T) {
	_, c, _ := newFixture(t)
	raw, err := c.SerializeEvent(&entity.AttackEvent{Target: 42, Damage: 3})
	if err != nil {
		t.Fatalf("SerializeEvent: %v", err)
	}
	if !strings.HasPrefix(string(raw), `{"Type":"AttackEvent",`) {
		t.Fatalf("raw=%s", raw)
	}
	ev, err := c.DeserializeEvent(raw)
	if err != nil {
		t.Fatalf("DeserializeEvent: %v", err)
	}
	a, ok := ev.(*entity.AttackEvent)
	if !ok || a.Target != 42 || a.Damage != 3 {
		t.Fatalf("event=%#v", ev)
	}

	if _, err := c.DeserializeEvent(json.RawMessage(`{"Type":"Teleport"}`)); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("err=%v want ErrUnknownEvent", err)
	}
}

func TestLibrary_Metadata(t *testing.T) {
	l := NewLibrary()
	m, ok := l.Metadata(&entity.AttackEvent{})
	if !ok || m.Network != entity.NetworkEventServer || !m.LagCompensated {
		t.Fatalf("attack meta=%+v ok=%v", m, ok)
	}
	m, _ = l.MetadataByName("DamagedEvent")
	if m.Network != entity.NetworkEventOwner {
		t.Fatalf("damaged network=%v want OWNER", m.Network)
	}
	// Re-registering the same prototype is harmless.
	NewLibrary()
}
