package entity

import (
	"errors"
	"testing"

	"voxelrelay.ai/internal/sim/mathx"
)

type recordingListener struct {
	created, destroyed      int
	added, removed, changed []ComponentType
}

func (r *recordingListener) OnEntityCreated(*Entity)   { r.created++ }
func (r *recordingListener) OnEntityDestroyed(*Entity) { r.destroyed++ }
func (r *recordingListener) OnComponentAdded(_ *Entity, t ComponentType) {
	r.added = append(r.added, t)
}
func (r *recordingListener) OnComponentRemoved(_ *Entity, t ComponentType) {
	r.removed = append(r.removed, t)
}
func (r *recordingListener) OnComponentChanged(_ *Entity, t ComponentType) {
	r.changed = append(r.changed, t)
}

func TestStore_CreateAssignsNetID(t *testing.T) {
	s := NewStore()
	a := s.Create("", &Network{})
	b := s.Create("C1", &Network{}, &Location{})
	c := s.Create("")
	if a.NetID() != 1 || b.NetID() != 2 {
		t.Fatalf("net ids=%d,%d want 1,2", a.NetID(), b.NetID())
	}
	if c.NetID() != 0 {
		t.Fatalf("entity without Network should have no net id, got %d", c.NetID())
	}
	got, ok := s.Lookup(2)
	if !ok || got != b {
		t.Fatalf("Lookup(2) failed")
	}
	if s.ControllerOf(b) != "C1" {
		t.Fatalf("controller=%q want C1", s.ControllerOf(b))
	}
}

func TestStore_ListenerNotifications(t *testing.T) {
	s := NewStore()
	l := &recordingListener{}
	s.AddListener(l)

	e := s.Create("", &Network{})
	s.AddComponent(e, &Health{Current: 10, Max: 10})
	s.SaveComponents(e, &Health{Current: 5, Max: 10})
	s.RemoveComponent(e, TypeHealth)
	s.RemoveComponent(e, TypeHealth)
	s.Destroy(e)

	if l.created != 1 || l.destroyed != 1 {
		t.Fatalf("created=%d destroyed=%d", l.created, l.destroyed)
	}
	if len(l.added) != 1 || len(l.changed) != 1 || len(l.removed) != 1 {
		t.Fatalf("added=%v changed=%v removed=%v", l.added, l.changed, l.removed)
	}
	if _, ok := s.Lookup(e.NetID()); ok {
		t.Fatalf("destroyed entity still resolvable")
	}
}

func TestStore_ReplaceQuietDoesNotNotify(t *testing.T) {
	s := NewStore()
	l := &recordingListener{}
	s.AddListener(l)
	e := s.Create("", &Location{})
	s.ReplaceQuiet(e, &Location{Pos: mathx.Vec3f{X: 4}})
	if len(l.changed) != 0 {
		t.Fatalf("ReplaceQuiet notified listeners: %v", l.changed)
	}
	pos, ok := s.Position(e)
	if !ok || pos.X != 4 {
		t.Fatalf("pos=%+v ok=%v", pos, ok)
	}
}

func TestStore_Dispatch(t *testing.T) {
	s := NewStore()
	e := s.Create("", &Network{})
	var got string
	s.Subscribe("SayEvent", func(_ *Entity, ev Event) { got = ev.(*SayEvent).Text })
	if err := s.Dispatch(e, &SayEvent{Text: "hi"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got != "hi" {
		t.Fatalf("handler got %q", got)
	}
	if err := s.Dispatch(e, &AttackEvent{}); !errors.Is(err, ErrNoSuchHandler) {
		t.Fatalf("err=%v want ErrNoSuchHandler", err)
	}
}

func TestFieldRule_Allows(t *testing.T) {
	create := FieldRule{Initial: true}
	if !create.Allows("") || !create.Allows(FieldInitial) || create.Allows(FieldOwner) || !create.Allows(FieldClient) {
		t.Fatalf("non-owner create rule wrong")
	}
	ownerCreate := FieldRule{Owner: true, Initial: true}
	if !ownerCreate.Allows(FieldClient) || !ownerCreate.Allows(FieldOwner) {
		t.Fatalf("owner create rule should include client and owner fields")
	}
	update := FieldRule{Owner: true}
	if update.Allows(FieldInitial) || update.Allows(FieldClient) {
		t.Fatalf("owner update rule should skip initial and client fields")
	}
	if !(FieldRule{}).Allows(FieldClient) {
		t.Fatalf("non-owner update rule should carry client fields")
	}
	in := FieldRule{Owner: true, Inbound: true}
	if in.Allows(FieldAlways) || !in.Allows(FieldClient) {
		t.Fatalf("inbound rule should accept only client fields")
	}
	if (FieldRule{Inbound: true}).Allows(FieldClient) {
		t.Fatalf("inbound rule without ownership must reject everything")
	}
	if create.Allows(FieldNever) {
		t.Fatalf("never fields must not replicate")
	}
}
