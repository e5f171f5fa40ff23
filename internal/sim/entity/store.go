package entity

import (
	"fmt"
	"sort"

	"voxelrelay.ai/internal/sim/mathx"
)

// Listener receives lifecycle and component-change notifications.
// All callbacks run on the simulation goroutine.
type Listener interface {
	OnEntityCreated(e *Entity)
	OnEntityDestroyed(e *Entity)
	OnComponentAdded(e *Entity, t ComponentType)
	OnComponentRemoved(e *Entity, t ComponentType)
	OnComponentChanged(e *Entity, t ComponentType)
}

type Entity struct {
	id    uint64
	netID NetID
	owner string
	comps map[ComponentType]Component
	alive bool
}

func (e *Entity) ID() uint64 {
	if e == nil {
		return 0
	}
	return e.id
}

// NetID returns zero for entities without a Network component.
func (e *Entity) NetID() NetID {
	if e == nil {
		return 0
	}
	return e.netID
}

func (e *Entity) Exists() bool { return e != nil && e.alive }

func (e *Entity) String() string {
	if e == nil {
		return "entity(nil)"
	}
	return fmt.Sprintf("entity(%d net=%d)", e.id, e.netID)
}

type Handler func(target *Entity, ev Event)

// Store is the in-memory entity system. It is not safe for concurrent use;
// the simulation goroutine owns it.
type Store struct {
	nextID    uint64
	nextNetID NetID

	byID  map[uint64]*Entity
	byNet map[NetID]*Entity

	listeners []Listener
	handlers  map[string][]Handler
}

func NewStore() *Store {
	return &Store{
		byID:     map[uint64]*Entity{},
		byNet:    map[NetID]*Entity{},
		handlers: map[string][]Handler{},
	}
}

func (s *Store) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Create builds an entity controlled by owner ("" for server-owned). A Network
// component gets a fresh NetID when its ID is zero.
func (s *Store) Create(owner string, comps ...Component) *Entity {
	s.nextID++
	e := &Entity{
		id:    s.nextID,
		owner: owner,
		comps: make(map[ComponentType]Component, len(comps)),
		alive: true,
	}
	for _, c := range comps {
		if c == nil {
			continue
		}
		e.comps[c.ComponentType()] = c
	}
	if n, ok := e.comps[TypeNetwork].(*Network); ok {
		if n.ID == 0 {
			s.nextNetID++
			n.ID = s.nextNetID
		} else if n.ID > s.nextNetID {
			s.nextNetID = n.ID
		}
		e.netID = n.ID
		s.byNet[n.ID] = e
	}
	s.byID[e.id] = e
	for _, l := range s.listeners {
		l.OnEntityCreated(e)
	}
	return e
}

func (s *Store) Destroy(e *Entity) {
	if !e.Exists() {
		return
	}
	for _, l := range s.listeners {
		l.OnEntityDestroyed(e)
	}
	e.alive = false
	delete(s.byID, e.id)
	if e.netID != 0 {
		delete(s.byNet, e.netID)
	}
}

func (s *Store) Lookup(id NetID) (*Entity, bool) {
	e, ok := s.byNet[id]
	return e, ok && e.alive
}

// ControllerOf returns the session id controlling e, or "".
func (s *Store) ControllerOf(e *Entity) string {
	if !e.Exists() {
		return ""
	}
	return e.owner
}

func (s *Store) SetController(e *Entity, owner string) {
	if e.Exists() {
		e.owner = owner
	}
}

func (s *Store) HasComponent(e *Entity, t ComponentType) bool {
	if !e.Exists() {
		return false
	}
	_, ok := e.comps[t]
	return ok
}

func (s *Store) Component(e *Entity, t ComponentType) (Component, bool) {
	if !e.Exists() {
		return nil, false
	}
	c, ok := e.comps[t]
	return c, ok
}

// ComponentTypes returns the entity's component types in sorted order.
func (s *Store) ComponentTypes(e *Entity) []ComponentType {
	if !e.Exists() {
		return nil
	}
	out := make([]ComponentType, 0, len(e.comps))
	for t := range e.comps {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Store) AddComponent(e *Entity, c Component) {
	if !e.Exists() || c == nil {
		return
	}
	t := c.ComponentType()
	if _, ok := e.comps[t]; ok {
		s.SaveComponents(e, c)
		return
	}
	e.comps[t] = c
	for _, l := range s.listeners {
		l.OnComponentAdded(e, t)
	}
}

func (s *Store) RemoveComponent(e *Entity, t ComponentType) {
	if !e.Exists() {
		return
	}
	if _, ok := e.comps[t]; !ok {
		return
	}
	delete(e.comps, t)
	for _, l := range s.listeners {
		l.OnComponentRemoved(e, t)
	}
}

// SaveComponents stores the given values and marks them changed.
// Unknown types are added instead.
func (s *Store) SaveComponents(e *Entity, comps ...Component) {
	if !e.Exists() {
		return
	}
	for _, c := range comps {
		if c == nil {
			continue
		}
		t := c.ComponentType()
		if _, ok := e.comps[t]; !ok {
			s.AddComponent(e, c)
			continue
		}
		e.comps[t] = c
		for _, l := range s.listeners {
			l.OnComponentChanged(e, t)
		}
	}
}

// ReplaceQuiet swaps a component value without notifying listeners.
// Used by lag compensation, which must not leak rewound state to clients.
func (s *Store) ReplaceQuiet(e *Entity, c Component) {
	if !e.Exists() || c == nil {
		return
	}
	e.comps[c.ComponentType()] = c
}

func (s *Store) Subscribe(event string, h Handler) {
	s.handlers[event] = append(s.handlers[event], h)
}

// Dispatch runs every handler subscribed to ev's name against target.
func (s *Store) Dispatch(target *Entity, ev Event) error {
	if !target.Exists() {
		return ErrNotFound
	}
	hs := s.handlers[ev.EventName()]
	if len(hs) == 0 {
		return ErrNoSuchHandler
	}
	for _, h := range hs {
		h(target, ev)
	}
	return nil
}

// Each visits live entities in creation order.
func (s *Store) Each(fn func(e *Entity)) {
	ids := make([]uint64, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fn(s.byID[id])
	}
}

func (s *Store) Len() int { return len(s.byID) }

// Position returns the world position of e, from Location or else Block.
func (s *Store) Position(e *Entity) (mathx.Vec3f, bool) {
	if !e.Exists() {
		return mathx.Vec3f{}, false
	}
	if loc, ok := e.comps[TypeLocation].(*Location); ok {
		if loc.Pos.IsNaN() {
			return mathx.Vec3f{}, false
		}
		return loc.Pos, true
	}
	if b, ok := e.comps[TypeBlock].(*Block); ok {
		return mathx.Vec3f{X: float64(b.Pos.X), Y: float64(b.Pos.Y), Z: float64(b.Pos.Z)}, true
	}
	return mathx.Vec3f{}, false
}

// BlockPosition returns the fixed cell of a block entity.
func (s *Store) BlockPosition(e *Entity) (mathx.Vec3i, bool) {
	if !e.Exists() {
		return mathx.Vec3i{}, false
	}
	b, ok := e.comps[TypeBlock].(*Block)
	if !ok {
		return mathx.Vec3i{}, false
	}
	return b.Pos, true
}
