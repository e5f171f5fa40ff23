package relevance

import (
	"sort"

	"voxelrelay.ai/internal/sim/entity"
)

type State int

const (
	NotRelevant State = iota
	Initial
	Relevant
	Removed
)

func (s State) String() string {
	switch s {
	case Initial:
		return "INITIAL"
	case Relevant:
		return "RELEVANT"
	case Removed:
		return "REMOVED"
	default:
		return "NOT_RELEVANT"
	}
}

// Delta is the pending component change set for one entity. The three slices
// are disjoint and keep insertion order.
type Delta struct {
	ID      entity.NetID
	Added   []entity.ComponentType
	Removed []entity.ComponentType
	Dirty   []entity.ComponentType
}

func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Dirty) == 0
}

// Tracker holds what one client has been told about network entities.
// It has a single writer (the simulation goroutine) and no internal locking.
type Tracker struct {
	initial  map[entity.NetID]struct{}
	relevant map[entity.NetID]struct{}
	removed  map[entity.NetID]struct{}
	deltas   map[entity.NetID]*Delta
}

func NewTracker() *Tracker {
	return &Tracker{
		initial:  map[entity.NetID]struct{}{},
		relevant: map[entity.NetID]struct{}{},
		removed:  map[entity.NetID]struct{}{},
		deltas:   map[entity.NetID]*Delta{},
	}
}

func (t *Tracker) State(id entity.NetID) State {
	if _, ok := t.initial[id]; ok {
		return Initial
	}
	if _, ok := t.relevant[id]; ok {
		return Relevant
	}
	if _, ok := t.removed[id]; ok {
		return Removed
	}
	return NotRelevant
}

// IsKnown reports whether the client has been (or is about to be) told id exists.
func (t *Tracker) IsKnown(id entity.NetID) bool {
	s := t.State(id)
	return s == Initial || s == Relevant
}

// Len is the number of entities the client knows or is about to learn about.
func (t *Tracker) Len() int { return len(t.initial) + len(t.relevant) }

// MarkInitial queues id to be sent as a full creation on the next flush.
func (t *Tracker) MarkInitial(id entity.NetID) {
	if id == 0 {
		return
	}
	if _, ok := t.relevant[id]; ok {
		return
	}
	// A pending removal stays queued: the envelope sends removals before
	// creations, so the client drops its stale copy first.
	t.initial[id] = struct{}{}
}

// MarkRemoved drops id. An id still pending creation is forgotten outright,
// anything else is queued as a removal. Pending deltas are discarded either way.
func (t *Tracker) MarkRemoved(id entity.NetID) {
	if _, ok := t.initial[id]; ok {
		delete(t.initial, id)
	} else {
		t.removed[id] = struct{}{}
	}
	delete(t.relevant, id)
	delete(t.deltas, id)
}

func (t *Tracker) isRelevant(id entity.NetID) bool {
	if _, ok := t.initial[id]; ok {
		return false
	}
	_, ok := t.relevant[id]
	return ok
}

func (t *Tracker) delta(id entity.NetID) *Delta {
	d := t.deltas[id]
	if d == nil {
		d = &Delta{ID: id}
		t.deltas[id] = d
	}
	return d
}

func (t *Tracker) MarkComponentAdded(id entity.NetID, ct entity.ComponentType) {
	if !t.isRelevant(id) {
		return
	}
	d := t.delta(id)
	if remove(&d.Removed, ct) {
		// Removed then re-added within one flush: the type persists with new content.
		insert(&d.Dirty, ct)
		return
	}
	remove(&d.Dirty, ct)
	insert(&d.Added, ct)
}

func (t *Tracker) MarkComponentRemoved(id entity.NetID, ct entity.ComponentType) {
	if !t.isRelevant(id) {
		return
	}
	d := t.delta(id)
	if remove(&d.Added, ct) {
		// The client never saw it.
		return
	}
	remove(&d.Dirty, ct)
	insert(&d.Removed, ct)
}

func (t *Tracker) MarkComponentDirty(id entity.NetID, ct entity.ComponentType) {
	if !t.isRelevant(id) {
		return
	}
	d := t.delta(id)
	if contains(d.Added, ct) || contains(d.Removed, ct) {
		return
	}
	insert(&d.Dirty, ct)
}

// FlushInitial returns the pending creations in ascending order and promotes
// them to Relevant.
func (t *Tracker) FlushInitial() []entity.NetID {
	if len(t.initial) == 0 {
		return nil
	}
	out := make([]entity.NetID, 0, len(t.initial))
	for id := range t.initial {
		out = append(out, id)
		t.relevant[id] = struct{}{}
	}
	t.initial = map[entity.NetID]struct{}{}
	sortIDs(out)
	return out
}

// FlushDirty returns the non-empty deltas of Relevant entities ordered by id.
func (t *Tracker) FlushDirty() []Delta {
	if len(t.deltas) == 0 {
		return nil
	}
	out := make([]Delta, 0, len(t.deltas))
	for id, d := range t.deltas {
		if _, ok := t.relevant[id]; !ok || d.Empty() {
			continue
		}
		out = append(out, *d)
	}
	t.deltas = map[entity.NetID]*Delta{}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FlushRemoved returns the pending removals in ascending order.
func (t *Tracker) FlushRemoved() []entity.NetID {
	if len(t.removed) == 0 {
		return nil
	}
	out := make([]entity.NetID, 0, len(t.removed))
	for id := range t.removed {
		out = append(out, id)
	}
	t.removed = map[entity.NetID]struct{}{}
	sortIDs(out)
	return out
}

// Known returns every Initial or Relevant id in ascending order.
func (t *Tracker) Known() []entity.NetID {
	out := make([]entity.NetID, 0, t.Len())
	for id := range t.initial {
		out = append(out, id)
	}
	for id := range t.relevant {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []entity.NetID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func contains(s []entity.ComponentType, ct entity.ComponentType) bool {
	for _, v := range s {
		if v == ct {
			return true
		}
	}
	return false
}

func insert(s *[]entity.ComponentType, ct entity.ComponentType) {
	if !contains(*s, ct) {
		*s = append(*s, ct)
	}
}

func remove(s *[]entity.ComponentType, ct entity.ComponentType) bool {
	for i, v := range *s {
		if v == ct {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return true
		}
	}
	return false
}
