package prediction

import (
	"voxelrelay.ai/internal/sim/entity"
)

const DefaultHistory = 64

type sample struct {
	timeMs int64
	loc    entity.Location
}

// ring holds the newest samples of one entity, oldest overwritten first.
type ring struct {
	buf  []sample
	next int
	n    int
}

func (r *ring) push(s sample) {
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// at returns the newest sample taken at or before t.
func (r *ring) at(t int64) (sample, bool) {
	for i := 1; i <= r.n; i++ {
		s := r.buf[(r.next-i+len(r.buf))%len(r.buf)]
		if s.timeMs <= t {
			return s, true
		}
	}
	return sample{}, false
}

// Rewinder records entity locations every tick and can temporarily move the
// world back to what a client saw when it sent an input.
// It runs on the simulation goroutine.
type Rewinder struct {
	store   *entity.Store
	history int

	rings map[uint64]*ring

	rewound map[*entity.Entity]entity.Location
	active  bool
}

func NewRewinder(store *entity.Store, history int) *Rewinder {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Rewinder{
		store:   store,
		history: history,
		rings:   map[uint64]*ring{},
		rewound: map[*entity.Entity]entity.Location{},
	}
}

// Record samples every entity with a Location and drops history of entities
// that no longer exist.
func (r *Rewinder) Record(nowMs int64) {
	seen := make(map[uint64]struct{}, len(r.rings))
	r.store.Each(func(e *entity.Entity) {
		c, ok := r.store.Component(e, entity.TypeLocation)
		if !ok {
			return
		}
		seen[e.ID()] = struct{}{}
		rg := r.rings[e.ID()]
		if rg == nil {
			rg = &ring{buf: make([]sample, r.history)}
			r.rings[e.ID()] = rg
		}
		rg.push(sample{timeMs: nowMs, loc: *c.(*entity.Location)})
	})
	for id := range r.rings {
		if _, ok := seen[id]; !ok {
			delete(r.rings, id)
		}
	}
}

// LagCompensate moves every entity except client to where it was at atMs.
// A second call before RestoreToPresent does nothing.
func (r *Rewinder) LagCompensate(client *entity.Entity, atMs int64) {
	if r.active {
		return
	}
	r.active = true
	r.store.Each(func(e *entity.Entity) {
		if e == client {
			return
		}
		c, ok := r.store.Component(e, entity.TypeLocation)
		if !ok {
			return
		}
		rg := r.rings[e.ID()]
		if rg == nil {
			return
		}
		s, ok := rg.at(atMs)
		if !ok {
			return
		}
		r.rewound[e] = *c.(*entity.Location)
		past := s.loc
		r.store.ReplaceQuiet(e, &past)
	})
}

func (r *Rewinder) RestoreToPresent() {
	if !r.active {
		return
	}
	for e, loc := range r.rewound {
		present := loc
		r.store.ReplaceQuiet(e, &present)
	}
	r.rewound = map[*entity.Entity]entity.Location{}
	r.active = false
}

func (r *Rewinder) Active() bool { return r.active }
