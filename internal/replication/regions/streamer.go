package regions

import (
	"voxelrelay.ai/internal/sim/mathx"
)

const (
	DefaultSendRate     = 0.05469
	DefaultTickDuration = 0.05
)

type State int

const (
	Unknown State = iota
	Pending
	Streamed
	Invalidated
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Streamed:
		return "STREAMED"
	case Invalidated:
		return "INVALIDATED"
	default:
		return "UNKNOWN"
	}
}

type Config struct {
	// SendRate is regions per second per unit of bandwidth allowance.
	SendRate float64
	// TickDuration is the length of one net tick in seconds.
	TickDuration float64
}

func (c Config) withDefaults() Config {
	if c.SendRate <= 0 {
		c.SendRate = DefaultSendRate
	}
	if c.TickDuration <= 0 {
		c.TickDuration = DefaultTickDuration
	}
	return c
}

// Streamer paces delivery of world regions to one client. Like the relevance
// tracker it is owned by the simulation goroutine.
type Streamer[D any] struct {
	cfg Config

	acc float64

	pending  map[mathx.Vec3i]D
	streamed map[mathx.Vec3i]struct{}

	invalidate    []mathx.Vec3i
	invalidateSet map[mathx.Vec3i]struct{}
}

func NewStreamer[D any](cfg Config) *Streamer[D] {
	return &Streamer[D]{
		cfg:           cfg.withDefaults(),
		acc:           1.0,
		pending:       map[mathx.Vec3i]D{},
		streamed:      map[mathx.Vec3i]struct{}{},
		invalidateSet: map[mathx.Vec3i]struct{}{},
	}
}

func (s *Streamer[D]) State(pos mathx.Vec3i) State {
	if _, ok := s.invalidateSet[pos]; ok {
		return Invalidated
	}
	if _, ok := s.pending[pos]; ok {
		return Pending
	}
	if _, ok := s.streamed[pos]; ok {
		return Streamed
	}
	return Unknown
}

// OnRelevant queues pos for streaming. A queued invalidation for pos is
// cancelled so the client never hears about it.
func (s *Streamer[D]) OnRelevant(pos mathx.Vec3i, data D) {
	s.cancelInvalidation(pos)
	s.pending[pos] = data
}

func (s *Streamer[D]) OnIrrelevant(pos mathx.Vec3i) {
	delete(s.pending, pos)
	if _, ok := s.streamed[pos]; !ok {
		return
	}
	if _, ok := s.invalidateSet[pos]; ok {
		return
	}
	s.invalidateSet[pos] = struct{}{}
	s.invalidate = append(s.invalidate, pos)
}

// FlushInvalidations returns queued invalidations in the order they happened
// and forgets those regions.
func (s *Streamer[D]) FlushInvalidations() []mathx.Vec3i {
	if len(s.invalidate) == 0 {
		return nil
	}
	out := s.invalidate
	s.invalidate = nil
	for _, p := range out {
		delete(s.invalidateSet, p)
		delete(s.streamed, p)
	}
	return out
}

// Next advances the send accumulator by one tick and returns at most one
// region, the pending one nearest to viewpoint. Ties go to the smallest
// coordinate in (x, y, z) order.
func (s *Streamer[D]) Next(viewpoint mathx.Vec3i, bandwidth float64) (mathx.Vec3i, D, bool) {
	var zero D
	if len(s.pending) == 0 {
		s.acc = 1.0
		return mathx.Vec3i{}, zero, false
	}
	s.acc += s.cfg.SendRate * s.cfg.TickDuration * bandwidth
	if s.acc <= 1.0 {
		return mathx.Vec3i{}, zero, false
	}
	s.acc -= 1.0

	var (
		best     mathx.Vec3i
		bestDist = -1
	)
	for pos := range s.pending {
		d := pos.DistanceSquared(viewpoint)
		if bestDist < 0 || d < bestDist || (d == bestDist && pos.Less(best)) {
			best = pos
			bestDist = d
		}
	}
	data := s.pending[best]
	delete(s.pending, best)
	s.streamed[best] = struct{}{}
	return best, data, true
}

// Forget drops every trace of pos without telling the client.
func (s *Streamer[D]) Forget(pos mathx.Vec3i) {
	delete(s.pending, pos)
	delete(s.streamed, pos)
	s.cancelInvalidation(pos)
}

func (s *Streamer[D]) cancelInvalidation(pos mathx.Vec3i) {
	if _, ok := s.invalidateSet[pos]; !ok {
		return
	}
	delete(s.invalidateSet, pos)
	for i, p := range s.invalidate {
		if p == pos {
			s.invalidate = append(s.invalidate[:i], s.invalidate[i+1:]...)
			return
		}
	}
}

func (s *Streamer[D]) IsStreamed(pos mathx.Vec3i) bool {
	_, ok := s.streamed[pos]
	return ok
}

func (s *Streamer[D]) Accumulator() float64 { return s.acc }
func (s *Streamer[D]) PendingLen() int      { return len(s.pending) }
func (s *Streamer[D]) StreamedLen() int     { return len(s.streamed) }

// Viewpoint converts a world position to the region holding it. ok=false
// positions fall back to the origin region.
func Viewpoint(pos mathx.Vec3f, ok bool, size mathx.Vec3i) mathx.Vec3i {
	if !ok || pos.IsNaN() {
		return mathx.Vec3i{}
	}
	return mathx.RegionOf(pos.RoundHalfUp(), size)
}
