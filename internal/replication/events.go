package replication

import (
	"voxelrelay.ai/internal/protocol"
	"voxelrelay.ai/internal/sim/entity"
	"voxelrelay.ai/internal/sim/mathx"
	"voxelrelay.ai/internal/sim/world"
)

// SendEvent queues ev for the client if it can see target: a block target
// must sit in a streamed region, a network target must be known to the
// client. Anything else is dropped. Returns whether the event was queued.
func (s *Session) SendEvent(ev entity.Event, target *entity.Entity) bool {
	if s.closed.Load() || !target.Exists() {
		return false
	}
	if pos, ok := s.deps.Entities.BlockPosition(target); ok {
		if !s.streamer.IsStreamed(mathx.RegionOf(pos, world.RegionSize)) {
			return false
		}
	} else if s.deps.Entities.HasComponent(target, entity.TypeNetwork) {
		if !s.tracker.IsKnown(target.NetID()) {
			return false
		}
	} else {
		return false
	}
	raw, err := s.deps.Codec.SerializeEvent(ev)
	if err != nil {
		s.logger.Printf("ERROR session %s: serialize %s: %v", s.id, ev.EventName(), err)
		return false
	}
	s.events.Push(protocol.EventMsg{Target: uint32(target.NetID()), Event: raw})
	return true
}
