package replication

import (
	"voxelrelay.ai/internal/protocol"
	"voxelrelay.ai/internal/sim/mathx"
	"voxelrelay.ai/internal/sim/world"
)

// Region relevance arrives from World.UpdateRelevance on the simulation
// goroutine. The streamer keeps the live region and encodes it when it is
// sent, so edits made while it waits are part of the payload.

func (s *Session) OnRegionRelevant(pos mathx.Vec3i, r *world.Region) {
	s.streamer.OnRelevant(pos, r)
}

func (s *Session) OnRegionIrrelevant(pos mathx.Vec3i) {
	s.streamer.OnIrrelevant(pos)
}

// Edits may come from any goroutine. They are queued unfiltered; the send
// step keeps only those inside streamed regions.

func (s *Session) OnBlockChanged(pos mathx.Vec3i, newBlock, _ uint16) {
	if s.closed.Load() {
		return
	}
	s.blocks.Push(blockEdit{
		region: mathx.RegionOf(pos, world.RegionSize),
		msg:    protocol.BlockChange{Pos: pos.Array(), Block: newBlock},
	})
}

func (s *Session) OnExtraDataChanged(layer int, pos mathx.Vec3i, newV, _ uint8) {
	if s.closed.Load() {
		return
	}
	s.extra.Push(extraEdit{
		region: mathx.RegionOf(pos, world.RegionSize),
		msg:    protocol.ExtraDataChange{Layer: layer, Pos: pos.Array(), Value: newV},
	})
}

func (s *Session) OnFamilyRegistered(f world.Family) {
	if s.closed.Load() {
		return
	}
	s.families.Push(protocol.BlockFamily{Name: f.Name, IDs: append([]uint16(nil), f.IDs...)})
}

var (
	_ world.Listener       = (*Session)(nil)
	_ world.FamilyListener = (*Session)(nil)
)
