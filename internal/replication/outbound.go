package replication

import (
	"encoding/json"

	"voxelrelay.ai/internal/protocol"
	"voxelrelay.ai/internal/replication/regions"
	"voxelrelay.ai/internal/sim/entity"
	"voxelrelay.ai/internal/sim/world"
)

// send builds and transmits one envelope. Sections are filled in wire order.
func (s *Session) send(bandwidth float64) {
	now := s.deps.Clock.GameTimeMs()
	if now < s.lastSentTime {
		now = s.lastSentTime
	}
	s.lastSentTime = now

	msg := protocol.NetMessage{Type: protocol.TypeNet, Time: now}

	msg.BlockFamilies = s.families.Drain()

	for _, p := range s.streamer.FlushInvalidations() {
		msg.InvalidateRegions = append(msg.InvalidateRegions, p.Array())
	}

	s.addRegion(&msg, bandwidth)

	for _, id := range s.tracker.FlushRemoved() {
		msg.RemoveEntities = append(msg.RemoveEntities, uint32(id))
	}

	for _, id := range s.tracker.FlushInitial() {
		if c, ok := s.createEntity(id); ok {
			msg.CreateEntities = append(msg.CreateEntities, c)
		}
	}

	for _, d := range s.tracker.FlushDirty() {
		if u, ok := s.updateEntity(d.ID, d.Added, d.Dirty, d.Removed); ok {
			msg.UpdateEntities = append(msg.UpdateEntities, u)
		}
	}

	for _, e := range s.blocks.Drain() {
		if s.streamer.IsStreamed(e.region) {
			msg.BlockChanges = append(msg.BlockChanges, e.msg)
		}
	}
	for _, e := range s.extra.Drain() {
		if s.streamer.IsStreamed(e.region) {
			msg.ExtraDataChanges = append(msg.ExtraDataChanges, e.msg)
		}
	}

	msg.Events = s.events.Drain()

	b, err := json.Marshal(&msg)
	if err != nil {
		s.logger.Printf("ERROR session %s: encode envelope: %v", s.id, err)
		return
	}
	if err := s.deps.Transport.Send(b); err != nil {
		s.fail(err)
		return
	}
	s.m.sentMessages.Add(1)
	s.m.sentBytes.Add(uint64(len(b)))
	if s.deps.Recorder != nil {
		s.deps.Recorder.RecordEnvelope(EnvelopeStats{
			SessionID:     s.id,
			Time:          msg.Time,
			Bytes:         len(b),
			Families:      len(msg.BlockFamilies),
			Invalidations: len(msg.InvalidateRegions),
			Regions:       len(msg.Regions),
			Removes:       len(msg.RemoveEntities),
			Creates:       len(msg.CreateEntities),
			Updates:       len(msg.UpdateEntities),
			BlockChanges:  len(msg.BlockChanges),
			ExtraChanges:  len(msg.ExtraDataChanges),
			Events:        len(msg.Events),
		})
	}
}

func (s *Session) addRegion(msg *protocol.NetMessage, bandwidth float64) {
	pos, ok := s.deps.Entities.Position(s.character)
	view := regions.Viewpoint(pos, ok, world.RegionSize)
	rp, r, ok := s.streamer.Next(view, bandwidth)
	if !ok {
		return
	}
	p, err := r.Payload()
	if err != nil {
		s.logger.Printf("ERROR session %s: encode region %v: %v", s.id, rp, err)
		s.streamer.Forget(rp)
		return
	}
	msg.Regions = append(msg.Regions, protocol.RegionInfo{
		Pos:    p.Pos,
		Size:   p.Size,
		Blocks: p.Blocks,
		Layers: p.Layers,
	})
}

func (s *Session) rule(e *entity.Entity, initial bool) entity.FieldRule {
	return entity.FieldRule{Owner: s.deps.Entities.ControllerOf(e) == s.id, Initial: initial}
}

func (s *Session) createEntity(id entity.NetID) (protocol.CreateEntity, bool) {
	e, ok := s.deps.Entities.Lookup(id)
	if !ok {
		s.logger.Printf("ERROR session %s: create for missing entity %d", s.id, id)
		return protocol.CreateEntity{}, false
	}
	if !s.deps.Entities.HasComponent(e, entity.TypeNetwork) {
		s.logger.Printf("ERROR session %s: %s has no Network component", s.id, e)
		return protocol.CreateEntity{}, false
	}
	raw, err := s.deps.Codec.SerializeFull(e, s.rule(e, true))
	if err != nil {
		s.logger.Printf("ERROR session %s: serialize %s: %v", s.id, e, err)
		return protocol.CreateEntity{}, false
	}
	c := protocol.CreateEntity{NetID: uint32(id), Entity: raw}
	if bp, ok := s.deps.Entities.BlockPosition(e); ok {
		a := bp.Array()
		c.BlockPos = &a
	}
	return c, true
}

func (s *Session) updateEntity(id entity.NetID, added, dirty, removed []entity.ComponentType) (protocol.UpdateEntity, bool) {
	e, ok := s.deps.Entities.Lookup(id)
	if !ok {
		s.logger.Printf("ERROR session %s: update for missing entity %d", s.id, id)
		return protocol.UpdateEntity{}, false
	}
	raw, err := s.deps.Codec.SerializeDelta(e, added, dirty, removed, s.rule(e, false))
	if err != nil {
		s.logger.Printf("ERROR session %s: serialize delta %s: %v", s.id, e, err)
		return protocol.UpdateEntity{}, false
	}
	if raw == nil {
		return protocol.UpdateEntity{}, false
	}
	return protocol.UpdateEntity{NetID: uint32(id), Entity: raw}, true
}
