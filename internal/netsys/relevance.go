package netsys

import (
	"voxelrelay.ai/internal/replication"
	"voxelrelay.ai/internal/replication/regions"
	"voxelrelay.ai/internal/sim/entity"
	"voxelrelay.ai/internal/sim/mathx"
	"voxelrelay.ai/internal/sim/world"
)

func (m *Manager) characterPos(s *replication.Session) (mathx.Vec3f, bool) {
	char := s.Character()
	if !char.Exists() {
		return mathx.Vec3f{}, false
	}
	return m.store.Position(char)
}

func (m *Manager) updateRegionRelevance(s *replication.Session) {
	pos, ok := m.characterPos(s)
	center := regions.Viewpoint(pos, ok, world.RegionSize)
	m.world.UpdateRelevance(s, center, s.ViewDistance().Radius(m.cfg.Relevance.ViewRadii))
}

// entityPos is the location of e, or the center of its block.
func (m *Manager) entityPos(e *entity.Entity) (mathx.Vec3f, bool) {
	if p, ok := m.store.Position(e); ok {
		return p, true
	}
	if b, ok := m.store.BlockPosition(e); ok {
		return mathx.Vec3f{X: float64(b.X) + 0.5, Y: float64(b.Y) + 0.5, Z: float64(b.Z) + 0.5}, true
	}
	return mathx.Vec3f{}, false
}

func (m *Manager) wants(s *replication.Session, e *entity.Entity, center mathx.Vec3f, hasCenter bool) bool {
	if c, ok := m.store.Component(e, entity.TypeNetwork); ok && c.(*entity.Network).AlwaysRelevant {
		return true
	}
	if m.store.ControllerOf(e) == s.ID() {
		return true
	}
	p, ok := m.entityPos(e)
	if !ok {
		return true
	}
	if !hasCenter {
		return false
	}
	r := m.cfg.Relevance.EntityRadius
	return p.DistanceSquared(center) <= r*r
}

// updateEntityRelevance brings the session's tracker in line with what the
// client should see this tick.
func (m *Manager) updateEntityRelevance(s *replication.Session) {
	center, hasCenter := m.characterPos(s)
	tr := s.Relevance()
	want := map[entity.NetID]struct{}{}
	m.store.Each(func(e *entity.Entity) {
		id := e.NetID()
		if id == 0 || !m.store.HasComponent(e, entity.TypeNetwork) {
			return
		}
		if !m.wants(s, e, center, hasCenter) {
			return
		}
		want[id] = struct{}{}
		if !tr.IsKnown(id) {
			tr.MarkInitial(id)
		}
	})
	for _, id := range tr.Known() {
		if _, ok := want[id]; !ok {
			tr.MarkRemoved(id)
		}
	}
}
