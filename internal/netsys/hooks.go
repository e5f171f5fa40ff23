package netsys

import (
	"voxelrelay.ai/internal/sim/entity"
)

// hooks fans entity store notifications out to every session tracker. The
// tracker ignores marks for entities its client does not know yet.
type hooks struct{ m *Manager }

func (h hooks) OnEntityCreated(*entity.Entity) {}

func (h hooks) OnEntityDestroyed(e *entity.Entity) {
	id := e.NetID()
	if id == 0 {
		return
	}
	for _, mem := range h.m.sessions {
		if tr := mem.session.Relevance(); tr.IsKnown(id) {
			tr.MarkRemoved(id)
		}
	}
}

func (h hooks) OnComponentAdded(e *entity.Entity, t entity.ComponentType) {
	for _, mem := range h.m.sessions {
		mem.session.Relevance().MarkComponentAdded(e.NetID(), t)
	}
}

func (h hooks) OnComponentRemoved(e *entity.Entity, t entity.ComponentType) {
	for _, mem := range h.m.sessions {
		mem.session.Relevance().MarkComponentRemoved(e.NetID(), t)
	}
}

func (h hooks) OnComponentChanged(e *entity.Entity, t entity.ComponentType) {
	for _, mem := range h.m.sessions {
		mem.session.Relevance().MarkComponentDirty(e.NetID(), t)
	}
}

var _ entity.Listener = hooks{}
