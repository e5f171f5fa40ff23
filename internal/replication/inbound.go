package replication

import (
	"encoding/json"
	"errors"

	"voxelrelay.ai/internal/protocol"
	"voxelrelay.ai/internal/replication/netcodec"
	"voxelrelay.ai/internal/sim/entity"
)

type inboundEvent struct {
	target entity.NetID
	ev     entity.Event
	meta   entity.EventMetadata
}

// processReceived applies every envelope queued since the last tick, in
// arrival order. A bad envelope is skipped; the rest still apply.
func (s *Session) processReceived() {
	for _, raw := range s.inbound.Drain() {
		s.processMessage(raw)
	}
}

func (s *Session) processMessage(raw []byte) {
	var msg protocol.NetMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Printf("ERROR session %s: decode envelope: %v", s.id, err)
		return
	}
	for {
		cur := s.lastReceived.Load()
		if msg.Time <= cur || s.lastReceived.CompareAndSwap(cur, msg.Time) {
			break
		}
	}
	for _, u := range msg.UpdateEntities {
		s.applyUpdate(u)
	}
	s.dispatchEvents(s.decodeEvents(msg.Events))
}

func (s *Session) applyUpdate(u protocol.UpdateEntity) {
	e, ok := s.deps.Entities.Lookup(entity.NetID(u.NetID))
	if !ok {
		s.logger.Printf("WARN session %s: update for missing entity %d", s.id, u.NetID)
		return
	}
	// Stale authority is expected while control changes hands.
	if s.deps.Entities.ControllerOf(e) != s.id {
		return
	}
	comps, err := s.deps.Codec.DeserializeDelta(e, u.Entity, entity.FieldRule{Owner: true, Inbound: true})
	if err != nil {
		s.logger.Printf("ERROR session %s: decode update for %s: %v", s.id, e, err)
		return
	}
	if len(comps) > 0 {
		s.deps.Entities.SaveComponents(e, comps...)
	}
}

func (s *Session) decodeEvents(msgs []protocol.EventMsg) []inboundEvent {
	var out []inboundEvent
	for _, m := range msgs {
		ev, err := s.deps.Codec.DeserializeEvent(m.Event)
		if err != nil {
			if errors.Is(err, netcodec.ErrUnknownEvent) {
				s.logger.Printf("WARN session %s: %v", s.id, err)
			} else {
				s.logger.Printf("ERROR session %s: decode event: %v", s.id, err)
			}
			continue
		}
		meta, ok := s.deps.Events.Metadata(ev)
		if !ok {
			s.logger.Printf("WARN session %s: no metadata for %s", s.id, ev.EventName())
			continue
		}
		if meta.Network != entity.NetworkEventServer {
			s.logger.Printf("WARN session %s: rejected %s event %s from client", s.id, meta.Network, meta.Name)
			continue
		}
		out = append(out, inboundEvent{target: entity.NetID(m.Target), ev: ev, meta: meta})
	}
	return out
}

// dispatchEvents runs one envelope's events. If any needs lag compensation the
// world is rewound once before the first dispatch and restored once after the
// last.
func (s *Session) dispatchEvents(batch []inboundEvent) {
	if len(batch) == 0 {
		return
	}
	rewound := false
	for _, in := range batch {
		if in.meta.LagCompensated && s.deps.Predictor != nil {
			s.deps.Predictor.LagCompensate(s.character, s.lastReceived.Load())
			rewound = true
			break
		}
	}
	if rewound {
		defer s.deps.Predictor.RestoreToPresent()
	}
	for _, in := range batch {
		s.dispatch(in)
	}
}

func (s *Session) dispatch(in inboundEvent) {
	target, ok := s.deps.Entities.Lookup(in.target)
	if !ok {
		s.logger.Printf("WARN session %s: %s targets missing entity %d", s.id, in.meta.Name, in.target)
		return
	}
	if s.deps.Entities.ControllerOf(target) != s.id {
		s.logger.Printf("WARN session %s: %s targets %s it does not control", s.id, in.meta.Name, target)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("ERROR session %s: handler for %s panicked: %v", s.id, in.meta.Name, r)
		}
	}()
	if err := s.deps.Entities.Dispatch(target, in.ev); err != nil {
		s.logger.Printf("WARN session %s: dispatch %s to %s: %v", s.id, in.meta.Name, target, err)
	}
}
