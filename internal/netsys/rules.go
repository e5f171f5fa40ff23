package netsys

import (
	"strings"
	"unicode/utf8"

	"voxelrelay.ai/internal/replication"
	"voxelrelay.ai/internal/sim/entity"
	"voxelrelay.ai/internal/sim/mathx"
	"voxelrelay.ai/internal/sim/world"
)

const (
	attackReach = 4.0
	blockReach  = 6.0
	// maxChatLength is in bytes; cuts land on a rune boundary.
	maxChatLength = 256
	maxDamage     = 10
)

// subscribeRules installs the server-side handlers for client events. Each
// handler receives the sender's own character as target.
func (m *Manager) subscribeRules() {
	m.store.Subscribe("SayEvent", m.onSay)
	m.store.Subscribe("AttackEvent", m.onAttack)
	m.store.Subscribe("PlaceBlockEvent", m.onPlaceBlock)
	m.store.Subscribe("DigBlockEvent", m.onDigBlock)
	m.store.Subscribe("ViewDistanceEvent", m.onViewDistance)
}

func (m *Manager) onSay(speaker *entity.Entity, ev entity.Event) {
	text := truncateText(strings.TrimSpace(ev.(*entity.SayEvent).Text), maxChatLength)
	if text == "" {
		return
	}
	from := speaker.String()
	if c, ok := m.store.Component(speaker, entity.TypeDisplayName); ok {
		from = c.(*entity.DisplayName).Name
	}
	msg := &entity.ChatMessageEvent{From: from, Text: text}
	for _, id := range m.sortedIDs() {
		m.sessions[id].session.SendEvent(msg, speaker)
	}
}

// onAttack runs with the world rewound to what the attacker saw, so reach is
// checked against past positions.
func (m *Manager) onAttack(attacker *entity.Entity, ev entity.Event) {
	a := ev.(*entity.AttackEvent)
	victim, ok := m.store.Lookup(a.Target)
	if !ok || victim == attacker || a.Damage <= 0 {
		return
	}
	from, ok1 := m.store.Position(attacker)
	to, ok2 := m.store.Position(victim)
	if !ok1 || !ok2 || from.DistanceSquared(to) > attackReach*attackReach {
		return
	}
	c, ok := m.store.Component(victim, entity.TypeHealth)
	if !ok {
		return
	}
	dmg := a.Damage
	if dmg > maxDamage {
		dmg = maxDamage
	}
	h := *c.(*entity.Health)
	h.Current -= dmg
	if h.Current < 0 {
		h.Current = 0
	}
	m.store.SaveComponents(victim, &h)
	if mem := m.sessions[m.store.ControllerOf(victim)]; mem != nil {
		mem.session.SendEvent(&entity.DamagedEvent{Amount: dmg, Instigator: attacker.NetID()}, victim)
	}
}

func truncateText(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= max {
		return s
	}
	n := max
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// withinReach checks the block's center against the actor's current position.
func (m *Manager) withinReach(actor *entity.Entity, pos mathx.Vec3i) bool {
	from, ok := m.store.Position(actor)
	if !ok {
		return false
	}
	center := mathx.Vec3f{X: float64(pos.X) + 0.5, Y: float64(pos.Y) + 0.5, Z: float64(pos.Z) + 0.5}
	return from.DistanceSquared(center) <= blockReach*blockReach
}

func (m *Manager) onPlaceBlock(actor *entity.Entity, ev entity.Event) {
	p := ev.(*entity.PlaceBlockEvent)
	pos := mathx.FromArray(p.Pos)
	if p.Block == world.Air || !m.world.KnownBlock(p.Block) {
		m.logger.Printf("WARN %s placed unknown block %d", actor, p.Block)
		return
	}
	if !m.withinReach(actor, pos) || m.world.GetBlock(pos) != world.Air {
		return
	}
	if err := m.world.SetBlock(pos, p.Block); err != nil {
		m.logger.Printf("WARN %s place at %v: %v", actor, pos, err)
		return
	}
	if m.world.Layers() > 0 {
		_ = m.world.SetExtraData(0, pos, p.Meta)
	}
}

func (m *Manager) onDigBlock(actor *entity.Entity, ev entity.Event) {
	pos := mathx.FromArray(ev.(*entity.DigBlockEvent).Pos)
	if !m.withinReach(actor, pos) || m.world.GetBlock(pos) == world.Air {
		return
	}
	if err := m.world.SetBlock(pos, world.Air); err != nil {
		m.logger.Printf("WARN %s dig at %v: %v", actor, pos, err)
		return
	}
	if m.world.Layers() > 0 {
		_ = m.world.SetExtraData(0, pos, 0)
	}
}

// onViewDistance takes effect on the next relevance pass.
func (m *Manager) onViewDistance(actor *entity.Entity, ev entity.Event) {
	vd, err := replication.ParseViewDistance(ev.(*entity.ViewDistanceEvent).Mode)
	if err != nil {
		m.logger.Printf("WARN %s: %v", actor, err)
		return
	}
	if mem := m.sessions[m.store.ControllerOf(actor)]; mem != nil {
		mem.session.SetViewDistance(vd)
	}
}

// spawnPos places the nth character on the surface near the origin.
func (m *Manager) spawnPos(n int) mathx.Vec3f {
	x := 8 + (n%4)*3
	z := 8 + (n/4%4)*3
	top := (m.cfg.World.MaxRegionY+1)*world.RegionSize.Y - 1
	bottom := m.cfg.World.MinRegionY * world.RegionSize.Y
	y := bottom
	for cy := top; cy >= bottom; cy-- {
		if m.world.GetBlock(mathx.Vec3i{X: x, Y: cy, Z: z}) != world.Air {
			y = cy + 1
			break
		}
	}
	return mathx.Vec3f{X: float64(x) + 0.5, Y: float64(y), Z: float64(z) + 0.5}
}
