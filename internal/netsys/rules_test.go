package netsys

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"voxelrelay.ai/internal/protocol"
	"voxelrelay.ai/internal/replication"
	"voxelrelay.ai/internal/sim/entity"
	"voxelrelay.ai/internal/sim/mathx"
	"voxelrelay.ai/internal/sim/world"
)

// airNear finds an empty in-world cell the character can reach.
func airNear(t *testing.T, m *Manager, e *entity.Entity) mathx.Vec3i {
	t.Helper()
	p := location(m, e).Pos
	base := mathx.Vec3i{X: int(p.X), Y: int(p.Y), Z: int(p.Z)}
	top := (m.cfg.World.MaxRegionY+1)*world.RegionSize.Y - 1
	for dy := 0; dy <= 3; dy++ {
		for dx := -2; dx <= 2; dx++ {
			c := mathx.Vec3i{X: base.X + dx, Y: base.Y + dy, Z: base.Z}
			if c.Y <= top && m.world.GetBlock(c) == world.Air && m.withinReach(e, c) {
				return c
			}
		}
	}
	t.Fatalf("no reachable air near %v", base)
	return mathx.Vec3i{}
}

func blockChangesAt(envs []protocol.NetMessage, pos mathx.Vec3i) []uint16 {
	var out []uint16
	for _, env := range envs {
		for _, bc := range env.BlockChanges {
			if bc.Pos == pos.Array() {
				out = append(out, bc.Block)
			}
		}
	}
	return out
}

func TestPlaceAndDig_ReachOtherClients(t *testing.T) {
	m, _, _ := newTestManager(t)
	a, _ := join(t, m, "alice")
	_, tb := join(t, m, "bob")
	for i := 0; i < 25; i++ {
		m.StepOnce()
	}
	cell := airNear(t, m, a.Character())

	send(t, a, protocol.NetMessage{Time: m.GameTimeMs(), Events: []protocol.EventMsg{
		eventMsg(t, m, a.Character(), &entity.PlaceBlockEvent{Pos: cell.Array(), Block: 999}),
		eventMsg(t, m, a.Character(), &entity.PlaceBlockEvent{Pos: cell.Array(), Block: world.Log, Meta: 4}),
	}})
	m.StepOnce()
	m.StepOnce()
	if got := m.world.GetBlock(cell); got != world.Log {
		t.Fatalf("world block=%d want log", got)
	}
	if got := blockChangesAt(tb.envelopes(t), cell); len(got) != 1 || got[0] != world.Log {
		t.Fatalf("bob block changes=%v want [log]", got)
	}
	extra := 0
	for _, env := range tb.envelopes(t) {
		for _, ec := range env.ExtraDataChanges {
			if ec.Pos == cell.Array() && ec.Value == 4 {
				extra++
			}
		}
	}
	if extra != 1 {
		t.Fatalf("bob extra-data changes=%d want 1", extra)
	}

	send(t, a, protocol.NetMessage{Time: m.GameTimeMs(), Events: []protocol.EventMsg{
		eventMsg(t, m, a.Character(), &entity.DigBlockEvent{Pos: cell.Array()}),
	}})
	m.StepOnce()
	if got := blockChangesAt(tb.envelopes(t), cell); len(got) != 2 || got[1] != world.Air {
		t.Fatalf("bob block changes=%v want [log air]", got)
	}
	if len(m.Capture().Regions) == 0 {
		t.Fatalf("edited region missing from snapshot")
	}
}

func TestPlaceBlock_OutOfReachIgnored(t *testing.T) {
	m, _, _ := newTestManager(t)
	a, _ := join(t, m, "alice")
	m.StepOnce()
	cell := airNear(t, m, a.Character())
	cell.X += 20
	before := m.world.GetBlock(cell)
	send(t, a, protocol.NetMessage{Time: m.GameTimeMs(), Events: []protocol.EventMsg{
		eventMsg(t, m, a.Character(), &entity.PlaceBlockEvent{Pos: cell.Array(), Block: world.Stone}),
	}})
	m.StepOnce()
	if got := m.world.GetBlock(cell); got != before {
		t.Fatalf("block=%d changed from %d out of reach", got, before)
	}
}

func TestViewDistanceEvent_ShrinksStreamedArea(t *testing.T) {
	m, _, _ := newTestManager(t)
	a, ta := join(t, m, "alice")
	for i := 0; i < 25; i++ {
		m.StepOnce()
	}
	send(t, a, protocol.NetMessage{Time: m.GameTimeMs(), Events: []protocol.EventMsg{
		eventMsg(t, m, a.Character(), &entity.ViewDistanceEvent{Mode: "near"}),
	}})
	m.StepOnce()
	if a.ViewDistance() != replication.ViewNear {
		t.Fatalf("view distance=%v want near", a.ViewDistance())
	}
	m.StepOnce()
	invalidated := 0
	for _, env := range ta.envelopes(t) {
		invalidated += len(env.InvalidateRegions)
	}
	if invalidated == 0 {
		t.Fatalf("shrinking the view distance invalidated nothing")
	}
}

func TestRegisterFamily_AnnouncedWhileRunning(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	tr := &fakeTransport{}
	if _, err := m.Join(ctx, JoinRequest{Name: "alice", Transport: tr}); err != nil {
		t.Fatalf("Join: %v", err)
	}
	rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
	defer rcancel()
	glass := world.Family{Name: "mod:glass", IDs: []uint16{30, 31}}
	if err := m.RegisterFamily(rctx, glass); err != nil {
		t.Fatalf("RegisterFamily: %v", err)
	}
	if err := m.RegisterFamily(rctx, glass); !errors.Is(err, world.ErrFamilyExists) {
		t.Fatalf("second registration err=%v want ErrFamilyExists", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, env := range tr.envelopes(t) {
			for _, f := range env.BlockFamilies {
				if f.Name == "mod:glass" {
					return
				}
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("mod:glass never announced")
}

func TestTruncateText_RuneBoundary(t *testing.T) {
	s := strings.Repeat("a", 255) + "é" + "b"
	got := truncateText(s, 256)
	if got != strings.Repeat("a", 255) {
		t.Fatalf("len=%d want the two-byte rune dropped whole", len(got))
	}
	if !utf8.ValidString(truncateText("ok\xff", 10)) {
		t.Fatalf("invalid input should come back valid")
	}
	if truncateText("short", 256) != "short" {
		t.Fatalf("short text changed")
	}
}
