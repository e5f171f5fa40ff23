package netsys

import (
	"context"
	"errors"
	"fmt"

	"voxelrelay.ai/internal/persistence/snapshot"
	"voxelrelay.ai/internal/replication"
	"voxelrelay.ai/internal/sim/mathx"
	"voxelrelay.ai/internal/sim/world"
)

type snapReq struct {
	resp chan snapshot.SnapshotV1
}

// Capture copies the edited world state. Like StepOnce it must run on the
// simulation goroutine or while Run is not running.
func (m *Manager) Capture() snapshot.SnapshotV1 {
	t := m.cfg
	snap := snapshot.SnapshotV1{
		Header:     snapshot.Header{Version: snapshot.Version, Tick: m.tick.Load(), Seed: t.Seed},
		TickRateHz: t.TickRateHz,
		MinRegionY: t.World.MinRegionY,
		MaxRegionY: t.World.MaxRegionY,
		Layers:     t.World.Layers,
	}
	for _, f := range m.world.Families() {
		snap.Families = append(snap.Families, snapshot.FamilyV1{Name: f.Name, IDs: f.IDs})
	}
	for _, r := range m.world.Edited() {
		snap.Regions = append(snap.Regions, snapshot.RegionV1{Pos: r.Pos.Array(), Blocks: r.Blocks, Layers: r.Layers})
	}
	snap.Header.Regions = len(snap.Regions)
	return snap
}

// RequestSnapshot asks the running simulation for a Capture between ticks.
func (m *Manager) RequestSnapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	req := snapReq{resp: make(chan snapshot.SnapshotV1, 1)}
	select {
	case m.snaps <- req:
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	case <-m.stop:
		return snapshot.SnapshotV1{}, replication.ErrClosed
	}
	select {
	case s := <-req.resp:
		return s, nil
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
}

// Restore loads a snapshot into a manager that has no sessions and is not
// running yet. The world shape must match the tuning.
func (m *Manager) Restore(snap snapshot.SnapshotV1) error {
	t := m.cfg
	if len(m.sessions) != 0 {
		return fmt.Errorf("restore: %d sessions already joined", len(m.sessions))
	}
	if snap.Header.Seed != t.Seed {
		return fmt.Errorf("restore: snapshot seed %d, tuning seed %d", snap.Header.Seed, t.Seed)
	}
	if snap.MinRegionY != t.World.MinRegionY || snap.MaxRegionY != t.World.MaxRegionY || snap.Layers != t.World.Layers {
		return fmt.Errorf("restore: snapshot world y=%d..%d layers=%d does not match tuning",
			snap.MinRegionY, snap.MaxRegionY, snap.Layers)
	}
	for _, f := range snap.Families {
		err := m.world.RegisterFamily(world.Family{Name: f.Name, IDs: f.IDs})
		if err != nil && !errors.Is(err, world.ErrFamilyExists) {
			return fmt.Errorf("restore: %w", err)
		}
	}
	for _, r := range snap.Regions {
		if err := m.world.Restore(&world.Region{Pos: mathx.FromArray(r.Pos), Blocks: r.Blocks, Layers: r.Layers}); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
	m.tick.Store(snap.Header.Tick)
	m.nowMs.Store(int64(snap.Header.Tick) * 1000 / int64(t.TickRateHz))
	m.logger.Printf("restored tick %d with %d edited regions", snap.Header.Tick, len(snap.Regions))
	return nil
}
