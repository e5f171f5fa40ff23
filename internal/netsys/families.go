package netsys

import (
	"context"

	"voxelrelay.ai/internal/replication"
	"voxelrelay.ai/internal/sim/world"
)

type familyReq struct {
	family world.Family
	resp   chan error
}

// RegisterFamily adds a block family between ticks. Connected clients hear
// about it in their next envelope and its ids become placeable.
func (m *Manager) RegisterFamily(ctx context.Context, f world.Family) error {
	req := familyReq{family: f, resp: make(chan error, 1)}
	select {
	case m.families <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stop:
		return replication.ErrClosed
	}
	select {
	case err := <-req.resp:
		if err == nil {
			m.logger.Printf("registered block family %s ids=%v", f.Name, f.IDs)
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
