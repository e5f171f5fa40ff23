package world

import (
	"voxelrelay.ai/internal/sim/encoding"
	"voxelrelay.ai/internal/sim/mathx"
)

const (
	RegionSizeX = 16
	RegionSizeY = 16
	RegionSizeZ = 16
)

// RegionSize is the region extent in blocks.
var RegionSize = mathx.Vec3i{X: RegionSizeX, Y: RegionSizeY, Z: RegionSizeZ}

// Region is one 16x16x16 cell grid. Cells are indexed x fastest, then z, then y.
type Region struct {
	Pos    mathx.Vec3i
	Blocks []uint16
	// Layers are per-cell attribute bytes (light, fluid level, ...), same indexing as Blocks.
	Layers [][]uint8
}

func newRegion(pos mathx.Vec3i, layers int) *Region {
	r := &Region{
		Pos:    pos,
		Blocks: make([]uint16, RegionSizeX*RegionSizeY*RegionSizeZ),
		Layers: make([][]uint8, layers),
	}
	for i := range r.Layers {
		r.Layers[i] = make([]uint8, len(r.Blocks))
	}
	return r
}

func index(local mathx.Vec3i) int {
	return local.X + local.Z*RegionSizeX + local.Y*RegionSizeX*RegionSizeZ
}

func (r *Region) Get(local mathx.Vec3i) uint16 { return r.Blocks[index(local)] }

func (r *Region) set(local mathx.Vec3i, b uint16) uint16 {
	i := index(local)
	old := r.Blocks[i]
	r.Blocks[i] = b
	return old
}

// Clone returns a deep copy.
func (r *Region) Clone() *Region {
	c := &Region{
		Pos:    r.Pos,
		Blocks: append([]uint16(nil), r.Blocks...),
		Layers: make([][]uint8, len(r.Layers)),
	}
	for i, l := range r.Layers {
		c.Layers[i] = append([]uint8(nil), l...)
	}
	return c
}

// Payload encodes the region for the wire.
func (r *Region) Payload() (encoding.RegionPayload, error) {
	return encoding.EncodeRegion(r.Pos.Array(), RegionSize.Array(), r.Blocks, r.Layers)
}
