package world

import (
	"voxelrelay.ai/internal/sim/mathx"
)

// Gen is the deterministic terrain generator.
type Gen struct {
	Seed int64

	// SeaLevel and BaseHeight are in blocks.
	SeaLevel   int
	BaseHeight int
	// Amplitude is the max height offset added by the heightmap.
	Amplitude int

	BiomeRegionSize int
	// TreeClusterProbScalePermille scales how often forest log clusters appear.
	TreeClusterProbScalePermille int
}

func DefaultGen(seed int64) Gen {
	return Gen{
		Seed:                         seed,
		SeaLevel:                     20,
		BaseHeight:                   22,
		Amplitude:                    12,
		BiomeRegionSize:              64,
		TreeClusterProbScalePermille: 1000,
	}
}

func biomeFrom(noise uint64) string {
	switch noise % 3 {
	case 0:
		return "PLAINS"
	case 1:
		return "FOREST"
	default:
		return "DESERT"
	}
}

func biomeAt(seed int64, x, z, regionSize int) string {
	if regionSize <= 0 {
		regionSize = 1
	}
	return biomeFrom(mathx.Hash2(seed, mathx.FloorDiv(x, regionSize), mathx.FloorDiv(z, regionSize)))
}

func scalePermille(base uint64, scale int) uint64 {
	if scale <= 0 {
		scale = 1000
	}
	scaled := (base*uint64(scale) + 500) / 1000
	if scaled > 1000 {
		return 1000
	}
	return scaled
}

// inCluster reports whether (x,z) lies inside a hashed disc. Each grid cell
// holds at most one disc center, present with probability probPermille.
func inCluster(seed int64, x, z, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := mathx.FloorDiv(x, grid)
	gz := mathx.FloorDiv(z, grid)
	r2 := radius * radius
	for dz := -1; dz <= 1; dz++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgz := gz + dz
			h := mathx.Hash2(seed, cgx, cgz)
			if h%1000 >= probPermille {
				continue
			}
			cx := cgx*grid + int((h>>10)%uint64(grid))
			cz := cgz*grid + int((h>>20)%uint64(grid))
			ddx := x - cx
			ddz := z - cz
			if ddx*ddx+ddz*ddz <= r2 {
				return true
			}
		}
	}
	return false
}

// lattice value noise, bilinear between 8-block cells
func (g Gen) height(x, z int) int {
	const cell = 8
	gx := mathx.FloorDiv(x, cell)
	gz := mathx.FloorDiv(z, cell)
	fx := float64(mathx.Mod(x, cell)) / cell
	fz := float64(mathx.Mod(z, cell)) / cell
	v := func(ix, iz int) float64 {
		return float64(mathx.Hash2(g.Seed, ix, iz)%1024) / 1023
	}
	top := v(gx, gz)*(1-fx) + v(gx+1, gz)*fx
	bot := v(gx, gz+1)*(1-fx) + v(gx+1, gz+1)*fx
	n := top*(1-fz) + bot*fz
	return g.BaseHeight + int(n*float64(g.Amplitude))
}

func (g Gen) fill(r *Region) {
	for lz := 0; lz < RegionSizeZ; lz++ {
		for lx := 0; lx < RegionSizeX; lx++ {
			wx := r.Pos.X*RegionSizeX + lx
			wz := r.Pos.Z*RegionSizeZ + lz
			h := g.height(wx, wz)
			biome := biomeAt(g.Seed, wx, wz, g.BiomeRegionSize)
			tree := biome == "FOREST" && h >= g.SeaLevel &&
				inCluster(g.Seed+201, wx, wz, 24, 1, scalePermille(300, g.TreeClusterProbScalePermille))
			for ly := 0; ly < RegionSizeY; ly++ {
				wy := r.Pos.Y*RegionSizeY + ly
				b := Air
				switch {
				case wy < h-3:
					b = Stone
				case wy < h:
					if biome == "DESERT" {
						b = Sand
					} else {
						b = Dirt
					}
				case wy == h:
					switch {
					case h < g.SeaLevel || biome == "DESERT":
						b = Sand
					default:
						b = Grass
					}
				case wy <= g.SeaLevel:
					b = Water
				case tree && wy <= h+4:
					b = Log
				}
				r.Blocks[index(mathx.Vec3i{X: lx, Y: ly, Z: lz})] = b
			}
		}
	}
}
