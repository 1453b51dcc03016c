package world

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// Terrain is the deterministic closed-form terrain function. Both the chunk
// generator and the theoretical sampler fallback evaluate MaterialAt, which
// is what keeps loaded and unloaded regions bit-identical and chunk borders
// seam-free.
type Terrain struct {
	caves         bool
	caveThreshold float64
	caveNoise     opensimplex.Noise
}

const caveNoiseScale = 0.08

// NewTerrain builds the default terrain profile.
func NewTerrain() *Terrain {
	return &Terrain{}
}

// NewTerrainWithCaves builds a profile that carves air where 3D simplex
// noise exceeds threshold. Deterministic for a given seed.
func NewTerrainWithCaves(seed int64, threshold float64) *Terrain {
	return &Terrain{
		caves:         true,
		caveThreshold: threshold,
		caveNoise:     opensimplex.NewNormalized(seed),
	}
}

// Height returns the surface height at a world column as a float. Layered
// sines, no lattice noise: the fallback must be able to recompute this
// exactly for unloaded regions.
func (t *Terrain) Height(x, z int) float64 {
	fx := float64(x)
	fz := float64(z)
	return 8 +
		4*math.Sin(0.1*fx)*math.Cos(0.1*fz) +
		2*math.Sin(0.05*fx)*math.Cos(0.07*fz) +
		1.5*math.Sin(0.02*fx+0.03*fz) +
		0.5*math.Sin(0.15*fx)*math.Sin(0.12*fz)
}

// SurfaceY returns the topmost solid voxel row for a column, clamped into
// the generated chunk layer [0, ChunkSize-1].
func (t *Terrain) SurfaceY(x, z int) int {
	h := int(math.Floor(t.Height(x, z)))
	if h < 0 {
		return 0
	}
	if h > ChunkSize-1 {
		return ChunkSize - 1
	}
	return h
}

// MaterialAt computes the theoretical material at any world coordinate.
func (t *Terrain) MaterialAt(x, y, z int) Material {
	top := t.SurfaceY(x, z)
	if y > top {
		return MaterialAir
	}

	if t.caves && t.caveNoise.Eval3(
		float64(x)*caveNoiseScale,
		float64(y)*caveNoiseScale,
		float64(z)*caveNoiseScale) > t.caveThreshold {
		return MaterialAir
	}

	// Banding by depth from the (unclamped) surface.
	d := t.Height(x, z) - float64(y)
	switch {
	case d < 1:
		return MaterialGrass
	case d < 4:
		return MaterialDirt
	default:
		fx, fy, fz := float64(x), float64(y), float64(z)
		if math.Sin(0.3*fx)*math.Cos(0.25*fy)*math.Sin(0.35*fz) > 0.7 {
			return MaterialOre
		}
		return MaterialStone
	}
}

// Generate produces a chunk's voxel field. Same input, same output.
func (t *Terrain) Generate(coord ChunkCoord) VoxelField {
	field := NewVoxelField()
	ox, oy, oz := coord.Origin()
	for lz := 0; lz < ChunkSize; lz++ {
		for lx := 0; lx < ChunkSize; lx++ {
			top := t.SurfaceY(ox+lx, oz+lz)
			for ly := 0; ly < ChunkSize; ly++ {
				wy := oy + ly
				if wy > top {
					break
				}
				field.Set(lx, ly, lz, t.MaterialAt(ox+lx, wy, oz+lz))
			}
		}
	}
	return field
}
