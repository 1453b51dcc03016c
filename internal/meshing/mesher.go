package meshing

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelmesh/internal/profiling"
	"voxelmesh/internal/world"
)

// Sampler resolves a material at an arbitrary world voxel coordinate.
// Boundary cubes reach through it into neighbor territory.
type Sampler interface {
	Sample(x, y, z int) world.Material
}

// Mode selects vertex placement for edge crossings.
type Mode int

const (
	// ModeSmooth places vertices at the interpolated crossing point.
	ModeSmooth Mode = iota
	// ModeAngular snaps each vertex component to the nearest half unit,
	// giving the blocky faceted look.
	ModeAngular
)

// ParseMode maps a config string to a Mode, defaulting to smooth.
func ParseMode(s string) Mode {
	if s == "angular" {
		return ModeAngular
	}
	return ModeSmooth
}

const (
	surfaceThreshold = 0.5
	degenerateEps    = 1e-6
)

var upVector = mgl32.Vec3{0, 1, 0}

// density maps a material to the binary density used by the threshold test.
func density(m world.Material) float32 {
	if m > 0 {
		return 1.0
	}
	return 0.0
}

// Build runs marching cubes over one chunk and returns world-space vertex
// and normal buffers in triangle-list order. field is the job's private
// copy of the chunk's voxels; corners outside it are resolved through the
// sampler. Empty buffers mean "no visible geometry", not an error.
//
// Safe to run concurrently for different chunks: all state is local.
func Build(coord world.ChunkCoord, field world.VoxelField, s Sampler, mode Mode) ([]mgl32.Vec3, []mgl32.Vec3) {
	defer profiling.Track("meshing.Build")()

	ox, oy, oz := coord.Origin()

	sample := func(lx, ly, lz int) world.Material {
		if world.InBounds(lx, ly, lz) {
			return field.At(lx, ly, lz)
		}
		return s.Sample(ox+lx, oy+ly, oz+lz)
	}

	var verts []mgl32.Vec3
	var normals []mgl32.Vec3

	var corners [8]float32
	var tri [3]mgl32.Vec3

	for lz := 0; lz < world.ChunkSize; lz++ {
		for ly := 0; ly < world.ChunkSize; ly++ {
			for lx := 0; lx < world.ChunkSize; lx++ {
				index := 0
				for i, off := range cornerOffsets {
					corners[i] = density(sample(lx+off[0], ly+off[1], lz+off[2]))
					if corners[i] < surfaceThreshold {
						index |= 1 << i
					}
				}

				edges := triTable[index]
				for e := 0; e < len(edges); e += 3 {
					for k := 0; k < 3; k++ {
						tri[k] = edgePoint(edges[e+k], lx, ly, lz, &corners, mode)
						tri[k] = tri[k].Add(mgl32.Vec3{float32(ox), float32(oy), float32(oz)})
					}
					// Reversed emission keeps the normals facing outward
					// under this table's corner convention.
					v0, v1, v2 := tri[2], tri[1], tri[0]
					n := faceNormal(v0, v1, v2)
					verts = append(verts, v0, v1, v2)
					normals = append(normals, n, n, n)
				}
			}
		}
	}

	return verts, normals
}

// edgePoint interpolates the surface crossing on a cube edge, in chunk-local
// coordinates.
func edgePoint(edge, lx, ly, lz int, corners *[8]float32, mode Mode) mgl32.Vec3 {
	ca := edgeCorners[edge][0]
	cb := edgeCorners[edge][1]
	a := cornerOffsets[ca]
	b := cornerOffsets[cb]
	da := corners[ca]
	db := corners[cb]

	t := float32(0.5) // midpoint fallback for near-equal densities
	if diff := db - da; diff > degenerateEps || diff < -degenerateEps {
		t = (surfaceThreshold - da) / diff
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}

	p := mgl32.Vec3{
		float32(lx) + float32(a[0]) + t*float32(b[0]-a[0]),
		float32(ly) + float32(a[1]) + t*float32(b[1]-a[1]),
		float32(lz) + float32(a[2]) + t*float32(b[2]-a[2]),
	}
	if mode == ModeAngular {
		p = snapHalf(p)
	}
	return p
}

// snapHalf snaps each component to the nearest half-unit grid step.
func snapHalf(p mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Round(float64(p[0])*2) / 2),
		float32(math.Round(float64(p[1])*2) / 2),
		float32(math.Round(float64(p[2])*2) / 2),
	}
}

// faceNormal computes the flat normal of a triangle. Degenerate triangles
// get the up vector.
func faceNormal(v0, v1, v2 mgl32.Vec3) mgl32.Vec3 {
	n := v1.Sub(v0).Cross(v2.Sub(v0))
	if n.Len() < degenerateEps {
		return upVector
	}
	return n.Normalize()
}
