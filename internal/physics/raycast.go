// Package physics provides voxel queries for interaction: ray casting
// against the sampled world, used to pick edit targets.
package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelmesh/internal/profiling"
	"voxelmesh/internal/world"
)

const (
	MinReachDistance = 0.1
	MaxReachDistance = 5.0
)

// Sampler resolves a material at a world voxel coordinate. The engine's
// sampler satisfies this, so rays see loaded data and the theoretical
// fallback alike.
type Sampler interface {
	Sample(x, y, z int) world.Material
}

// RaycastResult stores the result of a raycast operation.
type RaycastResult struct {
	HitPosition      [3]int
	AdjacentPosition [3]int
	Distance         float32
	Hit              bool
}

// Raycast marches a ray from start along direction and reports the first
// solid voxel, plus the last empty voxel before it. AdjacentPosition is
// where a placed voxel should go.
func Raycast(start, direction mgl32.Vec3, minDist, maxDist float32, s Sampler) RaycastResult {
	defer profiling.Track("physics.Raycast")()

	stepSize := float32(0.02)
	steps := int(maxDist / stepSize)

	lastEmpty := voxelOf(start)
	result := RaycastResult{Hit: false}

	for i := 0; i <= steps; i++ {
		dist := float32(i) * stepSize
		if dist < minDist {
			continue
		}

		pos := start.Add(direction.Mul(dist))
		voxel := voxelOf(pos)

		if s.Sample(voxel[0], voxel[1], voxel[2]) != world.MaterialAir {
			result.HitPosition = voxel
			result.AdjacentPosition = lastEmpty
			result.Distance = dist
			result.Hit = true
			return result
		}
		lastEmpty = voxel
	}

	return result
}

func voxelOf(pos mgl32.Vec3) [3]int {
	return [3]int{
		int(math.Floor(float64(pos.X()))),
		int(math.Floor(float64(pos.Y()))),
		int(math.Floor(float64(pos.Z()))),
	}
}
