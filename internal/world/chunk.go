package world

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// ChunkSize is the edge length of a chunk in voxels.
	ChunkSize = 16

	// ChunkVolume is the number of voxels in a chunk.
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize
)

// Material is a voxel's integer material code. 0 is air.
type Material uint8

const (
	MaterialAir Material = iota
	MaterialGrass
	MaterialDirt
	MaterialStone
	MaterialOre
)

// ChunkCoord identifies a fixed-size cubic region of the world.
type ChunkCoord struct {
	X, Y, Z int
}

// Origin returns the world coordinate of the chunk's (0,0,0) voxel.
func (c ChunkCoord) Origin() (int, int, int) {
	return c.X * ChunkSize, c.Y * ChunkSize, c.Z * ChunkSize
}

// VoxelField is a chunk's dense material grid, flat-indexed x + y*S + z*S*S.
type VoxelField []Material

// NewVoxelField allocates an all-air field.
func NewVoxelField() VoxelField {
	return make(VoxelField, ChunkVolume)
}

func voxelIndex(x, y, z int) int {
	return x + y*ChunkSize + z*ChunkSize*ChunkSize
}

// InBounds reports whether a local coordinate addresses the field directly.
// Out-of-range coordinates must go through the sampler instead.
func InBounds(x, y, z int) bool {
	return x >= 0 && x < ChunkSize && y >= 0 && y < ChunkSize && z >= 0 && z < ChunkSize
}

// At reads a voxel at a local coordinate. The coordinate must be in bounds.
func (f VoxelField) At(x, y, z int) Material {
	return f[voxelIndex(x, y, z)]
}

// Set writes a voxel at a local coordinate. The coordinate must be in bounds.
func (f VoxelField) Set(x, y, z int, m Material) {
	f[voxelIndex(x, y, z)] = m
}

// Clone returns an independent copy, used as the payload of mesh jobs.
func (f VoxelField) Clone() VoxelField {
	if f == nil {
		return nil
	}
	out := make(VoxelField, len(f))
	copy(out, f)
	return out
}

// Equal reports byte equality of two fields.
func (f VoxelField) Equal(other VoxelField) bool {
	if len(f) != len(other) {
		return false
	}
	for i := range f {
		if f[i] != other[i] {
			return false
		}
	}
	return true
}

// Chunk is the aggregate entity owned by the Manager. Lifecycle flags and
// mesh buffers are touched by the coordinator only; the voxel field is
// additionally readable by workers through Store.MaterialAt once published.
type Chunk struct {
	Coord ChunkCoord

	field VoxelField // nil until generated or restored

	Verts   []mgl32.Vec3
	Normals []mgl32.Vec3

	dataReady bool
	meshReady bool
	edited    bool
}

// NewChunk creates an empty, not-ready chunk at the given coordinate.
func NewChunk(coord ChunkCoord) *Chunk {
	return &Chunk{Coord: coord}
}

// DataReady reports whether voxel data has been installed.
func (c *Chunk) DataReady() bool { return c.dataReady }

// MeshReady reports whether a mesh has been installed.
func (c *Chunk) MeshReady() bool { return c.meshReady }

// Edited reports whether the chunk has been modified by an edit since
// generation or restore.
func (c *Chunk) Edited() bool { return c.edited }

// Field returns the chunk's voxel field, nil until data is ready.
func (c *Chunk) Field() VoxelField { return c.field }

// SetMesh installs mesh buffers and marks the chunk mesh-ready.
// Coordinator thread only.
func (c *Chunk) SetMesh(verts, normals []mgl32.Vec3) {
	c.Verts = verts
	c.Normals = normals
	c.meshReady = true
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// mod returns the non-negative remainder of a/b.
func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// WorldToChunk splits a world voxel coordinate into chunk and local parts.
func WorldToChunk(x, y, z int) (ChunkCoord, int, int, int) {
	coord := ChunkCoord{
		X: floorDiv(x, ChunkSize),
		Y: floorDiv(y, ChunkSize),
		Z: floorDiv(z, ChunkSize),
	}
	return coord, mod(x, ChunkSize), mod(y, ChunkSize), mod(z, ChunkSize)
}
