package meshing

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelmesh/internal/world"
)

// constSampler answers every out-of-chunk query with one material.
type constSampler struct{ m world.Material }

func (s constSampler) Sample(x, y, z int) world.Material { return s.m }

// terrainSampler resolves everything through the closed-form terrain,
// which is what an isolated chunk with no loaded neighbors sees.
type terrainSampler struct{ t *world.Terrain }

func (s terrainSampler) Sample(x, y, z int) world.Material { return s.t.MaterialAt(x, y, z) }

func TestAllAirProducesNoGeometry(t *testing.T) {
	verts, normals := Build(world.ChunkCoord{}, world.NewVoxelField(), constSampler{world.MaterialAir}, ModeSmooth)
	if len(verts) != 0 || len(normals) != 0 {
		t.Errorf("Empty chunk produced %d verts", len(verts))
	}
}

func TestFullySolidBuriedProducesNoGeometry(t *testing.T) {
	field := world.NewVoxelField()
	for i := range field {
		field[i] = world.MaterialStone
	}
	verts, _ := Build(world.ChunkCoord{}, field, constSampler{world.MaterialStone}, ModeSmooth)
	if len(verts) != 0 {
		t.Errorf("Buried solid chunk produced %d verts, want 0", len(verts))
	}
}

func TestSingleVoxelMesh(t *testing.T) {
	field := world.NewVoxelField()
	field.Set(8, 8, 8, world.MaterialStone)

	verts, normals := Build(world.ChunkCoord{}, field, constSampler{world.MaterialAir}, ModeSmooth)
	if len(verts) == 0 {
		t.Fatal("Single solid voxel produced no geometry")
	}
	if len(verts)%3 != 0 {
		t.Errorf("Vertex count %d is not a multiple of 3", len(verts))
	}
	if len(normals) != len(verts) {
		t.Errorf("Normal count %d != vertex count %d", len(normals), len(verts))
	}

	for i, n := range normals {
		l := n.Len()
		if l < 0.999 || l > 1.001 {
			t.Fatalf("Normal %d has length %v, want unit", i, l)
		}
	}

	// An isolated cube's surface stays within one voxel of its cell.
	for i, v := range verts {
		for axis := 0; axis < 3; axis++ {
			if v[axis] < 7 || v[axis] > 10 {
				t.Fatalf("Vertex %d = %v escapes the voxel neighborhood", i, v)
			}
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	tr := world.NewTerrain()
	coord := world.ChunkCoord{X: 2, Y: 0, Z: -3}
	field := tr.Generate(coord)
	s := terrainSampler{tr}

	v1, n1 := Build(coord, field, s, ModeSmooth)
	v2, n2 := Build(coord, field.Clone(), s, ModeSmooth)

	if len(v1) != len(v2) {
		t.Fatalf("Vertex counts differ: %d vs %d", len(v1), len(v2))
	}
	for i := range v1 {
		if v1[i] != v2[i] || n1[i] != n2[i] {
			t.Fatalf("Buffers diverge at index %d", i)
		}
	}
}

func TestWorldSpaceVertices(t *testing.T) {
	tr := world.NewTerrain()
	coord := world.ChunkCoord{X: 3, Y: 0, Z: 1}
	verts, _ := Build(coord, tr.Generate(coord), terrainSampler{tr}, ModeSmooth)
	if len(verts) == 0 {
		t.Fatal("Terrain chunk produced no geometry")
	}
	for i, v := range verts {
		if v.X() < 48-1 || v.X() > 64+1 || v.Z() < 16-1 || v.Z() > 32+1 {
			t.Fatalf("Vertex %d = %v outside the chunk's world extent", i, v)
		}
	}
}

func TestLoadedNeighborsMatchTheoretical(t *testing.T) {
	// A chunk meshed against loaded neighbor data and the same chunk meshed
	// against the terrain fallback must produce identical buffers; that is
	// the whole seam guarantee.
	tr := world.NewTerrain()
	coord := world.ChunkCoord{X: 0, Y: 0, Z: 0}
	field := tr.Generate(coord)

	store := world.NewStore()
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				n := world.ChunkCoord{X: dx, Y: dy, Z: dz}
				store.Put(world.NewChunk(n))
				store.InstallField(n, tr.Generate(n))
			}
		}
	}

	withData, _ := Build(coord, field, world.NewSampler(store, tr), ModeSmooth)
	withFallback, _ := Build(coord, field.Clone(), terrainSampler{tr}, ModeSmooth)

	if len(withData) != len(withFallback) {
		t.Fatalf("Vertex counts differ: loaded %d vs fallback %d", len(withData), len(withFallback))
	}
	for i := range withData {
		if withData[i] != withFallback[i] {
			t.Fatalf("Vertex %d differs: loaded %v vs fallback %v", i, withData[i], withFallback[i])
		}
	}
}

func TestAdjacentChunksAgreeOnSharedFace(t *testing.T) {
	// Two neighboring chunks meshed independently must emit the same
	// crossing points on their shared boundary plane; any mismatch is a
	// visible seam.
	tr := world.NewTerrain()
	s := terrainSampler{tr}
	left := world.ChunkCoord{X: 0, Y: 0, Z: 0}
	right := world.ChunkCoord{X: 1, Y: 0, Z: 0}

	lv, _ := Build(left, tr.Generate(left), s, ModeSmooth)
	rv, _ := Build(right, tr.Generate(right), s, ModeSmooth)

	// With binary densities every crossing sits on the half-unit grid, so
	// plane vertices compare exactly.
	const plane = float32(world.ChunkSize)
	onPlane := func(verts []mgl32.Vec3) map[mgl32.Vec3]struct{} {
		out := make(map[mgl32.Vec3]struct{})
		for _, v := range verts {
			if v.X() == plane {
				out[v] = struct{}{}
			}
		}
		return out
	}

	lp := onPlane(lv)
	rp := onPlane(rv)
	if len(lp) == 0 {
		t.Fatal("No crossings on the shared face plane; terrain should intersect it")
	}
	for v := range lp {
		if _, ok := rp[v]; !ok {
			t.Errorf("Crossing %v emitted by the left chunk is missing from the right", v)
		}
	}
	for v := range rp {
		if _, ok := lp[v]; !ok {
			t.Errorf("Crossing %v emitted by the right chunk is missing from the left", v)
		}
	}
}

func TestAngularModeSnapsToHalfGrid(t *testing.T) {
	tr := world.NewTerrain()
	coord := world.ChunkCoord{X: 0, Y: 0, Z: 0}
	verts, _ := Build(coord, tr.Generate(coord), terrainSampler{tr}, ModeAngular)
	if len(verts) == 0 {
		t.Fatal("Angular mesh produced no geometry")
	}
	for i, v := range verts {
		for axis := 0; axis < 3; axis++ {
			doubled := v[axis] * 2
			if doubled != float32(int(doubled)) {
				t.Fatalf("Vertex %d component %d = %v not on the half-unit grid", i, axis, v[axis])
			}
		}
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode("angular") != ModeAngular {
		t.Error("angular did not parse")
	}
	if ParseMode("smooth") != ModeSmooth || ParseMode("") != ModeSmooth {
		t.Error("smooth default did not apply")
	}
}

func TestTriTableShape(t *testing.T) {
	if len(triTable[0]) != 0 || len(triTable[255]) != 0 {
		t.Error("Empty and full configurations must emit no triangles")
	}
	for i, edges := range triTable {
		if len(edges)%3 != 0 {
			t.Fatalf("Configuration %d has %d edge entries, not a multiple of 3", i, len(edges))
		}
		for _, e := range edges {
			if e < 0 || e > 11 {
				t.Fatalf("Configuration %d references edge %d", i, e)
			}
		}
	}
}

func BenchmarkBuildTerrainChunk(b *testing.B) {
	tr := world.NewTerrain()
	coord := world.ChunkCoord{X: 0, Y: 0, Z: 0}
	field := tr.Generate(coord)
	s := terrainSampler{tr}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Build(coord, field, s, ModeSmooth)
	}
}
