package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelmesh/internal/config"
	"voxelmesh/internal/logging"
	"voxelmesh/internal/persist"
	"voxelmesh/internal/sched"
	"voxelmesh/internal/world"
)

// testConfig runs the manager fully synchronously: zero workers and zero
// timeouts route every job through the stuck-job fallback on Update, which
// makes tests deterministic without sleeping.
func testConfig() config.Config {
	c := config.Default()
	c.RenderDistance = 2
	c.Workers = 0
	c.QueueCapacity = 256
	c.MeshCooldownMs = 0
	c.TerrainTimeoutMs = 0
	c.MeshTimeoutMs = 0
	return c
}

func newTestManager(t *testing.T, cfg config.Config) *Manager {
	t.Helper()
	m := New(cfg, logging.Nop{}, nil)
	t.Cleanup(m.Close)
	return m
}

func settle(m *Manager, passes int) {
	for i := 0; i < passes; i++ {
		m.Update(time.Now())
	}
}

func TestDesiredSetIsSquare(t *testing.T) {
	m := newTestManager(t, testConfig())
	m.UpdateViewer(mgl32.Vec3{0, 20, 0})

	// render_distance 2 spans a 5x5 square of chunks on the terrain plane.
	if got := m.Store().Count(); got != 25 {
		t.Errorf("Chunk count = %d, want 25", got)
	}
	for _, coord := range m.Store().Coords() {
		if coord.Y != 0 {
			t.Errorf("Desired set produced off-plane chunk %v", coord)
		}
		if abs(coord.X) > 2 || abs(coord.Z) > 2 {
			t.Errorf("Chunk %v outside render distance", coord)
		}
	}
}

func TestChunksReachMeshReady(t *testing.T) {
	m := newTestManager(t, testConfig())
	m.UpdateViewer(mgl32.Vec3{0, 20, 0})
	settle(m, 50)

	data, mesh := m.Store().ReadyCounts()
	if data != 25 || mesh != 25 {
		t.Errorf("ReadyCounts = %d,%d, want 25,25", data, mesh)
	}
	if st := m.Stats(); st.Waiting != 0 {
		t.Errorf("Waiting = %d after settling, want 0", st.Waiting)
	}
}

func TestStuckFallbackCounts(t *testing.T) {
	m := newTestManager(t, testConfig())
	m.UpdateViewer(mgl32.Vec3{0, 20, 0})
	settle(m, 50)

	// No workers ran, so every completed chunk went through the forced
	// synchronous path.
	if st := m.Stats(); st.StuckForced == 0 {
		t.Error("Expected forced synchronous completions with zero workers")
	}
}

func TestViewerHysteresis(t *testing.T) {
	m := newTestManager(t, testConfig())
	m.UpdateViewer(mgl32.Vec3{0, 20, 0})
	anchor := m.anchor

	// Under half a chunk of horizontal displacement: no recompute.
	m.UpdateViewer(mgl32.Vec3{4, 20, 4})
	if m.anchor != anchor {
		t.Error("Small movement re-anchored the desired set")
	}

	m.UpdateViewer(mgl32.Vec3{20, 20, 0})
	if m.anchor == anchor {
		t.Error("Large movement did not re-anchor")
	}
}

func TestEvictionOnMovement(t *testing.T) {
	m := newTestManager(t, testConfig())
	m.UpdateViewer(mgl32.Vec3{0, 20, 0})
	settle(m, 50)

	// Ten chunks east: everything around the old center is out of range.
	m.UpdateViewer(mgl32.Vec3{160, 20, 0})
	if got := m.Store().Count(); got != 25 {
		t.Errorf("Chunk count after movement = %d, want 25", got)
	}
	for _, coord := range m.Store().Coords() {
		if abs(coord.X-10) > 3 || abs(coord.Z) > 3 {
			t.Errorf("Chunk %v survived outside the retention band", coord)
		}
	}
	if len(m.waiting) > 0 {
		for key := range m.waiting {
			if c := m.Store().Get(key.Coord); c == nil {
				t.Errorf("Waiting entry %v references an evicted chunk", key)
			}
		}
	}
}

func TestEditRoundTrip(t *testing.T) {
	m := newTestManager(t, testConfig())
	m.UpdateViewer(mgl32.Vec3{0, 20, 0})
	settle(m, 50)

	// Surface at the origin column is y=8, so (0,9,0) is air.
	pos := mgl32.Vec3{0.5, 9.5, 0.5}
	if m.MaterialAt(pos) != world.MaterialAir {
		t.Fatal("Expected air above the surface at the origin")
	}

	coord := world.ChunkCoord{X: 0, Y: 0, Z: 0}
	c := m.Store().Get(coord)
	fieldBefore := c.Field().Clone()
	vertsBefore := append([]mgl32.Vec3(nil), c.Verts...)

	if !m.Place(pos, world.MaterialStone) {
		t.Fatal("Place failed on a loaded chunk")
	}
	if m.MaterialAt(pos) != world.MaterialStone {
		t.Error("Placed voxel not visible through MaterialAt")
	}
	settle(m, 10)
	if len(c.Verts) == len(vertsBefore) {
		sameMesh := true
		for i := range c.Verts {
			if c.Verts[i] != vertsBefore[i] {
				sameMesh = false
				break
			}
		}
		if sameMesh {
			t.Error("Mesh did not change after placing a voxel")
		}
	}

	if !m.Remove(pos) {
		t.Fatal("Remove failed")
	}
	settle(m, 10)

	// Removing the placed voxel restores the exact original state.
	if !c.Field().Equal(fieldBefore) {
		t.Error("Field differs from the pre-edit state")
	}
	if len(c.Verts) != len(vertsBefore) {
		t.Fatalf("Mesh size %d differs from pre-edit %d", len(c.Verts), len(vertsBefore))
	}
	for i := range c.Verts {
		if c.Verts[i] != vertsBefore[i] {
			t.Fatalf("Mesh vertex %d differs from pre-edit state", i)
		}
	}
}

func TestEditOutsideLoadedChunksFails(t *testing.T) {
	m := newTestManager(t, testConfig())
	m.UpdateViewer(mgl32.Vec3{0, 20, 0})
	settle(m, 50)

	if m.Place(mgl32.Vec3{1000, 5, 1000}, world.MaterialStone) {
		t.Error("Place succeeded far outside the loaded region")
	}
}

func TestMeshCooldownCoalesces(t *testing.T) {
	cfg := testConfig()
	cfg.MeshCooldownMs = 10000
	m := newTestManager(t, cfg)
	m.UpdateViewer(mgl32.Vec3{0, 20, 0})
	settle(m, 50)

	pos := mgl32.Vec3{0.5, 9.5, 0.5}
	if !m.Place(pos, world.MaterialStone) {
		t.Fatal("Place failed")
	}

	// The chunk meshed recently, so the remesh is deferred, not dropped.
	coord := world.ChunkCoord{X: 0, Y: 0, Z: 0}
	if _, ok := m.remeshPending[coord]; !ok {
		t.Fatal("Edit inside the cooldown window was not coalesced")
	}

	// Once the window passes, a pending remesh flushes and completes.
	later := time.Now().Add(11 * time.Second)
	m.Update(later)
	m.Update(later)
	if _, ok := m.remeshPending[coord]; ok {
		t.Error("Pending remesh survived past the cooldown window")
	}
}

func TestMaterialAtFallsBackWhenUnloaded(t *testing.T) {
	m := newTestManager(t, testConfig())
	// Nothing loaded at all: sampling still answers from the terrain form.
	pos := mgl32.Vec3{500.5, 0.5, 500.5}
	want := m.terrain.MaterialAt(500, 0, 500)
	if got := m.MaterialAt(pos); got != want {
		t.Errorf("MaterialAt unloaded = %v, want theoretical %v", got, want)
	}
}

func TestMeshAccessor(t *testing.T) {
	m := newTestManager(t, testConfig())
	coord := world.ChunkCoord{X: 0, Y: 0, Z: 0}
	if _, _, ok := m.Mesh(coord); ok {
		t.Error("Mesh reported ready for a nonexistent chunk")
	}
	m.UpdateViewer(mgl32.Vec3{0, 20, 0})
	settle(m, 50)
	verts, normals, ok := m.Mesh(coord)
	if !ok {
		t.Fatal("Mesh not ready after settling")
	}
	if len(verts) == 0 || len(verts) != len(normals) {
		t.Errorf("Mesh buffers verts=%d normals=%d", len(verts), len(normals))
	}
}

func TestSaveAndRestoreEdits(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.SaveDir = dir

	saves, err := persist.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	m := New(cfg, logging.Nop{}, saves)
	m.UpdateViewer(mgl32.Vec3{0, 20, 0})
	settle(m, 50)

	pos := mgl32.Vec3{0.5, 9.5, 0.5}
	if !m.Place(pos, world.MaterialStone) {
		t.Fatal("Place failed")
	}
	id, err := m.SaveEdited()
	if err != nil {
		t.Fatalf("SaveEdited: %v", err)
	}
	if id == "" {
		t.Fatal("SaveEdited returned no id despite edits")
	}
	m.Close()
	if err := saves.Close(); err != nil {
		t.Fatal(err)
	}

	// A fresh manager over the same save dir restores the edit on load.
	saves2, err := persist.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer saves2.Close()
	m2 := New(cfg, logging.Nop{}, saves2)
	defer m2.Close()
	m2.UpdateViewer(mgl32.Vec3{0, 20, 0})
	if got := m2.MaterialAt(pos); got != world.MaterialStone {
		t.Errorf("Restored world has %v at the edit, want Stone", got)
	}
}

func TestFailedTerrainJobRecoversViaStuckSweep(t *testing.T) {
	m := newTestManager(t, testConfig())
	m.UpdateViewer(mgl32.Vec3{0, 20, 0})

	// A generation failure for a chunk must leave the key armed so the
	// stuck sweep regenerates it, even with no viewer movement.
	coord := world.ChunkCoord{X: 0, Y: 0, Z: 0}
	key := sched.Key{Coord: coord, Kind: sched.KindTerrain}
	m.apply(sched.Result{Key: key, Err: errors.New("generator blew up")}, time.Now())

	if _, ok := m.waiting[key]; !ok {
		t.Fatal("Failed job was dropped from the waiting set")
	}

	settle(m, 10)
	c := m.Store().Get(coord)
	if c == nil || !c.DataReady() {
		t.Error("Chunk never regenerated after a failed terrain job")
	}
	if !c.MeshReady() {
		t.Error("Chunk never meshed after recovering from a failed terrain job")
	}
	if _, ok := m.waiting[key]; ok {
		t.Error("Waiting entry survived recovery")
	}
}

func TestFailedMeshJobRecoversViaStuckSweep(t *testing.T) {
	m := newTestManager(t, testConfig())
	m.UpdateViewer(mgl32.Vec3{0, 20, 0})
	settle(m, 50)

	before := m.Stats().StuckForced
	coord := world.ChunkCoord{X: 0, Y: 0, Z: 0}
	key := sched.Key{Coord: coord, Kind: sched.KindMesh}
	m.apply(sched.Result{Key: key, Err: errors.New("mesher blew up")}, time.Now())

	if _, ok := m.waiting[key]; !ok {
		t.Fatal("Failed mesh job was dropped from the waiting set")
	}

	settle(m, 10)
	if m.Stats().StuckForced == before {
		t.Error("Failed mesh job never went through the forced synchronous path")
	}
	if _, ok := m.waiting[key]; ok {
		t.Error("Waiting entry survived mesh recovery")
	}
	if c := m.Store().Get(coord); c == nil || !c.MeshReady() {
		t.Error("Chunk lost its mesh after a failed remesh")
	}
}

func TestSaveEditedWithoutStore(t *testing.T) {
	m := newTestManager(t, testConfig())
	id, err := m.SaveEdited()
	if err != nil || id != "" {
		t.Errorf("SaveEdited without a store = %q,%v, want empty,nil", id, err)
	}
}
