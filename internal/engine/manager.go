// Package engine holds the coordinator: the Manager owns the chunk map,
// decides which chunks must exist, drives lifecycle transitions, and is
// the only place completed job results are applied. All Manager methods
// must be called from a single goroutine; workers hand results back over
// the scheduler's channel and never touch chunk state directly.
package engine

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelmesh/internal/config"
	"voxelmesh/internal/logging"
	"voxelmesh/internal/meshing"
	"voxelmesh/internal/persist"
	"voxelmesh/internal/profiling"
	"voxelmesh/internal/sched"
	"voxelmesh/internal/world"
)

// Manager is the world coordinator.
type Manager struct {
	cfg     config.Config
	log     logging.Logger
	store   *world.Store
	terrain *world.Terrain
	sampler *world.Sampler
	pool    *sched.Pool
	saves   *persist.Store // nil disables persistence
	mode    meshing.Mode

	viewer    mgl32.Vec3
	anchor    mgl32.Vec3
	hasAnchor bool
	center    world.ChunkCoord

	// Pending-job bookkeeping, coordinator-only.
	waiting       map[sched.Key]time.Time
	lastMeshReq   map[world.ChunkCoord]time.Time
	remeshPending map[world.ChunkCoord]struct{}

	stuckForced uint64
	applied     uint64
	discarded   uint64
}

// Stats is the read-only introspection snapshot.
type Stats struct {
	Queue       sched.Stats `json:"queue"`
	Chunks      int         `json:"chunks"`
	DataReady   int         `json:"data_ready"`
	MeshReady   int         `json:"mesh_ready"`
	Waiting     int         `json:"waiting"`
	StuckForced uint64      `json:"stuck_forced"`
	Applied     uint64      `json:"applied"`
	Discarded   uint64      `json:"discarded"`
}

// New builds a manager. saves may be nil.
func New(cfg config.Config, log logging.Logger, saves *persist.Store) *Manager {
	var terrain *world.Terrain
	if cfg.Caves {
		terrain = world.NewTerrainWithCaves(cfg.Seed, cfg.CaveThreshold)
	} else {
		terrain = world.NewTerrain()
	}
	store := world.NewStore()
	return &Manager{
		cfg:           cfg,
		log:           log,
		store:         store,
		terrain:       terrain,
		sampler:       world.NewSampler(store, terrain),
		pool:          sched.NewPool(cfg.Workers, cfg.QueueCapacity, log),
		saves:         saves,
		mode:          meshing.ParseMode(cfg.MeshMode),
		waiting:       make(map[sched.Key]time.Time),
		lastMeshReq:   make(map[world.ChunkCoord]time.Time),
		remeshPending: make(map[world.ChunkCoord]struct{}),
	}
}

// Store exposes the chunk map for read-only callers (mesh consumers,
// collision builders).
func (m *Manager) Store() *world.Store { return m.store }

// Sampler exposes the loaded-or-theoretical material resolver, safe for
// concurrent readers.
func (m *Manager) Sampler() *world.Sampler { return m.sampler }

// UpdateViewer feeds the current viewer position. The desired chunk set is
// recomputed only after half a chunk width of net displacement, so sitting
// on a chunk boundary cannot thrash loading.
func (m *Manager) UpdateViewer(pos mgl32.Vec3) {
	m.viewer = pos
	if m.hasAnchor {
		d := pos.Sub(m.anchor)
		if math.Hypot(float64(d.X()), float64(d.Z())) < world.ChunkSize/2 {
			return
		}
	}
	m.anchor = pos
	m.hasAnchor = true
	m.recomputeDesired(time.Now())
}

// recomputeDesired creates missing chunks inside the render distance
// (Chebyshev, horizontal plane) and evicts everything beyond
// render_distance+1.
func (m *Manager) recomputeDesired(now time.Time) {
	defer profiling.Track("engine.recomputeDesired")()

	m.center = viewerChunk(m.viewer)
	rd := m.cfg.RenderDistance

	for dz := -rd; dz <= rd; dz++ {
		for dx := -rd; dx <= rd; dx++ {
			coord := world.ChunkCoord{X: m.center.X + dx, Y: 0, Z: m.center.Z + dz}
			m.ensureChunk(coord, now)
		}
	}

	for _, coord := range m.store.Coords() {
		dx := abs(coord.X - m.center.X)
		dz := abs(coord.Z - m.center.Z)
		if dx > rd+1 || dz > rd+1 {
			m.dropChunk(coord)
		}
	}
}

func (m *Manager) ensureChunk(coord world.ChunkCoord, now time.Time) {
	c := m.store.Get(coord)
	if c == nil {
		c = m.store.Put(world.NewChunk(coord))
		if m.saves != nil {
			if field, ok := m.saves.Lookup(coord); ok {
				m.store.InstallField(coord, field)
				m.log.Debug("engine", "restored chunk %v from save", coord)
				m.requestMesh(coord, now)
				m.remeshSeams(coord, now)
				return
			}
		}
	}

	switch {
	case !c.DataReady():
		m.submitTerrain(coord, now)
	case !c.MeshReady():
		m.requestMesh(coord, now)
	}
}

func (m *Manager) dropChunk(coord world.ChunkCoord) {
	m.store.Remove(coord)
	delete(m.waiting, sched.Key{Coord: coord, Kind: sched.KindTerrain})
	delete(m.waiting, sched.Key{Coord: coord, Kind: sched.KindMesh})
	delete(m.lastMeshReq, coord)
	delete(m.remeshPending, coord)
}

func (m *Manager) submitTerrain(coord world.ChunkCoord, now time.Time) {
	key := sched.Key{Coord: coord, Kind: sched.KindTerrain}
	terrain := m.terrain
	job := sched.Job{
		Key:      key,
		Priority: m.priorityFor(coord),
		Enqueued: now,
		Run: func() sched.Result {
			return sched.Result{Key: key, Field: terrain.Generate(coord)}
		},
	}
	if m.pool.Submit(job) {
		if _, ok := m.waiting[key]; !ok {
			m.waiting[key] = now
		}
	}
}

// requestMesh enqueues a mesh job for a data-ready chunk. Requests inside
// the cooldown window are coalesced into remeshPending and picked up by a
// later Update tick, never dropped.
func (m *Manager) requestMesh(coord world.ChunkCoord, now time.Time) {
	c := m.store.Get(coord)
	if c == nil || !c.DataReady() {
		return
	}
	if last, ok := m.lastMeshReq[coord]; ok && now.Sub(last) < m.cfg.MeshCooldown() {
		m.remeshPending[coord] = struct{}{}
		return
	}

	key := sched.Key{Coord: coord, Kind: sched.KindMesh}
	payload := c.Field().Clone()
	sampler := m.sampler
	mode := m.mode
	job := sched.Job{
		Key:      key,
		Priority: m.priorityFor(coord),
		Enqueued: now,
		Run: func() sched.Result {
			verts, normals := meshing.Build(coord, payload, sampler, mode)
			return sched.Result{Key: key, Verts: verts, Normals: normals}
		},
	}
	if m.pool.Submit(job) {
		if _, ok := m.waiting[key]; !ok {
			m.waiting[key] = now
		}
		m.lastMeshReq[coord] = now
		delete(m.remeshPending, coord)
	} else {
		m.remeshPending[coord] = struct{}{}
	}
}

// Update pumps the coordinator: applies completed results, recovers stuck
// jobs, and flushes coalesced remesh requests whose cooldown has expired.
func (m *Manager) Update(now time.Time) {
	defer profiling.Track("engine.Update")()

	for {
		select {
		case res := <-m.pool.Results():
			m.apply(res, now)
			continue
		default:
		}
		break
	}

	for key, since := range m.waiting {
		timeout := m.cfg.MeshTimeout()
		if key.Kind == sched.KindTerrain {
			timeout = m.cfg.TerrainTimeout()
		}
		if now.Sub(since) >= timeout {
			delete(m.waiting, key)
			m.forceSync(key, now)
		}
	}

	for coord := range m.remeshPending {
		if last, ok := m.lastMeshReq[coord]; ok && now.Sub(last) < m.cfg.MeshCooldown() {
			continue
		}
		m.requestMesh(coord, now)
	}
}

// apply installs a completed job result. A result for a chunk that no
// longer exists is silently discarded; that existence check is the only
// cancellation mechanism.
func (m *Manager) apply(res sched.Result, now time.Time) {
	since, wasWaiting := m.waiting[res.Key]
	delete(m.waiting, res.Key)

	c := m.store.Get(res.Key.Coord)
	if c == nil {
		m.discarded++
		return
	}
	if res.Err != nil {
		m.log.Warn("engine", "%s job for chunk %v failed: %v", res.Key.Kind, res.Key.Coord, res.Err)
		// Keep the waiting entry armed so the stuck sweep force-syncs the
		// chunk; a failed job must not strand it until the viewer moves.
		if !wasWaiting {
			since = now
		}
		m.waiting[res.Key] = since
		return
	}

	switch res.Key.Kind {
	case sched.KindTerrain:
		if c.DataReady() {
			// The stuck fallback beat the worker to it.
			m.discarded++
			return
		}
		m.store.InstallField(res.Key.Coord, res.Field)
		m.applied++
		m.requestMesh(res.Key.Coord, now)
		m.remeshSeams(res.Key.Coord, now)
	case sched.KindMesh:
		if !c.DataReady() {
			m.discarded++
			return
		}
		c.SetMesh(res.Verts, res.Normals)
		m.applied++
	}
}

// remeshSeams re-meshes face neighbors that already hold a mesh built
// before this chunk's data existed, so the shared boundary stays
// consistent once real data replaces the theoretical fallback.
func (m *Manager) remeshSeams(coord world.ChunkCoord, now time.Time) {
	for _, n := range faceNeighbors(coord) {
		if c := m.store.Get(n); c != nil && c.MeshReady() {
			m.requestMesh(n, now)
		}
	}
}

// forceSync is the stuck-job remedy: run the work synchronously on the
// coordinator, accepting the latency spike.
func (m *Manager) forceSync(key sched.Key, now time.Time) {
	c := m.store.Get(key.Coord)
	if c == nil {
		return
	}
	m.stuckForced++
	m.log.Warn("engine", "%s job for chunk %v stuck, forcing synchronous run", key.Kind, key.Coord)

	// Drop the stale job if it is still queued, so the key frees up for
	// future submissions and the stale result cannot land later.
	m.pool.Cancel(key)

	switch key.Kind {
	case sched.KindTerrain:
		if c.DataReady() {
			return
		}
		m.store.InstallField(key.Coord, m.terrain.Generate(key.Coord))
		m.requestMesh(key.Coord, now)
		m.remeshSeams(key.Coord, now)
	case sched.KindMesh:
		if !c.DataReady() {
			return
		}
		verts, normals := meshing.Build(key.Coord, c.Field().Clone(), m.sampler, m.mode)
		c.SetMesh(verts, normals)
		m.lastMeshReq[key.Coord] = now
	}
}

// Place sets a material at a world position. Fails when no loaded chunk
// covers the position.
func (m *Manager) Place(pos mgl32.Vec3, mat world.Material) bool {
	return m.setVoxel(pos, mat)
}

// Remove clears the voxel at a world position.
func (m *Manager) Remove(pos mgl32.Vec3) bool {
	return m.setVoxel(pos, world.MaterialAir)
}

func (m *Manager) setVoxel(pos mgl32.Vec3, mat world.Material) bool {
	x, y, z := voxelCoord(pos)
	if !m.store.SetVoxel(x, y, z, mat) {
		return false
	}
	now := time.Now()
	coord, lx, ly, lz := world.WorldToChunk(x, y, z)
	m.requestMesh(coord, now)

	// A boundary voxel changes what the neighbor's mesher samples.
	for _, n := range editNeighbors(coord, lx, ly, lz) {
		if c := m.store.Get(n); c != nil && c.DataReady() {
			m.requestMesh(n, now)
		}
	}
	return true
}

// MaterialAt answers sampling queries from external systems with exactly
// the resolution the mesher uses.
func (m *Manager) MaterialAt(pos mgl32.Vec3) world.Material {
	x, y, z := voxelCoord(pos)
	return m.sampler.Sample(x, y, z)
}

// Mesh returns a chunk's vertex and normal buffers. ok is false until the
// mesh is ready; empty buffers with ok true mean "no visible geometry".
func (m *Manager) Mesh(coord world.ChunkCoord) (verts, normals []mgl32.Vec3, ok bool) {
	c := m.store.Get(coord)
	if c == nil || !c.MeshReady() {
		return nil, nil, false
	}
	return c.Verts, c.Normals, true
}

// Stats returns the introspection snapshot.
func (m *Manager) Stats() Stats {
	data, mesh := m.store.ReadyCounts()
	return Stats{
		Queue:       m.pool.Stats(),
		Chunks:      m.store.Count(),
		DataReady:   data,
		MeshReady:   mesh,
		Waiting:     len(m.waiting),
		StuckForced: m.stuckForced,
		Applied:     m.applied,
		Discarded:   m.discarded,
	}
}

// SaveEdited persists all edited chunks. No-op without a save store or
// edits. Returns the save id when a save was written.
func (m *Manager) SaveEdited() (string, error) {
	if m.saves == nil {
		return "", nil
	}
	edited := m.store.EditedChunks()
	if len(edited) == 0 {
		return "", nil
	}
	return m.saves.Save(edited)
}

// Close stops the worker pool.
func (m *Manager) Close() {
	m.pool.Close()
}

func (m *Manager) priorityFor(coord world.ChunkCoord) int {
	dx := coord.X - m.center.X
	dz := coord.Z - m.center.Z
	return -(dx*dx + dz*dz)
}

func viewerChunk(pos mgl32.Vec3) world.ChunkCoord {
	x, y, z := voxelCoord(pos)
	coord, _, _, _ := world.WorldToChunk(x, y, z)
	coord.Y = 0
	return coord
}

func voxelCoord(pos mgl32.Vec3) (int, int, int) {
	return int(math.Floor(float64(pos.X()))),
		int(math.Floor(float64(pos.Y()))),
		int(math.Floor(float64(pos.Z())))
}

func faceNeighbors(coord world.ChunkCoord) []world.ChunkCoord {
	return []world.ChunkCoord{
		{X: coord.X - 1, Y: coord.Y, Z: coord.Z},
		{X: coord.X + 1, Y: coord.Y, Z: coord.Z},
		{X: coord.X, Y: coord.Y - 1, Z: coord.Z},
		{X: coord.X, Y: coord.Y + 1, Z: coord.Z},
		{X: coord.X, Y: coord.Y, Z: coord.Z - 1},
		{X: coord.X, Y: coord.Y, Z: coord.Z + 1},
	}
}

// editNeighbors lists the chunks sharing a face with an edited voxel that
// sits on a chunk-boundary plane.
func editNeighbors(coord world.ChunkCoord, lx, ly, lz int) []world.ChunkCoord {
	var out []world.ChunkCoord
	if lx == 0 {
		out = append(out, world.ChunkCoord{X: coord.X - 1, Y: coord.Y, Z: coord.Z})
	} else if lx == world.ChunkSize-1 {
		out = append(out, world.ChunkCoord{X: coord.X + 1, Y: coord.Y, Z: coord.Z})
	}
	if ly == 0 {
		out = append(out, world.ChunkCoord{X: coord.X, Y: coord.Y - 1, Z: coord.Z})
	} else if ly == world.ChunkSize-1 {
		out = append(out, world.ChunkCoord{X: coord.X, Y: coord.Y + 1, Z: coord.Z})
	}
	if lz == 0 {
		out = append(out, world.ChunkCoord{X: coord.X, Y: coord.Y, Z: coord.Z - 1})
	} else if lz == world.ChunkSize-1 {
		out = append(out, world.ChunkCoord{X: coord.X, Y: coord.Y, Z: coord.Z + 1})
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
