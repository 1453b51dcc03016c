package world

import "sync"

// Store owns the chunk map. It is the single source of truth for "does a
// chunk exist". Structural mutation and lifecycle transitions happen on the
// coordinator; the RWMutex exists so worker threads can read published
// voxel data through MaterialAt while meshing.
type Store struct {
	mu     sync.RWMutex
	chunks map[ChunkCoord]*Chunk
}

// NewStore creates an empty chunk store.
func NewStore() *Store {
	return &Store{chunks: make(map[ChunkCoord]*Chunk)}
}

// Get returns the chunk at a coordinate, or nil.
func (s *Store) Get(coord ChunkCoord) *Chunk {
	s.mu.RLock()
	c := s.chunks[coord]
	s.mu.RUnlock()
	return c
}

// Has reports chunk existence without creating it.
func (s *Store) Has(coord ChunkCoord) bool {
	return s.Get(coord) != nil
}

// Put adds a chunk if absent and returns the stored instance.
func (s *Store) Put(c *Chunk) *Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.chunks[c.Coord]; ok {
		return existing
	}
	s.chunks[c.Coord] = c
	return c
}

// Remove deletes a chunk. In-flight jobs referencing it become no-ops at
// result-apply time.
func (s *Store) Remove(coord ChunkCoord) {
	s.mu.Lock()
	delete(s.chunks, coord)
	s.mu.Unlock()
}

// InstallField publishes voxel data for a chunk and marks it data-ready.
// This is the happens-before edge that makes worker-side neighbor reads in
// MaterialAt safe.
func (s *Store) InstallField(coord ChunkCoord, field VoxelField) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[coord]
	if !ok {
		return false
	}
	c.field = field
	c.dataReady = true
	return true
}

// MaterialAt resolves a world voxel coordinate against loaded, data-ready
// chunks. The second return is false when no ready chunk covers it.
// Safe to call from worker threads.
func (s *Store) MaterialAt(x, y, z int) (Material, bool) {
	coord, lx, ly, lz := WorldToChunk(x, y, z)
	s.mu.RLock()
	c, ok := s.chunks[coord]
	if !ok || !c.dataReady || c.field == nil {
		s.mu.RUnlock()
		return MaterialAir, false
	}
	m := c.field.At(lx, ly, lz)
	s.mu.RUnlock()
	return m, true
}

// SetVoxel writes a material at a world coordinate. Rejected (false) when
// no loaded chunk with ready data covers the position. Taking the write
// lock orders the edit against concurrent worker reads in MaterialAt.
func (s *Store) SetVoxel(x, y, z int, m Material) bool {
	coord, lx, ly, lz := WorldToChunk(x, y, z)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chunks[coord]
	if !ok || !c.dataReady || c.field == nil {
		return false
	}
	c.field.Set(lx, ly, lz, m)
	c.edited = true
	return true
}

// Count returns the number of chunks in the map.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// ReadyCounts returns how many chunks have data and meshes installed.
func (s *Store) ReadyCounts() (data, mesh int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.chunks {
		if c.dataReady {
			data++
		}
		if c.meshReady {
			mesh++
		}
	}
	return data, mesh
}

// Coords returns a snapshot of all chunk coordinates.
func (s *Store) Coords() []ChunkCoord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChunkCoord, 0, len(s.chunks))
	for coord := range s.chunks {
		out = append(out, coord)
	}
	return out
}

// EditedChunks returns coordinate/field pairs for chunks modified by edits.
// Fields are cloned so the caller can hand them to persistence safely.
func (s *Store) EditedChunks() map[ChunkCoord]VoxelField {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[ChunkCoord]VoxelField)
	for coord, c := range s.chunks {
		if c.edited && c.field != nil {
			out[coord] = c.field.Clone()
		}
	}
	return out
}
