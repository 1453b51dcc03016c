package world

// Sampler resolves a material at an arbitrary world coordinate: a loaded,
// data-ready chunk wins; otherwise the theoretical terrain function answers
// with exactly what generation would have produced there. Read-only and
// safe from any worker thread.
type Sampler struct {
	store   *Store
	terrain *Terrain
}

// NewSampler builds a sampler over a store and a terrain profile.
func NewSampler(store *Store, terrain *Terrain) *Sampler {
	return &Sampler{store: store, terrain: terrain}
}

// Sample returns the material at a world voxel coordinate.
func (s *Sampler) Sample(x, y, z int) Material {
	if m, ok := s.store.MaterialAt(x, y, z); ok {
		return m
	}
	return s.terrain.MaterialAt(x, y, z)
}
