package persist

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"voxelmesh/internal/world"
)

// Store is the save directory plus its SQLite index. The latest save's
// chunks are kept in memory so lookups during chunk creation are cheap.
type Store struct {
	dir string
	db  *sql.DB

	mu     sync.Mutex
	fields map[world.ChunkCoord]world.VoxelField
}

// Open opens (or creates) a save directory and loads the latest save.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty save dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// WAL suits the append-style save workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS saves (
	id         TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	chunks     INTEGER NOT NULL,
	created_at TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}

	s := &Store{
		dir:    dir,
		db:     db,
		fields: make(map[world.ChunkCoord]world.VoxelField),
	}
	if err := s.loadLatest(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) loadLatest() error {
	var path string
	err := s.db.QueryRow(
		`SELECT path FROM saves ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(&path)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	snap, err := ReadSnapshot(path)
	if err != nil {
		return fmt.Errorf("load latest save: %w", err)
	}
	for _, rec := range snap.Chunks {
		s.fields[rec.Coord] = rec.Field
	}
	return nil
}

// Save writes a new snapshot of the given chunks, merged over the chunks
// already known from earlier saves, and indexes it. Returns the save id.
func (s *Store) Save(chunks map[world.ChunkCoord]world.VoxelField) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for coord, field := range chunks {
		s.fields[coord] = field.Clone()
	}
	if len(s.fields) == 0 {
		return "", fmt.Errorf("nothing to save")
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	snap := Snapshot{
		Header: Header{
			SaveID:    id,
			CreatedAt: now,
			ChunkSize: world.ChunkSize,
			Chunks:    len(s.fields),
		},
	}
	for coord, field := range s.fields {
		snap.Chunks = append(snap.Chunks, ChunkRecord{Coord: coord, Field: field})
	}

	path := filepath.Join(s.dir, "saves", id+".snap.zst")
	if err := WriteSnapshot(path, snap); err != nil {
		return "", err
	}

	_, err := s.db.Exec(
		`INSERT INTO saves (id, path, chunks, created_at) VALUES (?, ?, ?, ?)`,
		id, path, len(s.fields), now.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("index save: %w", err)
	}
	return id, nil
}

// Lookup returns the saved field for a chunk, if any. The returned field
// is a clone the caller may own.
func (s *Store) Lookup(coord world.ChunkCoord) (world.VoxelField, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	field, ok := s.fields[coord]
	if !ok {
		return nil, false
	}
	return field.Clone(), true
}

// SaveCount returns the number of indexed saves.
func (s *Store) SaveCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM saves`).Scan(&n)
	return n, err
}

// Close releases the index database.
func (s *Store) Close() error {
	return s.db.Close()
}
