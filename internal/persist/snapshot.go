// Package persist stores edited chunks across runs. Saves are
// zstd-compressed gob snapshots with a JSON header line, indexed in a
// small SQLite database.
package persist

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelmesh/internal/world"
)

// Header is the human-readable first line of a snapshot file.
type Header struct {
	SaveID    string    `json:"save_id"`
	CreatedAt time.Time `json:"created_at"`
	ChunkSize int       `json:"chunk_size"`
	Chunks    int       `json:"chunks"`
}

// ChunkRecord pairs a chunk coordinate with its voxel field.
type ChunkRecord struct {
	Coord world.ChunkCoord
	Field world.VoxelField
}

// Snapshot is one complete save of edited chunks.
type Snapshot struct {
	Header Header
	Chunks []ChunkRecord
}

// WriteSnapshot writes a snapshot file: one JSON header line, then the
// gob-encoded body, all zstd-compressed.
func WriteSnapshot(path string, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

// ReadSnapshot reads a snapshot file written by WriteSnapshot.
func ReadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Skip the header line; the gob body carries the header too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
