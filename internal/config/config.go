package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables of the terrain core. Zero-ish defaults come
// from Default(); Load overlays a YAML file on top of them.
type Config struct {
	RenderDistance int `yaml:"render_distance"` // in chunks, horizontal
	Workers        int `yaml:"workers"`
	QueueCapacity  int `yaml:"queue_capacity"`

	// smooth or angular vertex placement for the surface mesher.
	MeshMode string `yaml:"mesh_mode"`

	MeshCooldownMs   int `yaml:"mesh_cooldown_ms"`
	TerrainTimeoutMs int `yaml:"terrain_timeout_ms"`
	MeshTimeoutMs    int `yaml:"mesh_timeout_ms"`

	// Optional cave carving. Applied identically by the generator and the
	// theoretical sampler, so enabling it never introduces seams.
	Seed          int64   `yaml:"seed"`
	Caves         bool    `yaml:"caves"`
	CaveThreshold float64 `yaml:"cave_threshold"`

	SaveDir   string `yaml:"save_dir"`   // empty disables persistence
	StatsAddr string `yaml:"stats_addr"` // empty disables the stats endpoint
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		RenderDistance:   8,
		Workers:          4,
		QueueCapacity:    16,
		MeshMode:         "smooth",
		MeshCooldownMs:   100,
		TerrainTimeoutMs: 5000,
		MeshTimeoutMs:    2000,
		Seed:             1337,
		Caves:            false,
		CaveThreshold:    0.55,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	c := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Validate rejects values the core cannot operate with.
func (c Config) Validate() error {
	if c.RenderDistance < 1 {
		return fmt.Errorf("render_distance must be >= 1, got %d", c.RenderDistance)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be >= 1, got %d", c.QueueCapacity)
	}
	if c.MeshMode != "smooth" && c.MeshMode != "angular" {
		return fmt.Errorf("mesh_mode must be smooth or angular, got %q", c.MeshMode)
	}
	return nil
}

func (c Config) MeshCooldown() time.Duration   { return time.Duration(c.MeshCooldownMs) * time.Millisecond }
func (c Config) TerrainTimeout() time.Duration { return time.Duration(c.TerrainTimeoutMs) * time.Millisecond }
func (c Config) MeshTimeout() time.Duration    { return time.Duration(c.MeshTimeoutMs) * time.Millisecond }
