package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every tunable of the engine as an explicit struct. Nothing
// in the engine reads ambient global state; the composition root builds one
// Config and passes the relevant sections down.
type Config struct {
	Ingest    Ingest    `yaml:"ingest"`
	Closure   Closure   `yaml:"closure"`
	Area      Area      `yaml:"area"`
	Proximity Proximity `yaml:"proximity"`
	Index     Index     `yaml:"index"`
	Snapshot  Snapshot  `yaml:"snapshot"`
	Server    Server    `yaml:"server"`
	Postgres  Postgres  `yaml:"postgres"`
	Redis     Redis     `yaml:"redis"`
	Kafka     Kafka     `yaml:"kafka"`
}

// Ingest gates the raw fix stream before anything is appended to a path.
type Ingest struct {
	// MaxAccuracyM drops fixes whose horizontal accuracy estimate is worse
	// than this (metres).
	MaxAccuracyM float64 `yaml:"max_accuracy_m"`
	// MinInterval drops fixes arriving faster than this, bounding path
	// point count.
	MinInterval time.Duration `yaml:"min_interval"`
	// SoftSpeedKmh raises a speed warning signal without dropping the fix.
	SoftSpeedKmh float64 `yaml:"soft_speed_kmh"`
	// HardSpeedKmh rejects fixes implying a faster instantaneous speed.
	HardSpeedKmh float64 `yaml:"hard_speed_kmh"`
}

// Closure decides when a recorded path is eligible for validation.
type Closure struct {
	// MinPoints is the minimum number of accepted fixes.
	MinPoints int `yaml:"min_points"`
	// MaxGapM is the maximum distance between first and last point (metres).
	MaxGapM float64 `yaml:"max_gap_m"`
}

// Area bounds accepted claim sizes in square metres.
type Area struct {
	MinM2 float64 `yaml:"min_m2"`
	MaxM2 float64 `yaml:"max_m2"`
}

// Proximity configures the warning-grade state machine.
type Proximity struct {
	// CautionM / WarningM / DangerM are the grade boundaries: distances in
	// [DangerM, WarningM) grade danger-adjacent and so on. Distances at or
	// beyond CautionM are safe.
	CautionM float64 `yaml:"caution_m"`
	WarningM float64 `yaml:"warning_m"`
	DangerM  float64 `yaml:"danger_m"`
	// QueryRadiusM bounds the spatial-index query; anything farther is
	// safe by definition. Must be >= CautionM.
	QueryRadiusM float64 `yaml:"query_radius_m"`
	// Interval is the monitor evaluation cadence while tracking.
	Interval time.Duration `yaml:"interval"`
}

// Index configures the uniform grid.
type Index struct {
	// CellSizeM is the grid cell edge length in metres.
	CellSizeM float64 `yaml:"cell_size_m"`
}

// Snapshot configures territory snapshot refresh.
type Snapshot struct {
	// RefreshInterval is how often the engine reloads the region snapshot
	// from the store into the index.
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	// CacheTTL bounds staleness of the Redis-cached snapshot.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// Region is the bounding box the daemon serves, as
	// min_lat,min_lon,max_lat,max_lon.
	Region RegionBox `yaml:"region"`
}

// RegionBox is the YAML shape of a geographic bounding box.
type RegionBox struct {
	MinLat float64 `yaml:"min_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLat float64 `yaml:"max_lat"`
	MaxLon float64 `yaml:"max_lon"`
}

// Server configures the HTTP/WebSocket surface.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Postgres configures the territory store connection.
type Postgres struct {
	DSN string `yaml:"dsn"`
}

// Redis configures the snapshot cache. An empty Addr disables caching.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Kafka configures the event publisher. Empty Brokers disables publishing.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
}

// Default returns the documented engine defaults.
func Default() Config {
	return Config{
		Ingest: Ingest{
			MaxAccuracyM: 50,
			MinInterval:  2 * time.Second,
			SoftSpeedKmh: 15,
			HardSpeedKmh: 30,
		},
		Closure: Closure{
			MinPoints: 20,
			MaxGapM:   20,
		},
		Area: Area{
			MinM2: 10_000,
			MaxM2: 5_000_000,
		},
		Proximity: Proximity{
			CautionM:     100,
			WarningM:     50,
			DangerM:      25,
			QueryRadiusM: 200,
			Interval:     10 * time.Second,
		},
		Index: Index{
			CellSizeM: 250,
		},
		Snapshot: Snapshot{
			RefreshInterval: 60 * time.Second,
			CacheTTL:        30 * time.Second,
		},
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overlays connection settings from the environment, matching the
// variables the deployment manifests set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASS"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitComma(v)
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Ingest.MaxAccuracyM <= 0 {
		return fmt.Errorf("ingest.max_accuracy_m must be positive, got %v", c.Ingest.MaxAccuracyM)
	}
	if c.Ingest.HardSpeedKmh < c.Ingest.SoftSpeedKmh {
		return fmt.Errorf("ingest.hard_speed_kmh (%v) must be >= soft_speed_kmh (%v)",
			c.Ingest.HardSpeedKmh, c.Ingest.SoftSpeedKmh)
	}
	if c.Closure.MinPoints < 3 {
		return fmt.Errorf("closure.min_points must be at least 3, got %d", c.Closure.MinPoints)
	}
	if c.Area.MinM2 < 0 || c.Area.MaxM2 < c.Area.MinM2 {
		return fmt.Errorf("area bounds [%v, %v] invalid", c.Area.MinM2, c.Area.MaxM2)
	}
	if !(c.Proximity.DangerM < c.Proximity.WarningM && c.Proximity.WarningM < c.Proximity.CautionM) {
		return fmt.Errorf("proximity grade boundaries must be ordered danger < warning < caution, got %v/%v/%v",
			c.Proximity.DangerM, c.Proximity.WarningM, c.Proximity.CautionM)
	}
	if c.Proximity.QueryRadiusM < c.Proximity.CautionM {
		return fmt.Errorf("proximity.query_radius_m (%v) must cover caution_m (%v)",
			c.Proximity.QueryRadiusM, c.Proximity.CautionM)
	}
	if c.Index.CellSizeM <= 0 {
		return fmt.Errorf("index.cell_size_m must be positive, got %v", c.Index.CellSizeM)
	}
	return nil
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
