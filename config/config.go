package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ProgramConfig holds all runtime settings. Everything is sourced from the
// environment (optionally via a .env file loaded by the cmd front-end).
type ProgramConfig struct {
	// Store connection.
	PgHost     string
	PgPort     int
	PgName     string
	PgUser     string
	PgPassword string

	// Maximum LoD served. Caps the lod_max of hierarchy and read requests.
	Depth int

	// Order patches by their morton code when sampling. Requires the
	// morton column maintained by the loader.
	UseMorton bool

	// Accumulate points/sec counters.
	Stats bool

	// Override path for the root hierarchy cache file (lod_min == 0).
	RootHcy string

	// Base directory for hierarchy cache files.
	CacheDir string

	// Connection pool size. Also bounds hierarchy worker parallelism.
	PoolSize int

	// Optional policy caps, 0 means unset.
	MaxPointsPerPatch  int
	MaxPatchesPerQuery int

	// Optional global bounding box override (xmin,ymin,zmin,xmax,ymax,zmax).
	// When set, Info reports it instead of the dataset bbox.
	BoundingBox []float64
}

var Keys ProgramConfig

// Init populates Keys from the environment. Called once at startup.
func Init() error {
	Keys = ProgramConfig{
		PgHost:   envOr("PG_HOST", "localhost"),
		PgName:   envOr("PG_NAME", "pc_server"),
		PgUser:   envOr("PG_USER", "postgres"),
		CacheDir: envOr("CACHE_DIR", filepath.Join(os.TempDir(), "pc-server")),
		RootHcy:  os.Getenv("ROOT_HCY"),
		PgPassword: os.Getenv("PG_PASSWORD"),
	}

	var err error
	if Keys.PgPort, err = envIntOr("PG_PORT", 5432); err != nil {
		return err
	}
	if Keys.Depth, err = envIntOr("DEPTH", 6); err != nil {
		return err
	}
	if Keys.PoolSize, err = envIntOr("POOL_SIZE", 8); err != nil {
		return err
	}
	if Keys.MaxPointsPerPatch, err = envIntOr("MAX_POINTS_PER_PATCH", 0); err != nil {
		return err
	}
	if Keys.MaxPatchesPerQuery, err = envIntOr("MAX_PATCHES_PER_QUERY", 0); err != nil {
		return err
	}

	Keys.UseMorton = envBool("USE_MORTON")
	Keys.Stats = envBool("STATS")

	if bb := os.Getenv("BB"); bb != "" {
		parts := strings.Split(bb, ",")
		if len(parts) != 6 {
			return fmt.Errorf("BB must hold 6 comma separated values, got %#v", bb)
		}
		box := make([]float64, 6)
		for i, p := range parts {
			if box[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
				return fmt.Errorf("BB: %w", err)
			}
		}
		Keys.BoundingBox = box
	}

	if Keys.PoolSize < 1 {
		return fmt.Errorf("POOL_SIZE must be at least 1, got %d", Keys.PoolSize)
	}
	if Keys.Depth < 1 {
		return fmt.Errorf("DEPTH must be at least 1, got %d", Keys.Depth)
	}

	return nil
}

// DSN builds the Postgres connection string for the store.
func (c *ProgramConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(c.PgUser), url.QueryEscape(c.PgPassword),
		c.PgHost, c.PgPort, c.PgName)
}

// Empty values count as unset so that exported-but-blank variables fall back
// to the defaults.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
