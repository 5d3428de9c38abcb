// Package config provides centralized configuration for accessplane.
//
// All configuration values are loaded from environment variables with
// sensible defaults, following the teacher's env-var-first convention
// (metrics/config DI wiring is out of scope per the spec's non-goals, so
// there is no database-backed config tier here — just env vars + defaults).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable named in §6's Configuration table plus the
// ambient paths/ports the teacher's own Config carries.
type Config struct {
	// Admin/introspection HTTP surface (gorilla/mux) — management plane
	// only; the event/query RPC surface itself is an external collaborator
	// per §1.
	AdminPort int

	// DataPath is the root directory for the redundant file backup, the
	// SQLite bulk-persister database, and the Instance Manager's data.
	DataPath string

	// BufferSizeLimit is the size trigger for a Temporal Event Buffer
	// flush (§4.4, §6). Default: 10000.
	BufferSizeLimit int

	// BufferFlushInterval is the timer trigger for a flush (§4.4, §6).
	BufferFlushInterval time.Duration

	// RetryCount and RetryInterval govern the Shard Client's transient
	// RPC retry wrapper (§4.8, §6).
	RetryCount    int
	RetryInterval time.Duration

	// CacheCapacity bounds the Event Cache ring (§4.6, §6).
	CacheCapacity int

	// IncludeInnerExceptions is the §6 error-payload verbosity option.
	// Load reads it, but no component in this module consults it.
	IncludeInnerExceptions bool

	// OverrideInternalServerErrors is the §6 option for collapsing
	// 5xx-class errors to ServiceUnavailable. Load reads it, but no
	// component in this module consults it.
	OverrideInternalServerErrors bool

	// StoreBidirectionalMappings is the §6 reverse-index option. Load reads
	// it, but no component in this module consults it: every store.Store,
	// reader-side or writer-side, maintains both directions.
	StoreBidirectionalMappings bool

	// DrainTimeout bounds how long the split/merge orchestrator's
	// DrainSource state waits for WriterNodeEventProcessingCount to reach
	// zero before aborting (§4.9).
	DrainTimeout time.Duration

	// CopyBatchSize is the number of events per CopyBatches round-trip
	// during a split/merge (§4.9).
	CopyBatchSize int

	LogLevel string
	AppName  string
}

// Load builds a Config from environment variables, falling back to the
// documented defaults for anything unset.
func Load() *Config {
	return &Config{
		AdminPort:                    getEnvInt("ACCESSPLANE_ADMIN_PORT", 8090),
		DataPath:                     getEnv("ACCESSPLANE_DATA_PATH", "./var"),
		BufferSizeLimit:              getEnvInt("ACCESSPLANE_BUFFER_SIZE_LIMIT", 10000),
		BufferFlushInterval:          getEnvDuration("ACCESSPLANE_BUFFER_FLUSH_INTERVAL_MS", 500*time.Millisecond),
		RetryCount:                   getEnvInt("ACCESSPLANE_RETRY_COUNT", 3),
		RetryInterval:                getEnvDuration("ACCESSPLANE_RETRY_INTERVAL_MS", 200*time.Millisecond),
		CacheCapacity:                getEnvInt("ACCESSPLANE_CACHE_CAPACITY", 5000),
		IncludeInnerExceptions:       getEnvBool("ACCESSPLANE_INCLUDE_INNER_EXCEPTIONS", false),
		OverrideInternalServerErrors: getEnvBool("ACCESSPLANE_OVERRIDE_INTERNAL_SERVER_ERRORS", true),
		StoreBidirectionalMappings:   getEnvBool("ACCESSPLANE_STORE_BIDIRECTIONAL_MAPPINGS", true),
		DrainTimeout:                 getEnvDuration("ACCESSPLANE_DRAIN_TIMEOUT_MS", 30*time.Second),
		CopyBatchSize:                getEnvInt("ACCESSPLANE_COPY_BATCH_SIZE", 500),
		LogLevel:                     getEnv("ACCESSPLANE_LOG_LEVEL", "info"),
		AppName:                      getEnv("ACCESSPLANE_APP_NAME", "accessplane"),
	}
}

// SQLitePath returns the full path to the bulk persister's SQLite database file.
func (c *Config) SQLitePath() string {
	return c.DataPath + "/data/events.db"
}

// BackupPath returns the directory for the redundant file-based backup persister.
func (c *Config) BackupPath() string {
	return c.DataPath + "/backup"
}

// WALPath returns DataPath + "/wal". Nothing in this module writes there:
// the Temporal Event Buffer keeps its queues in memory only.
func (c *Config) WALPath() string {
	return c.DataPath + "/wal"
}

// InstanceManagerPath returns the directory the Instance Manager (§4.10)
// roots its metadata database and per-shard-group storage instances
// under.
func (c *Config) InstanceManagerPath() string {
	return c.DataPath + "/instances"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

// getEnvDuration parses a millisecond integer environment variable,
// falling back to defaultValue (itself a full Duration so callers can
// express the default at whatever precision reads naturally).
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return time.Duration(intValue) * time.Millisecond
		}
	}
	return defaultValue
}
