// Package config loads daemon settings from defaults, an optional .env file
// and TASKPOOL_* environment variables.
package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Settings is the recognized configuration surface.
type Settings struct {
	// External endpoints.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	WebhookURL    string

	// Broker naming.
	Queue                 string
	HighQueue             string
	HighPriorityThreshold int
	TaskType              string
	ArchiveSetKey         string
	SignalStream          string

	// Replenishment.
	TargetPoolSize  int
	PoolRatio       float64
	MaxBatchFetch   int
	SubBatchSize    int
	PublishPriority int

	// Control loop intervals and archival retention.
	ReplenishEvery time.Duration
	ReconcileEvery time.Duration
	ArchiveEvery   time.Duration
	Retention      time.Duration
	ArchiveBatch   int

	SignalFetchLimit     int
	NotificationsEnabled bool
}

// Default returns built-in defaults.
func Default() Settings {
	return Settings{
		RedisAddr:             "127.0.0.1:6379",
		SQLitePath:            "taskpool.db",
		Queue:                 "default",
		HighQueue:             "critical",
		HighPriorityThreshold: 5,
		TaskType:              "taskpool:execute",
		ArchiveSetKey:         "taskpool:archived-ids",
		SignalStream:          "taskpool:completions",
		TargetPoolSize:        5000,
		PoolRatio:             0.6,
		MaxBatchFetch:         500,
		SubBatchSize:          10,
		ReplenishEvery:        time.Minute,
		ReconcileEvery:        2 * time.Minute,
		ArchiveEvery:          24 * time.Hour,
		Retention:             24 * time.Hour,
		ArchiveBatch:          1000,
		SignalFetchLimit:      200,
		NotificationsEnabled:  true,
	}
}

// Load returns defaults overlaid with values from an optional .env file and
// the process environment. With an empty path, a .env in the working
// directory is used when present.
func Load(envFile string) (Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Settings{}, err
		}
	} else {
		_ = godotenv.Load()
	}
	cfg := Default()
	FromEnv(&cfg)
	return cfg, nil
}
