package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays TASKPOOL_* environment variables onto cfg.
func FromEnv(cfg *Settings) {
	setString(&cfg.RedisAddr, "TASKPOOL_REDIS_ADDR")
	setString(&cfg.RedisPassword, "TASKPOOL_REDIS_PASSWORD")
	setInt(&cfg.RedisDB, "TASKPOOL_REDIS_DB")
	setString(&cfg.SQLitePath, "TASKPOOL_SQLITE_PATH")
	setString(&cfg.WebhookURL, "TASKPOOL_WEBHOOK_URL")

	setString(&cfg.Queue, "TASKPOOL_QUEUE")
	setString(&cfg.HighQueue, "TASKPOOL_HIGH_QUEUE")
	setInt(&cfg.HighPriorityThreshold, "TASKPOOL_HIGH_PRIORITY_THRESHOLD")
	setString(&cfg.TaskType, "TASKPOOL_TASK_TYPE")
	setString(&cfg.ArchiveSetKey, "TASKPOOL_ARCHIVE_SET_KEY")
	setString(&cfg.SignalStream, "TASKPOOL_SIGNAL_STREAM")

	setInt(&cfg.TargetPoolSize, "TASKPOOL_TARGET_POOL_SIZE")
	setFloat(&cfg.PoolRatio, "TASKPOOL_POOL_RATIO")
	setInt(&cfg.MaxBatchFetch, "TASKPOOL_MAX_BATCH_FETCH")
	setInt(&cfg.SubBatchSize, "TASKPOOL_SUB_BATCH_SIZE")
	setInt(&cfg.PublishPriority, "TASKPOOL_PUBLISH_PRIORITY")

	setDuration(&cfg.ReplenishEvery, "TASKPOOL_REPLENISH_EVERY")
	setDuration(&cfg.ReconcileEvery, "TASKPOOL_RECONCILE_EVERY")
	setDuration(&cfg.ArchiveEvery, "TASKPOOL_ARCHIVE_EVERY")
	setDuration(&cfg.Retention, "TASKPOOL_RETENTION")
	setInt(&cfg.ArchiveBatch, "TASKPOOL_ARCHIVE_BATCH")

	setInt(&cfg.SignalFetchLimit, "TASKPOOL_SIGNAL_FETCH_LIMIT")
	setBool(&cfg.NotificationsEnabled, "TASKPOOL_NOTIFICATIONS_ENABLED")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
