// Command taskpoold runs the task pool control loops: replenishment,
// reconciliation and archival. Worker processes run separately against the
// same broker.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/mohans/taskpool"
	"github.com/mohans/taskpool/asynqbroker"
	"github.com/mohans/taskpool/config"
	"github.com/mohans/taskpool/notify"
	"github.com/mohans/taskpool/redisarchive"
	"github.com/mohans/taskpool/redissignal"
	"github.com/mohans/taskpool/sqlstore"
)

func main() {
	envFile := flag.String("env", "", "path to .env file (optional)")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		log.Error("open sqlite", "path", cfg.SQLitePath, "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := sqlstore.Migrate(db); err != nil {
		log.Error("migrate schema", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	broker := asynqbroker.New(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		asynqbroker.Options{
			TaskType:              cfg.TaskType,
			Queue:                 cfg.Queue,
			HighQueue:             cfg.HighQueue,
			HighPriorityThreshold: cfg.HighPriorityThreshold,
		},
		log,
	)
	defer broker.Close()

	svc := taskpool.NewService(taskpool.Gateways{
		Store:    sqlstore.New(db),
		Broker:   broker,
		Archive:  redisarchive.New(rdb, cfg.ArchiveSetKey),
		Signals:  redissignal.New(rdb, cfg.SignalStream),
		Notifier: notify.NewWebhook(cfg.WebhookURL, log),
	}, taskpool.ServiceConfig{
		Replenish: taskpool.ReplenishConfig{
			TargetPoolSize: cfg.TargetPoolSize,
			PoolRatio:      cfg.PoolRatio,
			MaxBatchFetch:  cfg.MaxBatchFetch,
			SubBatchSize:   cfg.SubBatchSize,
			Priority:       cfg.PublishPriority,
		},
		SignalFetchLimit:     cfg.SignalFetchLimit,
		Retention:            cfg.Retention,
		ArchiveBatch:         cfg.ArchiveBatch,
		NotificationsEnabled: cfg.NotificationsEnabled,
	}, log)

	sched, err := taskpool.NewScheduler(svc, taskpool.ScheduleConfig{
		ReplenishEvery: cfg.ReplenishEvery,
		ReconcileEvery: cfg.ReconcileEvery,
		ArchiveEvery:   cfg.ArchiveEvery,
	}, log)
	if err != nil {
		log.Error("build scheduler", "err", err)
		os.Exit(1)
	}
	sched.Start()
	log.Info("taskpoold running",
		"sqlite", cfg.SQLitePath, "redis", cfg.RedisAddr, "queue", cfg.Queue)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	sched.Stop()
}
