// Package worker runs task handlers against the broker and reports every
// outcome onto the completion feed. It is the in-repo stand-in for the
// downstream execution fleet; reconciliation stays the only writer of
// terminal statuses in the record store.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/mohans/taskpool"
)

// SignalWriter is the producer side of the completion feed.
type SignalWriter interface {
	Append(ctx context.Context, input []byte, state string, success bool) error
}

// Handler executes one original payload. A nil return reports success; an
// error reports a completed-but-failed execution.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Config tunes the worker server.
type Config struct {
	Concurrency int
	Queues      map[string]int // queue weights, e.g. {"critical": 6, "default": 3}
	TaskType    string         // must match the broker's task type
}

// Worker consumes broker messages and emits one completion signal per
// payload. Duplicate deliveries produce duplicate signals; reconciliation
// recomputes the same id and status, so that is harmless.
type Worker struct {
	server   *asynq.Server
	feed     SignalWriter
	taskType string
	log      *slog.Logger
}

func New(redisOpt asynq.RedisClientOpt, feed SignalWriter, cfg Config, log *slog.Logger) *Worker {
	con := cfg.Concurrency
	if con <= 0 {
		con = 10
	}
	qs := cfg.Queues
	if qs == nil {
		qs = map[string]int{"critical": 6, "default": 3}
	}
	taskType := cfg.TaskType
	if taskType == "" {
		taskType = "taskpool:execute"
	}
	if log == nil {
		log = slog.Default()
	}
	server := asynq.NewServer(redisOpt, asynq.Config{Concurrency: con, Queues: qs})
	return &Worker{server: server, feed: feed, taskType: taskType, log: log}
}

// Run blocks serving tasks until Shutdown. Each broker message body is a
// JSON array envelope holding the sub-batch; every payload in it gets its
// own signal. The envelope is the batch container only, so an element that
// is itself a JSON array is handled as a single payload.
func (w *Worker) Run(handler Handler) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(w.taskType, func(ctx context.Context, t *asynq.Task) error {
		payloads, err := splitBatch(t.Payload())
		if err != nil {
			w.log.Warn("dropping undecodable broker message", "err", err)
			return nil
		}
		for _, p := range payloads {
			herr := handler(ctx, p)
			if herr != nil {
				w.log.Warn("task handler failed", "err", herr)
			}
			if err := w.feed.Append(ctx, p, taskpool.SignalStateSuccess, herr == nil); err != nil {
				// Redeliver the whole message; duplicate signals are tolerated.
				return err
			}
		}
		return nil
	})
	return w.server.Run(mux)
}

func (w *Worker) Shutdown() { w.server.Shutdown() }

func splitBatch(body []byte) ([]json.RawMessage, error) {
	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, err
	}
	return batch, nil
}
