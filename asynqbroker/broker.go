// Package asynqbroker implements the broker gateway on asynq.
package asynqbroker

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/mohans/taskpool"
)

// Options configures queue routing. asynq has no per-message priority, so
// the advisory priority maps to queue selection: anything at or above
// HighPriorityThreshold goes to HighQueue and relies on the workers' queue
// weights.
type Options struct {
	TaskType              string // broker message type, default "taskpool:execute"
	Queue                 string // default "default"
	HighQueue             string // default "critical"
	HighPriorityThreshold int    // default 5
}

func (o Options) withDefaults() Options {
	if o.TaskType == "" {
		o.TaskType = "taskpool:execute"
	}
	if o.Queue == "" {
		o.Queue = "default"
	}
	if o.HighQueue == "" {
		o.HighQueue = "critical"
	}
	if o.HighPriorityThreshold <= 0 {
		o.HighPriorityThreshold = 5
	}
	return o
}

// Broker publishes task batches and reports queue depth.
type Broker struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	opts      Options
	log       *slog.Logger
}

func New(redisOpt asynq.RedisClientOpt, opts Options, log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}
	return &Broker{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		opts:      opts.withDefaults(),
		log:       log,
	}
}

// Publish sends one broker message carrying the whole sub-batch as a JSON
// array envelope, whatever the batch size. Payloads are already canonical
// JSON, so the body is assembled without re-encoding; the envelope is always
// present so a payload that is itself a JSON array stays one element of the
// batch instead of being mistaken for the batch.
func (b *Broker) Publish(ctx context.Context, payloads []string, priority int) error {
	if len(payloads) == 0 {
		return nil
	}
	body := "[" + strings.Join(payloads, ",") + "]"
	queue := b.opts.Queue
	if priority >= b.opts.HighPriorityThreshold {
		queue = b.opts.HighQueue
	}
	task := asynq.NewTask(b.opts.TaskType, []byte(body))
	if _, err := b.client.EnqueueContext(ctx, task, asynq.Queue(queue)); err != nil {
		return &taskpool.GatewayError{Gateway: "broker", Op: "publish", Err: err}
	}
	return nil
}

// Depth returns the number of waiting messages on the main queue, 0 for a
// queue asynq has not seen yet, or -1 when the broker cannot be queried.
// Depth is advisory and polled, hence the sentinel instead of an error.
func (b *Broker) Depth(ctx context.Context) int {
	info, err := b.inspector.GetQueueInfo(b.opts.Queue)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return 0
		}
		b.log.Error("queue depth query failed", "queue", b.opts.Queue, "err", err)
		return -1
	}
	return info.Pending
}

// Peek returns the next waiting payload without consuming it. Diagnostics
// only.
func (b *Broker) Peek(ctx context.Context) (string, bool, error) {
	tasks, err := b.inspector.ListPendingTasks(b.opts.Queue, asynq.PageSize(1))
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return "", false, nil
		}
		return "", false, &taskpool.GatewayError{Gateway: "broker", Op: "peek", Err: err}
	}
	if len(tasks) == 0 {
		return "", false, nil
	}
	return string(tasks[0].Payload), true, nil
}

func (b *Broker) Close() error {
	cerr := b.client.Close()
	if err := b.inspector.Close(); err != nil && cerr == nil {
		cerr = err
	}
	return cerr
}
