// Package redissignal implements the completion signal feed on a Redis
// stream. Workers append one entry per finished task; entries stay on the
// stream until a reconciliation pass acknowledges them, so a crash between
// the store update and the acknowledgement replays the batch.
package redissignal

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/mohans/taskpool"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "taskpool:completions"

// Source reads and acknowledges completion signals.
type Source struct {
	rdb    *redis.Client
	stream string
}

func New(rdb *redis.Client, stream string) *Source {
	if stream == "" {
		stream = DefaultStream
	}
	return &Source{rdb: rdb, stream: stream}
}

// Append publishes one completion signal. This is the producer side, used by
// the worker shim and by tests.
func (s *Source) Append(ctx context.Context, input []byte, state string, success bool) error {
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"input":   string(input),
			"state":   state,
			"success": strconv.FormatBool(success),
		},
	}).Err()
	if err != nil {
		return &taskpool.GatewayError{Gateway: "signals", Op: "append", Err: err}
	}
	return nil
}

// Fetch returns up to limit of the oldest unacknowledged signals.
func (s *Source) Fetch(ctx context.Context, limit int) ([]taskpool.Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	msgs, err := s.rdb.XRangeN(ctx, s.stream, "-", "+", int64(limit)).Result()
	if err != nil {
		return nil, &taskpool.GatewayError{Gateway: "signals", Op: "fetch", Err: err}
	}
	sigs := make([]taskpool.Signal, 0, len(msgs))
	for _, m := range msgs {
		sig := taskpool.Signal{EntryID: m.ID}
		if v, ok := m.Values["input"].(string); ok {
			sig.Input = json.RawMessage(v)
		}
		if v, ok := m.Values["state"].(string); ok {
			sig.State = v
		}
		if v, ok := m.Values["success"].(string); ok {
			sig.Success, _ = strconv.ParseBool(v)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// Ack deletes acknowledged entries from the stream.
func (s *Source) Ack(ctx context.Context, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}
	if err := s.rdb.XDel(ctx, s.stream, entryIDs...).Err(); err != nil {
		return &taskpool.GatewayError{Gateway: "signals", Op: "ack", Err: err}
	}
	return nil
}
