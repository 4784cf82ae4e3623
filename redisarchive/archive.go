// Package redisarchive implements the archive membership set on a Redis set.
package redisarchive

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/mohans/taskpool"
)

// DefaultKey is the set key used when none is configured.
const DefaultKey = "taskpool:archived-ids"

// Archive is the durable, append-only set of already-processed task ids.
// Entries are created at archival time and never removed.
type Archive struct {
	rdb *redis.Client
	key string
}

func New(rdb *redis.Client, key string) *Archive {
	if key == "" {
		key = DefaultKey
	}
	return &Archive{rdb: rdb, key: key}
}

// ContainsMany reports membership order-aligned with ids, in one round trip.
func (a *Archive) ContainsMany(ctx context.Context, ids []string) ([]bool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	present, err := a.rdb.SMIsMember(ctx, a.key, members...).Result()
	if err != nil {
		return nil, &taskpool.GatewayError{Gateway: "archive", Op: "contains", Err: err}
	}
	return present, nil
}

// AddMany inserts ids into the set. Re-adding an existing id is a no-op,
// which is what makes archival retries safe.
func (a *Archive) AddMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := a.rdb.SAdd(ctx, a.key, members...).Err(); err != nil {
		return &taskpool.GatewayError{Gateway: "archive", Op: "add", Err: err}
	}
	return nil
}
