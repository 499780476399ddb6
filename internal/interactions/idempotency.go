package interactions

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"clipstream/internal/apperr"
)

// Dedupe deduplicates mutating operations by client idempotency key.
// Begin claims the key atomically; Complete stores the first result so
// a retried call can return it without re-applying effects.
type Dedupe interface {
	Begin(ctx context.Context, key string) (first bool, stored []byte, err error)
	Complete(ctx context.Context, key string, result []byte) error

	// Release drops a claimed key after a failed operation so the
	// client can retry with the same key.
	Release(ctx context.Context, key string) error
}

// RedisDedupe implements Dedupe on redis SET NX, the same atomic
// check-and-set used for session records.
type RedisDedupe struct {
	client *redis.Client
	ttl    time.Duration
}

const idemKeyPrefix = "ix:idem:"

// pendingMarker is stored between Begin and Complete so a duplicate
// arriving mid-operation is distinguishable from a finished one.
const pendingMarker = "__pending__"

func NewRedisDedupe(client *redis.Client, ttl time.Duration) *RedisDedupe {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDedupe{client: client, ttl: ttl}
}

func (d *RedisDedupe) Begin(ctx context.Context, key string) (bool, []byte, error) {
	rkey := idemKeyPrefix + key

	set, err := d.client.SetNX(ctx, rkey, pendingMarker, d.ttl).Result()
	if err != nil {
		return false, nil, apperr.Wrap(apperr.KindUnavailable, "idempotency store unreachable", err)
	}
	if set {
		return true, nil, nil
	}

	val, err := d.client.Get(ctx, rkey).Result()
	if err == redis.Nil {
		// Key expired between SetNX and Get; claim it fresh.
		return d.Begin(ctx, key)
	}
	if err != nil {
		return false, nil, apperr.Wrap(apperr.KindUnavailable, "idempotency store unreachable", err)
	}
	if val == pendingMarker {
		return false, nil, apperr.Newf(apperr.KindConflict,
			"operation with idempotency key %q is still in progress", key)
	}
	return false, []byte(val), nil
}

func (d *RedisDedupe) Complete(ctx context.Context, key string, result []byte) error {
	rkey := idemKeyPrefix + key
	if err := d.client.Set(ctx, rkey, result, d.ttl).Err(); err != nil {
		return fmt.Errorf("store idempotency result: %w", err)
	}
	return nil
}

func (d *RedisDedupe) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, idemKeyPrefix+key).Err()
}
