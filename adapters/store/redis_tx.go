package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/solquestio/solquestio-sub002/core"
)

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// isBusiness reports errors returned from inside a transaction function that
// must reach the caller untouched rather than being treated as store failures.
func isBusiness(err error) bool {
	return errors.Is(err, core.ErrAlreadyClaimed) ||
		errors.Is(err, core.ErrSupplyExhausted) ||
		errors.Is(err, core.ErrInvalidTransition) ||
		errors.Is(err, core.ErrClaimNotFound) ||
		errors.Is(err, core.ErrUserNotFound)
}

// watchRetry runs an optimistic WATCH/MULTI/EXEC transaction, re-running fn
// whenever another client modified a watched key first.
func watchRetry(ctx context.Context, client *redis.Client, maxRetries int, fn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := client.Watch(ctx, fn, keys...)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			if err := pause(ctx, attempt); err != nil {
				return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
			}
			continue
		case isBusiness(err):
			return err
		default:
			return fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
		}
	}
	return fmt.Errorf("%w: too much contention on %v", core.ErrStoreUnavailable, keys)
}

func pause(ctx context.Context, attempt int) error {
	d := time.Duration(rand.IntN(attempt+1)+1) * time.Millisecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
