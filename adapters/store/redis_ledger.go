package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

// RedisLedger is a Redis implementation of the ClaimLedger interface.
//
// Keys:
//
//	<prefix>supply          issued counter
//	<prefix>claim:<wallet>  JSON claim record
//	<prefix>reserved        sorted set of RESERVED wallets scored by reservation time (ms)
type RedisLedger struct {
	client     *redis.Client
	prefix     string
	maxSupply  int64
	maxRetries int
	now        func() time.Time
}

// NewRedisLedger creates a new Redis ledger
func NewRedisLedger(client *redis.Client, prefix string, maxSupply int64, maxRetries int) *RedisLedger {
	if maxRetries <= 0 {
		maxRetries = 64
	}
	return &RedisLedger{
		client:     client,
		prefix:     prefix,
		maxSupply:  maxSupply,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

var _ ports.ClaimLedger = (*RedisLedger)(nil)

func (l *RedisLedger) supplyKey() string             { return l.prefix + "supply" }
func (l *RedisLedger) claimKey(wallet string) string { return l.prefix + "claim:" + wallet }
func (l *RedisLedger) reservedKey() string           { return l.prefix + "reserved" }

// Reserve watches both the wallet's claim and the counter, so the
// existence check and the n -> n+1 write commit together or not at all.
func (l *RedisLedger) Reserve(ctx context.Context, wallet string) (core.Reservation, error) {
	var res core.Reservation

	txf := func(tx *redis.Tx) error {
		rec, found, err := l.read(ctx, tx, wallet)
		if err != nil {
			return err
		}

		now := l.now().UTC()
		var next core.ClaimRecord
		if found {
			next, res, err = reserveExisting(rec, now)
			if err != nil {
				return err
			}
		} else {
			issued, err := tx.Get(ctx, l.supplyKey()).Int64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if issued >= l.maxSupply {
				return core.ErrSupplyExhausted
			}
			res = core.Reservation{TokenID: issued + 1}
			next = newReservation(wallet, res.TokenID, now)
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode claim: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if !found {
				pipe.Set(ctx, l.supplyKey(), res.TokenID, 0)
			}
			pipe.Set(ctx, l.claimKey(wallet), payload, 0)
			pipe.ZAdd(ctx, l.reservedKey(), redis.Z{Score: float64(now.UnixMilli()), Member: wallet})
			return nil
		})
		return err
	}

	if err := watchRetry(ctx, l.client, l.maxRetries, txf, l.claimKey(wallet), l.supplyKey()); err != nil {
		return core.Reservation{}, err
	}
	return res, nil
}

func (l *RedisLedger) Finalize(ctx context.Context, wallet string, status core.ClaimStatus, receipt *core.MintReceipt) error {
	txf := func(tx *redis.Tx) error {
		rec, found, err := l.read(ctx, tx, wallet)
		if err != nil {
			return err
		}
		if !found {
			return core.ErrClaimNotFound
		}

		next, changed, err := applyFinalize(rec, status, receipt, l.now().UTC())
		if err != nil || !changed {
			return err
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode claim: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, l.claimKey(wallet), payload, 0)
			pipe.ZRem(ctx, l.reservedKey(), wallet)
			return nil
		})
		return err
	}

	return watchRetry(ctx, l.client, l.maxRetries, txf, l.claimKey(wallet))
}

func (l *RedisLedger) Get(ctx context.Context, wallet string) (core.ClaimRecord, error) {
	rec, found, err := l.read(ctx, l.client, wallet)
	if err != nil {
		return core.ClaimRecord{}, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	if !found {
		return core.ClaimRecord{}, core.ErrClaimNotFound
	}
	return rec, nil
}

func (l *RedisLedger) Supply(ctx context.Context) (core.SupplySnapshot, error) {
	issued, err := l.client.Get(ctx, l.supplyKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return core.SupplySnapshot{}, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return core.SupplySnapshot{Issued: issued, MaxSupply: l.maxSupply}, nil
}

func (l *RedisLedger) ListStale(ctx context.Context, reservedBefore time.Time, limit int) ([]core.ClaimRecord, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(reservedBefore.UnixMilli(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	wallets, err := l.client.ZRangeByScore(ctx, l.reservedKey(), opt).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}

	stale := make([]core.ClaimRecord, 0, len(wallets))
	for _, wallet := range wallets {
		rec, found, err := l.read(ctx, l.client, wallet)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
		}
		if found && rec.Status == core.ClaimReserved {
			stale = append(stale, rec)
		}
	}
	return stale, nil
}

func (l *RedisLedger) read(ctx context.Context, c getter, wallet string) (core.ClaimRecord, bool, error) {
	raw, err := c.Get(ctx, l.claimKey(wallet)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.ClaimRecord{}, false, nil
		}
		return core.ClaimRecord{}, false, err
	}
	var rec core.ClaimRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return core.ClaimRecord{}, false, fmt.Errorf("failed to decode claim: %w", err)
	}
	return rec, true, nil
}
