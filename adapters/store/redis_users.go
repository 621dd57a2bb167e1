package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

// RedisUserStore keeps one JSON document per wallet under <prefix>user:<wallet>
type RedisUserStore struct {
	client     *redis.Client
	prefix     string
	maxRetries int
}

// NewRedisUserStore creates a new Redis user store
func NewRedisUserStore(client *redis.Client, prefix string, maxRetries int) *RedisUserStore {
	if maxRetries <= 0 {
		maxRetries = 64
	}
	return &RedisUserStore{client: client, prefix: prefix, maxRetries: maxRetries}
}

var _ ports.UserStore = (*RedisUserStore)(nil)

func (s *RedisUserStore) key(wallet string) string {
	return s.prefix + "user:" + wallet
}

func (s *RedisUserStore) Upsert(ctx context.Context, wallet string) (core.UserAccount, error) {
	now := time.Now().UTC()
	fresh := core.UserAccount{
		ID:              uuid.NewString(),
		WalletAddress:   wallet,
		CompletedQuests: map[string]bool{},
		ClaimState:      core.ClaimNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	payload, err := json.Marshal(fresh)
	if err != nil {
		return core.UserAccount{}, fmt.Errorf("failed to encode user: %w", err)
	}

	// SETNX keeps the first writer's account when two logins race.
	if err := s.client.SetNX(ctx, s.key(wallet), payload, 0).Err(); err != nil {
		return core.UserAccount{}, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return s.GetByWallet(ctx, wallet)
}

func (s *RedisUserStore) GetByWallet(ctx context.Context, wallet string) (core.UserAccount, error) {
	u, err := s.read(ctx, s.client, wallet)
	if err != nil && !errors.Is(err, core.ErrUserNotFound) {
		return core.UserAccount{}, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return u, err
}

func (s *RedisUserStore) CompleteQuest(ctx context.Context, wallet, questID string, xp int64) (core.UserAccount, error) {
	var out core.UserAccount
	err := s.update(ctx, wallet, func(u *core.UserAccount) bool {
		out = *u
		if u.CompletedQuests[questID] {
			return false
		}
		u.CompletedQuests[questID] = true
		u.XP += xp
		out = *u
		return true
	})
	return out, err
}

func (s *RedisUserStore) SetClaimState(ctx context.Context, wallet string, state core.ClaimStatus) error {
	return s.update(ctx, wallet, func(u *core.UserAccount) bool {
		if u.ClaimState == state {
			return false
		}
		u.ClaimState = state
		return true
	})
}

// update applies mutate under WATCH; mutate returns false to skip the write.
func (s *RedisUserStore) update(ctx context.Context, wallet string, mutate func(*core.UserAccount) bool) error {
	txf := func(tx *redis.Tx) error {
		u, err := s.read(ctx, tx, wallet)
		if err != nil {
			return err
		}
		if !mutate(&u) {
			return nil
		}
		u.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("failed to encode user: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key(wallet), payload, 0)
			return nil
		})
		return err
	}
	return watchRetry(ctx, s.client, s.maxRetries, txf, s.key(wallet))
}

func (s *RedisUserStore) read(ctx context.Context, c getter, wallet string) (core.UserAccount, error) {
	raw, err := c.Get(ctx, s.key(wallet)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.UserAccount{}, core.ErrUserNotFound
		}
		return core.UserAccount{}, err
	}
	var u core.UserAccount
	if err := json.Unmarshal(raw, &u); err != nil {
		return core.UserAccount{}, fmt.Errorf("failed to decode user: %w", err)
	}
	if u.CompletedQuests == nil {
		u.CompletedQuests = map[string]bool{}
	}
	return u, nil
}
