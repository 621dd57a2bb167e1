package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

// MemoryUserStore is an in-memory implementation of the UserStore interface
type MemoryUserStore struct {
	users map[string]core.UserAccount
	mu    sync.RWMutex
}

// NewMemoryUserStore creates a new in-memory user store
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]core.UserAccount)}
}

var _ ports.UserStore = (*MemoryUserStore)(nil)

func (s *MemoryUserStore) Upsert(ctx context.Context, wallet string) (core.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[wallet]; ok {
		return copyUser(u), nil
	}
	now := time.Now().UTC()
	u := core.UserAccount{
		ID:              uuid.NewString(),
		WalletAddress:   wallet,
		CompletedQuests: map[string]bool{},
		ClaimState:      core.ClaimNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.users[wallet] = u
	return copyUser(u), nil
}

func (s *MemoryUserStore) GetByWallet(ctx context.Context, wallet string) (core.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[wallet]
	if !ok {
		return core.UserAccount{}, core.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *MemoryUserStore) CompleteQuest(ctx context.Context, wallet, questID string, xp int64) (core.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[wallet]
	if !ok {
		return core.UserAccount{}, core.ErrUserNotFound
	}
	if !u.CompletedQuests[questID] {
		u = copyUser(u)
		u.CompletedQuests[questID] = true
		u.XP += xp
		u.UpdatedAt = time.Now().UTC()
		s.users[wallet] = u
	}
	return copyUser(u), nil
}

func (s *MemoryUserStore) SetClaimState(ctx context.Context, wallet string, state core.ClaimStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[wallet]
	if !ok {
		return core.ErrUserNotFound
	}
	u.ClaimState = state
	u.UpdatedAt = time.Now().UTC()
	s.users[wallet] = u
	return nil
}

func copyUser(u core.UserAccount) core.UserAccount {
	quests := make(map[string]bool, len(u.CompletedQuests))
	for k, v := range u.CompletedQuests {
		quests[k] = v
	}
	u.CompletedQuests = quests
	return u
}
