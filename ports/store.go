package ports

import (
	"context"
	"time"

	"github.com/solquestio/solquestio-sub002/core"
)

// ClaimLedger owns the per-wallet claim records and the supply counter.
// It is the only writer of either.
type ClaimLedger interface {
	// Reserve atomically checks the wallet has no live claim and allocates a token id.
	// Returns core.ErrAlreadyClaimed or core.ErrSupplyExhausted on business rejection.
	Reserve(ctx context.Context, wallet string) (core.Reservation, error)

	// Finalize moves a RESERVED claim to MINTED or FAILED.
	// Repeating the same terminal status is a no-op.
	Finalize(ctx context.Context, wallet string, status core.ClaimStatus, receipt *core.MintReceipt) error

	// Get returns core.ErrClaimNotFound for wallets that never reserved.
	Get(ctx context.Context, wallet string) (core.ClaimRecord, error)

	Supply(ctx context.Context) (core.SupplySnapshot, error)

	// ListStale returns RESERVED claims reserved before the given time, oldest first.
	ListStale(ctx context.Context, reservedBefore time.Time, limit int) ([]core.ClaimRecord, error)
}

// UserStore persists user accounts keyed by wallet address
type UserStore interface {
	// Upsert returns the existing account for wallet or creates one.
	Upsert(ctx context.Context, wallet string) (core.UserAccount, error)
	GetByWallet(ctx context.Context, wallet string) (core.UserAccount, error)
	// CompleteQuest adds xp only the first time questID is completed.
	CompleteQuest(ctx context.Context, wallet, questID string, xp int64) (core.UserAccount, error)
	SetClaimState(ctx context.Context, wallet string, state core.ClaimStatus) error
}

// ReplayGuard remembers consumed challenges for the length of the challenge window
type ReplayGuard interface {
	// MarkUsed returns false if key was already marked and has not expired.
	MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
