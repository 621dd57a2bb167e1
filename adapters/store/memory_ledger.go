package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

// MemoryLedger is an in-memory ClaimLedger. A single mutex makes the
// claim check and counter increment one atomic step, which is only
// correct for a single process; use it for tests and local development.
type MemoryLedger struct {
	mu        sync.Mutex
	claims    map[string]core.ClaimRecord
	issued    int64
	maxSupply int64
	now       func() time.Time
}

// NewMemoryLedger creates a ledger capped at maxSupply tokens
func NewMemoryLedger(maxSupply int64) *MemoryLedger {
	return &MemoryLedger{
		claims:    make(map[string]core.ClaimRecord),
		maxSupply: maxSupply,
		now:       time.Now,
	}
}

var _ ports.ClaimLedger = (*MemoryLedger)(nil)

func (l *MemoryLedger) Reserve(ctx context.Context, wallet string) (core.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, exists := l.claims[wallet]
	if exists {
		next, res, err := reserveExisting(rec, l.now())
		if err != nil {
			return core.Reservation{}, err
		}
		l.claims[wallet] = next
		return res, nil
	}

	if l.issued >= l.maxSupply {
		return core.Reservation{}, core.ErrSupplyExhausted
	}
	l.issued++
	l.claims[wallet] = newReservation(wallet, l.issued, l.now())

	return core.Reservation{TokenID: l.issued}, nil
}

func (l *MemoryLedger) Finalize(ctx context.Context, wallet string, status core.ClaimStatus, receipt *core.MintReceipt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, exists := l.claims[wallet]
	if !exists {
		return core.ErrClaimNotFound
	}
	next, changed, err := applyFinalize(rec, status, receipt, l.now())
	if err != nil || !changed {
		return err
	}
	l.claims[wallet] = next
	return nil
}

func (l *MemoryLedger) Get(ctx context.Context, wallet string) (core.ClaimRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, exists := l.claims[wallet]
	if !exists {
		return core.ClaimRecord{}, core.ErrClaimNotFound
	}
	return rec, nil
}

func (l *MemoryLedger) Supply(ctx context.Context) (core.SupplySnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return core.SupplySnapshot{Issued: l.issued, MaxSupply: l.maxSupply}, nil
}

func (l *MemoryLedger) ListStale(ctx context.Context, reservedBefore time.Time, limit int) ([]core.ClaimRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stale []core.ClaimRecord
	for _, rec := range l.claims {
		if rec.Status == core.ClaimReserved && rec.ReservedAt.Before(reservedBefore) {
			stale = append(stale, rec)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ReservedAt.Before(stale[j].ReservedAt) })
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}
