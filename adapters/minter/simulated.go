package minter

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

// ErrSimulatedFailure is returned for attempts configured to fail
var ErrSimulatedFailure = errors.New("simulated mint failure")

// SimulatedMinter produces deterministic receipts without touching a ledger.
// Signatures and mint addresses are derived from the token id and recipient,
// so the same mint always yields the same receipt.
type SimulatedMinter struct {
	mu       sync.Mutex
	delay    time.Duration
	failures map[int64]int
	minted   map[int64]core.MintReceipt
	calls    int
	now      func() time.Time
}

type SimulatedOption func(*SimulatedMinter)

// WithDelay makes every Mint call take d, honoring context cancellation.
func WithDelay(d time.Duration) SimulatedOption {
	return func(m *SimulatedMinter) { m.delay = d }
}

// WithFailures fails the first n mint attempts for tokenID.
func WithFailures(tokenID int64, n int) SimulatedOption {
	return func(m *SimulatedMinter) { m.failures[tokenID] = n }
}

func NewSimulatedMinter(opts ...SimulatedOption) *SimulatedMinter {
	m := &SimulatedMinter{
		failures: make(map[int64]int),
		minted:   make(map[int64]core.MintReceipt),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var (
	_ ports.Minter     = (*SimulatedMinter)(nil)
	_ ports.MintLookup = (*SimulatedMinter)(nil)
)

func (m *SimulatedMinter) Mint(ctx context.Context, tokenID int64, recipient string, metadata core.MintMetadata) (core.MintReceipt, error) {
	if m.delay > 0 {
		t := time.NewTimer(m.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return core.MintReceipt{}, ctx.Err()
		case <-t.C:
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.failures[tokenID] > 0 {
		m.failures[tokenID]--
		return core.MintReceipt{}, ErrSimulatedFailure
	}
	if r, ok := m.minted[tokenID]; ok {
		return r, nil
	}

	r := core.MintReceipt{
		Signature:   derive(64, "sig", tokenID, recipient, metadata.URI),
		MintAddress: derive(32, "mint", tokenID, recipient, ""),
		ConfirmedAt: m.now().UTC(),
	}
	m.minted[tokenID] = r
	return r, nil
}

func (m *SimulatedMinter) Lookup(ctx context.Context, tokenID int64) (core.MintReceipt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.minted[tokenID]
	return r, ok, nil
}

// Calls returns the number of Mint invocations so far, failed ones included.
func (m *SimulatedMinter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// derive expands sha256 over the inputs to size bytes and base58-encodes them.
func derive(size int, label string, tokenID int64, recipient, extra string) string {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], uint64(tokenID))

	out := make([]byte, 0, size)
	for block := byte(0); len(out) < size; block++ {
		h := sha256.New()
		h.Write([]byte(label))
		h.Write(id[:])
		h.Write([]byte(recipient))
		h.Write([]byte(extra))
		h.Write([]byte{block})
		out = h.Sum(out)
	}
	return base58.Encode(out[:size])
}
