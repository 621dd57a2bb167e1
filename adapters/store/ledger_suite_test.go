package store

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

type ledgerFactory func(t *testing.T, maxSupply int64) ports.ClaimLedger

func newWallet(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return core.EncodeWalletAddress(pub)
}

var testReceipt = &core.MintReceipt{Signature: "5sig", MintAddress: "mint", ConfirmedAt: time.Unix(1700000000, 0).UTC()}

// runLedgerSuite checks the claim state machine and supply invariants against any backend.
func runLedgerSuite(t *testing.T, newLedger ledgerFactory) {
	ctx := context.Background()

	t.Run("reserve allocates sequential ids", func(t *testing.T) {
		l := newLedger(t, 10)
		for want := int64(1); want <= 3; want++ {
			res, err := l.Reserve(ctx, newWallet(t))
			require.NoError(t, err)
			assert.Equal(t, want, res.TokenID)
			assert.False(t, res.Retry)
		}
		s, err := l.Supply(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), s.Issued)
		assert.Equal(t, int64(4), s.NextTokenID())
	})

	t.Run("second reserve for same wallet is rejected without side effects", func(t *testing.T) {
		l := newLedger(t, 10)
		w := newWallet(t)
		_, err := l.Reserve(ctx, w)
		require.NoError(t, err)

		_, err = l.Reserve(ctx, w)
		assert.ErrorIs(t, err, core.ErrAlreadyClaimed)

		require.NoError(t, l.Finalize(ctx, w, core.ClaimMinted, testReceipt))
		_, err = l.Reserve(ctx, w)
		assert.ErrorIs(t, err, core.ErrAlreadyClaimed)

		s, err := l.Supply(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), s.Issued)
	})

	t.Run("supply cap", func(t *testing.T) {
		l := newLedger(t, 1)
		_, err := l.Reserve(ctx, newWallet(t))
		require.NoError(t, err)
		_, err = l.Reserve(ctx, newWallet(t))
		assert.ErrorIs(t, err, core.ErrSupplyExhausted)
	})

	t.Run("finalize is idempotent", func(t *testing.T) {
		l := newLedger(t, 10)
		w := newWallet(t)
		_, err := l.Reserve(ctx, w)
		require.NoError(t, err)

		require.NoError(t, l.Finalize(ctx, w, core.ClaimMinted, testReceipt))
		first, err := l.Get(ctx, w)
		require.NoError(t, err)

		other := &core.MintReceipt{Signature: "other"}
		require.NoError(t, l.Finalize(ctx, w, core.ClaimMinted, other))
		second, err := l.Get(ctx, w)
		require.NoError(t, err)
		assert.Equal(t, first.Receipt.Signature, second.Receipt.Signature)
		assert.Equal(t, first.FinalizedAt.Unix(), second.FinalizedAt.Unix())

		assert.ErrorIs(t, l.Finalize(ctx, w, core.ClaimFailed, nil), core.ErrInvalidTransition)
		assert.ErrorIs(t, l.Finalize(ctx, newWallet(t), core.ClaimFailed, nil), core.ErrClaimNotFound)
	})

	t.Run("failed claim is retried with the same token id", func(t *testing.T) {
		l := newLedger(t, 10)
		w := newWallet(t)
		res, err := l.Reserve(ctx, w)
		require.NoError(t, err)

		require.NoError(t, l.Finalize(ctx, w, core.ClaimFailed, nil))
		require.NoError(t, l.Finalize(ctx, w, core.ClaimFailed, nil))
		rec, err := l.Get(ctx, w)
		require.NoError(t, err)
		assert.Equal(t, core.ClaimFailed, rec.Status)

		retry, err := l.Reserve(ctx, w)
		require.NoError(t, err)
		assert.True(t, retry.Retry)
		assert.Equal(t, res.TokenID, retry.TokenID)

		rec, err = l.Get(ctx, w)
		require.NoError(t, err)
		assert.Equal(t, core.ClaimReserved, rec.Status)
		assert.Equal(t, 2, rec.Attempts)

		s, err := l.Supply(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), s.Issued)
	})

	t.Run("minted requires a receipt", func(t *testing.T) {
		l := newLedger(t, 10)
		w := newWallet(t)
		_, err := l.Reserve(ctx, w)
		require.NoError(t, err)
		assert.ErrorIs(t, l.Finalize(ctx, w, core.ClaimMinted, nil), core.ErrInvalidTransition)
		assert.ErrorIs(t, l.Finalize(ctx, w, core.ClaimReserved, nil), core.ErrInvalidTransition)
	})

	t.Run("list stale returns only old reservations", func(t *testing.T) {
		l := newLedger(t, 10)
		reserved, minted := newWallet(t), newWallet(t)
		_, err := l.Reserve(ctx, reserved)
		require.NoError(t, err)
		_, err = l.Reserve(ctx, minted)
		require.NoError(t, err)
		require.NoError(t, l.Finalize(ctx, minted, core.ClaimMinted, testReceipt))

		stale, err := l.ListStale(ctx, time.Now().Add(time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, reserved, stale[0].WalletAddress)

		stale, err = l.ListStale(ctx, time.Now().Add(-time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, stale)
	})

	t.Run("concurrent reserves for one wallet yield exactly one reservation", func(t *testing.T) {
		l := newLedger(t, 100)
		w := newWallet(t)
		const n = 16

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			ok       int
			rejected int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := l.Reserve(ctx, w)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case assert.ErrorIs(t, err, core.ErrAlreadyClaimed):
					rejected++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, ok)
		assert.Equal(t, n-1, rejected)
		s, err := l.Supply(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), s.Issued)
	})

	t.Run("concurrent reserves across wallets never exceed supply", func(t *testing.T) {
		const (
			maxSupply = 5
			n         = 12
		)
		l := newLedger(t, maxSupply)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			ids       = map[int64]bool{}
			exhausted int
		)
		for i := 0; i < n; i++ {
			w := newWallet(t)
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := l.Reserve(ctx, w)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					assert.False(t, ids[res.TokenID], "token id %d allocated twice", res.TokenID)
					ids[res.TokenID] = true
				case assert.ErrorIs(t, err, core.ErrSupplyExhausted):
					exhausted++
				}
			}()
		}
		wg.Wait()

		assert.Len(t, ids, maxSupply)
		for id := int64(1); id <= maxSupply; id++ {
			assert.True(t, ids[id], "token id %d missing", id)
		}
		assert.Equal(t, n-maxSupply, exhausted)
		s, err := l.Supply(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(maxSupply), s.Issued)
	})
}
