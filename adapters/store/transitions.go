package store

import (
	"time"

	"github.com/solquestio/solquestio-sub002/core"
)

// The helpers below hold the claim state machine shared by every backend.
// Backends only differ in how they make read-check-write atomic.

func newReservation(wallet string, tokenID int64, now time.Time) core.ClaimRecord {
	return core.ClaimRecord{
		WalletAddress: wallet,
		Status:        core.ClaimReserved,
		TokenID:       tokenID,
		Attempts:      1,
		ReservedAt:    now,
	}
}

// reserveExisting re-reserves a FAILED claim with its original token id.
func reserveExisting(rec core.ClaimRecord, now time.Time) (core.ClaimRecord, core.Reservation, error) {
	if rec.Status != core.ClaimFailed {
		return rec, core.Reservation{}, core.ErrAlreadyClaimed
	}
	rec.Status = core.ClaimReserved
	rec.Attempts++
	rec.ReservedAt = now
	rec.FinalizedAt = nil
	rec.Receipt = nil
	return rec, core.Reservation{TokenID: rec.TokenID, Retry: true}, nil
}

// applyFinalize returns changed=false when rec is already in the requested terminal status.
func applyFinalize(rec core.ClaimRecord, status core.ClaimStatus, receipt *core.MintReceipt, now time.Time) (core.ClaimRecord, bool, error) {
	if !status.Terminal() {
		return rec, false, core.ErrInvalidTransition
	}
	if rec.Status == status {
		return rec, false, nil
	}
	if rec.Status != core.ClaimReserved {
		return rec, false, core.ErrInvalidTransition
	}
	if status == core.ClaimMinted && receipt == nil {
		return rec, false, core.ErrInvalidTransition
	}
	rec.Status = status
	rec.Receipt = nil
	if status == core.ClaimMinted {
		r := *receipt
		rec.Receipt = &r
	}
	rec.FinalizedAt = &now
	return rec, true, nil
}
