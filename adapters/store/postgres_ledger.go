package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

const claimColumns = `wallet_address, status, token_id, receipt, attempts, reserved_at, finalized_at`

// PostgresLedger is a ClaimLedger backed by the claim_records and supply_counter tables.
//
// A fresh reservation increments the single counter row with a conditional
// UPDATE (row lock, bounded by max supply) and inserts the claim in the same
// transaction; a concurrent reservation for the same wallet hits the primary
// key and rolls back its increment with it.
type PostgresLedger struct {
	db        *sql.DB
	maxSupply int64
	now       func() time.Time
}

// NewPostgresLedger creates a new Postgres ledger
func NewPostgresLedger(db *sql.DB, maxSupply int64) *PostgresLedger {
	return &PostgresLedger{db: db, maxSupply: maxSupply, now: time.Now}
}

var _ ports.ClaimLedger = (*PostgresLedger)(nil)

func (l *PostgresLedger) Reserve(ctx context.Context, wallet string) (core.Reservation, error) {
	var res core.Reservation
	now := l.now().UTC()

	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		rec, err := scanClaim(tx.QueryRowContext(ctx,
			`SELECT `+claimColumns+` FROM claim_records WHERE wallet_address = $1 FOR UPDATE`, wallet))
		switch {
		case errors.Is(err, core.ErrClaimNotFound):
			var issued int64
			err := tx.QueryRowContext(ctx,
				`UPDATE supply_counter SET issued = issued + 1 WHERE id = 1 AND issued < $1 RETURNING issued`,
				l.maxSupply).Scan(&issued)
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrSupplyExhausted
			}
			if err != nil {
				return fmt.Errorf("failed to advance supply counter: %w", err)
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO claim_records (wallet_address, status, token_id, attempts, reserved_at) VALUES ($1, $2, $3, 1, $4)`,
				wallet, string(core.ClaimReserved), issued, now)
			if isUniqueViolation(err) {
				return core.ErrAlreadyClaimed
			}
			if err != nil {
				return fmt.Errorf("failed to insert claim: %w", err)
			}
			res = core.Reservation{TokenID: issued}
			return nil

		case err != nil:
			return err
		}

		next, r, err := reserveExisting(rec, now)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE claim_records SET status = $2, attempts = $3, reserved_at = $4, receipt = NULL, finalized_at = NULL WHERE wallet_address = $1`,
			wallet, string(next.Status), next.Attempts, now)
		if err != nil {
			return fmt.Errorf("failed to re-reserve claim: %w", err)
		}
		res = r
		return nil
	})
	if err != nil {
		return core.Reservation{}, storeErr(err)
	}
	return res, nil
}

func (l *PostgresLedger) Finalize(ctx context.Context, wallet string, status core.ClaimStatus, receipt *core.MintReceipt) error {
	now := l.now().UTC()

	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		rec, err := scanClaim(tx.QueryRowContext(ctx,
			`SELECT `+claimColumns+` FROM claim_records WHERE wallet_address = $1 FOR UPDATE`, wallet))
		if err != nil {
			return err
		}

		next, changed, err := applyFinalize(rec, status, receipt, now)
		if err != nil || !changed {
			return err
		}

		var rawReceipt sql.NullString
		if next.Receipt != nil {
			b, err := json.Marshal(next.Receipt)
			if err != nil {
				return fmt.Errorf("failed to encode receipt: %w", err)
			}
			rawReceipt = sql.NullString{String: string(b), Valid: true}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE claim_records SET status = $2, receipt = $3, finalized_at = $4 WHERE wallet_address = $1`,
			wallet, string(next.Status), rawReceipt, now)
		if err != nil {
			return fmt.Errorf("failed to finalize claim: %w", err)
		}
		return nil
	})
	return storeErr(err)
}

func (l *PostgresLedger) Get(ctx context.Context, wallet string) (core.ClaimRecord, error) {
	rec, err := scanClaim(l.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claim_records WHERE wallet_address = $1`, wallet))
	if err != nil {
		return core.ClaimRecord{}, storeErr(err)
	}
	return rec, nil
}

func (l *PostgresLedger) Supply(ctx context.Context) (core.SupplySnapshot, error) {
	var issued int64
	if err := l.db.QueryRowContext(ctx, `SELECT issued FROM supply_counter WHERE id = 1`).Scan(&issued); err != nil {
		return core.SupplySnapshot{}, storeErr(err)
	}
	return core.SupplySnapshot{Issued: issued, MaxSupply: l.maxSupply}, nil
}

func (l *PostgresLedger) ListStale(ctx context.Context, reservedBefore time.Time, limit int) ([]core.ClaimRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+claimColumns+` FROM claim_records WHERE status = $1 AND reserved_at < $2 ORDER BY reserved_at LIMIT $3`,
		string(core.ClaimReserved), reservedBefore.UTC(), limit)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var stale []core.ClaimRecord
	for rows.Next() {
		rec, err := scanClaim(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		stale = append(stale, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return stale, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (core.ClaimRecord, error) {
	var (
		rec         core.ClaimRecord
		status      string
		receipt     sql.NullString
		finalizedAt sql.NullTime
	)
	err := row.Scan(&rec.WalletAddress, &status, &rec.TokenID, &receipt, &rec.Attempts, &rec.ReservedAt, &finalizedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ClaimRecord{}, core.ErrClaimNotFound
	}
	if err != nil {
		return core.ClaimRecord{}, fmt.Errorf("failed to scan claim: %w", err)
	}

	if rec.Status, err = core.ParseClaimStatus(status); err != nil {
		return core.ClaimRecord{}, err
	}
	if receipt.Valid {
		var r core.MintReceipt
		if err := json.Unmarshal([]byte(receipt.String), &r); err != nil {
			return core.ClaimRecord{}, fmt.Errorf("failed to decode receipt: %w", err)
		}
		rec.Receipt = &r
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time
		rec.FinalizedAt = &t
	}
	return rec, nil
}
