package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

// PostgresUserStore implements UserStore over user_accounts and user_quests
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

var _ ports.UserStore = (*PostgresUserStore)(nil)

func (s *PostgresUserStore) Upsert(ctx context.Context, wallet string) (core.UserAccount, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_accounts (id, wallet_address, xp, claim_state, created_at, updated_at)
		 VALUES ($1, $2, 0, $3, $4, $4) ON CONFLICT (wallet_address) DO NOTHING`,
		uuid.New(), wallet, string(core.ClaimNone), now)
	if err != nil {
		return core.UserAccount{}, storeErr(fmt.Errorf("failed to upsert user: %w", err))
	}
	return s.GetByWallet(ctx, wallet)
}

func (s *PostgresUserStore) GetByWallet(ctx context.Context, wallet string) (core.UserAccount, error) {
	var (
		u     core.UserAccount
		state string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, wallet_address, xp, claim_state, created_at, updated_at FROM user_accounts WHERE wallet_address = $1`,
		wallet).Scan(&u.ID, &u.WalletAddress, &u.XP, &state, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.UserAccount{}, core.ErrUserNotFound
	}
	if err != nil {
		return core.UserAccount{}, storeErr(fmt.Errorf("failed to get user: %w", err))
	}
	u.ClaimState = core.ClaimStatus(state)

	rows, err := s.db.QueryContext(ctx, `SELECT quest_id FROM user_quests WHERE user_id = $1`, u.ID)
	if err != nil {
		return core.UserAccount{}, storeErr(fmt.Errorf("failed to list quests: %w", err))
	}
	defer rows.Close()

	u.CompletedQuests = map[string]bool{}
	for rows.Next() {
		var questID string
		if err := rows.Scan(&questID); err != nil {
			return core.UserAccount{}, storeErr(err)
		}
		u.CompletedQuests[questID] = true
	}
	if err := rows.Err(); err != nil {
		return core.UserAccount{}, storeErr(err)
	}
	return u, nil
}

func (s *PostgresUserStore) CompleteQuest(ctx context.Context, wallet, questID string, xp int64) (core.UserAccount, error) {
	now := time.Now().UTC()
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var userID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM user_accounts WHERE wallet_address = $1 FOR UPDATE`, wallet).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO user_quests (user_id, quest_id, completed_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
			userID, questID, now)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE user_accounts SET xp = xp + $2, updated_at = $3 WHERE id = $1`, userID, xp, now)
		return err
	})
	if err != nil {
		return core.UserAccount{}, storeErr(err)
	}
	return s.GetByWallet(ctx, wallet)
}

func (s *PostgresUserStore) SetClaimState(ctx context.Context, wallet string, state core.ClaimStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_accounts SET claim_state = $2, updated_at = $3 WHERE wallet_address = $1`,
		wallet, string(state), time.Now().UTC())
	if err != nil {
		return storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr(err)
	}
	if n == 0 {
		return core.ErrUserNotFound
	}
	return nil
}
