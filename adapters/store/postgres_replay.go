package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/solquestio/solquestio-sub002/ports"
)

// PostgresReplayGuard stores consumed challenges in used_challenges.
// An expired row is overwritten in place, so the table never needs a sweep to stay correct.
type PostgresReplayGuard struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresReplayGuard(db *sql.DB) *PostgresReplayGuard {
	return &PostgresReplayGuard{db: db, now: time.Now}
}

var _ ports.ReplayGuard = (*PostgresReplayGuard)(nil)

func (g *PostgresReplayGuard) MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := g.now().UTC()
	res, err := g.db.ExecContext(ctx,
		`INSERT INTO used_challenges (key, expires_at) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at
		 WHERE used_challenges.expires_at <= $3`,
		key, now.Add(ttl), now)
	if err != nil {
		return false, storeErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(err)
	}
	return n == 1, nil
}
