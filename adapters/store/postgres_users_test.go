package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solquestio/solquestio-sub002/core"
)

var (
	userCols     = []string{"id", "wallet_address", "xp", "claim_state", "created_at", "updated_at"}
	selectUser   = regexp.QuoteMeta(`FROM user_accounts WHERE wallet_address = $1`)
	selectQuests = regexp.QuoteMeta(`SELECT quest_id FROM user_quests WHERE user_id = $1`)
)

func expectUserRead(mock sqlmock.Sqlmock, wallet string, xp int64, quests ...string) {
	now := time.Now()
	mock.ExpectQuery(selectUser).WithArgs(wallet).WillReturnRows(
		sqlmock.NewRows(userCols).AddRow("uid-1", wallet, xp, "NONE", now, now))
	rows := sqlmock.NewRows([]string{"quest_id"})
	for _, q := range quests {
		rows.AddRow(q)
	}
	mock.ExpectQuery(selectQuests).WithArgs("uid-1").WillReturnRows(rows)
}

func TestPostgresUserStore_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresUserStore(db)
	w := newWallet(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_accounts`)).
		WithArgs(sqlmock.AnyArg(), w, "NONE", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectUserRead(mock, w, 0)

	u, err := s.Upsert(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", u.ID)
	assert.Equal(t, core.ClaimNone, u.ClaimState)
	assert.Empty(t, u.CompletedQuests)
}

func TestPostgresUserStore_GetByWalletNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresUserStore(db)
	w := newWallet(t)

	mock.ExpectQuery(selectUser).WithArgs(w).WillReturnRows(sqlmock.NewRows(userCols))

	_, err := s.GetByWallet(context.Background(), w)
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestPostgresUserStore_CompleteQuest(t *testing.T) {
	lockUser := regexp.QuoteMeta(`SELECT id FROM user_accounts WHERE wallet_address = $1 FOR UPDATE`)
	insertQuest := regexp.QuoteMeta(`INSERT INTO user_quests`)
	addXP := regexp.QuoteMeta(`UPDATE user_accounts SET xp = xp + $2`)

	t.Run("first completion awards xp", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresUserStore(db)
		w := newWallet(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockUser).WithArgs(w).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("uid-1"))
		mock.ExpectExec(insertQuest).WithArgs("uid-1", "welcome", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(addXP).WithArgs("uid-1", int64(50), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		expectUserRead(mock, w, 50, "welcome")

		u, err := s.CompleteQuest(context.Background(), w, "welcome", 50)
		require.NoError(t, err)
		assert.Equal(t, int64(50), u.XP)
		assert.True(t, u.CompletedQuests["welcome"])
	})

	t.Run("repeat completion skips xp", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresUserStore(db)
		w := newWallet(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockUser).WithArgs(w).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("uid-1"))
		mock.ExpectExec(insertQuest).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
		expectUserRead(mock, w, 50, "welcome")

		u, err := s.CompleteQuest(context.Background(), w, "welcome", 50)
		require.NoError(t, err)
		assert.Equal(t, int64(50), u.XP)
	})

	t.Run("unknown user", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresUserStore(db)
		w := newWallet(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockUser).WithArgs(w).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, err := s.CompleteQuest(context.Background(), w, "welcome", 50)
		assert.ErrorIs(t, err, core.ErrUserNotFound)
	})
}

func TestPostgresUserStore_SetClaimState(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresUserStore(db)
	w := newWallet(t)
	update := regexp.QuoteMeta(`UPDATE user_accounts SET claim_state = $2`)

	mock.ExpectExec(update).WithArgs(w, "MINTED", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(update).WithArgs(w, "MINTED", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.SetClaimState(context.Background(), w, core.ClaimMinted))
	assert.ErrorIs(t, s.SetClaimState(context.Background(), w, core.ClaimMinted), core.ErrUserNotFound)
}

func TestPostgresReplayGuard(t *testing.T) {
	db, mock := newMockDB(t)
	g := NewPostgresReplayGuard(db)
	insert := regexp.QuoteMeta(`INSERT INTO used_challenges`)

	mock.ExpectExec(insert).WithArgs("k", sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WithArgs("k", sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := g.MarkUsed(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.MarkUsed(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
