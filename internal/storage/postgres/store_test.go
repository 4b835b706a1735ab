package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	lockSQL         = regexp.QuoteMeta(`SELECT lamports FROM accounts WHERE address = $1 FOR UPDATE`)
	upsertSQL       = regexp.QuoteMeta(`INSERT INTO accounts (address, lamports) VALUES ($1, $2)`)
	lockVaultSQL    = regexp.QuoteMeta(`SELECT locked FROM vaults WHERE address = $1 FOR UPDATE`)
	lockPostSQL     = regexp.QuoteMeta(`SELECT author, likes, dislikes FROM posts WHERE address = $1 FOR UPDATE`)
	lockReactionSQL = regexp.QuoteMeta(`SELECT author, post, kind, deposit FROM reactions WHERE address = $1 FOR UPDATE`)
	heldSQL         = regexp.QuoteMeta(`SELECT address FROM reactions WHERE author = $1 AND post = $2`)
	insertReaction  = regexp.QuoteMeta(`INSERT INTO reactions (address, author, post, kind, deposit) VALUES ($1, $2, $3, $4, $5)`)
	updatePostSQL   = regexp.QuoteMeta(`UPDATE posts SET likes = $2, dislikes = $3 WHERE address = $1`)
)

func id(b byte) models.Identity {
	var out models.Identity
	out[0] = b
	out[31] = b
	return out
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func lamportRows(v string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"lamports"})
	if v != "" {
		rows.AddRow(v)
	}
	return rows
}

// expectLocks registers the two row locks of a transfer in address order.
func expectLocks(mock sqlmock.Sqlmock, balances map[models.Identity]string, from, to models.Identity) {
	first, second := from, to
	if second.String() < first.String() {
		first, second = second, first
	}
	mock.ExpectQuery(lockSQL).WithArgs(first.String()).WillReturnRows(lamportRows(balances[first]))
	mock.ExpectQuery(lockSQL).WithArgs(second.String()).WillReturnRows(lamportRows(balances[second]))
}

func TestTransferCommits(t *testing.T) {
	store, mock := newMockStore(t)
	from, to := id(1), id(2)

	mock.ExpectBegin()
	expectLocks(mock, map[models.Identity]string{from: "100", to: "5"}, from, to)
	mock.ExpectExec(upsertSQL).WithArgs(from.String(), "60").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsertSQL).WithArgs(to.String(), "45").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	published := false
	err := store.Transfer(context.Background(), models.Movement{From: from, To: to, Amount: 40}, func(context.Context) error {
		published = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, published)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferCreatesMissingAccount(t *testing.T) {
	store, mock := newMockStore(t)
	from, to := id(1), id(2)

	mock.ExpectBegin()
	expectLocks(mock, map[models.Identity]string{from: "10"}, from, to)
	mock.ExpectExec(upsertSQL).WithArgs(from.String(), "0").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsertSQL).WithArgs(to.String(), "10").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Transfer(context.Background(), models.Movement{From: from, To: to, Amount: 10}, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferRollsBack(t *testing.T) {
	from, to := id(1), id(2)

	t.Run("insufficient funds", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		expectLocks(mock, map[models.Identity]string{from: "39", to: "5"}, from, to)
		mock.ExpectRollback()

		err := store.Transfer(context.Background(), models.Movement{From: from, To: to, Amount: 40}, nil)
		assert.ErrorIs(t, err, storage.ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overflow", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		expectLocks(mock, map[models.Identity]string{from: "40", to: "18446744073709551600"}, from, to)
		mock.ExpectRollback()

		err := store.Transfer(context.Background(), models.Movement{From: from, To: to, Amount: 40}, nil)
		assert.ErrorIs(t, err, storage.ErrBalanceOverflow)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit hook fails", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		expectLocks(mock, map[models.Identity]string{from: "100", to: "5"}, from, to)
		mock.ExpectExec(upsertSQL).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(upsertSQL).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		boom := errors.New("broker down")
		err := store.Transfer(context.Background(), models.Movement{From: from, To: to, Amount: 40}, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetVault(t *testing.T) {
	store, mock := newMockStore(t)
	vault, authority := id(9), id(1)
	query := regexp.QuoteMeta(`SELECT a.lamports, v.authority, v.locked FROM vaults v`)

	mock.ExpectQuery(query).WithArgs(vault.String()).
		WillReturnRows(sqlmock.NewRows([]string{"lamports", "authority", "locked"}).
			AddRow("18446744073709551615", authority.String(), true))
	mock.ExpectQuery(query).WithArgs(id(8).String()).
		WillReturnRows(sqlmock.NewRows([]string{"lamports", "authority", "locked"}))

	v, err := store.GetVault(context.Background(), vault)
	require.NoError(t, err)
	assert.Equal(t, models.Vault{Address: vault, Authority: authority, Balance: ^uint64(0), Locked: true}, v)

	_, err = store.GetVault(context.Background(), id(8))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBalanceMissingIsZero(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT lamports FROM accounts WHERE address = $1`)).
		WithArgs(id(3).String()).WillReturnRows(lamportRows(""))

	bal, err := store.GetBalance(context.Background(), id(3))
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestRemoveReaction(t *testing.T) {
	store, mock := newMockStore(t)
	post, reaction, author := id(5), id(6), id(3)
	r := models.Reaction{Address: reaction, Author: author, Parent: post, Kind: models.Like, Deposit: 10}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT author, likes, dislikes FROM posts WHERE address = $1 FOR UPDATE`)).
		WithArgs(post.String()).
		WillReturnRows(sqlmock.NewRows([]string{"author", "likes", "dislikes"}).AddRow(author.String(), "1", "0"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT author, post, kind, deposit FROM reactions WHERE address = $1 FOR UPDATE`)).
		WithArgs(reaction.String()).
		WillReturnRows(sqlmock.NewRows([]string{"author", "post", "kind", "deposit"}).AddRow(author.String(), post.String(), 0, "10"))
	mock.ExpectQuery(lockSQL).WithArgs(author.String()).WillReturnRows(lamportRows("7"))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM reactions WHERE address = $1`)).
		WithArgs(reaction.String()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE posts SET likes = $2, dislikes = $3 WHERE address = $1`)).
		WithArgs(post.String(), "0", "0").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsertSQL).WithArgs(author.String(), "17").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ApplyReaction(context.Background(), models.ReactionChange{Reaction: r, Delta: -1}, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveReactionUnderflowRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	post, reaction, author := id(5), id(6), id(3)
	r := models.Reaction{Address: reaction, Author: author, Parent: post, Kind: models.Dislike}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM posts WHERE address = $1 FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows([]string{"author", "likes", "dislikes"}).AddRow(author.String(), "3", "0"))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM reactions WHERE address = $1 FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows([]string{"author", "post", "kind", "deposit"}).AddRow(author.String(), post.String(), 1, "0"))
	mock.ExpectQuery(lockSQL).WillReturnRows(lamportRows(""))
	mock.ExpectRollback()

	err := store.ApplyReaction(context.Background(), models.ReactionChange{Reaction: r, Delta: -1}, nil)
	assert.ErrorIs(t, err, storage.ErrCounterUnderflow)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetLockedMissingVault(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE vaults SET locked = $2 WHERE address = $1`)).
		WithArgs(id(4).String(), true).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.SetLocked(context.Background(), id(4), true), storage.ErrNotFound)
}

func TestToUint64(t *testing.T) {
	v, err := toUint64(decimal.RequireFromString("18446744073709551615"))
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), v)

	for _, in := range []string{"18446744073709551616", "-1", "1.5"} {
		_, err := toUint64(decimal.RequireFromString(in))
		assert.Error(t, err, in)
	}
}

func TestTransferRechecksVault(t *testing.T) {
	vault, depositor := id(9), id(2)
	mv := models.Movement{Kind: models.MovementDeposit, Vault: vault, From: depositor, To: vault, Amount: 5}

	t.Run("locked", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockVaultSQL).WithArgs(vault.String()).
			WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(true))
		mock.ExpectRollback()

		err := store.Transfer(context.Background(), mv, nil)
		assert.ErrorIs(t, err, storage.ErrVaultLocked)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockVaultSQL).WithArgs(vault.String()).
			WillReturnRows(sqlmock.NewRows([]string{"locked"}))
		mock.ExpectRollback()

		err := store.Transfer(context.Background(), mv, nil)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unlocked", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockVaultSQL).WithArgs(vault.String()).
			WillReturnRows(sqlmock.NewRows([]string{"locked"}).AddRow(false))
		expectLocks(mock, map[models.Identity]string{depositor: "5", vault: "1"}, depositor, vault)
		mock.ExpectExec(upsertSQL).WithArgs(depositor.String(), "0").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(upsertSQL).WithArgs(vault.String(), "6").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.Transfer(context.Background(), mv, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// expectAddLookups registers the reads of an add before its checks run.
func expectAddLookups(mock sqlmock.Sqlmock, r models.Reaction, likes, balance string) {
	mock.ExpectBegin()
	mock.ExpectQuery(lockPostSQL).WithArgs(r.Parent.String()).
		WillReturnRows(sqlmock.NewRows([]string{"author", "likes", "dislikes"}).AddRow(id(1).String(), likes, "4"))
	mock.ExpectQuery(lockReactionSQL).WithArgs(r.Address.String()).
		WillReturnRows(sqlmock.NewRows([]string{"author", "post", "kind", "deposit"}))
	mock.ExpectQuery(lockSQL).WithArgs(r.Author.String()).WillReturnRows(lamportRows(balance))
}

func TestAddReaction(t *testing.T) {
	store, mock := newMockStore(t)
	r := models.Reaction{Address: id(6), Author: id(3), Parent: id(5), Kind: models.Like, Deposit: 10}

	expectAddLookups(mock, r, "2", "25")
	mock.ExpectQuery(heldSQL).WithArgs(r.Author.String(), r.Parent.String()).
		WillReturnRows(sqlmock.NewRows([]string{"address"}))
	mock.ExpectExec(insertReaction).
		WithArgs(r.Address.String(), r.Author.String(), r.Parent.String(), 0, "10").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updatePostSQL).WithArgs(r.Parent.String(), "3", "4").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(upsertSQL).WithArgs(r.Author.String(), "15").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	published := false
	err := store.ApplyReaction(context.Background(), models.ReactionChange{Reaction: r, Delta: 1}, func(context.Context) error {
		published = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, published)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddReactionRollsBack(t *testing.T) {
	r := models.Reaction{Address: id(6), Author: id(3), Parent: id(5), Kind: models.Like, Deposit: 10}
	noneHeld := func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery(heldSQL).WithArgs(r.Author.String(), r.Parent.String()).
			WillReturnRows(sqlmock.NewRows([]string{"address"}))
	}
	boom := errors.New("broker down")

	tests := []struct {
		name    string
		likes   string
		balance string
		expect  func(mock sqlmock.Sqlmock)
		commit  func(context.Context) error
		wantErr error
	}{
		{
			name:    "author already reacted",
			likes:   "1",
			balance: "25",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(heldSQL).WithArgs(r.Author.String(), r.Parent.String()).
					WillReturnRows(sqlmock.NewRows([]string{"address"}).AddRow(id(7).String()))
			},
			wantErr: storage.ErrAlreadyExists,
		},
		{
			name:    "counter overflow",
			likes:   "18446744073709551615",
			balance: "25",
			expect:  noneHeld,
			wantErr: storage.ErrCounterOverflow,
		},
		{
			name:    "insufficient funds",
			likes:   "1",
			balance: "9",
			expect:  noneHeld,
			wantErr: storage.ErrInsufficientFunds,
		},
		{
			name:    "unique violation",
			likes:   "1",
			balance: "25",
			expect: func(mock sqlmock.Sqlmock) {
				noneHeld(mock)
				mock.ExpectExec(insertReaction).WillReturnError(&pq.Error{Code: "23505"})
			},
			wantErr: storage.ErrAlreadyExists,
		},
		{
			name:    "publish fails",
			likes:   "1",
			balance: "25",
			expect: func(mock sqlmock.Sqlmock) {
				noneHeld(mock)
				mock.ExpectExec(insertReaction).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(updatePostSQL).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(upsertSQL).WillReturnResult(sqlmock.NewResult(0, 1))
			},
			commit:  func(context.Context) error { return boom },
			wantErr: boom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			expectAddLookups(mock, r, tt.likes, tt.balance)
			tt.expect(mock)
			mock.ExpectRollback()

			err := store.ApplyReaction(context.Background(), models.ReactionChange{Reaction: r, Delta: 1}, tt.commit)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFindReaction(t *testing.T) {
	store, mock := newMockStore(t)
	author, post, reaction := id(3), id(5), id(6)

	mock.ExpectQuery(heldSQL).WithArgs(author.String(), post.String()).
		WillReturnRows(sqlmock.NewRows([]string{"address"}).AddRow(reaction.String()))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT author, post, kind, deposit FROM reactions WHERE address = $1`)).
		WithArgs(reaction.String()).
		WillReturnRows(sqlmock.NewRows([]string{"author", "post", "kind", "deposit"}).AddRow(author.String(), post.String(), 1, "10"))
	mock.ExpectQuery(heldSQL).WithArgs(author.String(), id(8).String()).
		WillReturnRows(sqlmock.NewRows([]string{"address"}))

	r, err := store.FindReaction(context.Background(), author, post)
	require.NoError(t, err)
	assert.Equal(t, models.Reaction{Address: reaction, Author: author, Parent: post, Kind: models.Dislike, Deposit: 10}, r)

	_, err = store.FindReaction(context.Background(), author, id(8))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedVault(t *testing.T) {
	v := models.Vault{Address: id(9), Authority: id(1), Balance: 7, Locked: true}
	insertVault := regexp.QuoteMeta(`INSERT INTO vaults (address, authority, locked) VALUES ($1, $2, $3)`)

	t.Run("commits", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(upsertSQL).WithArgs(v.Address.String(), "7").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(insertVault).WithArgs(v.Address.String(), v.Authority.String(), true).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.SeedVault(context.Background(), v))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(upsertSQL).WithArgs(v.Address.String(), "7").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(insertVault).WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		assert.Error(t, store.SeedVault(context.Background(), v))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSeedAccount(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(upsertSQL).WithArgs(id(2).String(), "18446744073709551615").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SeedAccount(context.Background(), id(2), ^uint64(0)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedReactionDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(insertReaction).WillReturnError(&pq.Error{Code: "23505"})

	err := store.SeedReaction(context.Background(), models.Reaction{Address: id(6), Author: id(3), Parent: id(5)})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestMigrate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`UNIQUE (author, post)`)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
