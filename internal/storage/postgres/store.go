package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math/bits"
	"strconv"

	"github.com/lib/pq"
	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the SQLSTATE of a broken UNIQUE or PRIMARY KEY constraint.
const uniqueViolation = "23505"

// PostgresStore keeps balances, vaults, posts and reactions in postgres.
// Every mutation runs in one transaction that locks the touched rows first.
type PostgresStore struct {
	db *sql.DB
}

// Open connects with the lib/pq driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
	}
}

// Migrate creates the tables if they do not exist yet.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *PostgresStore) GetVault(ctx context.Context, address models.Identity) (models.Vault, error) {
	const query = `SELECT a.lamports, v.authority, v.locked FROM vaults v
	JOIN accounts a ON a.address = v.address WHERE v.address = $1`

	var (
		lamports  decimal.Decimal
		authority string
		v         = models.Vault{Address: address}
	)
	err := p.db.QueryRowContext(ctx, query, address.String()).Scan(&lamports, &authority, &v.Locked)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Vault{}, fmt.Errorf("vault %s: %w", address, storage.ErrNotFound)
	}
	if err != nil {
		return models.Vault{}, err
	}
	if v.Balance, err = toUint64(lamports); err != nil {
		return models.Vault{}, err
	}
	if v.Authority, err = models.ParseIdentity(authority); err != nil {
		return models.Vault{}, err
	}
	return v, nil
}

func (p *PostgresStore) GetBalance(ctx context.Context, address models.Identity) (uint64, error) {
	const query = `SELECT lamports FROM accounts WHERE address = $1`

	var lamports decimal.Decimal
	err := p.db.QueryRowContext(ctx, query, address.String()).Scan(&lamports)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return toUint64(lamports)
}

// Transfer locks the vault row and then both account rows in address order,
// re-validates the move, writes both balances, runs commit and commits.
func (p *PostgresStore) Transfer(ctx context.Context, mv models.Movement, commit interfaces.CommitFunc) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if !mv.Vault.IsZero() {
		if err = lockVault(ctx, dbTx, mv.Vault); err != nil {
			return err
		}
	}

	first, second := mv.From, mv.To
	if second.String() < first.String() {
		first, second = second, first
	}
	balances := make(map[models.Identity]uint64, 2)
	for _, addr := range []models.Identity{first, second} {
		if _, seen := balances[addr]; seen {
			continue
		}
		if balances[addr], err = lockBalance(ctx, dbTx, addr); err != nil {
			return err
		}
	}

	if balances[mv.From] < mv.Amount {
		return fmt.Errorf("debit %s: %w", mv.From, storage.ErrInsufficientFunds)
	}
	if mv.From != mv.To {
		sum, carry := bits.Add64(balances[mv.To], mv.Amount, 0)
		if carry != 0 {
			return fmt.Errorf("credit %s: %w", mv.To, storage.ErrBalanceOverflow)
		}
		if err = writeBalance(ctx, dbTx, mv.From, balances[mv.From]-mv.Amount); err != nil {
			return err
		}
		if err = writeBalance(ctx, dbTx, mv.To, sum); err != nil {
			return err
		}
	}

	if commit != nil {
		if err = commit(ctx); err != nil {
			return err
		}
	}
	return dbTx.Commit()
}

func (p *PostgresStore) GetPost(ctx context.Context, address models.Identity) (models.Post, error) {
	const query = `SELECT author, likes, dislikes FROM posts WHERE address = $1`

	return scanPost(p.db.QueryRowContext(ctx, query, address.String()), address)
}

func (p *PostgresStore) FindReaction(ctx context.Context, author, post models.Identity) (models.Reaction, error) {
	const query = `SELECT address FROM reactions WHERE author = $1 AND post = $2`

	var address string
	err := p.db.QueryRowContext(ctx, query, author.String(), post.String()).Scan(&address)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reaction{}, fmt.Errorf("reaction of %s on %s: %w", author, post, storage.ErrNotFound)
	}
	if err != nil {
		return models.Reaction{}, err
	}
	id, err := models.ParseIdentity(address)
	if err != nil {
		return models.Reaction{}, err
	}
	return p.GetReaction(ctx, id)
}

func (p *PostgresStore) GetReaction(ctx context.Context, address models.Identity) (models.Reaction, error) {
	const query = `SELECT author, post, kind, deposit FROM reactions WHERE address = $1`

	return scanReaction(p.db.QueryRowContext(ctx, query, address.String()), address)
}

// ApplyReaction adds or removes a reaction in one transaction. See
// interfaces.ReactionStore.
func (p *PostgresStore) ApplyReaction(ctx context.Context, change models.ReactionChange, commit interfaces.CommitFunc) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	r := change.Reaction
	const lockPost = `SELECT author, likes, dislikes FROM posts WHERE address = $1 FOR UPDATE`
	post, err := scanPost(dbTx.QueryRowContext(ctx, lockPost, r.Parent.String()), r.Parent)
	if err != nil {
		return err
	}
	counter := &post.Likes
	if r.Kind == models.Dislike {
		counter = &post.Dislikes
	}

	const lockReaction = `SELECT author, post, kind, deposit FROM reactions WHERE address = $1 FOR UPDATE`
	stored, lookupErr := scanReaction(dbTx.QueryRowContext(ctx, lockReaction, r.Address.String()), r.Address)

	authorBal, err := lockBalance(ctx, dbTx, r.Author)
	if err != nil {
		return err
	}

	if change.Added() {
		if lookupErr == nil {
			return fmt.Errorf("reaction %s: %w", r.Address, storage.ErrAlreadyExists)
		}
		if !errors.Is(lookupErr, storage.ErrNotFound) {
			return lookupErr
		}
		// The post row is locked, so no other add for this post can interleave.
		const heldByAuthor = `SELECT address FROM reactions WHERE author = $1 AND post = $2`
		var held string
		heldErr := dbTx.QueryRowContext(ctx, heldByAuthor, r.Author.String(), r.Parent.String()).Scan(&held)
		if heldErr == nil {
			return fmt.Errorf("author %s already reacted to post %s with %s: %w", r.Author, r.Parent, held, storage.ErrAlreadyExists)
		}
		if !errors.Is(heldErr, sql.ErrNoRows) {
			return heldErr
		}
		if *counter == ^uint64(0) {
			return fmt.Errorf("post %s %s: %w", post.Address, r.Kind, storage.ErrCounterOverflow)
		}
		if authorBal < r.Deposit {
			return fmt.Errorf("debit %s: %w", r.Author, storage.ErrInsufficientFunds)
		}
		*counter++
		authorBal -= r.Deposit

		const insert = `INSERT INTO reactions (address, author, post, kind, deposit) VALUES ($1, $2, $3, $4, $5)`
		if _, err = dbTx.ExecContext(ctx, insert, r.Address.String(), r.Author.String(), r.Parent.String(), int(r.Kind), formatUint(r.Deposit)); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("reaction %s: %w", r.Address, storage.ErrAlreadyExists)
			}
			return err
		}
	} else {
		if lookupErr != nil {
			return lookupErr
		}
		if stored != r {
			return fmt.Errorf("reaction %s: %w", r.Address, storage.ErrMismatch)
		}
		if *counter == 0 {
			return fmt.Errorf("post %s %s: %w", post.Address, r.Kind, storage.ErrCounterUnderflow)
		}
		sum, carry := bits.Add64(authorBal, r.Deposit, 0)
		if carry != 0 {
			return fmt.Errorf("credit %s: %w", r.Author, storage.ErrBalanceOverflow)
		}
		*counter--
		authorBal = sum

		const remove = `DELETE FROM reactions WHERE address = $1`
		if _, err = dbTx.ExecContext(ctx, remove, r.Address.String()); err != nil {
			return err
		}
	}

	const updatePost = `UPDATE posts SET likes = $2, dislikes = $3 WHERE address = $1`
	if _, err = dbTx.ExecContext(ctx, updatePost, post.Address.String(), formatUint(post.Likes), formatUint(post.Dislikes)); err != nil {
		return err
	}
	if err = writeBalance(ctx, dbTx, r.Author, authorBal); err != nil {
		return err
	}

	if commit != nil {
		if err = commit(ctx); err != nil {
			return err
		}
	}
	return dbTx.Commit()
}

// SeedAccount sets the lamports of an account, creating it if needed.
func (p *PostgresStore) SeedAccount(ctx context.Context, address models.Identity, lamports uint64) error {
	return writeBalance(ctx, p.db, address, lamports)
}

func (p *PostgresStore) SeedVault(ctx context.Context, v models.Vault) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if err = writeBalance(ctx, dbTx, v.Address, v.Balance); err != nil {
		return err
	}
	const insert = `INSERT INTO vaults (address, authority, locked) VALUES ($1, $2, $3)`
	if _, err = dbTx.ExecContext(ctx, insert, v.Address.String(), v.Authority.String(), v.Locked); err != nil {
		return err
	}
	return dbTx.Commit()
}

func (p *PostgresStore) SeedPost(ctx context.Context, post models.Post) error {
	const insert = `INSERT INTO posts (address, author, likes, dislikes) VALUES ($1, $2, $3, $4)`
	_, err := p.db.ExecContext(ctx, insert, post.Address.String(), post.Author.String(), formatUint(post.Likes), formatUint(post.Dislikes))
	return err
}

func (p *PostgresStore) SeedReaction(ctx context.Context, r models.Reaction) error {
	const insert = `INSERT INTO reactions (address, author, post, kind, deposit) VALUES ($1, $2, $3, $4, $5)`
	_, err := p.db.ExecContext(ctx, insert, r.Address.String(), r.Author.String(), r.Parent.String(), int(r.Kind), formatUint(r.Deposit))
	if isUniqueViolation(err) {
		return fmt.Errorf("reaction %s: %w", r.Address, storage.ErrAlreadyExists)
	}
	return err
}

// SetLocked flips the administrative lock of a vault.
func (p *PostgresStore) SetLocked(ctx context.Context, address models.Identity, locked bool) error {
	const update = `UPDATE vaults SET locked = $2 WHERE address = $1`
	res, err := p.db.ExecContext(ctx, update, address.String(), locked)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("vault %s: %w", address, storage.ErrNotFound)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// lockVault takes the vault row FOR UPDATE and fails if the vault is locked.
func lockVault(ctx context.Context, q queryer, address models.Identity) error {
	const query = `SELECT locked FROM vaults WHERE address = $1 FOR UPDATE`

	var locked bool
	err := q.QueryRowContext(ctx, query, address.String()).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("vault %s: %w", address, storage.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if locked {
		return fmt.Errorf("vault %s: %w", address, storage.ErrVaultLocked)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// lockBalance reads an account row FOR UPDATE. A missing row reads as zero.
func lockBalance(ctx context.Context, q queryer, address models.Identity) (uint64, error) {
	const query = `SELECT lamports FROM accounts WHERE address = $1 FOR UPDATE`

	var lamports decimal.Decimal
	err := q.QueryRowContext(ctx, query, address.String()).Scan(&lamports)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return toUint64(lamports)
}

func writeBalance(ctx context.Context, e execer, address models.Identity, lamports uint64) error {
	const upsert = `INSERT INTO accounts (address, lamports) VALUES ($1, $2)
	ON CONFLICT (address) DO UPDATE SET lamports = EXCLUDED.lamports`

	_, err := e.ExecContext(ctx, upsert, address.String(), formatUint(lamports))
	return err
}

func scanPost(row *sql.Row, address models.Identity) (models.Post, error) {
	var (
		author          string
		likes, dislikes decimal.Decimal
	)
	err := row.Scan(&author, &likes, &dislikes)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Post{}, fmt.Errorf("post %s: %w", address, storage.ErrNotFound)
	}
	if err != nil {
		return models.Post{}, err
	}

	post := models.Post{Address: address}
	if post.Author, err = models.ParseIdentity(author); err != nil {
		return models.Post{}, err
	}
	if post.Likes, err = toUint64(likes); err != nil {
		return models.Post{}, err
	}
	if post.Dislikes, err = toUint64(dislikes); err != nil {
		return models.Post{}, err
	}
	return post, nil
}

func scanReaction(row *sql.Row, address models.Identity) (models.Reaction, error) {
	var (
		author, parent string
		kind           int
		deposit        decimal.Decimal
	)
	err := row.Scan(&author, &parent, &kind, &deposit)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reaction{}, fmt.Errorf("reaction %s: %w", address, storage.ErrNotFound)
	}
	if err != nil {
		return models.Reaction{}, err
	}

	r := models.Reaction{Address: address, Kind: models.ReactionKind(kind)}
	if r.Author, err = models.ParseIdentity(author); err != nil {
		return models.Reaction{}, err
	}
	if r.Parent, err = models.ParseIdentity(parent); err != nil {
		return models.Reaction{}, err
	}
	if r.Deposit, err = toUint64(deposit); err != nil {
		return models.Reaction{}, err
	}
	return r, nil
}

// toUint64 converts a NUMERIC(20,0) column value back to lamports.
func toUint64(d decimal.Decimal) (uint64, error) {
	n := d.BigInt()
	if !d.Equal(decimal.NewFromBigInt(n, 0)) || !n.IsUint64() {
		return 0, fmt.Errorf("value %s does not fit in uint64", d)
	}
	return n.Uint64(), nil
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

var (
	_ interfaces.VaultStore    = (*PostgresStore)(nil)
	_ interfaces.ReactionStore = (*PostgresStore)(nil)
)
