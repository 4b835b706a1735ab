package memory

import (
	"context"
	"fmt"
	"math/bits"
	"sync"

	interfaces "github.com/sheikh-saqib/custody-vault-ledger/internal/interfaces"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage"
)

// reactionKey identifies the single reaction an author may hold on a post.
type reactionKey struct {
	author models.Identity
	post   models.Identity
}

type vaultMeta struct {
	authority models.Identity
	locked    bool
}

// MemoryStore is an in-memory implementation of the vault and reaction stores.
// Lamports of every account, vaults included, live in one balance map so that
// a transfer is a pair of map writes under a single mutex.
type MemoryStore struct {
	mu        sync.Mutex
	balances  map[models.Identity]uint64
	vaults    map[models.Identity]vaultMeta
	posts     map[models.Identity]models.Post
	reactions map[models.Identity]models.Reaction
	byAuthor  map[reactionKey]models.Identity
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:  make(map[models.Identity]uint64),
		vaults:    make(map[models.Identity]vaultMeta),
		posts:     make(map[models.Identity]models.Post),
		reactions: make(map[models.Identity]models.Reaction),
		byAuthor:  make(map[reactionKey]models.Identity),
	}
}

// CreateAccount sets the lamports held by a plain account.
func (m *MemoryStore) CreateAccount(address models.Identity, lamports uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[address] = lamports
}

// CreateVault registers a vault. The authority cannot be changed afterwards.
func (m *MemoryStore) CreateVault(v models.Vault) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.vaults[v.Address]; exists {
		return fmt.Errorf("vault %s: %w", v.Address, storage.ErrAlreadyExists)
	}
	m.vaults[v.Address] = vaultMeta{authority: v.Authority, locked: v.Locked}
	m.balances[v.Address] = v.Balance
	return nil
}

// SetLocked flips the administrative lock of a vault.
func (m *MemoryStore) SetLocked(address models.Identity, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, exists := m.vaults[address]
	if !exists {
		return fmt.Errorf("vault %s: %w", address, storage.ErrNotFound)
	}
	meta.locked = locked
	m.vaults[address] = meta
	return nil
}

func (m *MemoryStore) CreatePost(p models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.posts[p.Address]; exists {
		return fmt.Errorf("post %s: %w", p.Address, storage.ErrAlreadyExists)
	}
	m.posts[p.Address] = p
	return nil
}

// CreateReaction stores a reaction as-is, without touching counters or
// balances. It is meant for seeding state that already exists elsewhere.
func (m *MemoryStore) CreateReaction(r models.Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkNewReaction(r); err != nil {
		return err
	}
	m.reactions[r.Address] = r
	m.byAuthor[reactionKey{r.Author, r.Parent}] = r.Address
	return nil
}

// checkNewReaction must be called with m.mu held.
func (m *MemoryStore) checkNewReaction(r models.Reaction) error {
	if _, exists := m.reactions[r.Address]; exists {
		return fmt.Errorf("reaction %s: %w", r.Address, storage.ErrAlreadyExists)
	}
	if held, exists := m.byAuthor[reactionKey{r.Author, r.Parent}]; exists {
		return fmt.Errorf("author %s already reacted to post %s with %s: %w", r.Author, r.Parent, held, storage.ErrAlreadyExists)
	}
	return nil
}

func (m *MemoryStore) GetVault(ctx context.Context, address models.Identity) (models.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, exists := m.vaults[address]
	if !exists {
		return models.Vault{}, fmt.Errorf("vault %s: %w", address, storage.ErrNotFound)
	}
	return models.Vault{
		Address:   address,
		Authority: meta.authority,
		Balance:   m.balances[address],
		Locked:    meta.locked,
	}, nil
}

func (m *MemoryStore) GetBalance(ctx context.Context, address models.Identity) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.balances[address], nil
}

// Transfer re-validates the move against the live vault and balances, runs
// commit while the store is still locked and only then writes both balances.
//
// commit runs under the store-wide mutex on purpose: the move and its event
// stay one unit, and a slow publisher (a kafka round trip) stalls every
// account until it returns. commit must not call back into the store. The
// postgres store only holds row locks.
func (m *MemoryStore) Transfer(ctx context.Context, mv models.Movement, commit interfaces.CommitFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if !mv.Vault.IsZero() {
		meta, exists := m.vaults[mv.Vault]
		if !exists {
			return fmt.Errorf("vault %s: %w", mv.Vault, storage.ErrNotFound)
		}
		if meta.locked {
			return fmt.Errorf("vault %s: %w", mv.Vault, storage.ErrVaultLocked)
		}
	}

	fromBal := m.balances[mv.From]
	if fromBal < mv.Amount {
		return fmt.Errorf("debit %s: %w", mv.From, storage.ErrInsufficientFunds)
	}

	// Staged values; nothing is written until commit succeeds. A move onto
	// itself leaves both sides where they are.
	newFrom, newTo := fromBal, fromBal
	if mv.To != mv.From {
		sum, carry := bits.Add64(m.balances[mv.To], mv.Amount, 0)
		if carry != 0 {
			return fmt.Errorf("credit %s: %w", mv.To, storage.ErrBalanceOverflow)
		}
		newFrom, newTo = fromBal-mv.Amount, sum
	}

	if commit != nil {
		if err := commit(ctx); err != nil {
			return err
		}
	}

	m.balances[mv.From] = newFrom
	m.balances[mv.To] = newTo
	return nil
}

func (m *MemoryStore) GetPost(ctx context.Context, address models.Identity) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, exists := m.posts[address]
	if !exists {
		return models.Post{}, fmt.Errorf("post %s: %w", address, storage.ErrNotFound)
	}
	return p, nil
}

func (m *MemoryStore) GetReaction(ctx context.Context, address models.Identity) (models.Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, exists := m.reactions[address]
	if !exists {
		return models.Reaction{}, fmt.Errorf("reaction %s: %w", address, storage.ErrNotFound)
	}
	return r, nil
}

func (m *MemoryStore) FindReaction(ctx context.Context, author, post models.Identity) (models.Reaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	address, exists := m.byAuthor[reactionKey{author, post}]
	if !exists {
		return models.Reaction{}, fmt.Errorf("reaction of %s on %s: %w", author, post, storage.ErrNotFound)
	}
	return m.reactions[address], nil
}

// ApplyReaction adds or removes a reaction together with its counter and
// deposit. See interfaces.ReactionStore. Like Transfer, commit runs under the
// store-wide mutex.
func (m *MemoryStore) ApplyReaction(ctx context.Context, change models.ReactionChange, commit interfaces.CommitFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	r := change.Reaction
	post, exists := m.posts[r.Parent]
	if !exists {
		return fmt.Errorf("post %s: %w", r.Parent, storage.ErrNotFound)
	}

	counter := &post.Likes
	if r.Kind == models.Dislike {
		counter = &post.Dislikes
	}

	authorBal := m.balances[r.Author]
	if change.Added() {
		if err := m.checkNewReaction(r); err != nil {
			return err
		}
		if *counter == ^uint64(0) {
			return fmt.Errorf("post %s %s: %w", post.Address, r.Kind, storage.ErrCounterOverflow)
		}
		if authorBal < r.Deposit {
			return fmt.Errorf("debit %s: %w", r.Author, storage.ErrInsufficientFunds)
		}
		*counter++
		authorBal -= r.Deposit
	} else {
		stored, exists := m.reactions[r.Address]
		if !exists {
			return fmt.Errorf("reaction %s: %w", r.Address, storage.ErrNotFound)
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
	}

	if commit != nil {
		if err := commit(ctx); err != nil {
			return err
		}
	}

	m.posts[post.Address] = post
	m.balances[r.Author] = authorBal
	key := reactionKey{r.Author, r.Parent}
	if change.Added() {
		m.reactions[r.Address] = r
		m.byAuthor[key] = r.Address
	} else {
		delete(m.reactions, r.Address)
		delete(m.byAuthor, key)
	}
	return nil
}

// Snapshot returns a copy of every balance, for conservation checks in tests
// and for debugging.
func (m *MemoryStore) Snapshot() map[models.Identity]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make(map[models.Identity]uint64, len(m.balances))
	for k, v := range m.balances {
		copied[k] = v
	}
	return copied
}

// Compile-time check: ensure MemoryStore implements both store interfaces
var (
	_ interfaces.VaultStore    = (*MemoryStore)(nil)
	_ interfaces.ReactionStore = (*MemoryStore)(nil)
)
