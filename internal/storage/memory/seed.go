package memory

import (
	"context"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

// The Seed methods adapt the Create methods to genesis.Seeder.

func (m *MemoryStore) SeedAccount(ctx context.Context, address models.Identity, lamports uint64) error {
	m.CreateAccount(address, lamports)
	return nil
}

func (m *MemoryStore) SeedVault(ctx context.Context, v models.Vault) error {
	return m.CreateVault(v)
}

func (m *MemoryStore) SeedPost(ctx context.Context, p models.Post) error {
	return m.CreatePost(p)
}

func (m *MemoryStore) SeedReaction(ctx context.Context, r models.Reaction) error {
	return m.CreateReaction(r)
}
