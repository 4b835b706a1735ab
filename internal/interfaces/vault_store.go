package interfaces

import (
	"context"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

// CommitFunc runs inside a store's unit of work after the change has been
// staged and before it becomes visible. Returning an error discards the change.
type CommitFunc func(ctx context.Context) error

type VaultStore interface {
	GetVault(ctx context.Context, address models.Identity) (models.Vault, error)
	// GetBalance returns zero if the account does not exist.
	GetBalance(ctx context.Context, address models.Identity) (uint64, error)
	// Transfer debits From and credits To as one unit, or changes nothing.
	Transfer(ctx context.Context, mv models.Movement, commit CommitFunc) error
}
