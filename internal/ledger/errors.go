package ledger

import (
	"errors"
	"fmt"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage"
)

// Validation and authorization failures. Every one of them is raised before
// any balance moves.
var (
	ErrVaultLocked         = errors.New("vault is locked")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOverflow            = errors.New("balance overflow")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrVaultNotFound       = errors.New("vault not found")
)

// ErrorKind returns a short stable label for err, used for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrVaultLocked):
		return "vault_locked"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ErrVaultNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// fromStore maps a failure of the transfer primitive onto the ledger's
// taxonomy. This only happens when the vault or a balance changed between
// check and move.
func fromStore(err error) error {
	switch {
	case errors.Is(err, storage.ErrInsufficientFunds):
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	case errors.Is(err, storage.ErrBalanceOverflow):
		return fmt.Errorf("%w: %v", ErrOverflow, err)
	case errors.Is(err, storage.ErrVaultLocked):
		return fmt.Errorf("%w: %v", ErrVaultLocked, err)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrVaultNotFound, err)
	}
	return err
}
