package ledger

import (
	"fmt"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/auth"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

// Guard compares verified callers with the vault's authority. It never looks
// at balances.
type Guard struct{}

// Authorize allows caller to withdraw from v.
func (Guard) Authorize(v models.Vault, caller auth.Principal) error {
	if !caller.Verified() {
		return fmt.Errorf("%w: unauthenticated caller", ErrNotAuthorized)
	}
	if caller.Identity() != v.Authority {
		return fmt.Errorf("%w: %s is not the authority of vault %s", ErrNotAuthorized, caller.Identity(), v.Address)
	}
	return nil
}

// Signed requires proof that caller controls the account being debited.
func (Guard) Signed(caller auth.Principal) error {
	if !caller.Verified() {
		return fmt.Errorf("%w: unauthenticated caller", ErrNotAuthorized)
	}
	return nil
}
