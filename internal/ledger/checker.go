package ledger

import (
	"fmt"
	"math/bits"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

// Checker holds the preconditions of every fund movement. It only reads; the
// caller must not mutate anything unless the check returned nil.
type Checker struct {
	zeroAmount ZeroAmountPolicy
}

func NewChecker(cfg Config) Checker {
	return Checker{zeroAmount: cfg.ZeroAmount}
}

// CheckDeposit validates moving amount from a depositor holding
// depositorBalance into v.
func (c Checker) CheckDeposit(v models.Vault, depositorBalance, amount uint64) error {
	if err := c.checkOpen(v, amount); err != nil {
		return err
	}
	if depositorBalance < amount {
		return fmt.Errorf("%w: depositor holds %d, deposit of %d", ErrInsufficientBalance, depositorBalance, amount)
	}
	if !fits(v.Balance, amount) {
		return fmt.Errorf("%w: vault %s holds %d, deposit of %d", ErrOverflow, v.Address, v.Balance, amount)
	}
	return nil
}

// CheckWithdraw validates moving amount out of v to an authority holding
// authorityBalance.
func (c Checker) CheckWithdraw(v models.Vault, authorityBalance, amount uint64) error {
	if err := c.checkOpen(v, amount); err != nil {
		return err
	}
	if v.Balance < amount {
		return fmt.Errorf("%w: vault %s holds %d, withdrawal of %d", ErrInsufficientBalance, v.Address, v.Balance, amount)
	}
	if !fits(authorityBalance, amount) {
		return fmt.Errorf("%w: authority holds %d, withdrawal of %d", ErrOverflow, authorityBalance, amount)
	}
	return nil
}

func (c Checker) checkOpen(v models.Vault, amount uint64) error {
	if v.Locked {
		return fmt.Errorf("%w: %s", ErrVaultLocked, v.Address)
	}
	if amount == 0 && c.zeroAmount == ZeroAmountReject {
		return ErrZeroAmount
	}
	return nil
}

// fits reports whether balance+amount is representable.
func fits(balance, amount uint64) bool {
	_, carry := bits.Add64(balance, amount, 0)
	return carry == 0
}
