package models

// MovementKind names why funds are moving.
type MovementKind string

const (
	MovementDeposit  MovementKind = "deposit"
	MovementWithdraw MovementKind = "withdraw"
)

// Movement represents an intent to move lamports from one account to another.
// It carries no validation of its own; the store applies it as one unit.
type Movement struct {
	Kind   MovementKind
	Vault  Identity // the vault the movement is booked against
	From   Identity
	To     Identity
	Amount uint64
}
