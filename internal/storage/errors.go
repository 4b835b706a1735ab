package storage

import "errors"

// Errors returned by every store implementation. Callers match them with errors.Is.
var (
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyExists     = errors.New("record already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance overflow")
	ErrCounterUnderflow  = errors.New("counter underflow")
	ErrCounterOverflow   = errors.New("counter overflow")
	ErrMismatch          = errors.New("record does not match stored state")
	ErrVaultLocked       = errors.New("vault locked")
)
