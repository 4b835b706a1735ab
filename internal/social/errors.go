package social

import (
	"errors"
	"fmt"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/storage"
)

var (
	ErrNotAuthorized       = errors.New("not authorized")
	ErrMinLikesReached     = errors.New("minimum likes reached")
	ErrMinDislikesReached  = errors.New("minimum dislikes reached")
	ErrMaxLikesReached     = errors.New("maximum likes reached")
	ErrMaxDislikesReached  = errors.New("maximum dislikes reached")
	ErrReactionExists      = errors.New("reaction already exists")
	ErrReactionNotFound    = errors.New("reaction not found")
	ErrPostNotFound        = errors.New("post not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

func counterFloor(kind models.ReactionKind) error {
	if kind == models.Dislike {
		return ErrMinDislikesReached
	}
	return ErrMinLikesReached
}

func counterCeiling(kind models.ReactionKind) error {
	if kind == models.Dislike {
		return ErrMaxDislikesReached
	}
	return ErrMaxLikesReached
}

// ErrorKind labels err for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrMinLikesReached), errors.Is(err, ErrMinDislikesReached):
		return "counter_floor"
	case errors.Is(err, ErrMaxLikesReached), errors.Is(err, ErrMaxDislikesReached):
		return "counter_ceiling"
	case errors.Is(err, ErrReactionExists):
		return "exists"
	case errors.Is(err, ErrReactionNotFound), errors.Is(err, ErrPostNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "internal"
	}
}

func fromStore(kind models.ReactionKind, err error) error {
	switch {
	case errors.Is(err, storage.ErrCounterUnderflow):
		return fmt.Errorf("%w: %v", counterFloor(kind), err)
	case errors.Is(err, storage.ErrCounterOverflow):
		return fmt.Errorf("%w: %v", counterCeiling(kind), err)
	case errors.Is(err, storage.ErrAlreadyExists):
		return fmt.Errorf("%w: %v", ErrReactionExists, err)
	case errors.Is(err, storage.ErrInsufficientFunds):
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrReactionNotFound, err)
	}
	return err
}
