package httpapi

import (
	"errors"
	"net/http"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/auth"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/ledger"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/social"
)

var (
	errBadRequest  = errors.New("bad request")
	errRateLimited = errors.New("rate limited")
	errExpired     = errors.New("signature expired")
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// classify maps an operation error to an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, errExpired):
		return http.StatusForbidden, "expired"
	case errors.Is(err, auth.ErrBadSignature):
		return http.StatusForbidden, "bad_signature"
	case errors.Is(err, ledger.ErrNotAuthorized), errors.Is(err, social.ErrNotAuthorized):
		return http.StatusForbidden, "not_authorized"
	case errors.Is(err, ledger.ErrVaultLocked):
		return http.StatusLocked, ledger.ErrorKind(err)
	case errors.Is(err, ledger.ErrVaultNotFound):
		return http.StatusNotFound, ledger.ErrorKind(err)
	case errors.Is(err, social.ErrReactionNotFound), errors.Is(err, social.ErrPostNotFound):
		return http.StatusNotFound, social.ErrorKind(err)
	case errors.Is(err, social.ErrReactionExists):
		return http.StatusConflict, social.ErrorKind(err)
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrOverflow),
		errors.Is(err, ledger.ErrZeroAmount):
		return http.StatusUnprocessableEntity, ledger.ErrorKind(err)
	case errors.Is(err, social.ErrMinLikesReached):
		return http.StatusUnprocessableEntity, "min_likes_reached"
	case errors.Is(err, social.ErrMinDislikesReached):
		return http.StatusUnprocessableEntity, "min_dislikes_reached"
	case errors.Is(err, social.ErrMaxLikesReached):
		return http.StatusUnprocessableEntity, "max_likes_reached"
	case errors.Is(err, social.ErrMaxDislikesReached):
		return http.StatusUnprocessableEntity, "max_dislikes_reached"
	case errors.Is(err, social.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, social.ErrorKind(err)
	}
	return http.StatusInternalServerError, "internal"
}
