// Package auth turns signed requests into verified caller identities.
//
// The ledger never inspects signatures itself. It only accepts a Principal,
// and a Principal can only be obtained from Authenticator.Verify or, for
// in-process callers that are trusted by construction, from Trusted.
//
// Signed messages carry an expiry but no nonce. A captured request can be
// replayed until it expires, so transports must bound the expiry window.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strconv"

	"github.com/sheikh-saqib/custody-vault-ledger/internal/models"
)

var ErrBadSignature = errors.New("signature verification failed")

// Operation names used in signed messages.
const (
	OpDeposit        = "deposit"
	OpWithdraw       = "withdraw"
	OpRemoveReaction = "remove_reaction"
	OpAddReaction    = "add_reaction"
)

// Principal is a verified caller identity. The zero value is unauthenticated.
type Principal struct {
	id       models.Identity
	verified bool
}

func (p Principal) Identity() models.Identity { return p.id }

func (p Principal) Verified() bool { return p.verified }

// Trusted vouches for id without a signature.
func Trusted(id models.Identity) Principal {
	return Principal{id: id, verified: true}
}

// Authenticator checks ed25519 signatures made with the signer's account key.
type Authenticator struct{}

func NewAuthenticator() *Authenticator {
	return &Authenticator{}
}

// Verify returns a Principal for signer if signature is a valid signature of
// message by the key signer names.
func (a *Authenticator) Verify(signer models.Identity, message, signature []byte) (Principal, error) {
	if len(signature) != ed25519.SignatureSize {
		return Principal{}, fmt.Errorf("%w: signature is %d bytes", ErrBadSignature, len(signature))
	}
	if !ed25519.Verify(ed25519.PublicKey(signer[:]), message, signature) {
		return Principal{}, fmt.Errorf("%w: signer %s", ErrBadSignature, signer)
	}
	return Principal{id: signer, verified: true}, nil
}

// CanonicalMessage is the byte string a client signs for op on target. expires
// is a unix time in seconds after which the signature must not be accepted.
func CanonicalMessage(op string, target models.Identity, amount uint64, expires int64) []byte {
	msg := make([]byte, 0, len(op)+88)
	msg = append(msg, op...)
	msg = append(msg, ':')
	msg = append(msg, target.String()...)
	msg = append(msg, ':')
	msg = strconv.AppendUint(msg, amount, 10)
	msg = append(msg, ':')
	msg = strconv.AppendInt(msg, expires, 10)
	return msg
}
