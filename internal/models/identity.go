package models

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58/base58"
)

// IdentitySize is the length in bytes of an account key.
const IdentitySize = 32

var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is a 32 byte account key. Its text form is base58, the same encoding
// wallets use for public keys, so an Identity doubles as an account address.
type Identity [IdentitySize]byte

// ParseIdentity decodes a base58 account key.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("%w: %q: %v", ErrInvalidIdentity, s, err)
	}
	if len(raw) != IdentitySize {
		return id, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidIdentity, s, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// IdentityFromBytes copies a raw 32 byte key.
func IdentityFromBytes(raw []byte) (Identity, error) {
	var id Identity
	if len(raw) != IdentitySize {
		return id, fmt.Errorf("%w: got %d bytes", ErrInvalidIdentity, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (id Identity) String() string {
	return base58.Encode(id[:])
}

func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
