package solana

import (
	"errors"
	"sync"

	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of a decoded Solana public key.
const PublicKeyLength = 32

// maxAddressLength is the longest base58 rendering of a 32-byte key.
const maxAddressLength = 44

// ErrInvalidAddress is returned when a string is not a base58-encoded 32-byte key.
var ErrInvalidAddress = errors.New("invalid solana address")

// PublicKey is a decoded Solana address.
type PublicKey [PublicKeyLength]byte

// String encodes the key back to base58.
func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// ParsePublicKey decodes a base58 address into a PublicKey.
func ParsePublicKey(s string) (PublicKey, error) {
	var key PublicKey
	if len(s) == 0 || len(s) > maxAddressLength {
		return key, ErrInvalidAddress
	}
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != PublicKeyLength {
		return key, ErrInvalidAddress
	}
	copy(key[:], raw)
	return key, nil
}

// MustPublicKey is ParsePublicKey for compile-time constants.
func MustPublicKey(s string) PublicKey {
	key, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return key
}

// Validator checks address syntax and remembers addresses that passed.
// Only positive results are cached: near-miss tokens vary between messages.
type Validator struct {
	valid sync.Map
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{}
}

// IsValid reports whether s decodes to a 32-byte key. It never panics.
func (v *Validator) IsValid(s string) bool {
	if _, ok := v.valid.Load(s); ok {
		return true
	}
	if _, err := ParsePublicKey(s); err != nil {
		return false
	}
	v.valid.Store(s, struct{}{})
	return true
}

// Cached reports whether s is already memoized as valid.
func (v *Validator) Cached(s string) bool {
	_, ok := v.valid.Load(s)
	return ok
}
