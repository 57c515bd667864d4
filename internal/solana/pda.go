package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

// MetaplexProgramID is the Token Metadata program.
const MetaplexProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

const (
	maxSeeds      = 16
	maxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

var metaplexProgram = MustPublicKey(MetaplexProgramID)

// ErrNoViableBump is returned when every bump seed yields an on-curve point.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// errOnCurve marks a candidate that is a valid ed25519 point.
var errOnCurve = errors.New("program address is on curve")

// CreateProgramAddress hashes seeds with the program id and rejects on-curve results.
func CreateProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, error) {
	if len(seeds) > maxSeeds {
		return PublicKey{}, fmt.Errorf("too many seeds: %d", len(seeds))
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return PublicKey{}, fmt.Errorf("seed too long: %d bytes", len(seed))
		}
		h.Write(seed)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var key PublicKey
	copy(key[:], h.Sum(nil))
	if IsOnCurve(key[:]) {
		return PublicKey{}, errOnCurve
	}
	return key, nil
}

// FindProgramAddress searches bump seeds from 255 down and returns the first off-curve address.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		key, err := CreateProgramAddress(withBump, program)
		if errors.Is(err, errOnCurve) {
			continue
		}
		if err != nil {
			return PublicKey{}, 0, err
		}
		return key, uint8(bump), nil
	}
	return PublicKey{}, 0, ErrNoViableBump
}

// DeriveMetadataPDA returns the Metaplex metadata account for a mint.
// Seeds: ["metadata", program id, mint].
func DeriveMetadataPDA(mint string) (string, error) {
	mintKey, err := ParsePublicKey(mint)
	if err != nil {
		return "", err
	}
	pda, _, err := FindProgramAddress([][]byte{[]byte("metadata"), metaplexProgram[:], mintKey[:]}, metaplexProgram)
	if err != nil {
		return "", fmt.Errorf("derive metadata pda for %s: %w", mint, err)
	}
	return pda.String(), nil
}

// IsOnCurve reports whether b is a valid compressed ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != PublicKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
