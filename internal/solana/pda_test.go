package solana

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveMetadataPDAIsDeterministicAndOffCurve(t *testing.T) {
	const mint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	first, err := DeriveMetadataPDA(mint)
	require.NoError(t, err)
	second, err := DeriveMetadataPDA(mint)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	key, err := ParsePublicKey(first)
	require.NoError(t, err)
	assert.False(t, IsOnCurve(key[:]))
	assert.NotEqual(t, mint, first)
}

func TestDeriveMetadataPDAKnownMint(t *testing.T) {
	pda, err := DeriveMetadataPDA("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.NoError(t, err)
	assert.Equal(t, "5x38Kp4hvdomTCnCrAny4UtMUt5rQBdB6px2K1Ui45Wq", pda)
}

func TestFindProgramAddressMatchesCreateWithBump(t *testing.T) {
	mint := MustPublicKey("So11111111111111111111111111111111111111112")
	seeds := [][]byte{[]byte("metadata"), metaplexProgram[:], mint[:]}

	pda, bump, err := FindProgramAddress(seeds, metaplexProgram)
	require.NoError(t, err)

	again, err := CreateProgramAddress(append(seeds, []byte{bump}), metaplexProgram)
	require.NoError(t, err)
	assert.Equal(t, pda, again)
}

func TestCreateProgramAddressRejectsLongSeed(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{make([]byte, 33)}, metaplexProgram)
	assert.Error(t, err)
}

func TestIsOnCurve(t *testing.T) {
	pub := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)).Public().(ed25519.PublicKey)
	assert.True(t, IsOnCurve(pub))
	assert.False(t, IsOnCurve([]byte{1, 2, 3}))
}

func TestDeriveMetadataPDARejectsInvalidMint(t *testing.T) {
	_, err := DeriveMetadataPDA("nope")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
