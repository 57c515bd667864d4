package solana

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildMetadataAccount(name, symbol, uri string) []byte {
	var buf []byte
	buf = append(buf, 4)
	buf = append(buf, make([]byte, 64)...)
	buf = appendPadded(buf, name, 32)
	buf = appendPadded(buf, symbol, 10)
	buf = appendPadded(buf, uri, 200)
	buf = append(buf, 0, 0, 1)
	return buf
}

func appendPadded(buf []byte, s string, size int) []byte {
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(size))
	buf = append(buf, prefix[:]...)
	field := make([]byte, size)
	copy(field, s)
	return append(buf, field...)
}

func TestParseMetadataURI(t *testing.T) {
	raw := buildMetadataAccount("Test Token", "TST", "https://ipfs.io/ipfs/QmMeta")
	uri, ok := ParseMetadataURI(raw)
	assert.True(t, ok)
	assert.Equal(t, "https://ipfs.io/ipfs/QmMeta", uri)
}

func TestParseMetadataURIEmptyField(t *testing.T) {
	raw := buildMetadataAccount("Test Token", "TST", "")
	_, ok := ParseMetadataURI(raw)
	assert.False(t, ok)
}

func TestParseMetadataURITooShort(t *testing.T) {
	_, ok := ParseMetadataURI(make([]byte, 100))
	assert.False(t, ok)
}

func TestParseMetadataURITruncatedAccount(t *testing.T) {
	raw := buildMetadataAccount("A", "B", "https://arweave.net/abc")
	uri, ok := ParseMetadataURI(raw[:metadataURIOffset+4+10])
	assert.True(t, ok)
	assert.Equal(t, "https://ar", uri)
}
