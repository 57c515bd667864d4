package solana

import (
	"encoding/binary"
	"strings"
)

// Metaplex MetadataV1 layout up to the uri field:
// key(1) | update_authority(32) | mint(32) | name(4+32) | symbol(4+10) | uri(4+200).
// Name, symbol and uri are NUL-padded to their maximum length, so the uri
// length prefix always starts at a fixed offset.
const (
	metadataURIOffset = 115
	metadataURIMaxLen = 200
)

// ParseMetadataURI reads the uri window of a raw metadata account and trims the padding.
func ParseMetadataURI(raw []byte) (string, bool) {
	start := metadataURIOffset + 4
	if len(raw) <= start {
		return "", false
	}
	end := start + metadataURIMaxLen
	if n := binary.LittleEndian.Uint32(raw[metadataURIOffset:start]); n <= metadataURIMaxLen {
		end = start + int(n)
	}
	if end > len(raw) {
		end = len(raw)
	}
	uri := strings.ToValidUTF8(string(raw[start:end]), "")
	uri = strings.TrimSpace(strings.Trim(uri, "\x00"))
	return uri, uri != ""
}
