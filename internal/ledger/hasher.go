package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// SentinelPrevHash is the previous hash recorded by the genesis block.
const SentinelPrevHash = ""

// computeDigest calculates
// SHA-256(height || time || len(prev) || prev || len(body) || body)
// with fixed-width little-endian integers. The hash field itself is never an input.
func computeDigest(height, timestamp int64, prevHash, body string) string {
	hasher := sha256.New()

	// Write height (8 bytes LE)
	var buf8 [8]byte
	binary.LittleEndian.PutUint64(buf8[:], uint64(height))
	hasher.Write(buf8[:])

	// Write time (8 bytes LE)
	binary.LittleEndian.PutUint64(buf8[:], uint64(timestamp))
	hasher.Write(buf8[:])

	writeField(hasher, prevHash)
	writeField(hasher, body)

	return hex.EncodeToString(hasher.Sum(nil))
}

// writeField writes a 4-byte LE length prefix followed by s.
func writeField(w interface{ Write([]byte) (int, error) }, s string) {
	var buf4 [4]byte
	binary.LittleEndian.PutUint32(buf4[:], uint32(len(s)))
	w.Write(buf4[:])
	w.Write([]byte(s))
}
