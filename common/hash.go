package common

import (
	"encoding/hex"
	"strings"

	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Hash is the 32-byte keccak digest used for trie keys and roots.
type Hash = ethereumCommon.Hash

// TrieLookupKeyLen is the width of the key handed to the trie when proving
// membership. Insertion uses the full 32-byte composite key; proofs walk only
// its first 8 bytes. Changing it changes which leaf a proof terminates on.
const TrieLookupKeyLen = 8

func Keccak256(data []byte) Hash {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	return ethereumCommon.BytesToHash(hash.Sum(nil))
}

// CompositeKey returns keccak256("a|b").
func CompositeKey(a, b string) Hash {
	return Keccak256([]byte(a + "|" + b))
}

// TrieLookupKey narrows CompositeKey to TrieLookupKeyLen bytes.
func TrieLookupKey(a, b string) []byte {
	key := CompositeKey(a, b)
	out := make([]byte, TrieLookupKeyLen)
	copy(out, key[:TrieLookupKeyLen])
	return out
}

// UpperHex encodes without prefix in upper case, matching the analytics
// store's hex() output.
func UpperHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// Bytes2Hex encodes with a 0x prefix.
func Bytes2Hex(d []byte) string {
	return "0x" + ethereumCommon.Bytes2Hex(d)
}

// Bytes2String encodes without prefix.
func Bytes2String(d []byte) string {
	return ethereumCommon.Bytes2Hex(d)
}

// SaturatingSub returns a-b, or 0 when b > a.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
