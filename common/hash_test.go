package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeccak256KnownVector(t *testing.T) {
	// keccak256 of the empty string
	got := Keccak256(nil)
	assert.Equal(t, "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", got.Hex())
}

func TestCompositeKeyJoinsWithPipe(t *testing.T) {
	assert.Equal(t, Keccak256([]byte("ds|chunk-1")), CompositeKey("ds", "chunk-1"))
	assert.NotEqual(t, CompositeKey("ds", "a"), CompositeKey("ds", "b"))
}

func TestTrieLookupKeyIsPrefix(t *testing.T) {
	full := CompositeKey("s3://eth-main", "0000000000/0000000001-0000000100-abcd")
	short := TrieLookupKey("s3://eth-main", "0000000000/0000000001-0000000100-abcd")
	require.Len(t, short, TrieLookupKeyLen)
	assert.Equal(t, full[:TrieLookupKeyLen], short)
}

func TestUpperHex(t *testing.T) {
	assert.Equal(t, "00ABFF", UpperHex([]byte{0x00, 0xab, 0xff}))
	assert.Equal(t, "0x00abff", Bytes2Hex([]byte{0x00, 0xab, 0xff}))
}

func TestSaturatingSub(t *testing.T) {
	assert.Equal(t, uint64(0), SaturatingSub(10, 300))
	assert.Equal(t, uint64(700), SaturatingSub(1000, 300))
}
