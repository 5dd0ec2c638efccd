// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package crypt

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDataKey() *[32]byte {
	var k [32]byte
	for i := range k {
		k[i] = byte(i)
	}
	return &k
}

func encryptAll(t *testing.T, data []byte, key *[32]byte) []byte {
	t.Helper()
	enc, err := NewEncrypter(bytes.NewReader(data), key)
	require.NoError(t, err)
	out, err := io.ReadAll(enc)
	require.NoError(t, err)
	return out
}

func decryptAll(t *testing.T, data []byte, key *[32]byte) ([]byte, error) {
	t.Helper()
	dec, err := NewDecrypter(bytes.NewReader(data), key)
	require.NoError(t, err)
	return io.ReadAll(dec)
}

func TestStream_RoundTrip(t *testing.T) {
	t.Parallel()

	key := testDataKey()
	for _, n := range []int{0, 1, 100, BlockDataSize - 1, BlockDataSize, BlockDataSize + 1, 3*BlockDataSize + 7} {
		data := make([]byte, n)
		_, err := rand.Read(data)
		require.NoError(t, err)

		sealed := encryptAll(t, data, key)
		assert.Equal(t, EncryptedSize(int64(n)), int64(len(sealed)), "size %d", n)
		assert.Equal(t, fileMagic, string(sealed[:fileMagicSize]))

		plain, err := PlainSize(int64(len(sealed)))
		require.NoError(t, err)
		assert.Equal(t, int64(n), plain)

		got, err := decryptAll(t, sealed, key)
		require.NoError(t, err, "size %d", n)
		assert.True(t, bytes.Equal(data, got), "size %d", n)
	}
}

func TestEncryptedSize_Boundaries(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(FileHeaderSize+blockTagSize), EncryptedSize(0))
	assert.Equal(t, int64(FileHeaderSize+BlockCipherSize), EncryptedSize(BlockDataSize))
	assert.Equal(t, int64(FileHeaderSize+BlockCipherSize+1+blockTagSize), EncryptedSize(BlockDataSize+1))

	_, err := PlainSize(FileHeaderSize - 1)
	assert.ErrorIs(t, err, ErrTooShort)
	_, err = PlainSize(FileHeaderSize + 5)
	assert.ErrorIs(t, err, ErrBadBlock)
}

func TestStream_FreshNonce(t *testing.T) {
	t.Parallel()

	key := testDataKey()
	a := encryptAll(t, []byte("same"), key)
	b := encryptAll(t, []byte("same"), key)
	assert.NotEqual(t, a[fileMagicSize:FileHeaderSize], b[fileMagicSize:FileHeaderSize])
	assert.NotEqual(t, a, b)
}

func TestStream_TamperDetected(t *testing.T) {
	t.Parallel()

	key := testDataKey()
	data := bytes.Repeat([]byte("x"), 2*BlockDataSize+10)
	sealed := encryptAll(t, data, key)

	for _, pos := range []int{FileHeaderSize, FileHeaderSize + BlockCipherSize + 100, len(sealed) - 1} {
		bad := bytes.Clone(sealed)
		bad[pos] ^= 0x01
		got, err := decryptAll(t, bad, key)
		require.ErrorIs(t, err, types.ErrIntegrity, "flip at %d", pos)
		assert.ErrorIs(t, err, ErrAuthentication)
		// Blocks before the damaged one were already delivered
		assert.Equal(t, (pos-FileHeaderSize)/BlockCipherSize*BlockDataSize, len(got))
	}
}

func TestStream_WrongKey(t *testing.T) {
	t.Parallel()

	sealed := encryptAll(t, []byte("secret"), testDataKey())
	var other [32]byte
	_, err := decryptAll(t, sealed, &other)
	assert.ErrorIs(t, err, types.ErrIntegrity)
}

func TestDecrypter_BadHeader(t *testing.T) {
	t.Parallel()

	key := testDataKey()
	_, err := NewDecrypter(bytes.NewReader([]byte("RCLONE")), key)
	assert.ErrorIs(t, err, ErrTooShort)

	_, err = NewDecrypter(bytes.NewReader(make([]byte, FileHeaderSize+20)), key)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestStream_HeaderSizeIsUntyped(t *testing.T) {
	t.Parallel()

	var hdr int64 = FileHeaderSize
	assert.Equal(t, int64(32), hdr)
	assert.Equal(t, "bytes=0-31", types.ByteRange(0, FileHeaderSize).String())

	plain, err := PlainSize(FileHeaderSize + blockTagSize)
	require.NoError(t, err)
	assert.Zero(t, plain)
}

func TestDecrypter_CloseReleasesBuffers(t *testing.T) {
	t.Parallel()

	key := testDataKey()
	sealed := encryptAll(t, bytes.Repeat([]byte("x"), 2*BlockDataSize), key)

	dec, err := NewDecrypter(bytes.NewReader(sealed), key)
	require.NoError(t, err)
	buf := make([]byte, 10)
	_, err = io.ReadFull(dec, buf)
	require.NoError(t, err)

	require.NoError(t, dec.Close())
	d := dec.(*decrypter)
	assert.Nil(t, d.sealed)
	assert.Nil(t, d.plain)

	_, err = dec.Read(buf)
	assert.ErrorIs(t, err, errDecrypterClosed)
	assert.NoError(t, dec.Close())
}

func TestDecrypter_CloseKeepsFailure(t *testing.T) {
	t.Parallel()

	key := testDataKey()
	sealed := encryptAll(t, []byte("payload"), key)
	sealed[FileHeaderSize] ^= 0x01

	dec, err := NewDecrypter(bytes.NewReader(sealed), key)
	require.NoError(t, err)
	_, err = io.ReadAll(dec)
	require.ErrorIs(t, err, types.ErrIntegrity)

	require.NoError(t, dec.Close())
	_, err = dec.Read(make([]byte, 1))
	assert.ErrorIs(t, err, types.ErrIntegrity)
}

func TestDecryptRange(t *testing.T) {
	t.Parallel()

	key := testDataKey()
	data := make([]byte, 3*BlockDataSize+500)
	_, err := rand.Read(data)
	require.NoError(t, err)
	sealed := encryptAll(t, data, key)

	for block := range 4 {
		start := FileHeaderSize + block*BlockCipherSize
		dec, err := DecryptRange(sealed[:FileHeaderSize], bytes.NewReader(sealed[start:]), key, uint64(block))
		require.NoError(t, err)
		got, err := io.ReadAll(dec)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data[block*BlockDataSize:], got), "block %d", block)
	}
}

// ============================================================================
// Nonce
// ============================================================================

func TestNonce_IncrementCarries(t *testing.T) {
	t.Parallel()

	n := nonce{0xff, 0xff, 0x07}
	n.increment()
	assert.Equal(t, nonce{0x00, 0x00, 0x08}, n)

	var full nonce
	for i := range full {
		full[i] = 0xff
	}
	full.increment()
	assert.Equal(t, nonce{}, full)
}

func TestNonce_AddMatchesIncrement(t *testing.T) {
	t.Parallel()

	start := nonce{0xf0, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}
	for _, x := range []uint64{0, 1, 15, 16, 17, 300, 70000} {
		want := start
		for range x {
			want.increment()
		}
		got := start
		got.add(x)
		assert.Equal(t, want, got, "add %d", x)
	}
}
