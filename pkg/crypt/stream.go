// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package crypt

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/LeeDigitalWorks/stackfs/pkg/types"
	"github.com/LeeDigitalWorks/stackfs/pkg/utils"

	"golang.org/x/crypto/nacl/secretbox"
)

// Encrypted stream layout: magic, nonce, then sealed blocks of up to
// BlockDataSize plaintext bytes each followed by a Poly1305 tag.
const (
	fileMagic      = "RCLONE\x00\x00"
	fileMagicSize  = 8
	FileHeaderSize = fileMagicSize + nonceSize

	BlockDataSize   = 64 * 1024
	blockTagSize    = secretbox.Overhead
	BlockCipherSize = BlockDataSize + blockTagSize
)

var (
	ErrBadMagic       = errors.New("not an encrypted file - bad magic string")
	ErrTooShort       = errors.New("encrypted file too short")
	ErrBadBlock       = errors.New("encrypted block too short")
	ErrAuthentication = fmt.Errorf("%w: block failed to authenticate", types.ErrIntegrity)

	errDecrypterClosed = errors.New("read from closed decrypter")
)

// EncryptedSize returns the stored size of a plaintext of size bytes. An
// empty plaintext is one tag-only block; a plaintext ending on a block
// boundary has no trailing empty block.
func EncryptedSize(size int64) int64 {
	blocks, rem := size/BlockDataSize, size%BlockDataSize
	out := int64(FileHeaderSize) + blocks*BlockCipherSize
	if rem > 0 || size == 0 {
		out += rem + blockTagSize
	}
	return out
}

// PlainSize is the inverse of EncryptedSize
func PlainSize(size int64) (int64, error) {
	size -= FileHeaderSize
	if size < 0 {
		return 0, ErrTooShort
	}
	blocks, rem := size/BlockCipherSize, size%BlockCipherSize
	out := blocks * BlockDataSize
	if rem > 0 {
		if rem < blockTagSize {
			return 0, ErrBadBlock
		}
		out += rem - blockTagSize
	}
	return out, nil
}

// ============================================================================
// Encrypt
// ============================================================================

type encrypter struct {
	in     io.Reader
	key    *[32]byte
	nonce  nonce
	plain  []byte // one block of plaintext
	out    []byte // sealed output not yet read
	buf    []byte // backing array for out
	blocks int
	err    error
}

// NewEncrypter returns a reader producing the encrypted form of r under key
// with a fresh random nonce
func NewEncrypter(r io.Reader, key *[32]byte) (io.Reader, error) {
	e := &encrypter{in: r, key: key}
	if err := e.nonce.fromReader(); err != nil {
		return nil, err
	}
	e.plain = utils.GetBuffer(BlockDataSize)
	e.buf = utils.GetBuffer(BlockCipherSize)
	e.out = append(e.buf[:0], fileMagic...)
	e.out = append(e.out, e.nonce[:]...)
	return e, nil
}

func (e *encrypter) Read(p []byte) (int, error) {
	for len(e.out) == 0 {
		if e.err != nil {
			e.release()
			return 0, e.err
		}
		e.fill()
	}
	n := copy(p, e.out)
	e.out = e.out[n:]
	return n, nil
}

// fill seals the next block into out, or records the terminal error
func (e *encrypter) fill() {
	n, err := io.ReadFull(e.in, e.plain)
	switch {
	case err == io.EOF:
		// An empty input still gets one tag-only block
		if e.blocks > 0 {
			e.err = io.EOF
			return
		}
	case err == io.ErrUnexpectedEOF:
	case err != nil:
		e.err = err
		return
	}

	e.out = secretbox.Seal(e.buf[:0], e.plain[:n], (*[nonceSize]byte)(&e.nonce), e.key)
	e.nonce.increment()
	e.blocks++
	blocksSealed.Inc()
	if n < BlockDataSize {
		// Short read means the input is exhausted
		e.err = io.EOF
	}
}

// release returns the block buffers once the output is drained
func (e *encrypter) release() {
	if e.buf != nil {
		utils.PutBuffer(e.plain)
		utils.PutBuffer(e.buf)
		e.plain, e.buf = nil, nil
	}
}

// ============================================================================
// Decrypt
// ============================================================================

type decrypter struct {
	in     io.Reader
	key    *[32]byte
	nonce  nonce
	block  uint64 // index of the next block, for errors
	sealed []byte
	plain  []byte
	out    []byte
	err    error
}

// NewDecrypter reads the header of an encrypted stream from r and returns a
// reader of the plaintext. A block that fails authentication ends the
// stream with an error wrapping types.ErrIntegrity. Close returns the block
// buffers; it does not close r.
func NewDecrypter(r io.Reader, key *[32]byte) (io.ReadCloser, error) {
	header := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTooShort
		}
		return nil, err
	}
	return DecryptRange(header, r, key, 0)
}

// DecryptRange returns a reader of the plaintext starting at block index
// block. header is the stream's magic and nonce; r is positioned at the
// start of that block.
func DecryptRange(header []byte, r io.Reader, key *[32]byte, block uint64) (io.ReadCloser, error) {
	if len(header) < FileHeaderSize {
		return nil, ErrTooShort
	}
	if !bytes.Equal(header[:fileMagicSize], []byte(fileMagic)) {
		return nil, ErrBadMagic
	}
	d := &decrypter{in: r, key: key, block: block}
	d.nonce.fromBuf(header[fileMagicSize:FileHeaderSize])
	d.nonce.add(block)
	d.sealed = utils.GetBuffer(BlockCipherSize)
	d.plain = utils.GetBuffer(BlockDataSize)
	return d, nil
}

func (d *decrypter) Read(p []byte) (int, error) {
	for len(d.out) == 0 {
		if d.err != nil {
			d.release()
			return 0, d.err
		}
		d.fill()
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}

func (d *decrypter) fill() {
	n, err := io.ReadFull(d.in, d.sealed)
	switch {
	case err == io.EOF:
		d.err = io.EOF
		return
	case err == io.ErrUnexpectedEOF:
	case err != nil:
		d.err = err
		return
	}
	if n < blockTagSize {
		d.err = fmt.Errorf("%w: block %d", ErrBadBlock, d.block)
		return
	}

	out, ok := secretbox.Open(d.plain[:0], d.sealed[:n], (*[nonceSize]byte)(&d.nonce), d.key)
	if !ok {
		authFailures.Inc()
		d.err = fmt.Errorf("%w: block %d", ErrAuthentication, d.block)
		return
	}
	d.out = out
	d.nonce.increment()
	d.block++
	blocksOpened.Inc()
	if n < BlockCipherSize {
		d.err = io.EOF
	}
}

// Close releases the buffers. Reads after Close fail.
func (d *decrypter) Close() error {
	d.release()
	d.out = nil
	if d.err == nil || d.err == io.EOF {
		d.err = errDecrypterClosed
	}
	return nil
}

func (d *decrypter) release() {
	if d.sealed != nil {
		utils.PutBuffer(d.sealed)
		utils.PutBuffer(d.plain)
		d.sealed, d.plain = nil, nil
	}
}
