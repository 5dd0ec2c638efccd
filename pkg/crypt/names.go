// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"

	"github.com/rfjakob/eme"
)

const (
	nameBlockSize = aes.BlockSize
	// EME handles at most 128 blocks
	maxNameCipherSize = 128 * nameBlockSize
)

var (
	ErrBadName     = errors.New("not an encrypted name")
	ErrNameTooLong = errors.New("name too long to encrypt")

	nameEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)
)

// NameCipher encrypts path segments deterministically with EME over AES
type NameCipher struct {
	block cipher.Block
	tweak []byte
}

// NewNameCipher creates a name cipher from derived key material
func NewNameCipher(k *Keys) (*NameCipher, error) {
	block, err := aes.NewCipher(k.Name[:])
	if err != nil {
		return nil, fmt.Errorf("crypt: name cipher: %w", err)
	}
	return newNameCipher(block, k.Tweak[:]), nil
}

func newNameCipher(block cipher.Block, tweak []byte) *NameCipher {
	return &NameCipher{block: block, tweak: bytes.Clone(tweak)}
}

// EncryptName encrypts a single segment. The empty name stays empty.
func (c *NameCipher) EncryptName(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	padded := pkcs7Pad([]byte(name))
	if len(padded) > maxNameCipherSize {
		return "", fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	ct := eme.Transform(c.block, c.tweak, padded, eme.DirectionEncrypt)
	return strings.ToLower(nameEncoding.EncodeToString(ct)), nil
}

// DecryptName reverses EncryptName. Anything EncryptName could not have
// produced fails with ErrBadName.
func (c *NameCipher) DecryptName(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	if strings.ToLower(name) != name {
		return "", fmt.Errorf("%w: %q is not lower case", ErrBadName, name)
	}
	ct, err := nameEncoding.DecodeString(strings.ToUpper(name))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrBadName, name, err)
	}
	if len(ct) == 0 || len(ct)%nameBlockSize != 0 || len(ct) > maxNameCipherSize {
		return "", fmt.Errorf("%w: %q has bad length", ErrBadName, name)
	}
	plain, err := pkcs7Unpad(eme.Transform(c.block, c.tweak, ct, eme.DirectionDecrypt))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrBadName, name, err)
	}
	return string(plain), nil
}

// EncryptPath encrypts each "/" separated segment. A trailing "/" is kept.
func (c *NameCipher) EncryptPath(path string) (string, error) {
	return c.mapPath(path, c.EncryptName)
}

// DecryptPath reverses EncryptPath
func (c *NameCipher) DecryptPath(path string) (string, error) {
	return c.mapPath(path, c.DecryptName)
}

func (c *NameCipher) mapPath(path string, fn func(string) (string, error)) (string, error) {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		out, err := fn(s)
		if err != nil {
			return "", err
		}
		segments[i] = out
	}
	return strings.Join(segments, "/"), nil
}

func pkcs7Pad(b []byte) []byte {
	n := nameBlockSize - len(b)%nameBlockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%nameBlockSize != 0 {
		return nil, errors.New("bad padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > nameBlockSize {
		return nil, errors.New("bad padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("bad padding")
		}
	}
	return b[:len(b)-n], nil
}
