// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package crypt

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/LeeDigitalWorks/stackfs/pkg/cache"
	"github.com/LeeDigitalWorks/stackfs/pkg/utils"

	"golang.org/x/crypto/scrypt"
)

// Key derivation parameters. Changing any of them makes existing remotes
// unreadable.
const (
	scryptN = 16384
	scryptR = 8
	scryptP = 1

	dataKeySize = 32
	nameKeySize = 32
	tweakSize   = 16
	keyMaterial = dataKeySize + nameKeySize + tweakSize
)

// defaultSalt is used when no second password is configured
var defaultSalt = []byte{0xA8, 0x0D, 0xF4, 0x3A, 0x8F, 0xBD, 0x03, 0x08, 0xA7, 0xCA, 0xB8, 0x3E, 0x58, 0x1F, 0x86, 0xB1}

// ErrNoPassword is returned when deriving keys from an empty password
var ErrNoPassword = errors.New("password is required")

// Keys is the key material derived from a password pair
type Keys struct {
	Data  [dataKeySize]byte // content encryption
	Name  [nameKeySize]byte // name encryption
	Tweak [tweakSize]byte   // name encryption tweak
}

// keyCache holds derived keys by a fingerprint of the password pair.
var keyCache = cache.New[*Keys](cache.WithMaxSize[*Keys](64))

// DeriveKeys derives key material from password and salt. An empty salt
// selects the built-in default.
func DeriveKeys(password, salt string) (*Keys, error) {
	if password == "" {
		return nil, ErrNoPassword
	}

	return keyCache.GetOrLoad(fingerprint(password, salt), func() (*Keys, error) {
		saltBytes := defaultSalt
		if salt != "" {
			saltBytes = []byte(salt)
		}
		raw, err := scrypt.Key([]byte(password), saltBytes, scryptN, scryptR, scryptP, keyMaterial)
		if err != nil {
			return nil, fmt.Errorf("crypt: derive keys: %w", err)
		}

		k := &Keys{}
		copy(k.Data[:], raw[:dataKeySize])
		copy(k.Name[:], raw[dataKeySize:dataKeySize+nameKeySize])
		copy(k.Tweak[:], raw[dataKeySize+nameKeySize:])
		return k, nil
	})
}

// fingerprint identifies a password pair without keeping the passwords
func fingerprint(password, salt string) string {
	sum := utils.Sha256Sum(binary.AppendUvarint(nil, uint64(len(password))), []byte(password), []byte(salt))
	return hex.EncodeToString(sum[:])
}
