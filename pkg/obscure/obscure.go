// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package obscure hides passwords in config files from casual view.
//
// This is not encryption: the key is fixed and published, so anyone with
// this package can reveal an obscured value.
package obscure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

var cryptKey = []byte{
	0x9c, 0x93, 0x5b, 0x48, 0x73, 0x0a, 0x55, 0x4d,
	0x6b, 0xfd, 0x7c, 0x63, 0xc8, 0x86, 0xa9, 0x2b,
	0xd3, 0x90, 0x19, 0x8e, 0xb8, 0x12, 0x8a, 0xfb,
	0xf4, 0xde, 0x16, 0x2b, 0x8b, 0x95, 0xf6, 0x38,
}

// ErrTooShort is returned by Reveal for input shorter than an IV
var ErrTooShort = errors.New("input too short when revealing password - is it obscured?")

func crypt(out, in, iv []byte) error {
	block, err := aes.NewCipher(cryptKey)
	if err != nil {
		return err
	}
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return nil
}

// Obscure returns x obscured with a fresh random IV
func Obscure(x string) (string, error) {
	plaintext := []byte(x)
	ciphertext := make([]byte, aes.BlockSize+len(plaintext))
	iv := ciphertext[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("obscure: read iv: %w", err)
	}
	if err := crypt(ciphertext[aes.BlockSize:], plaintext, iv); err != nil {
		return "", fmt.Errorf("obscure: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// MustObscure is Obscure that panics on error
func MustObscure(x string) string {
	out, err := Obscure(x)
	if err != nil {
		panic(err)
	}
	return out
}

// Reveal returns the plaintext of an obscured value
func Reveal(x string) (string, error) {
	ciphertext, err := base64.RawURLEncoding.DecodeString(x)
	if err != nil {
		return "", fmt.Errorf("base64 decode failed when revealing password - is it obscured?: %w", err)
	}
	if len(ciphertext) < aes.BlockSize {
		return "", ErrTooShort
	}
	buf := ciphertext[aes.BlockSize:]
	iv := ciphertext[:aes.BlockSize]
	if err := crypt(buf, buf, iv); err != nil {
		return "", fmt.Errorf("reveal: %w", err)
	}
	return string(buf), nil
}

// MustReveal is Reveal that panics on error
func MustReveal(x string) string {
	out, err := Reveal(x)
	if err != nil {
		panic(err)
	}
	return out
}
