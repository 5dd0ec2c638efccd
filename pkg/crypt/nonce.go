// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package crypt

import (
	"crypto/rand"
	"fmt"
)

const nonceSize = 24

// nonce is a little-endian counter: byte 0 is least significant and every
// byte wraps at 256 carrying into the next
type nonce [nonceSize]byte

func (n *nonce) fromReader() error {
	if _, err := rand.Read(n[:]); err != nil {
		return fmt.Errorf("crypt: read nonce: %w", err)
	}
	return nil
}

func (n *nonce) fromBuf(buf []byte) {
	copy(n[:], buf)
}

// carry adds one starting at byte i
func (n *nonce) carry(i int) {
	for ; i < len(n); i++ {
		n[i]++
		if n[i] != 0 {
			return
		}
	}
}

// increment advances to the next block's nonce
func (n *nonce) increment() {
	n.carry(0)
}

// add advances the nonce by x blocks
func (n *nonce) add(x uint64) {
	var c uint16
	for i := range 8 {
		c += uint16(n[i]) + uint16(byte(x))
		n[i] = byte(c)
		c >>= 8
		x >>= 8
	}
	if c != 0 {
		n.carry(8)
	}
}
