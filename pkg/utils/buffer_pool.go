// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"math/bits"
	"sync"
)

// Buffer pool size classes are powers of 2 from 1KB to 4MB.
// Index 6 (64KB) serves encrypted stream blocks, index 12 the default chunk size.
const (
	minPoolSize   = 1 << 10
	maxPoolSize   = 1 << 22
	numPoolLevels = 13
)

var bufferPools [numPoolLevels]sync.Pool

func init() {
	for i := range bufferPools {
		size := minPoolSize << i
		bufferPools[i] = sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		}
	}
}

// poolIndex returns the pool index for a given size, or -1 when it is
// larger than maxPoolSize.
func poolIndex(size int) int {
	if size <= minPoolSize {
		return 0
	}
	if size > maxPoolSize {
		return -1
	}
	return bits.Len(uint(size-1)) - 10
}

// GetBuffer returns a byte slice of exactly size bytes, backed by a pooled
// array rounded up to a power of 2. Sizes above 4MB are allocated directly.
func GetBuffer(size int) []byte {
	idx := poolIndex(size)
	if idx < 0 {
		return make([]byte, size)
	}
	bufPtr := bufferPools[idx].Get().(*[]byte)
	return (*bufPtr)[:size]
}

// PutBuffer returns a buffer obtained from GetBuffer.
// Buffers whose capacity is not a pool size are dropped.
//
// WARNING: Do not use the buffer after calling PutBuffer.
func PutBuffer(buf []byte) {
	c := cap(buf)
	idx := poolIndex(c)
	if idx < 0 || c != minPoolSize<<idx {
		return
	}
	buf = buf[:c]
	bufferPools[idx].Put(&buf)
}
