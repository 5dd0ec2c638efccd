// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"hash"
	"sync"

	"github.com/minio/sha256-simd"
)

var (
	syncPool = sync.Pool{
		New: func() any {
			return new(bytes.Buffer)
		},
	}
	md5Pool = sync.Pool{
		New: func() any {
			return md5.New()
		},
	}
	sha1Pool = sync.Pool{
		New: func() any {
			return sha1.New()
		},
	}
	sha256Pool = sync.Pool{
		New: func() any {
			return sha256.New()
		},
	}
)

func SyncPoolGetBuffer() *bytes.Buffer {
	return syncPool.Get().(*bytes.Buffer)
}

func SyncPoolPutBuffer(buffer *bytes.Buffer) {
	buffer.Reset()
	syncPool.Put(buffer)
}

func Md5PoolGetHasher() hash.Hash {
	return md5Pool.Get().(hash.Hash)
}

func Md5PoolPutHasher(h hash.Hash) {
	h.Reset()
	md5Pool.Put(h)
}

func Sha1PoolGetHasher() hash.Hash {
	return sha1Pool.Get().(hash.Hash)
}

func Sha1PoolPutHasher(h hash.Hash) {
	h.Reset()
	sha1Pool.Put(h)
}

func Sha256PoolGetHasher() hash.Hash {
	return sha256Pool.Get().(hash.Hash)
}

func Sha256PoolPutHasher(h hash.Hash) {
	h.Reset()
	sha256Pool.Put(h)
}

// Sha256Sum hashes data with a pooled hasher
func Sha256Sum(data ...[]byte) [sha256.Size]byte {
	h := Sha256PoolGetHasher()
	defer Sha256PoolPutHasher(h)
	for _, d := range data {
		h.Write(d)
	}
	var sum [sha256.Size]byte
	h.Sum(sum[:0])
	return sum
}
