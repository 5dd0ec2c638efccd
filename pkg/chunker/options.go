// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

import (
	"fmt"
	"hash"
	"strings"

	"github.com/LeeDigitalWorks/stackfs/pkg/storage/backend"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"
	"github.com/LeeDigitalWorks/stackfs/pkg/utils"

	"github.com/dustin/go-humanize"
)

// Defaults for unset options
const (
	DefaultChunkSize = "2GiB"
	DefaultStartFrom = 1
)

// MetaFormat selects how composite files are described
type MetaFormat string

const (
	MetaFormatSimpleJSON MetaFormat = "simplejson" // record under the composite's name
	MetaFormatNone       MetaFormat = "none"       // chunks only
)

// HashType selects the digest stored in the record
type HashType string

const (
	HashNone HashType = "none"
	HashMD5  HashType = "md5"
	HashSHA1 HashType = "sha1"
)

// newHasher returns a pooled hasher and its release func, or nil for HashNone
func (h HashType) newHasher() (hash.Hash, func()) {
	switch h {
	case HashMD5:
		hh := utils.Md5PoolGetHasher()
		return hh, func() { utils.Md5PoolPutHasher(hh) }
	case HashSHA1:
		hh := utils.Sha1PoolGetHasher()
		return hh, func() { utils.Sha1PoolPutHasher(hh) }
	}
	return nil, func() {}
}

// Transactions selects how a write names its chunks
type Transactions string

const (
	// TransactionsRename writes chunks under plain chunk names
	TransactionsRename Transactions = "rename"
	// TransactionsNoRename suffixes chunk names with a fresh id per write
	TransactionsNoRename Transactions = "norename"
)

// Options configures the chunker overlay
type Options struct {
	Remote       string       `mapstructure:"remote" validate:"required"`
	ChunkSize    string       `mapstructure:"chunk_size"`
	NameFormat   string       `mapstructure:"name_format"`
	StartFrom    int          `mapstructure:"start_from" validate:"gte=0"`
	MetaFormat   MetaFormat   `mapstructure:"meta_format" validate:"oneof=simplejson none"`
	HashType     HashType     `mapstructure:"hash_type" validate:"oneof=none md5 sha1"`
	FailHard     bool         `mapstructure:"fail_hard"`
	Transactions Transactions `mapstructure:"transactions" validate:"oneof=rename norename"`

	// SkipExisting skips uploading a chunk that a metadata probe finds
	// already present, so a retried upload only sends what is missing.
	// Existing chunk content is not compared.
	SkipExisting bool `mapstructure:"skip_existing"`
}

// DefaultOptions returns the options used for unset keys
func DefaultOptions() Options {
	return Options{
		ChunkSize:    DefaultChunkSize,
		NameFormat:   DefaultNameFormat,
		StartFrom:    DefaultStartFrom,
		MetaFormat:   MetaFormatSimpleJSON,
		HashType:     HashMD5,
		Transactions: TransactionsRename,
		SkipExisting: true,
	}
}

// ParseOptions decodes and validates query-style options
func ParseOptions(opts map[string]string) (Options, error) {
	o := DefaultOptions()
	if err := backend.DecodeOptions(types.StorageTypeChunker, opts, &o); err != nil {
		return Options{}, err
	}
	return o, nil
}

// ParseChunkSize parses a size such as "65536", "4M", "4MiB" or "2G".
// Single letter suffixes are binary, so "4M" is 4MiB.
func ParseChunkSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n := len(s); n >= 2 && strings.ContainsRune("kmgtpKMGTP", rune(s[n-1])) && s[n-2] >= '0' && s[n-2] <= '9' {
		s += "iB"
	}
	size, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if size < 1 || size > 1<<62 {
		return 0, fmt.Errorf("%d is out of range", size)
	}
	return int64(size), nil
}
