// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"context"
)

// StorageType identifies a backend implementation in the registry
type StorageType string

const (
	StorageTypeLocal   StorageType = "local"   // Local filesystem
	StorageTypeMemory  StorageType = "memory"  // In-process ordered map
	StorageTypeS3      StorageType = "s3"      // S3-compatible
	StorageTypeRedis   StorageType = "redis"   // Redis string keys
	StorageTypeLevelDB StorageType = "leveldb" // Embedded LevelDB
	StorageTypeHTTP    StorageType = "http"    // Read-only link-metadata server

	StorageTypeAlias   StorageType = "alias"   // Path aliasing overlay
	StorageTypeChunker StorageType = "chunker" // Large file splitting overlay
	StorageTypeCrypt   StorageType = "crypt"   // Content and name encryption overlay
)

// Backend is the uniform contract every storage provider and overlay satisfies.
//
// Protocol outcomes (200, 201, 204, 206, 404, 416) are carried by
// Response.Status. A returned error means the request could not be carried
// out at all: a configuration problem, an I/O failure, or an integrity
// violation detected before any body was produced.
type Backend interface {
	// Type returns the storage type
	Type() StorageType

	// Handle serves a single content request
	Handle(ctx context.Context, req *Request) (*Response, error)

	// Close releases any resources
	Close() error
}

// BackendConfig contains configuration for creating a backend instance.
// Options carries query-parameter style key/value configuration.
type BackendConfig struct {
	Type    StorageType       `json:"type" mapstructure:"type"`
	Options map[string]string `json:"options,omitempty" mapstructure:",remain"`
}

// Option returns a configuration value or "" if unset.
func (c BackendConfig) Option(key string) string {
	if c.Options == nil {
		return ""
	}
	return c.Options[key]
}

// Resolver turns a remote reference ("name:" or "name:sub/path") into a Backend.
// Overlays use it to reach the backend they wrap.
type Resolver interface {
	Resolve(ref string) (Backend, error)
}
