// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/LeeDigitalWorks/stackfs/pkg/storage/backendtest"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wrapper is a minimal overlay used to exercise remote resolution
type wrapper struct {
	types.Backend
}

const storageTypeWrapper types.StorageType = "test-wrapper"

func init() {
	Register(storageTypeWrapper, func(cfg types.BackendConfig, r types.Resolver) (types.Backend, error) {
		if r == nil {
			return nil, types.NewConfigError(storageTypeWrapper, "remote", "no resolver")
		}
		inner, err := r.Resolve(cfg.Option("remote"))
		if err != nil {
			return nil, err
		}
		return &wrapper{Backend: inner}, nil
	})
}

// ============================================================================
// Registry Tests
// ============================================================================

func TestRegister_CustomType(t *testing.T) {
	t.Parallel()

	customType := types.StorageType("test-custom")

	// Register a custom factory
	Register(customType, func(cfg types.BackendConfig, _ types.Resolver) (types.Backend, error) {
		return NewMemoryStorage(), nil
	})

	// Create backend using registered factory
	backend, err := New(types.BackendConfig{Type: customType}, nil)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.Equal(t, types.StorageTypeMemory, backend.Type())
	assert.Contains(t, Registered(), customType)
}

func TestNew_UnknownType(t *testing.T) {
	t.Parallel()

	_, err := New(types.BackendConfig{Type: "unknown-type"}, nil)
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
	assert.Contains(t, err.Error(), "unknown storage type")
}

func TestRegistered_PrimaryBackends(t *testing.T) {
	t.Parallel()

	reg := Registered()
	for _, st := range []types.StorageType{
		types.StorageTypeMemory, types.StorageTypeLocal, types.StorageTypeS3,
		types.StorageTypeRedis, types.StorageTypeLevelDB, types.StorageTypeHTTP,
	} {
		assert.Contains(t, reg, st)
	}
}

func TestNew_MissingRequiredOption(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ    types.StorageType
		option string
	}{
		{types.StorageTypeLocal, "root"},
		{types.StorageTypeS3, "bucket"},
		{types.StorageTypeRedis, "addr"},
		{types.StorageTypeLevelDB, "path"},
		{types.StorageTypeHTTP, "url"},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			_, err := New(types.BackendConfig{Type: tt.typ}, nil)
			require.Error(t, err)
			var cerr *types.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.typ, cerr.Backend)
			assert.Equal(t, tt.option, cerr.Option)
			assert.Equal(t, "required", cerr.Reason)
		})
	}
}

func TestParseRef(t *testing.T) {
	t.Parallel()

	name, path, err := ParseRef("mem:")
	require.NoError(t, err)
	assert.Equal(t, "mem", name)
	assert.Equal(t, "", path)

	name, path, err = ParseRef("s3:/bucket/dir/")
	require.NoError(t, err)
	assert.Equal(t, "s3", name)
	assert.Equal(t, "bucket/dir/", path)

	for _, bad := range []string{"", "nocolon", ":path"} {
		_, _, err := ParseRef(bad)
		assert.True(t, types.IsConfigError(err), bad)
	}
}

// ============================================================================
// Manager Tests
// ============================================================================

func TestNewManager(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	require.NotNil(t, mgr)

	ids := mgr.List()
	assert.Empty(t, ids)
}

func TestManager_Add_Memory(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	err := mgr.AddMemory("test-mem")
	require.NoError(t, err)

	backend, ok := mgr.Get("test-mem")
	assert.True(t, ok)
	require.NotNil(t, backend)
	assert.Equal(t, types.StorageTypeMemory, backend.Type())
}

func TestManager_Add_UnknownType(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	err := mgr.Add("test", types.BackendConfig{Type: "invalid"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type")
	assert.Empty(t, mgr.List())
}

func TestManager_Add_ReplacesExisting(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	// Add first backend
	require.NoError(t, mgr.AddMemory("test"))

	// Write some data
	backend1, ok := mgr.Get("test")
	require.True(t, ok)
	backendtest.Write(t, backend1, "key1", []byte("data1"))

	// Add replacement backend with same ID
	require.NoError(t, mgr.AddMemory("test"))

	// New backend should be empty
	backend2, ok := mgr.Get("test")
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, backendtest.Status(t, backend2, types.MethodReadMeta, "key1"))
}

func TestManager_Get_NotFound(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	backend, ok := mgr.Get("nonexistent")
	assert.False(t, ok)
	assert.Nil(t, backend)
}

func TestManager_Remove(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	require.NoError(t, mgr.AddMemory("test"))
	require.NoError(t, mgr.Remove("test"))

	_, ok := mgr.Get("test")
	assert.False(t, ok)
	assert.Empty(t, mgr.List())
}

func TestManager_DefineIsLazy(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	// Defined before the remote it wraps
	mgr.Define("outer", types.BackendConfig{Type: storageTypeWrapper, Options: map[string]string{"remote": "inner:"}})
	mgr.Define("inner", types.BackendConfig{Type: types.StorageTypeMemory})
	assert.Equal(t, []string{"inner", "outer"}, mgr.List())

	outer, err := mgr.Resolve("outer:")
	require.NoError(t, err)
	inner, err := mgr.Resolve("inner:")
	require.NoError(t, err)

	w, ok := outer.(*wrapper)
	require.True(t, ok)
	assert.Same(t, inner, w.Backend)

	again, err := mgr.Resolve("outer:")
	require.NoError(t, err)
	assert.Same(t, outer, again)

	cfg, ok := mgr.Config("inner")
	require.True(t, ok)
	assert.Equal(t, types.StorageTypeMemory, cfg.Type)
}

func TestManager_ResolveUnknown(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	_, err := mgr.Resolve("nope:")
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
	assert.Contains(t, err.Error(), `unknown remote "nope"`)

	mgr.Define("broken", types.BackendConfig{Type: storageTypeWrapper, Options: map[string]string{"remote": "nope:"}})
	_, err = mgr.Resolve("broken:")
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
}

func TestManager_ResolveSubPathWithoutAlias(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()
	require.NoError(t, mgr.AddMemory("mem"))

	// this package does not link the alias overlay
	_, err := mgr.Resolve("mem:store")
	require.Error(t, err)
	var cfgErr *types.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "remote", cfgErr.Option)
	assert.Contains(t, err.Error(), "pkg/alias")

	b, err := mgr.Resolve("mem:")
	require.NoError(t, err)
	assert.Equal(t, types.StorageTypeMemory, b.Type())
}

func TestManager_ResolveCycle(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	defer mgr.Close()

	mgr.Define("a", types.BackendConfig{Type: storageTypeWrapper, Options: map[string]string{"remote": "b:"}})
	mgr.Define("b", types.BackendConfig{Type: storageTypeWrapper, Options: map[string]string{"remote": "a:"}})

	_, err := mgr.Resolve("a:")
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
	assert.True(t, strings.Contains(err.Error(), "references itself"), err.Error())
}

func TestManager_Close(t *testing.T) {
	t.Parallel()

	mgr := NewManager()
	require.NoError(t, mgr.AddMemory("a"))
	require.NoError(t, mgr.AddMemory("b"))
	require.NoError(t, mgr.Close())
	assert.Empty(t, mgr.List())
}

// ============================================================================
// Options Tests
// ============================================================================

type testOptions struct {
	Name    string `mapstructure:"name" validate:"required"`
	Count   int    `mapstructure:"count" validate:"gte=1"`
	Enabled bool   `mapstructure:"enabled"`
	Mode    string `mapstructure:"mode" validate:"oneof=fast slow"`
}

func TestDecodeOptions(t *testing.T) {
	t.Parallel()

	opts := testOptions{Count: 5, Mode: "fast"}
	err := DecodeOptions("test", map[string]string{
		"name":    "x",
		"enabled": "true",
		"count":   "",
		"unknown": "ignored",
	}, &opts)
	require.NoError(t, err)
	assert.Equal(t, testOptions{Name: "x", Count: 5, Enabled: true, Mode: "fast"}, opts)
}

func TestDecodeOptions_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     map[string]string
		option string
		reason string
	}{
		{"missing", map[string]string{}, "name", "required"},
		{"oneof", map[string]string{"name": "x", "mode": "medium"}, "mode", `must be one of [fast slow], got "medium"`},
		{"gte", map[string]string{"name": "x", "count": "0"}, "count", "must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions{Count: 1, Mode: "fast"}
			err := DecodeOptions("test", tt.in, &opts)
			var cerr *types.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.option, cerr.Option)
			assert.Equal(t, tt.reason, cerr.Reason)
		})
	}

	opts := testOptions{}
	err := DecodeOptions("test", map[string]string{"name": "x", "count": "many"}, &opts)
	assert.True(t, types.IsConfigError(err))
}

// ============================================================================
// Memory Backend
// ============================================================================

func TestMemory_Conformance(t *testing.T) {
	t.Parallel()

	backendtest.Run(t, func(t *testing.T) types.Backend {
		b := NewMemoryStorage()
		t.Cleanup(func() { b.Close() })
		return b
	})
}

func TestMemory_InstancesAreIndependent(t *testing.T) {
	t.Parallel()

	a, b := NewMemoryStorage(), NewMemoryStorage()
	backendtest.Write(t, a, "k", []byte("v"))
	assert.Equal(t, http.StatusNotFound, backendtest.Status(t, b, types.MethodReadMeta, "k"))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, []string{"k"}, a.Keys())
}

func TestMemory_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStorage().Handle(ctx, types.NewRequest(types.MethodReadMeta, "", nil))
	assert.ErrorIs(t, err, context.Canceled)
}
