// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package alias

import (
	"net/http"
	"testing"

	"github.com/LeeDigitalWorks/stackfs/pkg/storage/backend"
	"github.com/LeeDigitalWorks/stackfs/pkg/storage/backendtest"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlias_Conformance(t *testing.T) {
	t.Parallel()

	backendtest.Run(t, func(t *testing.T) types.Backend {
		mem := backend.NewMemoryStorage()
		backendtest.Status(t, mem, types.MethodWrite, "tenant/a/")
		return Wrap(mem, "tenant/a")
	})
}

func TestAlias_RewritesPaths(t *testing.T) {
	t.Parallel()

	mem := backend.NewMemoryStorage()
	a := Wrap(mem, "/base/")
	assert.Equal(t, "base/", a.Root())

	resp := backendtest.Do(t, a, types.NewRequest(types.MethodWrite, "/x/y.txt", nil))
	require.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "x/y.txt", resp.Header.Get("Location"))
	assert.Equal(t, []string{"base/x/y.txt"}, mem.Keys())

	backendtest.AssertNames(t, []string{"x/"}, backendtest.List(t, a, ""))
}

func TestAlias_EmptyRootIsTransparent(t *testing.T) {
	t.Parallel()

	mem := backend.NewMemoryStorage()
	a := Wrap(mem, "")
	backendtest.Write(t, a, "f", []byte("1"))
	assert.Equal(t, []string{"f"}, mem.Keys())
}

// ============================================================================
// Manager sub path references
// ============================================================================

func TestManager_SubPathReference(t *testing.T) {
	t.Parallel()

	mgr := backend.NewManager()
	defer mgr.Close()
	require.NoError(t, mgr.AddMemory("mem"))

	root, err := mgr.Resolve("mem:")
	require.NoError(t, err)
	backendtest.Write(t, root, "photos/2024/a.jpg", []byte("jpg"))

	sub, err := mgr.Resolve("mem:photos/2024/")
	require.NoError(t, err)
	assert.Equal(t, types.StorageTypeAlias, sub.Type())
	assert.Equal(t, []byte("jpg"), backendtest.Read(t, sub, "a.jpg"))
	backendtest.AssertNames(t, []string{"a.jpg"}, backendtest.List(t, sub, ""))
}

func TestAlias_ConfiguredRemote(t *testing.T) {
	t.Parallel()

	mgr := backend.NewManager()
	defer mgr.Close()
	require.NoError(t, mgr.AddMemory("mem"))
	mgr.Define("docs", types.BackendConfig{
		Type:    types.StorageTypeAlias,
		Options: map[string]string{"remote": "mem:", "root": "documents"},
	})

	docs, err := mgr.Resolve("docs:")
	require.NoError(t, err)
	backendtest.Write(t, docs, "cv.pdf", []byte("pdf"))

	mem, _ := mgr.Get("mem")
	assert.Equal(t, []byte("pdf"), backendtest.Read(t, mem, "documents/cv.pdf"))

	// A sub path of an alias stacks a second alias
	nested, err := mgr.Resolve("docs:inner")
	require.NoError(t, err)
	backendtest.Write(t, nested, "n", []byte("n"))
	assert.Equal(t, []byte("n"), backendtest.Read(t, mem, "documents/inner/n"))
}

func TestAlias_MissingRemote(t *testing.T) {
	t.Parallel()

	_, err := New(types.BackendConfig{Type: types.StorageTypeAlias}, backend.NewManager())
	require.Error(t, err)
	var cfgErr *types.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "remote", cfgErr.Option)

	_, err = New(types.BackendConfig{Type: types.StorageTypeAlias, Options: map[string]string{"remote": "x:"}}, nil)
	assert.True(t, types.IsConfigError(err))
}
