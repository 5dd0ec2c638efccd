// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LeeDigitalWorks/stackfs/pkg/storage/backend"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func serve(t *testing.T, h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

// ============================================================================
// Method mapping
// ============================================================================

func TestServer_PutGetHead(t *testing.T) {
	t.Parallel()

	s := New(backend.NewMemoryStorage())

	rec := serve(t, s, http.MethodPut, "/docs/readme.txt", strings.NewReader("hello"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "docs/readme.txt", rec.Header().Get("Location"))

	rec = serve(t, s, http.MethodGet, "/docs/readme.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))

	rec = serve(t, s, http.MethodHead, "/docs/readme.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "5", rec.Header().Get("Content-Length"))
}

func TestServer_ListingAsLinks(t *testing.T) {
	t.Parallel()

	mem := backend.NewMemoryStorage()
	s := New(mem)
	serve(t, s, http.MethodPut, "/a", strings.NewReader("1"))
	serve(t, s, http.MethodPut, "/d/b", strings.NewReader("2"))

	rec := serve(t, s, http.MethodHead, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"a", "d/"}, types.Links(rec.Header()))

	rec = serve(t, s, http.MethodGet, "/d/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"b"}, types.Links(rec.Header()))
	assert.Equal(t, "b\n", rec.Body.String())
}

func TestServer_Mkcol(t *testing.T) {
	t.Parallel()

	mem := backend.NewMemoryStorage()
	s := New(mem)

	rec := serve(t, s, "MKCOL", "/newdir", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"newdir/"}, mem.Keys())
}

func TestServer_Delete(t *testing.T) {
	t.Parallel()

	s := New(backend.NewMemoryStorage())
	serve(t, s, http.MethodPut, "/x", strings.NewReader("x"))

	assert.Equal(t, http.StatusNoContent, serve(t, s, http.MethodDelete, "/x", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(t, s, http.MethodGet, "/x", nil).Code)
}

func TestServer_Range(t *testing.T) {
	t.Parallel()

	s := New(backend.NewMemoryStorage())
	serve(t, s, http.MethodPut, "/r", strings.NewReader("0123456789"))

	req := httptest.NewRequest(http.MethodGet, "/r", nil)
	req.Header.Set("Range", "bytes=-3")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "789", rec.Body.String())
	assert.Equal(t, "bytes 7-9/10", rec.Header().Get("Content-Range"))
}

func TestServer_UnknownMethod(t *testing.T) {
	t.Parallel()

	rec := serve(t, New(backend.NewMemoryStorage()), http.MethodPost, "/x", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Allow"))
}

func TestServer_ReadOnly(t *testing.T) {
	t.Parallel()

	mem := backend.NewMemoryStorage()
	s := New(mem, WithReadOnly())

	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, s, http.MethodPut, "/x", strings.NewReader("x")).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, s, "MKCOL", "/d", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, s, http.MethodDelete, "/x", nil).Code)
	assert.Zero(t, mem.Len())
	assert.Equal(t, http.StatusOK, serve(t, s, http.MethodHead, "/", nil).Code)
}

// ============================================================================
// Errors and request ids
// ============================================================================

type failingBackend struct {
	err error
}

func (f failingBackend) Type() types.StorageType { return types.StorageTypeMemory }

func (f failingBackend) Handle(context.Context, *types.Request) (*types.Response, error) {
	return nil, f.err
}

func (f failingBackend) Close() error { return nil }

func TestServer_ErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"integrity", types.ErrIntegrity, http.StatusBadGateway},
		{"incomplete", types.ErrIncompleteComposite, http.StatusBadGateway},
		{"config", types.NewConfigError(types.StorageTypeCrypt, "password", "required"), http.StatusBadRequest},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(t, New(failingBackend{err: tt.err}), http.MethodGet, "/x", nil)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestServer_RequestID(t *testing.T) {
	t.Parallel()

	s := New(backend.NewMemoryStorage())

	rec := serve(t, s, http.MethodHead, "/", nil)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodHead, "/", nil)
	req.Header.Set(RequestIDHeader, "given-id")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, "given-id", rec.Header().Get(RequestIDHeader))
}
