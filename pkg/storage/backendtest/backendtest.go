// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package backendtest is a conformance suite for types.Backend
// implementations, plus helpers for driving a backend from tests.
package backendtest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty backend. Cleanup is registered on t.
type Factory func(t *testing.T) types.Backend

// Run exercises the uniform backend contract against fresh backends
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, b types.Backend)
	}{
		{"WriteThenRead", testWriteThenRead},
		{"Overwrite", testOverwrite},
		{"EmptyObject", testEmptyObject},
		{"NotFound", testNotFound},
		{"ContainerCreateIdempotent", testContainerCreate},
		{"Listing", testListing},
		{"RangeRead", testRangeRead},
		{"DeleteIdempotent", testDeleteIdempotent},
		{"DeleteRecursive", testDeleteRecursive},
		{"EmptyRoot", testEmptyRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newBackend(t))
		})
	}
}

// ============================================================================
// Helpers
// ============================================================================

// Do issues a request and fails the test on a Go error
func Do(t *testing.T, b types.Backend, req *types.Request) *types.Response {
	t.Helper()
	resp, err := b.Handle(context.Background(), req)
	require.NoError(t, err, "%s %s", req.Method, req.Path)
	require.NotNil(t, resp)
	t.Cleanup(func() { resp.Close() })
	return resp
}

// Write stores data at path and expects 201
func Write(t *testing.T, b types.Backend, path string, data []byte) {
	t.Helper()
	resp := Do(t, b, types.NewRequest(types.MethodWrite, path, bytes.NewReader(data)))
	require.Equal(t, http.StatusCreated, resp.Status, "write %s", path)
}

// Read returns the full content of path and expects 200
func Read(t *testing.T, b types.Backend, path string) []byte {
	t.Helper()
	resp := Do(t, b, types.NewRequest(types.MethodReadContent, path, nil))
	require.Equal(t, http.StatusOK, resp.Status, "read %s", path)
	require.NotNil(t, resp.Body)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

// List returns the child names of container path and expects 200
func List(t *testing.T, b types.Backend, path string) []string {
	t.Helper()
	resp := Do(t, b, types.NewRequest(types.MethodReadMeta, path, nil))
	require.Equal(t, http.StatusOK, resp.Status, "list %s", path)
	return types.Links(resp.Header)
}

// Status issues a body-less request and returns its status code
func Status(t *testing.T, b types.Backend, method types.Method, path string) int {
	t.Helper()
	return Do(t, b, types.NewRequest(method, path, nil)).Status
}

// AssertNames compares listings ignoring order
func AssertNames(t *testing.T, want, got []string) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.SortSlices(func(a, b string) bool { return a < b }), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}
}

// ============================================================================
// Contract
// ============================================================================

func testWriteThenRead(t *testing.T, b types.Backend) {
	data := []byte("hello, backend")
	resp := Do(t, b, types.NewRequest(types.MethodWrite, "hello.txt", bytes.NewReader(data)))
	require.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "hello.txt", resp.Header.Get("Location"))

	assert.Equal(t, data, Read(t, b, "hello.txt"))

	meta := Do(t, b, types.NewRequest(types.MethodReadMeta, "hello.txt", nil))
	require.Equal(t, http.StatusOK, meta.Status)
	assert.Nil(t, meta.Body)
	assert.Equal(t, int64(len(data)), meta.ContentLength())
	assert.NotEmpty(t, meta.Header.Get("Content-Type"))
}

func testOverwrite(t *testing.T, b types.Backend) {
	Write(t, b, "f", []byte("first version, longer"))
	Write(t, b, "f", []byte("second"))
	assert.Equal(t, []byte("second"), Read(t, b, "f"))
}

func testEmptyObject(t *testing.T, b types.Backend) {
	Write(t, b, "empty", nil)
	assert.Empty(t, Read(t, b, "empty"))

	meta := Do(t, b, types.NewRequest(types.MethodReadMeta, "empty", nil))
	require.Equal(t, http.StatusOK, meta.Status)
	assert.Equal(t, int64(0), meta.ContentLength())
}

func testNotFound(t *testing.T, b types.Backend) {
	assert.Equal(t, http.StatusNotFound, Status(t, b, types.MethodReadMeta, "missing"))
	assert.Equal(t, http.StatusNotFound, Status(t, b, types.MethodReadContent, "missing"))
	assert.Equal(t, http.StatusNotFound, Status(t, b, types.MethodReadMeta, "missing/"))
	assert.Equal(t, http.StatusNotFound, Status(t, b, types.MethodReadMeta, "no/such/file"))
}

func testContainerCreate(t *testing.T, b types.Backend) {
	for range 2 {
		status := Status(t, b, types.MethodWrite, "dir/")
		assert.True(t, status >= 200 && status < 300, "mkdir status %d", status)
	}
	AssertNames(t, []string{"dir/"}, List(t, b, ""))
	AssertNames(t, nil, List(t, b, "dir/"))
}

func testListing(t *testing.T, b types.Backend) {
	Write(t, b, "a", []byte("1"))
	Write(t, b, "d/b", []byte("2"))
	Write(t, b, "d/e/f", []byte("3"))
	Write(t, b, "d.txt", []byte("4"))

	AssertNames(t, []string{"a", "d/", "d.txt"}, List(t, b, ""))
	AssertNames(t, []string{"b", "e/"}, List(t, b, "d/"))
	AssertNames(t, []string{"f"}, List(t, b, "d/e/"))
}

func testRangeRead(t *testing.T, b types.Backend) {
	Write(t, b, "r", []byte("0123456789"))

	req := types.NewRequest(types.MethodReadContent, "r", nil)
	req.Header.Set("Range", "bytes=2-5")
	resp := Do(t, b, req)
	require.Equal(t, http.StatusPartialContent, resp.Status)
	assert.Equal(t, "bytes 2-5/10", resp.Header.Get("Content-Range"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(data))

	req = types.NewRequest(types.MethodReadContent, "r", nil)
	req.Header.Set("Range", "bytes=7-")
	resp = Do(t, b, req)
	require.Equal(t, http.StatusPartialContent, resp.Status)
	data, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "789", string(data))
}

func testDeleteIdempotent(t *testing.T, b types.Backend) {
	Write(t, b, "gone", []byte("x"))
	assert.Equal(t, http.StatusNoContent, Status(t, b, types.MethodDelete, "gone"))
	assert.Equal(t, http.StatusNoContent, Status(t, b, types.MethodDelete, "gone"))
	assert.Equal(t, http.StatusNotFound, Status(t, b, types.MethodReadMeta, "gone"))
	assert.Equal(t, http.StatusNoContent, Status(t, b, types.MethodDelete, "never-existed/"))
}

func testDeleteRecursive(t *testing.T, b types.Backend) {
	Write(t, b, "keep", []byte("k"))
	Write(t, b, "d/x", []byte("x"))
	Write(t, b, "d/y/z", []byte("z"))
	Status(t, b, types.MethodWrite, "d/empty/")

	assert.Equal(t, http.StatusNoContent, Status(t, b, types.MethodDelete, "d/"))
	assert.Equal(t, http.StatusNotFound, Status(t, b, types.MethodReadMeta, "d/x"))
	assert.Equal(t, http.StatusNotFound, Status(t, b, types.MethodReadMeta, "d/y/z"))
	assert.Equal(t, http.StatusNotFound, Status(t, b, types.MethodReadMeta, "d/"))
	AssertNames(t, []string{"keep"}, List(t, b, ""))
}

func testEmptyRoot(t *testing.T, b types.Backend) {
	AssertNames(t, nil, List(t, b, ""))
}
