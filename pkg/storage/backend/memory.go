// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/google/btree"
)

func init() {
	Register(types.StorageTypeMemory, func(cfg types.BackendConfig, _ types.Resolver) (types.Backend, error) {
		return NewMemoryStorage(), nil
	})
}

// memoryEntry is one object or directory marker. Markers end in "/".
type memoryEntry struct {
	key     string
	data    []byte
	modTime time.Time
}

func lessEntry(a, b memoryEntry) bool { return a.key < b.key }

// MemoryStorage keeps objects in an ordered map owned by the instance, so
// independent stores can coexist in one process. Containers exist
// implicitly under any object and explicitly through directory markers.
type MemoryStorage struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[memoryEntry]
	now  func() time.Time
}

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tree: btree.NewG(32, lessEntry),
		now:  time.Now,
	}
}

func (m *MemoryStorage) Type() types.StorageType {
	return types.StorageTypeMemory
}

func (m *MemoryStorage) Handle(ctx context.Context, req *types.Request) (*types.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := types.CleanPath(req.Path)

	switch req.Method {
	case types.MethodReadMeta, types.MethodReadContent:
		if types.IsContainerPath(path) {
			return m.list(path, req.Method == types.MethodReadContent), nil
		}
		return m.read(req, path)
	case types.MethodWrite:
		if types.IsContainerPath(path) {
			m.mkdir(path)
			return types.Created(path), nil
		}
		return m.write(req, path)
	case types.MethodDelete:
		m.delete(path)
		return types.NoContent(), nil
	default:
		return types.MethodNotAllowed(), nil
	}
}

func (m *MemoryStorage) read(req *types.Request, path string) (*types.Response, error) {
	m.mu.RLock()
	e, ok := m.tree.Get(memoryEntry{key: path})
	m.mu.RUnlock()
	if !ok {
		return types.NotFound(), nil
	}

	// Stored slices are never mutated after insert
	data := e.data
	info := types.ObjectInfo{Size: int64(len(data)), ModTime: e.modTime, ContentType: types.ContentTypeFor(path)}
	return types.ObjectResponse(req, info, func(offset, length int64) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data[offset : offset+length])), nil
	})
}

func (m *MemoryStorage) write(req *types.Request, path string) (*types.Response, error) {
	var data []byte
	if req.Body != nil {
		buf, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		data = buf
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.ReplaceOrInsert(memoryEntry{key: path, data: data, modTime: m.now()})
	return types.Created(path), nil
}

func (m *MemoryStorage) mkdir(path string) {
	if path == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tree.Get(memoryEntry{key: path}); !ok {
		m.tree.ReplaceOrInsert(memoryEntry{key: path, modTime: m.now()})
	}
}

func (m *MemoryStorage) list(prefix string, body bool) *types.Response {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := prefix == ""
	var names []string
	m.tree.AscendGreaterOrEqual(memoryEntry{key: prefix}, func(e memoryEntry) bool {
		if !strings.HasPrefix(e.key, prefix) {
			return false
		}
		found = true
		rest := e.key[len(prefix):]
		if rest == "" {
			return true
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i+1]
		}
		// Children of a sub-directory are contiguous in key order
		if len(names) == 0 || names[len(names)-1] != rest {
			names = append(names, rest)
		}
		return true
	})

	if !found {
		return types.NotFound()
	}
	return types.ListingResponse(names, body)
}

func (m *MemoryStorage) delete(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !types.IsContainerPath(path) {
		m.tree.Delete(memoryEntry{key: path})
		return
	}

	var doomed []memoryEntry
	m.tree.AscendGreaterOrEqual(memoryEntry{key: path}, func(e memoryEntry) bool {
		if !strings.HasPrefix(e.key, path) {
			return false
		}
		doomed = append(doomed, e)
		return true
	})
	for _, e := range doomed {
		m.tree.Delete(e)
	}
}

// Len returns the number of stored objects and markers
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

// Keys returns every stored key in order
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, m.tree.Len())
	m.tree.Ascend(func(e memoryEntry) bool {
		keys = append(keys, e.key)
		return true
	})
	return keys
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Clear(false)
	return nil
}

// AddMemory is a convenience method to add a memory remote to the manager
func (mgr *Manager) AddMemory(name string) error {
	return mgr.Add(name, types.BackendConfig{
		Type: types.StorageTypeMemory,
	})
}
