// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	levelObjectNS = "o:"
	levelDirNS    = "d:"
)

func init() {
	Register(types.StorageTypeLevelDB, NewLevelDB)
}

// LevelDBOptions configures the leveldb backend
type LevelDBOptions struct {
	Path string `mapstructure:"path" validate:"required"`
	// Sync fsyncs the write-ahead log on every write
	Sync bool `mapstructure:"sync"`
}

// LevelDB keeps objects in an embedded ordered key/value store. Values are
// an 8-byte big-endian modification time followed by the object bytes.
type LevelDB struct {
	db   *leveldb.DB
	wopt *opt.WriteOptions
}

// NewLevelDB opens (or creates) the database at the configured path
func NewLevelDB(cfg types.BackendConfig, _ types.Resolver) (types.Backend, error) {
	var o LevelDBOptions
	if err := DecodeOptions(types.StorageTypeLevelDB, cfg.Options, &o); err != nil {
		return nil, err
	}
	db, err := leveldb.OpenFile(o.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", o.Path, err)
	}
	return NewLevelDBWithDB(db, o.Sync), nil
}

// NewLevelDBWithDB wraps an open database. The backend closes it.
func NewLevelDBWithDB(db *leveldb.DB, sync bool) *LevelDB {
	return &LevelDB{db: db, wopt: &opt.WriteOptions{Sync: sync}}
}

func (l *LevelDB) Type() types.StorageType {
	return types.StorageTypeLevelDB
}

func (l *LevelDB) Handle(ctx context.Context, req *types.Request) (*types.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := types.CleanPath(req.Path)

	switch req.Method {
	case types.MethodReadMeta, types.MethodReadContent:
		if types.IsContainerPath(path) {
			return l.list(path, req.Method == types.MethodReadContent)
		}
		return l.read(req, path)
	case types.MethodWrite:
		if types.IsContainerPath(path) {
			if path != "" {
				if err := l.db.Put([]byte(levelDirNS+path), nil, l.wopt); err != nil {
					return nil, fmt.Errorf("leveldb put: %w", err)
				}
			}
			return types.Created(path), nil
		}
		if err := l.write(path, req.Body); err != nil {
			return nil, err
		}
		return types.Created(path), nil
	case types.MethodDelete:
		if err := l.delete(path); err != nil {
			return nil, err
		}
		return types.NoContent(), nil
	default:
		return types.MethodNotAllowed(), nil
	}
}

func (l *LevelDB) write(path string, body io.Reader) error {
	var buf bytes.Buffer
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UnixNano()))
	buf.Write(ts[:])
	if body != nil {
		if _, err := io.Copy(&buf, body); err != nil {
			return fmt.Errorf("read body: %w", err)
		}
	}
	if err := l.db.Put([]byte(levelObjectNS+path), buf.Bytes(), l.wopt); err != nil {
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

func (l *LevelDB) read(req *types.Request, path string) (*types.Response, error) {
	value, err := l.db.Get([]byte(levelObjectNS+path), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return types.NotFound(), nil
		}
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	if len(value) < 8 {
		return nil, fmt.Errorf("leveldb value for %s: %w", path, types.ErrIntegrity)
	}

	data := value[8:]
	info := types.ObjectInfo{
		Size:        int64(len(data)),
		ModTime:     time.Unix(0, int64(binary.BigEndian.Uint64(value[:8]))),
		ContentType: types.ContentTypeFor(path),
	}
	return types.ObjectResponse(req, info, func(offset, length int64) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data[offset : offset+length])), nil
	})
}

// children collects the immediate children of prefix from one namespace
func (l *LevelDB) children(ns, prefix string, names []string) ([]string, bool, error) {
	iter := l.db.NewIterator(util.BytesPrefix([]byte(ns+prefix)), nil)
	defer iter.Release()

	found := false
	for iter.Next() {
		found = true
		rest := string(iter.Key())[len(ns)+len(prefix):]
		if rest == "" {
			continue
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i+1]
		}
		if len(names) == 0 || names[len(names)-1] != rest {
			names = append(names, rest)
		}
	}
	return names, found, iter.Error()
}

func (l *LevelDB) list(path string, body bool) (*types.Response, error) {
	names, foundObj, err := l.children(levelObjectNS, path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb iterate: %w", err)
	}
	names, foundDir, err := l.children(levelDirNS, path, names)
	if err != nil {
		return nil, fmt.Errorf("leveldb iterate: %w", err)
	}
	if path != "" && !foundObj && !foundDir {
		return types.NotFound(), nil
	}
	slices.Sort(names)
	return types.ListingResponse(slices.Compact(names), body), nil
}

func (l *LevelDB) delete(path string) error {
	if !types.IsContainerPath(path) {
		if err := l.db.Delete([]byte(levelObjectNS+path), l.wopt); err != nil {
			return fmt.Errorf("leveldb delete: %w", err)
		}
		return nil
	}

	batch := new(leveldb.Batch)
	for _, ns := range []string{levelObjectNS, levelDirNS} {
		iter := l.db.NewIterator(util.BytesPrefix([]byte(ns+path)), nil)
		for iter.Next() {
			batch.Delete(slices.Clone(iter.Key()))
		}
		iter.Release()
		if err := iter.Error(); err != nil {
			return fmt.Errorf("leveldb iterate: %w", err)
		}
	}
	if err := l.db.Write(batch, l.wopt); err != nil {
		return fmt.Errorf("leveldb batch delete: %w", err)
	}
	return nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
