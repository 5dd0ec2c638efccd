// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/LeeDigitalWorks/stackfs/pkg/types"
	"github.com/LeeDigitalWorks/stackfs/pkg/utils"
)

// tmpPrefix marks in-flight uploads; they are hidden from listings
const tmpPrefix = ".stackfs-tmp-"

func init() {
	Register(types.StorageTypeLocal, NewLocal)
}

// LocalOptions configures the local backend
type LocalOptions struct {
	Root string `mapstructure:"root" validate:"required"`
	// NoSync skips fdatasync before the rename that publishes a write
	NoSync bool `mapstructure:"no_sync"`
}

// Local implements Backend for a local filesystem directory
type Local struct {
	basePath string
	noSync   bool
}

// NewLocal creates a local filesystem backend
func NewLocal(cfg types.BackendConfig, _ types.Resolver) (types.Backend, error) {
	var opts LocalOptions
	if err := DecodeOptions(types.StorageTypeLocal, cfg.Options, &opts); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(utils.ResolvePath(opts.Root))
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	// Ensure base path exists
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create base path: %w", err)
	}

	return &Local{basePath: root, noSync: opts.NoSync}, nil
}

func (l *Local) Type() types.StorageType {
	return types.StorageTypeLocal
}

// resolve maps a request path onto the filesystem, refusing to leave the root
func (l *Local) resolve(path string) (string, error) {
	full := filepath.Join(l.basePath, filepath.FromSlash(types.CleanPath(path)))
	if full != l.basePath && !strings.HasPrefix(full, l.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes root", path)
	}
	return full, nil
}

func (l *Local) Handle(ctx context.Context, req *types.Request) (*types.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := types.CleanPath(req.Path)
	full, err := l.resolve(path)
	if err != nil {
		return types.NotFound(), nil
	}

	switch req.Method {
	case types.MethodReadMeta, types.MethodReadContent:
		if types.IsContainerPath(path) {
			return l.list(full, req.Method == types.MethodReadContent)
		}
		return l.read(req, full)
	case types.MethodWrite:
		if types.IsContainerPath(path) {
			if err := os.MkdirAll(full, 0755); err != nil {
				return nil, fmt.Errorf("create dir: %w", err)
			}
			return types.Created(path), nil
		}
		if err := l.write(ctx, full, req.Body); err != nil {
			return nil, err
		}
		return types.Created(path), nil
	case types.MethodDelete:
		if err := l.delete(path, full); err != nil {
			return nil, err
		}
		return types.NoContent(), nil
	default:
		return types.MethodNotAllowed(), nil
	}
}

func (l *Local) list(dir string, body bool) (*types.Response, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return types.NotFound(), nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		if e.IsDir() {
			names = append(names, e.Name()+"/")
		} else {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return types.ListingResponse(names, body), nil
}

func (l *Local) read(req *types.Request, path string) (*types.Response, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return types.NotFound(), nil
		}
		return nil, fmt.Errorf("stat: %w", err)
	}
	if info.IsDir() {
		return types.NotFound(), nil
	}

	obj := types.ObjectInfo{Size: info.Size(), ModTime: info.ModTime(), ContentType: types.ContentTypeFor(path)}
	return types.ObjectResponse(req, obj, func(offset, length int64) (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open: %w", err)
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek: %w", err)
		}
		return types.LimitReadCloser(f, length), nil
	})
}

// write streams body into a temp file next to the target, syncs it and
// renames it into place so readers never observe a partial object
func (l *Local) write(ctx context.Context, path string, body io.Reader) error {
	dir := filepath.Dir(path)
	// Ensure parent directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	f, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	tmp := f.Name()
	cleanup := func() {
		f.Close()
		os.Remove(tmp) // Clean up on error
	}

	if body != nil {
		if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: body}); err != nil {
			cleanup()
			return fmt.Errorf("write data: %w", err)
		}
	}
	if !l.noSync {
		if err := Fdatasync(f); err != nil {
			cleanup()
			return fmt.Errorf("sync: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (l *Local) delete(path, full string) error {
	if !types.IsContainerPath(path) {
		info, err := os.Lstat(full)
		if err != nil || info.IsDir() {
			return nil // Already gone
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove: %w", err)
		}
		return nil
	}

	if full != l.basePath {
		if err := os.RemoveAll(full); err != nil {
			return fmt.Errorf("remove dir: %w", err)
		}
		return nil
	}

	// The root itself survives; only its contents go
	entries, err := os.ReadDir(full)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(full, e.Name())); err != nil {
			return fmt.Errorf("remove: %w", err)
		}
	}
	return nil
}

func (l *Local) Close() error {
	return nil
}

// ctxReader stops a copy once ctx is cancelled
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
