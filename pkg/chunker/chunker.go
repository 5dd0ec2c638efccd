// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunker splits files larger than a configured chunk size into
// several objects on the wrapped remote and joins them back on read.
//
// A composite file "name" is stored as chunks format(name, i) for i from
// start_from, plus (with meta_format=simplejson) a small JSON record under
// "name" itself. Files no larger than one chunk are stored unchanged.
package chunker

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	_ "github.com/LeeDigitalWorks/stackfs/pkg/alias"
	"github.com/LeeDigitalWorks/stackfs/pkg/logger"
	"github.com/LeeDigitalWorks/stackfs/pkg/storage/backend"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/google/uuid"
)

// ChunkCountHeader reports the number of chunks behind a composite file
const ChunkCountHeader = "X-Chunk-Count"

// ErrReservedName rejects writes to names that look like chunks
var ErrReservedName = errors.New("name is reserved for chunks")

func init() {
	backend.Register(types.StorageTypeChunker, New)
}

// Chunker is the chunking overlay
type Chunker struct {
	inner     types.Backend
	opts      Options
	chunkSize int64
	names     NameFormat
}

// New creates a chunker overlay from config
func New(cfg types.BackendConfig, r types.Resolver) (types.Backend, error) {
	opts, err := ParseOptions(cfg.Options)
	if err != nil {
		return nil, err
	}
	inner, err := backend.ResolveRemote(types.StorageTypeChunker, r, opts.Remote)
	if err != nil {
		return nil, err
	}
	return Wrap(inner, opts)
}

// Wrap creates a chunker over inner. opts.Remote is not consulted.
func Wrap(inner types.Backend, opts Options) (*Chunker, error) {
	size, err := ParseChunkSize(opts.ChunkSize)
	if err != nil {
		return nil, types.NewConfigError(types.StorageTypeChunker, "chunk_size", "%v", err)
	}
	names, err := ParseNameFormat(opts.NameFormat)
	if err != nil {
		return nil, types.NewConfigError(types.StorageTypeChunker, "name_format", "%q %v", opts.NameFormat, err)
	}
	if opts.StartFrom < 0 {
		return nil, types.NewConfigError(types.StorageTypeChunker, "start_from", "must be at least 0")
	}
	return &Chunker{inner: inner, opts: opts, chunkSize: size, names: names}, nil
}

func (c *Chunker) Type() types.StorageType {
	return types.StorageTypeChunker
}

// ChunkSize returns the configured chunk size in bytes
func (c *Chunker) ChunkSize() int64 {
	return c.chunkSize
}

func (c *Chunker) Handle(ctx context.Context, req *types.Request) (*types.Response, error) {
	path := types.CleanPath(req.Path)
	if types.IsContainerPath(path) {
		switch req.Method {
		case types.MethodReadMeta, types.MethodReadContent:
			return c.list(ctx, req, path)
		}
		return c.inner.Handle(ctx, req)
	}

	switch req.Method {
	case types.MethodReadMeta, types.MethodReadContent:
		return c.read(ctx, req, path)
	case types.MethodWrite:
		return c.write(ctx, req, path)
	case types.MethodDelete:
		return c.delete(ctx, path)
	}
	return types.MethodNotAllowed(), nil
}

// Close is a no-op; the wrapped remote is owned by whoever resolved it
func (c *Chunker) Close() error {
	return nil
}

func (c *Chunker) simpleJSON() bool {
	return c.opts.MetaFormat == MetaFormatSimpleJSON
}

func (c *Chunker) chunkPath(dir, name string, index int, txn string) string {
	return dir + c.names.Format(name, c.opts.StartFrom+index, txn)
}

// ============================================================================
// Write
// ============================================================================

// uploadState is the one-chunk lookahead of a streaming write. A chunk is
// only uploaded once the next one exists, because until then it is unknown
// whether the file is a single object or a composite.
type uploadState int

const (
	noChunkYet uploadState = iota
	holdingOneChunk
)

type upload struct {
	c     *Chunker
	ctx   context.Context
	dir   string
	name  string
	txn   string
	skip  bool
	state uploadState
	held  []byte
	sent  int // chunks uploaded so far
	size  int64
	keep  map[string]bool
}

func (c *Chunker) write(ctx context.Context, req *types.Request, path string) (*types.Response, error) {
	dir, name := types.ParentPath(path)
	if _, _, _, ok := c.names.Parse(name); ok {
		return nil, fmt.Errorf("%w: %s", ErrReservedName, path)
	}

	// Chunks of whatever was stored here before
	existing, err := c.scanGroup(ctx, dir, name)
	if err != nil {
		return nil, err
	}

	u := &upload{c: c, ctx: ctx, dir: dir, name: name, keep: make(map[string]bool)}
	if c.opts.Transactions == TransactionsNoRename {
		u.txn = strings.ReplaceAll(uuid.NewString(), "-", "")
	} else if c.opts.SkipExisting && c.simpleJSON() {
		// Skipping is for retries of an interrupted write. Over a complete
		// composite the chunk names are taken by the old content.
		old, err := c.readRecord(ctx, path)
		if err != nil {
			return nil, err
		}
		u.skip = old == nil
	}

	hasher, release := c.opts.HashType.newHasher()
	defer release()

	body := io.Reader(http.NoBody)
	if req.Body != nil {
		body = req.Body
	}
	if hasher != nil {
		body = io.TeeReader(body, hasher)
	}

	splitter := NewSplitter(int(c.chunkSize), u.push)
	if _, err := io.Copy(splitter, body); err != nil {
		return nil, fmt.Errorf("chunker: write %s: %w", path, err)
	}
	if err := splitter.Flush(); err != nil {
		return nil, fmt.Errorf("chunker: write %s: %w", path, err)
	}

	composite, err := u.finish()
	if err != nil {
		return nil, fmt.Errorf("chunker: write %s: %w", path, err)
	}

	if composite {
		if c.simpleJSON() {
			rec := Record{Size: u.size, NChunks: u.sent, Txn: u.txn}
			if hasher != nil {
				sum := hex.EncodeToString(hasher.Sum(nil))
				if c.opts.HashType == HashSHA1 {
					rec.SHA1 = sum
				} else {
					rec.MD5 = sum
				}
			}
			if err := c.putRecord(ctx, path, rec); err != nil {
				return nil, err
			}
		} else if err := c.deleteObject(ctx, path); err != nil {
			// A plain file of the same name would shadow the chunks
			return nil, err
		}
	}

	for _, ref := range existing {
		if !u.keep[ref.path] {
			if err := c.deleteObject(ctx, ref.path); err != nil {
				return nil, err
			}
		}
	}

	logger.Ctx(ctx).Debug().Str("path", path).Int64("size", u.size).Int("chunks", u.sent).Msg("chunker write")
	return types.Created(path), nil
}

// push receives each full chunk from the splitter
func (u *upload) push(chunk []byte) error {
	if err := u.ctx.Err(); err != nil {
		return err
	}
	u.size += int64(len(chunk))

	switch u.state {
	case noChunkYet:
		u.state = holdingOneChunk
	case holdingOneChunk:
		if err := u.putChunk(u.sent, u.held); err != nil {
			return err
		}
		u.sent++
	}
	u.held = append(u.held[:0], chunk...)
	return nil
}

// finish uploads the held chunk and reports whether the file is a composite
func (u *upload) finish() (bool, error) {
	switch {
	case u.state == noChunkYet:
		return false, u.putObject(u.dir+u.name, nil)
	case u.sent == 0:
		return false, u.putObject(u.dir+u.name, u.held)
	}
	if err := u.putChunk(u.sent, u.held); err != nil {
		return false, err
	}
	u.sent++
	return true, nil
}

func (u *upload) putChunk(index int, data []byte) error {
	path := u.c.chunkPath(u.dir, u.name, index, u.txn)
	u.keep[path] = true

	if u.skip {
		resp, err := u.c.inner.Handle(u.ctx, types.NewRequest(types.MethodReadMeta, path, nil))
		if err != nil {
			return err
		}
		resp.Close()
		if resp.OK() {
			logger.Ctx(u.ctx).Debug().Str("chunk", path).Msg("chunk already present, skipping upload")
			chunksSkipped.Inc()
			return nil
		}
	}

	if err := u.putObject(path, data); err != nil {
		return err
	}
	chunksWritten.Inc()
	return nil
}

func (u *upload) putObject(path string, data []byte) error {
	return u.c.put(u.ctx, path, data)
}

func (c *Chunker) put(ctx context.Context, path string, data []byte) error {
	req := types.NewRequest(types.MethodWrite, path, bytes.NewReader(data))
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))
	resp, err := c.inner.Handle(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return types.StatusError(path, resp)
	}
	resp.Close()
	return nil
}

func (c *Chunker) putRecord(ctx context.Context, path string, rec Record) error {
	data, err := MarshalRecord(rec)
	if err != nil {
		return fmt.Errorf("chunker: encode record: %w", err)
	}
	return c.put(ctx, path, data)
}

// ============================================================================
// Delete
// ============================================================================

func (c *Chunker) delete(ctx context.Context, path string) (*types.Response, error) {
	dir, name := types.ParentPath(path)
	refs, err := c.scanGroup(ctx, dir, name)
	if err != nil {
		return nil, err
	}
	// Chunks first: a record without chunks reads as an incomplete
	// composite, chunks without a record are hidden
	for _, ref := range refs {
		if err := c.deleteObject(ctx, ref.path); err != nil {
			return nil, err
		}
	}
	if err := c.deleteObject(ctx, path); err != nil {
		return nil, err
	}
	return types.NoContent(), nil
}

func (c *Chunker) deleteObject(ctx context.Context, path string) error {
	resp, err := c.inner.Handle(ctx, types.NewRequest(types.MethodDelete, path, nil))
	if err != nil {
		return err
	}
	if !resp.OK() && !resp.IsNotFound() {
		return types.StatusError(path, resp)
	}
	resp.Close()
	return nil
}
