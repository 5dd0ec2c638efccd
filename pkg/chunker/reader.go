// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/LeeDigitalWorks/stackfs/pkg/logger"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"
	"github.com/LeeDigitalWorks/stackfs/pkg/utils"
)

// chunkInfo is one stored chunk of a composite
type chunkInfo struct {
	path string
	size int64
}

// ============================================================================
// Read
// ============================================================================

func (c *Chunker) read(ctx context.Context, req *types.Request, path string) (*types.Response, error) {
	meta, err := c.inner.Handle(ctx, types.NewRequest(types.MethodReadMeta, path, nil))
	if err != nil {
		return nil, err
	}

	if !meta.OK() {
		if meta.IsNotFound() && !c.simpleJSON() {
			// Without records a composite exists only as its chunks
			meta.Close()
			return c.readBareGroup(ctx, req, path)
		}
		return meta, nil
	}

	size := meta.ContentLength()
	if !c.simpleJSON() || size < 0 || size > maxMetadataSize {
		if req.Method == types.MethodReadMeta {
			return meta, nil
		}
		meta.Close()
		return c.inner.Handle(ctx, req)
	}
	meta.Close()

	// Small enough to be a record: fetch it whole and decide
	data, header, err := c.fetchSmall(ctx, path)
	if err != nil {
		return nil, err
	}
	if header == nil {
		// Vanished between the probe and the fetch
		return types.NotFound(), nil
	}

	rec, err := UnmarshalRecord(data)
	if errors.Is(err, errNotMetadata) {
		info := types.ObjectInfo{
			Size:        int64(len(data)),
			ModTime:     lastModified(header),
			ContentType: header.Get("Content-Type"),
		}
		return types.ObjectResponse(req, info, func(offset, length int64) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data[offset : offset+length])), nil
		})
	}
	if err != nil {
		return nil, fmt.Errorf("chunker: %s: %w", path, err)
	}

	dir, name := types.ParentPath(path)
	paths := make([]string, rec.NChunks)
	for i := range paths {
		paths[i] = c.chunkPath(dir, name, i, rec.Txn)
	}
	return c.serveComposite(ctx, req, path, paths, rec, lastModified(header))
}

// readRecord returns the record stored at path, or nil when path is absent
// or holds ordinary content
func (c *Chunker) readRecord(ctx context.Context, path string) (*Record, error) {
	meta, err := c.inner.Handle(ctx, types.NewRequest(types.MethodReadMeta, path, nil))
	if err != nil {
		return nil, err
	}
	meta.Close()
	if !meta.OK() {
		if meta.IsNotFound() {
			return nil, nil
		}
		return nil, types.StatusError(path, meta)
	}
	if size := meta.ContentLength(); size < 0 || size > maxMetadataSize {
		return nil, nil
	}

	data, header, err := c.fetchSmall(ctx, path)
	if err != nil || header == nil {
		return nil, err
	}
	rec, err := UnmarshalRecord(data)
	if errors.Is(err, errNotMetadata) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// fetchSmall reads an object of at most maxMetadataSize bytes. A nil header
// with a nil error means the object does not exist.
func (c *Chunker) fetchSmall(ctx context.Context, path string) ([]byte, http.Header, error) {
	resp, err := c.inner.Handle(ctx, types.NewRequest(types.MethodReadContent, path, nil))
	if err != nil {
		return nil, nil, err
	}
	defer resp.Close()
	if resp.IsNotFound() {
		return nil, nil, nil
	}
	if !resp.OK() {
		return nil, nil, types.StatusError(path, resp)
	}

	buf := utils.SyncPoolGetBuffer()
	defer utils.SyncPoolPutBuffer(buf)
	if resp.Body != nil {
		if _, err := buf.ReadFrom(io.LimitReader(resp.Body, maxMetadataSize+1)); err != nil {
			return nil, nil, fmt.Errorf("chunker: read %s: %w", path, err)
		}
	}
	return bytes.Clone(buf.Bytes()), resp.Header.Clone(), nil
}

// readBareGroup serves a composite that has chunks but no record
func (c *Chunker) readBareGroup(ctx context.Context, req *types.Request, path string) (*types.Response, error) {
	dir, name := types.ParentPath(path)
	refs, err := c.scanGroup(ctx, dir, name)
	if err != nil {
		return nil, err
	}
	paths, ok := c.contiguous(refs)
	if !ok {
		if len(refs) == 0 {
			return types.NotFound(), nil
		}
		return c.incomplete(ctx, path, "chunks are not contiguous")
	}
	return c.serveComposite(ctx, req, path, paths, Record{Size: -1, NChunks: len(paths)}, time.Time{})
}

// serveComposite answers a read of a composite made of the given chunks.
// A negative rec.Size means the size is the sum of the chunk sizes.
func (c *Chunker) serveComposite(ctx context.Context, req *types.Request, path string, paths []string, rec Record, modTime time.Time) (*types.Response, error) {
	chunks := make([]chunkInfo, 0, len(paths))
	var total int64
	for _, p := range paths {
		meta, err := c.inner.Handle(ctx, types.NewRequest(types.MethodReadMeta, p, nil))
		if err != nil {
			return nil, err
		}
		meta.Close()
		if meta.IsNotFound() {
			return c.incomplete(ctx, path, fmt.Sprintf("chunk %s is missing", p))
		}
		if !meta.OK() {
			return nil, types.StatusError(p, meta)
		}
		size := meta.ContentLength()
		if size < 0 {
			return nil, fmt.Errorf("chunker: chunk %s has no size", p)
		}
		if t := lastModified(meta.Header); t.After(modTime) && rec.Size < 0 {
			modTime = t
		}
		chunks = append(chunks, chunkInfo{path: p, size: size})
		total += size
	}

	size := rec.Size
	if size < 0 {
		size = total
	}
	if total < size {
		return c.incomplete(ctx, path, fmt.Sprintf("chunks hold %d of %d bytes", total, size))
	}

	info := types.ObjectInfo{Size: size, ModTime: modTime, ContentType: types.ContentTypeFor(path)}
	resp, err := types.ObjectResponse(req, info, func(offset, length int64) (io.ReadCloser, error) {
		r := &compositeReader{ctx: ctx, inner: c.inner, chunks: chunks, remaining: length}
		r.seek(offset)
		if offset == 0 && length == size {
			r.expectDigest(rec)
		}
		compositesAssembled.Inc()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	resp.Header.Set(ChunkCountHeader, strconv.Itoa(len(chunks)))
	return resp, nil
}

// incomplete applies the fail_hard policy to a composite with missing parts
func (c *Chunker) incomplete(ctx context.Context, path, reason string) (*types.Response, error) {
	incompleteComposites.Inc()
	if c.opts.FailHard {
		return nil, fmt.Errorf("%w: %s: %s", types.ErrIncompleteComposite, path, reason)
	}
	logger.Ctx(ctx).Warn().Str("path", path).Str("reason", reason).Msg("incomplete composite file treated as absent")
	return types.NotFound(), nil
}

func lastModified(h http.Header) time.Time {
	t, err := http.ParseTime(h.Get("Last-Modified"))
	if err != nil {
		return time.Time{}
	}
	return t
}

// ============================================================================
// Reassembly
// ============================================================================

// compositeReader streams a byte range of a composite, opening one chunk at
// a time in index order
type compositeReader struct {
	ctx       context.Context
	inner     types.Backend
	chunks    []chunkInfo
	idx       int   // chunk being read
	off       int64 // offset into chunks[idx] for the next open
	remaining int64
	cur       io.ReadCloser

	digest  hash.Hash
	release func()
	want    string
}

func (r *compositeReader) seek(offset int64) {
	for r.idx < len(r.chunks) && offset >= r.chunks[r.idx].size {
		offset -= r.chunks[r.idx].size
		r.idx++
	}
	r.off = offset
}

// expectDigest verifies a whole-file read against the record's digest
func (r *compositeReader) expectDigest(rec Record) {
	switch {
	case rec.MD5 != "":
		r.want = rec.MD5
		r.digest, r.release = HashMD5.newHasher()
	case rec.SHA1 != "":
		r.want = rec.SHA1
		r.digest, r.release = HashSHA1.newHasher()
	}
}

func (r *compositeReader) Read(p []byte) (int, error) {
	for {
		if r.remaining <= 0 {
			r.closeCurrent()
			return 0, r.verify()
		}
		if r.cur == nil {
			if err := r.open(); err != nil {
				return 0, err
			}
		}

		if int64(len(p)) > r.remaining {
			p = p[:r.remaining]
		}
		n, err := r.cur.Read(p)
		r.remaining -= int64(n)
		if r.digest != nil {
			r.digest.Write(p[:n])
		}

		if err == io.EOF {
			r.closeCurrent()
			r.idx++
			r.off = 0
			err = nil
		}
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (r *compositeReader) open() error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if r.idx >= len(r.chunks) {
		return fmt.Errorf("%w: chunks ended %d bytes early", types.ErrIncompleteComposite, r.remaining)
	}
	chunk := r.chunks[r.idx]
	length := min(chunk.size-r.off, r.remaining)

	req := types.NewRequest(types.MethodReadContent, chunk.path, nil)
	if r.off > 0 || length < chunk.size {
		req.Header.Set("Range", types.ByteRange(r.off, length).String())
	}
	resp, err := r.inner.Handle(r.ctx, req)
	if err != nil {
		return err
	}
	if resp.IsNotFound() {
		resp.Close()
		return fmt.Errorf("%w: chunk %s disappeared", types.ErrIncompleteComposite, chunk.path)
	}
	if !resp.OK() {
		return types.StatusError(chunk.path, resp)
	}
	if resp.Body == nil {
		r.cur = io.NopCloser(bytes.NewReader(nil))
		return nil
	}
	// A chunk longer than recorded must not leak into the next one
	r.cur = types.LimitReadCloser(resp.Body, length)
	return nil
}

func (r *compositeReader) closeCurrent() {
	if r.cur != nil {
		r.cur.Close()
		r.cur = nil
	}
}

func (r *compositeReader) verify() error {
	if r.digest == nil {
		return io.EOF
	}
	got := hex.EncodeToString(r.digest.Sum(nil))
	r.release()
	r.digest = nil
	if got != r.want {
		return fmt.Errorf("%w: composite digest %s, recorded %s", types.ErrIntegrity, got, r.want)
	}
	return io.EOF
}

func (r *compositeReader) Close() error {
	r.closeCurrent()
	if r.digest != nil {
		r.release()
		r.digest = nil
	}
	return nil
}
