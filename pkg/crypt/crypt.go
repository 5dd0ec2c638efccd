// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package crypt encrypts the content and names of everything stored on the
// wrapped remote.
//
// Content is sealed with NaCl secretbox (XSalsa20-Poly1305) in 64KiB blocks
// behind a magic string and a random nonce. Every path segment is encrypted
// on its own with EME over AES and encoded as lower case base32hex, so
// directory structure is kept while names are hidden. Keys come from the
// passwords through scrypt.
package crypt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	_ "github.com/LeeDigitalWorks/stackfs/pkg/alias"
	"github.com/LeeDigitalWorks/stackfs/pkg/logger"
	"github.com/LeeDigitalWorks/stackfs/pkg/storage/backend"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"
)

func init() {
	backend.Register(types.StorageTypeCrypt, New)
}

// Crypt is the encrypting overlay
type Crypt struct {
	inner types.Backend
	keys  *Keys
	names *NameCipher
}

// New creates a crypt overlay from config
func New(cfg types.BackendConfig, r types.Resolver) (types.Backend, error) {
	opts, err := ParseOptions(cfg.Options)
	if err != nil {
		return nil, err
	}
	keys, err := opts.Keys()
	if err != nil {
		return nil, err
	}
	inner, err := backend.ResolveRemote(types.StorageTypeCrypt, r, opts.Remote)
	if err != nil {
		return nil, err
	}
	return Wrap(inner, keys)
}

// Wrap creates a crypt overlay over inner using keys
func Wrap(inner types.Backend, keys *Keys) (*Crypt, error) {
	names, err := NewNameCipher(keys)
	if err != nil {
		return nil, err
	}
	return &Crypt{inner: inner, keys: keys, names: names}, nil
}

func (c *Crypt) Type() types.StorageType {
	return types.StorageTypeCrypt
}

// Close is a no-op; the wrapped remote is owned by whoever resolved it
func (c *Crypt) Close() error {
	return nil
}

func (c *Crypt) Handle(ctx context.Context, req *types.Request) (*types.Response, error) {
	path := types.CleanPath(req.Path)
	encPath, err := c.names.EncryptPath(path)
	if err != nil {
		return nil, fmt.Errorf("crypt: %s: %w", path, err)
	}

	if types.IsContainerPath(path) {
		switch req.Method {
		case types.MethodReadMeta, types.MethodReadContent:
			return c.list(ctx, req, encPath)
		}
		return c.forward(ctx, req.WithPath(encPath), path)
	}

	switch req.Method {
	case types.MethodReadMeta, types.MethodReadContent:
		return c.read(ctx, req, path, encPath)
	case types.MethodWrite:
		return c.write(ctx, req, path, encPath)
	case types.MethodDelete:
		return c.forward(ctx, req.WithPath(encPath), path)
	}
	return types.MethodNotAllowed(), nil
}

// forward sends req on and reports Location in plain form
func (c *Crypt) forward(ctx context.Context, req *types.Request, path string) (*types.Response, error) {
	resp, err := c.inner.Handle(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Header.Get("Location") != "" {
		resp.Header.Set("Location", path)
	}
	return resp, nil
}

// list decrypts child names, dropping any that are not ours
func (c *Crypt) list(ctx context.Context, req *types.Request, encPath string) (*types.Response, error) {
	resp, err := c.inner.Handle(ctx, types.NewRequest(types.MethodReadMeta, encPath, nil))
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, nil
	}
	links := types.Links(resp.Header)
	resp.Close()

	names := make([]string, 0, len(links))
	for _, link := range links {
		enc, isDir := strings.CutSuffix(link, "/")
		name, err := c.names.DecryptName(enc)
		if err != nil {
			namesDropped.Inc()
			logger.Ctx(ctx).Warn().Err(err).Str("dir", encPath).Msg("skipping entry with undecryptable name")
			continue
		}
		if isDir {
			name += "/"
		}
		names = append(names, name)
	}
	return types.ListingResponse(names, req.Method == types.MethodReadContent), nil
}

// ============================================================================
// Content
// ============================================================================

func (c *Crypt) read(ctx context.Context, req *types.Request, path, encPath string) (*types.Response, error) {
	meta, err := c.inner.Handle(ctx, types.NewRequest(types.MethodReadMeta, encPath, nil))
	if err != nil {
		return nil, err
	}
	meta.Close()
	if !meta.OK() {
		return meta, nil
	}

	cipherSize := meta.ContentLength()
	if cipherSize < 0 {
		return nil, fmt.Errorf("crypt: %s: stored size unknown", path)
	}
	size, err := PlainSize(cipherSize)
	if err != nil {
		return nil, fmt.Errorf("crypt: %s: %w", path, err)
	}

	var modTime time.Time
	if t, err := http.ParseTime(meta.Header.Get("Last-Modified")); err == nil {
		modTime = t
	}
	info := types.ObjectInfo{Size: size, ModTime: modTime, ContentType: types.ContentTypeFor(path)}
	return types.ObjectResponse(req, info, func(offset, length int64) (io.ReadCloser, error) {
		if offset == 0 && length == size {
			return c.openAll(ctx, encPath)
		}
		return c.openRange(ctx, encPath, offset, length, cipherSize)
	})
}

// plainBody reads decrypted content and closes both the decrypter and the
// wrapped remote's body
type plainBody struct {
	io.Reader
	dec  io.Closer
	body io.Closer
}

func (p plainBody) Close() error {
	p.dec.Close()
	return p.body.Close()
}

// fetch reads encPath from the wrapped remote. rng is a Range header value
// or "" for the whole object.
func (c *Crypt) fetch(ctx context.Context, encPath, rng string) (*types.Response, error) {
	req := types.NewRequest(types.MethodReadContent, encPath, nil)
	if rng != "" {
		req.Header.Set("Range", rng)
	}
	resp, err := c.inner.Handle(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.IsNotFound() {
		resp.Close()
		return nil, fmt.Errorf("crypt: %s: %w", encPath, types.ErrNotFound)
	}
	if !resp.OK() {
		return nil, types.StatusError(encPath, resp)
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("crypt: %s: no content", encPath)
	}
	return resp, nil
}

func (c *Crypt) openAll(ctx context.Context, encPath string) (io.ReadCloser, error) {
	resp, err := c.fetch(ctx, encPath, "")
	if err != nil {
		return nil, err
	}
	dec, err := NewDecrypter(resp.Body, &c.keys.Data)
	if err != nil {
		resp.Close()
		return nil, fmt.Errorf("crypt: %s: %w", encPath, err)
	}
	return plainBody{Reader: dec, dec: dec, body: resp.Body}, nil
}

// openRange fetches the header and only the blocks covering the range
func (c *Crypt) openRange(ctx context.Context, encPath string, offset, length, cipherSize int64) (io.ReadCloser, error) {
	hdr, err := c.fetch(ctx, encPath, types.ByteRange(0, FileHeaderSize).String())
	if err != nil {
		return nil, err
	}
	header := make([]byte, FileHeaderSize)
	_, err = io.ReadFull(hdr.Body, header)
	hdr.Close()
	if err != nil {
		return nil, fmt.Errorf("crypt: %s: read header: %w", encPath, ErrTooShort)
	}

	first := offset / BlockDataSize
	last := (offset + length - 1) / BlockDataSize
	start := FileHeaderSize + first*BlockCipherSize
	end := min(FileHeaderSize+(last+1)*BlockCipherSize, cipherSize)

	resp, err := c.fetch(ctx, encPath, types.ByteRange(start, end-start).String())
	if err != nil {
		return nil, err
	}
	dec, err := DecryptRange(header, resp.Body, &c.keys.Data, uint64(first))
	if err != nil {
		resp.Close()
		return nil, fmt.Errorf("crypt: %s: %w", encPath, err)
	}
	if _, err := io.CopyN(io.Discard, dec, offset-first*BlockDataSize); err != nil {
		dec.Close()
		resp.Close()
		return nil, fmt.Errorf("crypt: %s: %w", encPath, err)
	}
	return plainBody{Reader: io.LimitReader(dec, length), dec: dec, body: resp.Body}, nil
}

func (c *Crypt) write(ctx context.Context, req *types.Request, path, encPath string) (*types.Response, error) {
	body := io.Reader(http.NoBody)
	if req.Body != nil {
		body = req.Body
	}
	enc, err := NewEncrypter(body, &c.keys.Data)
	if err != nil {
		return nil, err
	}

	fwd := req.WithPath(encPath)
	fwd.Body = io.NopCloser(enc)
	if n, err := strconv.ParseInt(fwd.Header.Get("Content-Length"), 10, 64); err == nil && n >= 0 {
		fwd.Header.Set("Content-Length", strconv.FormatInt(EncryptedSize(n), 10))
	} else {
		fwd.Header.Del("Content-Length")
	}
	return c.forward(ctx, fwd, path)
}
