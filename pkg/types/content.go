// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"
)

// ObjectInfo describes a stored object for response headers
type ObjectInfo struct {
	Size        int64
	ModTime     time.Time
	ContentType string
}

// OpenFunc opens length bytes of an object starting at offset
type OpenFunc func(offset, length int64) (io.ReadCloser, error)

// ContentTypeFor guesses a content type from the object name
func ContentTypeFor(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// SetObjectHeaders writes Content-Type, Content-Length and Last-Modified
func SetObjectHeaders(h http.Header, info ObjectInfo) {
	if info.ContentType != "" {
		h.Set("Content-Type", info.ContentType)
	}
	h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if !info.ModTime.IsZero() {
		h.Set("Last-Modified", info.ModTime.UTC().Format(http.TimeFormat))
	}
	h.Set("Accept-Ranges", "bytes")
}

// ObjectResponse serves READ_META and READ_CONTENT for a single object,
// honoring a single Range header on READ_CONTENT. An unparseable Range is
// ignored, an unsatisfiable one yields 416.
func ObjectResponse(req *Request, info ObjectInfo, open OpenFunc) (*Response, error) {
	resp := NewResponse(http.StatusOK)
	SetObjectHeaders(resp.Header, info)
	if req.Method != MethodReadContent {
		return resp, nil
	}

	offset, length := int64(0), info.Size
	if rng, err := RequestRange(req.Header); err == nil && rng != nil {
		offset, length, err = rng.Resolve(info.Size)
		if err != nil {
			resp = NewResponse(http.StatusRequestedRangeNotSatisfiable)
			resp.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", info.Size))
			return resp, nil
		}
		resp.Status = http.StatusPartialContent
		resp.Header.Set("Content-Range", ContentRange(offset, length, info.Size))
		resp.SetContentLength(length)
	}

	body, err := open(offset, length)
	if err != nil {
		return nil, err
	}
	resp.Body = body
	return resp, nil
}

// LimitReadCloser limits r to n bytes while closing the underlying stream
func LimitReadCloser(rc io.ReadCloser, n int64) io.ReadCloser {
	return &limitedReadCloser{Reader: io.LimitReader(rc, n), Closer: rc}
}

type limitedReadCloser struct {
	io.Reader
	io.Closer
}
