// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"io"
	"net/http"
	"strconv"
)

// Response is the result of a content request. Body is a lazy single-pass
// stream; it is nil for metadata-only responses.
type Response struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// NewResponse creates a response with an empty header set
func NewResponse(status int) *Response {
	return &Response{
		Status: status,
		Header: make(http.Header),
	}
}

// NotFound returns a 404 response
func NotFound() *Response {
	return NewResponse(http.StatusNotFound)
}

// Created returns a 201 response echoing the target path in Location
func Created(location string) *Response {
	resp := NewResponse(http.StatusCreated)
	resp.Header.Set("Location", location)
	return resp
}

// NoContent returns a 204 response
func NoContent() *Response {
	return NewResponse(http.StatusNoContent)
}

// MethodNotAllowed returns a 405 response
func MethodNotAllowed() *Response {
	return NewResponse(http.StatusMethodNotAllowed)
}

// OK reports whether the status is 2xx
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// IsNotFound reports a 404 status
func (r *Response) IsNotFound() bool {
	return r.Status == http.StatusNotFound
}

// ContentLength returns the Content-Length header, or -1 if absent or invalid
func (r *Response) ContentLength() int64 {
	v := r.Header.Get("Content-Length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// SetContentLength sets Content-Length
func (r *Response) SetContentLength(n int64) {
	r.Header.Set("Content-Length", strconv.FormatInt(n, 10))
}

// Close releases the body, if any
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}
