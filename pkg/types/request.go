// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
)

// Method is one of the four operations a backend serves
type Method int

const (
	MethodReadMeta Method = iota + 1
	MethodReadContent
	MethodWrite
	MethodDelete
)

var methodNames = map[Method]string{
	MethodReadMeta:    "READ_META",
	MethodReadContent: "READ_CONTENT",
	MethodWrite:       "WRITE",
	MethodDelete:      "DELETE",
}

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod accepts the canonical names (READ_META, READ_CONTENT, WRITE, DELETE).
func ParseMethod(s string) (Method, error) {
	for m, name := range methodNames {
		if strings.EqualFold(name, s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown method: %q", s)
}

// Request is a single content request. Path is relative to the backend root;
// a trailing "/" denotes a container and "" is the root container.
type Request struct {
	Method Method
	Path   string
	Query  map[string]string
	Header http.Header
	Body   io.ReadCloser
}

// NewRequest builds a request. A nil body is allowed for every method.
func NewRequest(method Method, path string, body io.Reader) *Request {
	req := &Request{
		Method: method,
		Path:   path,
		Query:  make(map[string]string),
		Header: make(http.Header),
	}
	if body != nil {
		rc, ok := body.(io.ReadCloser)
		if !ok {
			rc = io.NopCloser(body)
		}
		req.Body = rc
	}
	return req
}

// IsContainer reports whether the request targets a container
func (r *Request) IsContainer() bool {
	return IsContainerPath(r.Path)
}

// Clone returns a shallow copy with independent Query and Header maps.
// The body is shared.
func (r *Request) Clone() *Request {
	c := *r
	c.Query = maps.Clone(r.Query)
	if c.Query == nil {
		c.Query = make(map[string]string)
	}
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	return &c
}

// WithPath returns a clone targeting a different path
func (r *Request) WithPath(path string) *Request {
	c := r.Clone()
	c.Path = path
	return c
}

// IsContainerPath reports whether path names a container
func IsContainerPath(path string) bool {
	return path == "" || strings.HasSuffix(path, "/")
}

// CleanPath strips leading slashes so "/a/b" and "a/b" address the same object.
// The root container is always "".
func CleanPath(path string) string {
	return strings.TrimLeft(path, "/")
}

// ParentPath returns the container holding path and the final segment.
// ParentPath("a/b/c") is ("a/b/", "c"); ParentPath("a/b/") is ("a/", "b/").
func ParentPath(path string) (dir, name string) {
	path = CleanPath(path)
	trimmed := strings.TrimSuffix(path, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return "", path
	}
	return path[:i+1], path[i+1:]
}
