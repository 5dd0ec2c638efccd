// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"io"
	"net/http"
	"net/url"
	"strings"
)

// LinkHeader carries one child of a container listing per value
const LinkHeader = "Link"

// AddLink appends a child name to a listing. Directories keep their trailing "/".
func AddLink(h http.Header, name string) {
	dir := strings.HasSuffix(name, "/")
	escaped := url.PathEscape(strings.TrimSuffix(name, "/"))
	if dir {
		escaped += "/"
	}
	h.Add(LinkHeader, "<"+escaped+`>; rel="item"`)
}

// Links returns the child names carried in h, in order.
// Malformed values are skipped.
func Links(h http.Header) []string {
	var names []string
	for _, v := range h.Values(LinkHeader) {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if !strings.HasPrefix(part, "<") {
				continue
			}
			end := strings.IndexByte(part, '>')
			if end < 0 {
				continue
			}
			name, err := url.PathUnescape(part[1:end])
			if err != nil || name == "" {
				continue
			}
			names = append(names, name)
		}
	}
	return names
}

// SetLinks replaces the listing carried in h
func SetLinks(h http.Header, names []string) {
	h.Del(LinkHeader)
	for _, name := range names {
		AddLink(h, name)
	}
}

// ListingResponse builds a container listing. With body set, the names are
// also rendered one per line as text/plain.
func ListingResponse(names []string, body bool) *Response {
	resp := NewResponse(http.StatusOK)
	SetLinks(resp.Header, names)
	if !body {
		return resp
	}
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteByte('\n')
	}
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp.SetContentLength(int64(sb.Len()))
	resp.Body = io.NopCloser(strings.NewReader(sb.String()))
	return resp
}
