// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Range is a single byte range. End is inclusive and negative for an open
// range ("bytes=10-"). A negative Start encodes a suffix range: Start=-N
// selects the last N bytes.
type Range struct {
	Start int64
	End   int64
}

// ParseRange parses "bytes=a-b", "bytes=a-" and "bytes=-n".
// Multiple ranges are not supported.
func ParseRange(s string) (Range, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(s), "bytes=")
	if !ok {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	if strings.Contains(spec, ",") {
		return Range{}, fmt.Errorf("%w: multiple ranges in %q", ErrInvalidRange, s)
	}
	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
		}
		return Range{Start: -n, End: -1}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	if last == "" {
		return Range{Start: start, End: -1}, nil
	}
	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < start {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	return Range{Start: start, End: end}, nil
}

// RequestRange returns the range carried in h, or nil when there is none
func RequestRange(h http.Header) (*Range, error) {
	v := h.Get("Range")
	if v == "" {
		return nil, nil
	}
	r, err := ParseRange(v)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Resolve clamps the range against an object of the given size
func (r Range) Resolve(size int64) (offset, length int64, err error) {
	if r.Start < 0 {
		n := -r.Start
		if size == 0 {
			return 0, 0, ErrRangeNotSatisfiable
		}
		if n > size {
			n = size
		}
		return size - n, n, nil
	}
	if r.Start >= size {
		return 0, 0, ErrRangeNotSatisfiable
	}
	end := r.End
	if end < 0 || end >= size {
		end = size - 1
	}
	return r.Start, end - r.Start + 1, nil
}

func (r Range) String() string {
	switch {
	case r.Start < 0:
		return fmt.Sprintf("bytes=-%d", -r.Start)
	case r.End < 0:
		return fmt.Sprintf("bytes=%d-", r.Start)
	default:
		return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
	}
}

// ByteRange builds the range covering length bytes from offset
func ByteRange(offset, length int64) Range {
	if length < 0 {
		return Range{Start: offset, End: -1}
	}
	return Range{Start: offset, End: offset + length - 1}
}

// ContentRange formats a Content-Range header value
func ContentRange(offset, length, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, size)
}
