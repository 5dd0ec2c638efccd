// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

// Splitter slices a byte stream into pieces of exactly size bytes. Pieces
// are handed to emit as soon as they fill, regardless of how the input was
// split across Write calls. Flush emits the short remainder, if any.
//
// The slice passed to emit is only valid for the duration of the call.
type Splitter struct {
	size int
	buf  []byte
	emit func(chunk []byte) error
}

// NewSplitter creates a splitter. size must be positive.
func NewSplitter(size int, emit func(chunk []byte) error) *Splitter {
	if size <= 0 {
		panic("chunker: splitter size must be positive")
	}
	return &Splitter{size: size, emit: emit}
}

// Write implements io.Writer
func (s *Splitter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		// Whole pieces straight from the input when nothing is pending
		if len(s.buf) == 0 && len(p) >= s.size {
			if err := s.emit(p[:s.size]); err != nil {
				return written, err
			}
			p = p[s.size:]
			written += s.size
			continue
		}

		take := min(s.size-len(s.buf), len(p))
		// The pending buffer grows on demand so small streams stay small
		s.buf = append(s.buf, p[:take]...)
		p = p[take:]
		written += take

		if len(s.buf) == s.size {
			if err := s.emit(s.buf); err != nil {
				return written, err
			}
			s.buf = s.buf[:0]
		}
	}
	return written, nil
}

// Pending returns the number of buffered bytes not yet emitted
func (s *Splitter) Pending() int {
	return len(s.buf)
}

// Flush emits the buffered remainder. Nothing is emitted when the stream
// ended on a piece boundary.
func (s *Splitter) Flush() error {
	if len(s.buf) == 0 {
		return nil
	}
	err := s.emit(s.buf)
	s.buf = s.buf[:0]
	return err
}
