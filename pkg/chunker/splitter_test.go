// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(size int) (*Splitter, *[]string) {
	var got []string
	s := NewSplitter(size, func(chunk []byte) error {
		got = append(got, string(chunk))
		return nil
	})
	return s, &got
}

func TestSplitter_IndependentOfWriteBoundaries(t *testing.T) {
	t.Parallel()

	for _, step := range []int{1, 3, 4, 7, 100} {
		s, got := collect(4)
		data := []byte("abcdefghij")
		for i := 0; i < len(data); i += step {
			n, err := s.Write(data[i:min(i+step, len(data))])
			require.NoError(t, err)
			assert.Equal(t, min(step, len(data)-i), n)
		}
		assert.Equal(t, 2, s.Pending(), "step %d", step)
		require.NoError(t, s.Flush())
		assert.Equal(t, []string{"abcd", "efgh", "ij"}, *got, "step %d", step)
	}
}

func TestSplitter_ExactBoundaryHasNoTail(t *testing.T) {
	t.Parallel()

	s, got := collect(4)
	_, err := s.Write([]byte("abcdefgh"))
	require.NoError(t, err)
	require.NoError(t, s.Flush())
	assert.Equal(t, []string{"abcd", "efgh"}, *got)
}

func TestSplitter_EmptyStream(t *testing.T) {
	t.Parallel()

	s, got := collect(4)
	require.NoError(t, s.Flush())
	assert.Empty(t, *got)
}

func TestSplitter_EmitErrorStopsWrite(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	s := NewSplitter(2, func([]byte) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	n, err := s.Write([]byte("abcdef"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, n)
}

func TestSplitter_RejectsNonPositiveSize(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { NewSplitter(0, nil) })
}
