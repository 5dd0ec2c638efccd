// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/LeeDigitalWorks/stackfs/pkg/logger"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"
)

// chunkRef is a chunk found in a listing
type chunkRef struct {
	path  string
	index int // as written in the name, start_from included
	txn   string
}

// listDir returns the raw child names of dir on the wrapped remote.
// A missing directory lists as empty.
func (c *Chunker) listDir(ctx context.Context, dir string) ([]string, bool, error) {
	resp, err := c.inner.Handle(ctx, types.NewRequest(types.MethodReadMeta, dir, nil))
	if err != nil {
		return nil, false, err
	}
	defer resp.Close()
	if resp.IsNotFound() {
		return nil, false, nil
	}
	if !resp.OK() {
		return nil, false, types.StatusError(dir, resp)
	}
	return types.Links(resp.Header), true, nil
}

// groupChunks sorts the chunk names of a listing by base name
func (c *Chunker) groupChunks(dir string, names []string) (plain []string, groups map[string][]chunkRef) {
	groups = make(map[string][]chunkRef)
	for _, n := range names {
		if strings.HasSuffix(n, "/") {
			plain = append(plain, n)
			continue
		}
		base, index, txn, ok := c.names.Parse(n)
		if !ok {
			plain = append(plain, n)
			continue
		}
		groups[base] = append(groups[base], chunkRef{path: dir + n, index: index, txn: txn})
	}
	return plain, groups
}

// scanGroup returns every chunk stored for dir+name, in any transaction
func (c *Chunker) scanGroup(ctx context.Context, dir, name string) ([]chunkRef, error) {
	names, _, err := c.listDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	_, groups := c.groupChunks(dir, names)
	return groups[name], nil
}

// complete reports whether refs hold every chunk rec describes
func (c *Chunker) complete(refs []chunkRef, rec Record) bool {
	have := make(map[int]bool, len(refs))
	for _, r := range refs {
		if r.txn == rec.Txn {
			have[r.index] = true
		}
	}
	for i := range rec.NChunks {
		if !have[c.opts.StartFrom+i] {
			return false
		}
	}
	return true
}

// contiguous picks a run of chunks numbered start_from, start_from+1, ...
// with one transaction id and returns their paths in order. It is how a
// composite is recognised when there are no records.
func (c *Chunker) contiguous(refs []chunkRef) ([]string, bool) {
	byTxn := make(map[string][]chunkRef)
	for _, r := range refs {
		byTxn[r.txn] = append(byTxn[r.txn], r)
	}

	var best []string
	for _, group := range byTxn {
		slices.SortFunc(group, func(a, b chunkRef) int { return a.index - b.index })
		paths := make([]string, 0, len(group))
		for i, r := range group {
			if r.index != c.opts.StartFrom+i {
				paths = nil
				break
			}
			paths = append(paths, r.path)
		}
		if len(paths) > len(best) {
			best = paths
		}
	}
	return best, len(best) > 0
}

// ============================================================================
// Listing
// ============================================================================

// list presents a container with chunks hidden and each composite shown once
func (c *Chunker) list(ctx context.Context, req *types.Request, dir string) (*types.Response, error) {
	names, found, err := c.listDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	if !found {
		return types.NotFound(), nil
	}

	plain, groups := c.groupChunks(dir, names)
	isPlain := make(map[string]bool, len(plain))
	for _, n := range plain {
		isPlain[n] = true
	}

	var out []string
	for _, n := range plain {
		refs, hasChunks := groups[n]
		if !hasChunks || !c.simpleJSON() {
			out = append(out, n)
			continue
		}

		rec, err := c.readRecord(ctx, dir+n)
		if err != nil {
			return nil, err
		}
		switch {
		case rec == nil:
			// Ordinary file next to leftover chunks
			out = append(out, n)
		case c.complete(refs, *rec):
			out = append(out, n)
		default:
			if err := c.skipIncomplete(ctx, dir+n); err != nil {
				return nil, err
			}
		}
	}

	for base, refs := range groups {
		if isPlain[base] {
			continue
		}
		if c.simpleJSON() {
			// Chunks of an interrupted write; the record comes last
			logger.Ctx(ctx).Debug().Str("path", dir+base).Int("chunks", len(refs)).Msg("hiding chunks without metadata")
			continue
		}
		if _, ok := c.contiguous(refs); ok {
			out = append(out, base)
		} else if err := c.skipIncomplete(ctx, dir+base); err != nil {
			return nil, err
		}
	}

	slices.Sort(out)
	return types.ListingResponse(out, req.Method == types.MethodReadContent), nil
}

// skipIncomplete applies the fail_hard policy to one listing entry
func (c *Chunker) skipIncomplete(ctx context.Context, path string) error {
	incompleteComposites.Inc()
	if c.opts.FailHard {
		return fmt.Errorf("%w: %s", types.ErrIncompleteComposite, path)
	}
	logger.Ctx(ctx).Warn().Str("path", path).Msg("omitting incomplete composite file from listing")
	return nil
}
