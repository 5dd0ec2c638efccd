// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package alias re-roots a remote at a sub path. The backend Manager uses it
// for references like "name:sub/dir".
package alias

import (
	"context"
	"strings"

	"github.com/LeeDigitalWorks/stackfs/pkg/storage/backend"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"
)

func init() {
	backend.Register(types.StorageTypeAlias, New)
}

// Options configures the alias overlay
type Options struct {
	Remote string `mapstructure:"remote" validate:"required"`
	Root   string `mapstructure:"root"`
}

// Alias forwards every request to the wrapped backend under root
type Alias struct {
	inner types.Backend
	root  string // "" or "a/b/"
}

// New creates an alias overlay from config
func New(cfg types.BackendConfig, r types.Resolver) (types.Backend, error) {
	var o Options
	if err := backend.DecodeOptions(types.StorageTypeAlias, cfg.Options, &o); err != nil {
		return nil, err
	}
	inner, err := backend.ResolveRemote(types.StorageTypeAlias, r, o.Remote)
	if err != nil {
		return nil, err
	}
	return Wrap(inner, o.Root), nil
}

// Wrap re-roots inner at root
func Wrap(inner types.Backend, root string) *Alias {
	root = strings.Trim(root, "/")
	if root != "" {
		root += "/"
	}
	return &Alias{inner: inner, root: root}
}

func (a *Alias) Type() types.StorageType {
	return types.StorageTypeAlias
}

// Root returns the prefix requests are rewritten under
func (a *Alias) Root() string {
	return a.root
}

func (a *Alias) Handle(ctx context.Context, req *types.Request) (*types.Response, error) {
	path := types.CleanPath(req.Path)
	resp, err := a.inner.Handle(ctx, req.WithPath(a.root+path))
	if err != nil {
		return nil, err
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		resp.Header.Set("Location", strings.TrimPrefix(loc, a.root))
	}
	return resp, nil
}

// Close is a no-op; the wrapped remote is owned by whoever resolved it
func (a *Alias) Close() error {
	return nil
}
