// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/stackfs/pkg/types"
)

func init() {
	Register(types.StorageTypeHTTP, NewHTTP)
}

// HTTPOptions configures the http backend
type HTTPOptions struct {
	URL     string        `mapstructure:"url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// passthroughHeaders are copied from the server's response
var passthroughHeaders = []string{
	"Content-Type", "Content-Length", "Content-Range", "Last-Modified", "Accept-Ranges", types.LinkHeader,
}

// HTTP is a read-only client for a server speaking the link-metadata
// listing protocol (see pkg/server). WRITE and DELETE answer 405.
type HTTP struct {
	base   *url.URL
	client *http.Client
}

// NewHTTP creates an http backend
func NewHTTP(cfg types.BackendConfig, _ types.Resolver) (types.Backend, error) {
	o := HTTPOptions{Timeout: time.Minute}
	if err := DecodeOptions(types.StorageTypeHTTP, cfg.Options, &o); err != nil {
		return nil, err
	}
	return NewHTTPWithClient(o.URL, &http.Client{Timeout: o.Timeout})
}

// NewHTTPWithClient creates an http backend using client
func NewHTTPWithClient(rawURL string, client *http.Client) (*HTTP, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &types.ConfigError{Backend: types.StorageTypeHTTP, Option: "url", Reason: err.Error()}
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return &HTTP{base: u, client: client}, nil
}

func (h *HTTP) Type() types.StorageType {
	return types.StorageTypeHTTP
}

// target escapes each path segment and resolves it against the base URL
func (h *HTTP) target(path string) string {
	if path == "" {
		return h.base.String()
	}
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return h.base.JoinPath(strings.Join(segs, "/")).String()
}

func (h *HTTP) Handle(ctx context.Context, req *types.Request) (*types.Response, error) {
	var method string
	switch req.Method {
	case types.MethodReadMeta:
		method = http.MethodHead
	case types.MethodReadContent:
		method = http.MethodGet
	default:
		return types.MethodNotAllowed(), nil
	}

	path := types.CleanPath(req.Path)
	hreq, err := http.NewRequestWithContext(ctx, method, h.target(path), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if r := req.Header.Get("Range"); r != "" {
		hreq.Header.Set("Range", r)
	}

	hresp, err := h.client.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	resp := types.NewResponse(hresp.StatusCode)
	for _, k := range passthroughHeaders {
		for _, v := range hresp.Header.Values(k) {
			resp.Header.Add(k, v)
		}
	}
	if method == http.MethodHead || !resp.OK() {
		hresp.Body.Close()
		return resp, nil
	}
	resp.Body = hresp.Body
	return resp, nil
}

func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
