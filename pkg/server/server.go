// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes any Backend over HTTP. Listings travel as Link
// headers, so the http backend can read a served remote back.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/stackfs/pkg/debug"
	"github.com/LeeDigitalWorks/stackfs/pkg/logger"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the id assigned to every served request
const RequestIDHeader = "X-Request-Id"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackfs",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Requests served, by backend method and status code",
		},
		[]string{"method", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stackfs",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Time until the response header was written",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"method"},
	)
)

func init() {
	debug.Registry().MustRegister(requestsTotal, requestDuration)
}

// Server adapts a Backend to http.Handler
type Server struct {
	backend  types.Backend
	readOnly bool
}

// Option configures a Server
type Option func(*Server)

// WithReadOnly rejects PUT, MKCOL and DELETE with 405
func WithReadOnly() Option {
	return func(s *Server) { s.readOnly = true }
}

// New creates a server for b
func New(b types.Backend, opts ...Option) *Server {
	s := &Server{backend: b}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func methodFor(r *http.Request) (types.Method, string, bool) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodGet:
		return types.MethodReadContent, path, true
	case http.MethodHead:
		return types.MethodReadMeta, path, true
	case http.MethodPut:
		return types.MethodWrite, path, true
	case "MKCOL":
		if !strings.HasSuffix(path, "/") {
			path += "/"
		}
		return types.MethodWrite, path, true
	case http.MethodDelete:
		return types.MethodDelete, path, true
	}
	return 0, "", false
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := r.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, reqID)

	ctx := logger.With(r.Context(), func(c zerolog.Context) zerolog.Context {
		return c.Str("request_id", reqID)
	})

	method, path, ok := methodFor(r)
	if !ok || (s.readOnly && (method == types.MethodWrite || method == types.MethodDelete)) {
		w.Header().Set("Allow", "GET, HEAD, PUT, MKCOL, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
		requestsTotal.WithLabelValues(r.Method, "405").Inc()
		return
	}

	req := types.NewRequest(method, path, nil)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			req.Query[k] = v[0]
		}
	}
	for _, k := range []string{"Range", "Content-Type", "Content-Length"} {
		if v := r.Header.Get(k); v != "" {
			req.Header.Set(k, v)
		}
	}
	if method == types.MethodWrite {
		req.Body = r.Body
	}

	status := s.serve(ctx, w, r, req)
	requestsTotal.WithLabelValues(method.String(), strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method.String()).Observe(time.Since(start).Seconds())
}

func (s *Server) serve(ctx context.Context, w http.ResponseWriter, r *http.Request, req *types.Request) int {
	log := logger.Ctx(ctx)

	resp, err := s.backend.Handle(ctx, req)
	if err != nil {
		status := types.StatusOf(err)
		if errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Str("path", req.Path).Msg("request cancelled")
		} else {
			log.Warn().Err(err).Str("method", req.Method.String()).Str("path", req.Path).Int("status", status).Msg("request failed")
		}
		http.Error(w, err.Error(), status)
		return status
	}
	defer resp.Close()

	h := w.Header()
	for k, v := range resp.Header {
		h[k] = v
	}
	w.WriteHeader(resp.Status)

	if resp.Body != nil && r.Method != http.MethodHead {
		if _, err := io.Copy(w, resp.Body); err != nil {
			// Headers are gone; all that is left is to cut the stream
			log.Warn().Err(err).Str("path", req.Path).Msg("body copy failed")
			panic(http.ErrAbortHandler)
		}
	}
	return resp.Status
}
