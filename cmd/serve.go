// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/LeeDigitalWorks/stackfs/pkg/debug"
	"github.com/LeeDigitalWorks/stackfs/pkg/logger"
	"github.com/LeeDigitalWorks/stackfs/pkg/server"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveOpts struct {
	Addr            string
	DebugAddr       string
	ReadOnly        bool
	ShutdownTimeout time.Duration
}

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve name:path",
		Short: "Serve a remote over HTTP",
		Long: `Serve a remote over HTTP. GET reads content, HEAD reads metadata, PUT
and MKCOL write, DELETE deletes. Container listings are sent as Link
headers, so another stackfs can mount the server with an http remote.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fl := NewFlagLoader(cmd, a.v)
			opts := serveOpts{
				Addr:            fl.String("addr"),
				DebugAddr:       fl.String("debug_addr"),
				ReadOnly:        fl.Bool("read_only"),
				ShutdownTimeout: fl.Duration("shutdown_timeout"),
			}
			return a.serve(cmd.Context(), args[0], opts)
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "Address to serve the remote on")
	cmd.Flags().String("debug_addr", "127.0.0.1:8081", "Address for metrics, health and pprof (empty to disable)")
	cmd.Flags().Bool("read_only", false, "Reject writes and deletes")
	cmd.Flags().Duration("shutdown_timeout", 10*time.Second, "Time allowed for in-flight requests on shutdown")
	return cmd
}

func (a *app) serve(ctx context.Context, ref string, opts serveOpts) error {
	debug.SetNotReady()

	b, err := a.remotes.Resolve(ref)
	if err != nil {
		return err
	}

	var serverOpts []server.Option
	if opts.ReadOnly {
		serverOpts = append(serverOpts, server.WithReadOnly())
	}
	srv := &http.Server{
		Handler:           server.New(b, serverOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if opts.DebugAddr != "" {
		debugLn, err := net.Listen("tcp", opts.DebugAddr)
		if err != nil {
			ln.Close()
			return err
		}
		logger.Info().Str("debug_addr", debugLn.Addr().String()).Msg("Starting debug server")
		g.Go(func() error { return debug.Serve(ctx, debugLn) })
	}

	g.Go(func() error {
		logger.Info().
			Str("remote", ref).
			Str("addr", ln.Addr().String()).
			Bool("read_only", opts.ReadOnly).
			Msg("Serving remote")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		debug.SetNotReady()
		logger.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	debug.SetReady()
	return g.Wait()
}
