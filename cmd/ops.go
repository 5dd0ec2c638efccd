// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/LeeDigitalWorks/stackfs/pkg/logger"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// ============================================================================
// ls
// ============================================================================

func (a *app) newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls name:path",
		Short: "List a container or show a single object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, path, err := a.target(args[0])
			if err != nil {
				return err
			}
			l := &lister{
				ctx:       cmd.Context(),
				out:       cmd.OutOrStdout(),
				backend:   b,
				recursive: NewFlagLoader(cmd, a.v).Bool("recursive"),
			}
			return l.run(path)
		},
	}
	cmd.Flags().BoolP("recursive", "R", false, "Descend into sub containers")
	return cmd
}

type lister struct {
	ctx       context.Context
	out       io.Writer
	backend   types.Backend
	recursive bool
	root      string
}

func (l *lister) run(path string) error {
	if !types.IsContainerPath(path) {
		size, found, err := l.stat(path)
		if err != nil {
			return err
		}
		if found {
			l.print(path, size)
			return nil
		}
		path += "/"
	}
	l.root = path
	return l.dir(path)
}

func (l *lister) dir(dir string) error {
	resp, err := l.backend.Handle(l.ctx, types.NewRequest(types.MethodReadMeta, dir, nil))
	if err != nil {
		return err
	}
	resp.Close()
	if !resp.OK() {
		return types.StatusError(dir, resp)
	}

	for _, name := range types.Links(resp.Header) {
		full := dir + name
		if strings.HasSuffix(name, "/") {
			l.print(full, -1)
			if l.recursive {
				if err := l.dir(full); err != nil {
					return err
				}
			}
			continue
		}
		size, _, err := l.stat(full)
		if err != nil {
			return err
		}
		l.print(full, size)
	}
	return nil
}

func (l *lister) stat(path string) (int64, bool, error) {
	resp, err := l.backend.Handle(l.ctx, types.NewRequest(types.MethodReadMeta, path, nil))
	if err != nil {
		return 0, false, err
	}
	resp.Close()
	if resp.IsNotFound() {
		return 0, false, nil
	}
	if !resp.OK() {
		return 0, false, types.StatusError(path, resp)
	}
	return resp.ContentLength(), true, nil
}

// print writes one listing line; a negative size marks a container
func (l *lister) print(path string, size int64) {
	shown := "-"
	if size >= 0 {
		shown = humanize.IBytes(uint64(size))
	}
	fmt.Fprintf(l.out, "%10s  %s\n", shown, strings.TrimPrefix(path, l.root))
}

// ============================================================================
// cat / rcat
// ============================================================================

func (a *app) newCatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat name:path",
		Short: "Write an object to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, path, err := a.target(args[0])
			if err != nil {
				return err
			}
			if types.IsContainerPath(path) {
				return fmt.Errorf("cat: %q is a container", args[0])
			}

			fl := NewFlagLoader(cmd, a.v)
			offset, count := fl.Int64("offset"), fl.Int64("count")
			if offset < 0 {
				return fmt.Errorf("cat: negative offset %d", offset)
			}
			if count == 0 {
				return nil
			}

			req := types.NewRequest(types.MethodReadContent, path, nil)
			if offset > 0 || count > 0 {
				req.Header.Set("Range", types.ByteRange(offset, count).String())
			}
			resp, err := b.Handle(cmd.Context(), req)
			if err != nil {
				return err
			}
			defer resp.Close()
			if resp.Status == http.StatusRequestedRangeNotSatisfiable {
				return fmt.Errorf("cat: offset %d is past the end of %s", offset, args[0])
			}
			if !resp.OK() {
				return types.StatusError(path, resp)
			}
			if resp.Body == nil {
				return nil
			}
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}
	cmd.Flags().Int64("offset", 0, "Start reading at this byte")
	cmd.Flags().Int64("count", -1, "Read at most this many bytes (-1 for all)")
	return cmd
}

func (a *app) newRcatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rcat name:path",
		Short: "Store stdin as an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, path, err := a.target(args[0])
			if err != nil {
				return err
			}
			if types.IsContainerPath(path) {
				return fmt.Errorf("rcat: %q is a container", args[0])
			}
			return write(cmd.Context(), b, path, cmd.InOrStdin())
		},
	}
}

// ============================================================================
// mkdir / rm
// ============================================================================

func (a *app) newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir name:path",
		Short: "Create a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, path, err := a.target(args[0])
			if err != nil {
				return err
			}
			if !types.IsContainerPath(path) {
				path += "/"
			}
			return write(cmd.Context(), b, path, nil)
		},
	}
}

func (a *app) newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm name:path",
		Short: "Delete an object, or a container and everything in it (trailing /)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, path, err := a.target(args[0])
			if err != nil {
				return err
			}
			if path == "" {
				return errors.New("rm: refusing to delete the root of a remote")
			}
			resp, err := b.Handle(cmd.Context(), types.NewRequest(types.MethodDelete, path, nil))
			if err != nil {
				return err
			}
			resp.Close()
			if !resp.OK() {
				return types.StatusError(path, resp)
			}
			return nil
		},
	}
}

func write(ctx context.Context, b types.Backend, path string, body io.Reader) error {
	resp, err := b.Handle(ctx, types.NewRequest(types.MethodWrite, path, body))
	if err != nil {
		return err
	}
	resp.Close()
	if !resp.OK() {
		return types.StatusError(path, resp)
	}
	logger.Ctx(ctx).Debug().Str("location", resp.Header.Get("Location")).Msg("stored")
	return nil
}
