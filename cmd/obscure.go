// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/LeeDigitalWorks/stackfs/pkg/crypt"
	"github.com/LeeDigitalWorks/stackfs/pkg/obscure"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/spf13/cobra"
)

func newObscureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "obscure password",
		Short: "Obscure a password for use in the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := obscure.Obscure(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newRevealCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "reveal obscured",
		Short:  "Reveal an obscured password",
		Args:   cobra.ExactArgs(1),
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := obscure.Reveal(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func (a *app) newCryptEncodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cryptencode remote path...",
		Short: "Show the stored names of paths on a crypt remote",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cryptCode(cmd, args, crypt.Encode)
		},
	}
}

func (a *app) newCryptDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cryptdecode remote name...",
		Short: "Show the plain paths of stored names on a crypt remote",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.cryptCode(cmd, args, crypt.Decode)
		},
	}
}

// cryptCode maps paths through the name cipher of the crypt remote args[0].
// The remote itself is never contacted.
func (a *app) cryptCode(cmd *cobra.Command, args []string, fn func(crypt.Options, ...string) ([]string, error)) error {
	name := strings.TrimSuffix(args[0], ":")
	cfg, ok := a.remotes.Config(name)
	if !ok {
		return &types.ConfigError{Option: "remote", Reason: fmt.Sprintf("unknown remote %q", name)}
	}
	if cfg.Type != types.StorageTypeCrypt {
		return fmt.Errorf("remote %s is %s, not %s", name, cfg.Type, types.StorageTypeCrypt)
	}
	opts, err := crypt.ParseOptions(cfg.Options)
	if err != nil {
		return err
	}
	out, err := fn(opts, args[1:]...)
	if err != nil {
		return err
	}
	for i, p := range out {
		fmt.Fprintf(cmd.OutOrStdout(), "%s \t%s\n", args[i+1], p)
	}
	return nil
}
