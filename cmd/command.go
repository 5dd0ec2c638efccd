// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmd provides the stackfs command line.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/LeeDigitalWorks/stackfs/pkg/logger"
	"github.com/LeeDigitalWorks/stackfs/pkg/storage/backend"
	"github.com/LeeDigitalWorks/stackfs/pkg/utils"

	// Overlays register themselves with the backend registry
	_ "github.com/LeeDigitalWorks/stackfs/pkg/alias"
	_ "github.com/LeeDigitalWorks/stackfs/pkg/chunker"
	_ "github.com/LeeDigitalWorks/stackfs/pkg/crypt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app is the state shared by every subcommand of one invocation
type app struct {
	v       *viper.Viper
	remotes *backend.Manager
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "stackfs",
		Short: "stackfs - layered remote storage",
		Long: `stackfs reads and writes files on configured remotes. A remote is a
primary backend (memory, local, s3, redis, leveldb, http) or an overlay
(alias, chunker, crypt) stacked on top of another remote.

Remotes are declared in the config file under remotes.<name> and are
addressed on the command line as name:path.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.remotes != nil {
				a.remotes.Close()
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
	flags.String("config", "stackfs", "Config file name or path")
	flags.String("log_level", "", "Log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(
		a.newLsCmd(),
		a.newCatCmd(),
		a.newRcatCmd(),
		a.newMkdirCmd(),
		a.newRmCmd(),
		a.newServeCmd(),
		a.newCryptEncodeCmd(),
		a.newCryptDecodeCmd(),
		newObscureCmd(),
		newRevealCmd(),
		newVersionCmd(),
	)
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("stackfs {{.Version}}\n")
	return rootCmd
}

// setup loads the config file and defines every remote it declares
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if level, _ := cmd.Flags().GetString("log_level"); level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return err
		}
		logger.SetLevel(parsed)
	}

	name, _ := cmd.Flags().GetString("config")
	if _, err := utils.LoadConfiguration(a.v, name, cmd.Flags().Changed("config")); err != nil {
		return err
	}
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	remotes, err := loadRemotes(a.v)
	if err != nil {
		return err
	}
	a.remotes = remotes
	return nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
