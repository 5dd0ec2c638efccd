// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// FlagLoader reads settings with CLI flag precedence. An explicitly set
// flag wins; otherwise viper's order applies: env > config file > default.
type FlagLoader struct {
	cmd *cobra.Command
	v   *viper.Viper
}

// NewFlagLoader creates a FlagLoader for cmd backed by v
func NewFlagLoader(cmd *cobra.Command, v *viper.Viper) *FlagLoader {
	return &FlagLoader{cmd: cmd, v: v}
}

// String returns the flag value if set, otherwise the viper value.
func (f *FlagLoader) String(flagName string) string {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetString(flagName)
		return val
	}
	if f.v.IsSet(flagName) {
		return f.v.GetString(flagName)
	}
	val, _ := f.cmd.Flags().GetString(flagName)
	return val
}

// Int64 returns the flag value if set, otherwise the viper value.
func (f *FlagLoader) Int64(flagName string) int64 {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetInt64(flagName)
		return val
	}
	if f.v.IsSet(flagName) {
		return f.v.GetInt64(flagName)
	}
	val, _ := f.cmd.Flags().GetInt64(flagName)
	return val
}

// Bool returns the flag value if set, otherwise the viper value.
func (f *FlagLoader) Bool(flagName string) bool {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetBool(flagName)
		return val
	}
	if f.v.IsSet(flagName) {
		return f.v.GetBool(flagName)
	}
	val, _ := f.cmd.Flags().GetBool(flagName)
	return val
}

// Duration returns the flag value if set, otherwise the viper value.
func (f *FlagLoader) Duration(flagName string) time.Duration {
	if f.cmd.Flags().Changed(flagName) {
		val, _ := f.cmd.Flags().GetDuration(flagName)
		return val
	}
	if f.v.IsSet(flagName) {
		return f.v.GetDuration(flagName)
	}
	val, _ := f.cmd.Flags().GetDuration(flagName)
	return val
}
