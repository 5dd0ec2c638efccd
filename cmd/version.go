// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/LeeDigitalWorks/stackfs/pkg/storage/backend"

	"github.com/spf13/cobra"
)

// Build-time variables (set via -ldflags)
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// GitCommit is the git commit hash
	GitCommit = "unknown"

	// BuildDate is the build timestamp
	BuildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			info := VersionInfo()
			fmt.Fprintf(out, "stackfs %s\n", info["version"])
			fmt.Fprintf(out, "  Git commit: %s\n", info["git_commit"])
			fmt.Fprintf(out, "  Built:      %s\n", info["build_date"])
			fmt.Fprintf(out, "  Go version: %s\n", info["go_version"])
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", info["os"], info["arch"])
			fmt.Fprintf(out, "  Backends:   %s\n", info["backends"])
		},
	}
}

// VersionInfo returns structured version information.
func VersionInfo() map[string]string {
	var types []string
	for _, t := range backend.Registered() {
		types = append(types, string(t))
	}
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"backends":   strings.Join(types, ", "),
	}
}
