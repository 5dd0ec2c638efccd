// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/stackfs/pkg/obscure"
	"github.com/LeeDigitalWorks/stackfs/pkg/storage/backend"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testConfig = `
remotes:
  disk:
    type: local
    root: %q
  big:
    type: chunker
    remote: "disk:chunks"
    chunk_size: 1k
  vault:
    type: crypt
    remote: "disk:secret"
    password: %q
`

// writeConfig creates a config file with a local remote and overlays on it
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(root, 0o755))

	path := filepath.Join(dir, "stackfs.yaml")
	content := fmt.Sprintf(testConfig, root, obscure.MustObscure("potato"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes one stackfs invocation against cfg
func run(t *testing.T, cfg, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--config", cfg))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, cfg, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, cfg, stdin, args...)
	require.NoError(t, err, "stackfs %s", strings.Join(args, " "))
	return out
}

// ============================================================================
// Remote configuration
// ============================================================================

func TestLoadRemotes(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(fmt.Sprintf(testConfig, "/srv", "x"))))

	m, err := loadRemotes(v)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, []string{"big", "disk", "vault"}, m.List())

	cfg, ok := m.Config("big")
	require.True(t, ok)
	assert.Equal(t, types.StorageTypeChunker, cfg.Type)
	assert.Equal(t, map[string]string{"remote": "disk:chunks", "chunk_size": "1k"}, cfg.Options)

	cfg, ok = m.Config("disk")
	require.True(t, ok)
	assert.Equal(t, "/srv", cfg.Options["root"])
	assert.NotContains(t, cfg.Options, "type")
}

func TestLoadRemotes_MissingType(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader("remotes:\n  disk:\n    root: /srv\n")))

	_, err := loadRemotes(v)
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
}

func TestLoadRemotes_EnvOverride(t *testing.T) {
	cfg := writeConfig(t)
	override := t.TempDir()
	t.Setenv("STACKFS_REMOTES_DISK_ROOT", override)

	mustRun(t, cfg, "hi", "rcat", "disk:note.txt")

	data, err := os.ReadFile(filepath.Join(override, "note.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestCLI_UnknownRemote(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, cfg, "", "cat", "nowhere:file")
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
}

// ============================================================================
// File commands
// ============================================================================

func TestCLI_RcatCatLs(t *testing.T) {
	cfg := writeConfig(t)

	mustRun(t, cfg, "hello", "rcat", "disk:docs/a.txt")
	mustRun(t, cfg, "", "mkdir", "disk:docs/sub")

	assert.Equal(t, "hello", mustRun(t, cfg, "", "cat", "disk:docs/a.txt"))

	out := mustRun(t, cfg, "", "ls", "disk:docs")
	assert.Contains(t, out, "5 B  a.txt\n")
	assert.Contains(t, out, "-  sub/\n")

	out = mustRun(t, cfg, "", "ls", "disk:docs/a.txt")
	assert.Contains(t, out, "docs/a.txt")
}

func TestCLI_LsRecursive(t *testing.T) {
	cfg := writeConfig(t)

	mustRun(t, cfg, "x", "rcat", "disk:a/b/c.txt")

	flat := mustRun(t, cfg, "", "ls", "disk:a/")
	assert.NotContains(t, flat, "c.txt")

	deep := mustRun(t, cfg, "", "ls", "-R", "disk:a/")
	assert.Contains(t, deep, "b/\n")
	assert.Contains(t, deep, "b/c.txt\n")
}

func TestCLI_CatRange(t *testing.T) {
	cfg := writeConfig(t)

	mustRun(t, cfg, "0123456789", "rcat", "disk:digits")

	assert.Equal(t, "234", mustRun(t, cfg, "", "cat", "--offset", "2", "--count", "3", "disk:digits"))
	assert.Equal(t, "789", mustRun(t, cfg, "", "cat", "--offset", "7", "disk:digits"))
	assert.Equal(t, "01", mustRun(t, cfg, "", "cat", "--count", "2", "disk:digits"))
	assert.Empty(t, mustRun(t, cfg, "", "cat", "--count", "0", "disk:digits"))

	_, err := run(t, cfg, "", "cat", "--offset", "50", "disk:digits")
	assert.Error(t, err)
}

func TestCLI_CatMissing(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, cfg, "", "cat", "disk:nothing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestCLI_MkdirRm(t *testing.T) {
	cfg := writeConfig(t)

	mustRun(t, cfg, "", "mkdir", "disk:d")
	mustRun(t, cfg, "1", "rcat", "disk:d/f")
	assert.Contains(t, mustRun(t, cfg, "", "ls", "disk:"), "d/")

	mustRun(t, cfg, "", "rm", "disk:d/")
	assert.NotContains(t, mustRun(t, cfg, "", "ls", "disk:"), "d/")

	_, err := run(t, cfg, "", "rm", "disk:")
	assert.Error(t, err)
}

// ============================================================================
// Overlays through the CLI
// ============================================================================

func TestCLI_Chunker(t *testing.T) {
	cfg := writeConfig(t)
	data := strings.Repeat("abcdefghij", 300)

	mustRun(t, cfg, data, "rcat", "big:file.bin")

	assert.Equal(t, data, mustRun(t, cfg, "", "cat", "big:file.bin"))
	assert.Equal(t, data[1020:1030], mustRun(t, cfg, "", "cat", "--offset", "1020", "--count", "10", "big:file.bin"))

	out := mustRun(t, cfg, "", "ls", "big:")
	assert.Contains(t, out, "file.bin\n")
	assert.NotContains(t, out, "rclone_chunk")

	raw := mustRun(t, cfg, "", "ls", "disk:chunks/")
	assert.Contains(t, raw, "file.bin.rclone_chunk.001\n")
	assert.Contains(t, raw, "file.bin.rclone_chunk.003\n")
}

func TestCLI_Crypt(t *testing.T) {
	cfg := writeConfig(t)

	mustRun(t, cfg, "top secret", "rcat", "vault:plans/secret.txt")
	assert.Equal(t, "top secret", mustRun(t, cfg, "", "cat", "vault:plans/secret.txt"))
	assert.Contains(t, mustRun(t, cfg, "", "ls", "vault:plans/"), "secret.txt")

	out := mustRun(t, cfg, "", "cryptencode", "vault", "plans/secret.txt")
	fields := strings.Fields(out)
	require.Len(t, fields, 2)
	assert.Equal(t, "plans/secret.txt", fields[0])
	encoded := fields[1]
	assert.NotContains(t, encoded, "secret")

	raw := mustRun(t, cfg, "", "ls", "-R", "disk:secret/")
	assert.NotContains(t, raw, "secret.txt")
	assert.Contains(t, raw, encoded)

	out = mustRun(t, cfg, "", "cryptdecode", "vault:", encoded)
	assert.Equal(t, []string{encoded, "plans/secret.txt"}, strings.Fields(out))
}

func TestCLI_CryptCodeRejectsOtherRemotes(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, cfg, "", "cryptencode", "disk", "a")
	assert.Error(t, err)

	_, err = run(t, cfg, "", "cryptencode", "missing", "a")
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))
}

// ============================================================================
// Utility commands
// ============================================================================

func TestCLI_ObscureReveal(t *testing.T) {
	cfg := writeConfig(t)

	obscured := strings.TrimSpace(mustRun(t, cfg, "", "obscure", "hunter2"))
	assert.NotEqual(t, "hunter2", obscured)
	assert.Equal(t, "hunter2\n", mustRun(t, cfg, "", "reveal", obscured))

	_, err := run(t, cfg, "", "reveal", "!!")
	assert.Error(t, err)
}

func TestCLI_Version(t *testing.T) {
	cfg := writeConfig(t)

	out := mustRun(t, cfg, "", "version")
	assert.Contains(t, out, "stackfs dev")
	assert.Contains(t, out, "chunker")
	assert.Contains(t, out, "crypt")

	info := VersionInfo()
	assert.Equal(t, Version, info["version"])
	assert.Contains(t, info["backends"], "local")
}

func TestCLI_MissingExplicitConfig(t *testing.T) {
	_, err := run(t, filepath.Join(t.TempDir(), "absent.yaml"), "", "version")
	assert.Error(t, err)
}

// ============================================================================
// serve
// ============================================================================

func TestServe_StopsOnCancel(t *testing.T) {
	m := backend.NewManager()
	require.NoError(t, m.AddMemory("mem"))
	defer m.Close()
	a := &app{v: viper.New(), remotes: m}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.serve(ctx, "mem:", serveOpts{
			Addr:            "127.0.0.1:0",
			DebugAddr:       "127.0.0.1:0",
			ShutdownTimeout: time.Second,
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_BadAddress(t *testing.T) {
	m := backend.NewManager()
	require.NoError(t, m.AddMemory("mem"))
	defer m.Close()
	a := &app{v: viper.New(), remotes: m}

	err := a.serve(context.Background(), "mem:", serveOpts{Addr: "not-an-address"})
	assert.Error(t, err)
}
