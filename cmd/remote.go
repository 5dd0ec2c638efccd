// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"slices"

	"github.com/LeeDigitalWorks/stackfs/pkg/logger"
	"github.com/LeeDigitalWorks/stackfs/pkg/storage/backend"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/spf13/viper"
)

// remotesKey is the config section declaring remotes:
//
//	remotes:
//	  disk:
//	    type: local
//	    root: /srv/data
//	  big:
//	    type: chunker
//	    remote: "disk:chunks"
//	    chunk_size: 64M
const remotesKey = "remotes"

// loadRemotes defines one remote per entry under remotes. Every key other
// than type becomes a backend option. Values are read through v so
// STACKFS_REMOTES_<NAME>_<OPTION> overrides the file.
func loadRemotes(v *viper.Viper) (*backend.Manager, error) {
	m := backend.NewManager()

	section := v.GetStringMap(remotesKey)
	names := make([]string, 0, len(section))
	for name := range section {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		entry, ok := section[name].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("remote %s: expected a table of options", name)
		}
		prefix := remotesKey + "." + name + "."
		typ := v.GetString(prefix + "type")
		if typ == "" {
			return nil, &types.ConfigError{Option: "type", Reason: fmt.Sprintf("remote %s has no type", name)}
		}

		cfg := types.BackendConfig{
			Type:    types.StorageType(typ),
			Options: make(map[string]string, len(entry)),
		}
		for key := range entry {
			if key != "type" {
				cfg.Options[key] = v.GetString(prefix + key)
			}
		}
		m.Define(name, cfg)
		logger.Debug().Str("remote", name).Str("type", typ).Msg("defined remote")
	}
	return m, nil
}

// target resolves "name:path" to the named remote and the path on it
func (a *app) target(ref string) (types.Backend, string, error) {
	name, path, err := backend.ParseRef(ref)
	if err != nil {
		return nil, "", err
	}
	b, err := a.remotes.Resolve(name + ":")
	if err != nil {
		return nil, "", err
	}
	return b, path, nil
}
