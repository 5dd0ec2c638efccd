// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"errors"
	"strings"

	"github.com/LeeDigitalWorks/stackfs/pkg/logger"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. STACKFS_REMOTES_BACKUP_TYPE
const EnvPrefix = "STACKFS"

var (
	ConfigurationFileDirectory string
)

// LoadConfiguration merges the named config file into v. An explicit file
// path wins over the search path (config dir, ".", ~/.stackfs, /etc/stackfs).
// A missing file is only an error when required.
func LoadConfiguration(v *viper.Viper, configFileName string, required bool) (bool, error) {
	if strings.ContainsAny(configFileName, `/\`) || strings.Contains(configFileName, ".") {
		v.SetConfigFile(ResolvePath(configFileName))
	} else {
		v.SetConfigName(configFileName)
		if ConfigurationFileDirectory != "" {
			v.AddConfigPath(ResolvePath(ConfigurationFileDirectory))
		}
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.stackfs")
		v.AddConfigPath("/etc/stackfs/")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && !required {
			logger.Debug().Str("name", configFileName).Msg("config file not found")
			return false, nil
		}
		return false, err
	}
	logger.Info().Str("file", v.ConfigFileUsed()).Msg("loaded config file")
	return true, nil
}
