// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package crypt

import (
	"github.com/LeeDigitalWorks/stackfs/pkg/obscure"
	"github.com/LeeDigitalWorks/stackfs/pkg/storage/backend"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"
)

// Options configures the crypt overlay. Passwords are stored obscured.
type Options struct {
	Remote    string `mapstructure:"remote" validate:"required"`
	Password  string `mapstructure:"password" validate:"required"`
	Password2 string `mapstructure:"password2"`
}

// ParseOptions decodes and validates query-style options
func ParseOptions(opts map[string]string) (Options, error) {
	var o Options
	if err := backend.DecodeOptions(types.StorageTypeCrypt, opts, &o); err != nil {
		return Options{}, err
	}
	return o, nil
}

// Keys reveals the configured passwords and derives key material
func (o Options) Keys() (*Keys, error) {
	password, err := obscure.Reveal(o.Password)
	if err != nil {
		return nil, types.NewConfigError(types.StorageTypeCrypt, "password", "%v", err)
	}
	salt := ""
	if o.Password2 != "" {
		if salt, err = obscure.Reveal(o.Password2); err != nil {
			return nil, types.NewConfigError(types.StorageTypeCrypt, "password2", "%v", err)
		}
	}
	k, err := DeriveKeys(password, salt)
	if err != nil {
		return nil, types.NewConfigError(types.StorageTypeCrypt, "password", "%v", err)
	}
	return k, nil
}
