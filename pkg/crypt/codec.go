// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package crypt

// Encode encrypts each path with the keys of opts, without touching any
// remote
func Encode(opts Options, paths ...string) ([]string, error) {
	return codePaths(opts, paths, (*NameCipher).EncryptPath)
}

// Decode decrypts each path with the keys of opts
func Decode(opts Options, paths ...string) ([]string, error) {
	return codePaths(opts, paths, (*NameCipher).DecryptPath)
}

func codePaths(opts Options, paths []string, fn func(*NameCipher, string) (string, error)) ([]string, error) {
	k, err := opts.Keys()
	if err != nil {
		return nil, err
	}
	names, err := NewNameCipher(k)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		if out[i], err = fn(names, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}
