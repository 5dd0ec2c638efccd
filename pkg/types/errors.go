// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is matched by errors produced from 404 responses
	ErrNotFound = errors.New("not found")

	// ErrIntegrity reports stored content that failed authentication or
	// does not match its recorded shape
	ErrIntegrity = errors.New("integrity check failed")

	// ErrIncompleteComposite reports a chunked file with missing chunks
	ErrIncompleteComposite = errors.New("incomplete composite file")

	ErrInvalidRange        = errors.New("invalid range")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// ConfigError is a malformed or missing backend option. It is reported
// before any I/O and never means the target does not exist.
type ConfigError struct {
	Backend StorageType
	Option  string
	Reason  string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Option == "":
		return fmt.Sprintf("%s: %s", e.Backend, e.Reason)
	case e.Backend == "":
		return fmt.Sprintf("option %q: %s", e.Option, e.Reason)
	default:
		return fmt.Sprintf("%s: option %q: %s", e.Backend, e.Option, e.Reason)
	}
}

// NewConfigError is a shorthand for &ConfigError{...}
func NewConfigError(backend StorageType, option, format string, args ...any) *ConfigError {
	return &ConfigError{Backend: backend, Option: option, Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is or wraps a *ConfigError
func IsConfigError(err error) bool {
	var cerr *ConfigError
	return errors.As(err, &cerr)
}

// ResponseError is a non-success response turned into a Go error.
// It keeps the original status code.
type ResponseError struct {
	Status int
	Path   string
}

func (e *ResponseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s: %d %s", e.Path, e.Status, http.StatusText(e.Status))
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses
func (e *ResponseError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// StatusError closes resp and converts its status into an error
func StatusError(path string, resp *Response) error {
	if resp == nil {
		return &ResponseError{Status: http.StatusInternalServerError, Path: path}
	}
	resp.Close()
	return &ResponseError{Status: resp.Status, Path: path}
}

// StatusOf maps an error returned by a backend to the status a caller
// should report for it
func StatusOf(err error) int {
	var rerr *ResponseError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &rerr):
		return rerr.Status
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case IsConfigError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, ErrIntegrity), errors.Is(err, ErrIncompleteComposite):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
