// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report option names rather than Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeOptions decodes query-style options into out (a pointer to a struct
// tagged with `mapstructure` and `validate`). Fields keep their current
// values when the option is absent or empty, so callers set defaults first.
// Unknown options are ignored. Failures are returned as *types.ConfigError.
func DecodeOptions(t types.StorageType, opts map[string]string, out any) error {
	input := make(map[string]string, len(opts))
	for k, v := range opts {
		if v != "" {
			input[k] = v
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("options decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return &types.ConfigError{Backend: t, Reason: err.Error()}
	}

	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &types.ConfigError{Backend: t, Option: fe.Field(), Reason: describe(fe)}
		}
		return &types.ConfigError{Backend: t, Reason: err.Error()}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "url":
		return fmt.Sprintf("invalid url %q", fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
