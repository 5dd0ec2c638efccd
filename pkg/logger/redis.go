// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"context"
)

// ZerologRedisAdapter routes go-redis internal logging (reconnects, pool
// errors) through the context logger. Install with redis.SetLogger.
type ZerologRedisAdapter struct{}

func (z ZerologRedisAdapter) Printf(ctx context.Context, format string, v ...interface{}) {
	Ctx(ctx).Warn().Str("component", "redis").Msgf(format, v...)
}
