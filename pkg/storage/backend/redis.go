// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/stackfs/pkg/logger"
	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/redis/go-redis/v9"
)

const (
	redisObjectNS = "o:" // object data
	redisTimeNS   = "t:" // object modification time, unix nanos
	redisDirNS    = "d:" // directory markers
	redisScanSize = 500
)

func init() {
	Register(types.StorageTypeRedis, NewRedis)
	redis.SetLogger(logger.ZerologRedisAdapter{})
}

// RedisOptions configures the redis backend
type RedisOptions struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Password string `mapstructure:"password"`
	Prefix   string `mapstructure:"prefix"`
}

// Redis stores each object as a string key, which gives ranged reads via
// GETRANGE. Listings walk the keyspace with SCAN.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a redis backend
func NewRedis(cfg types.BackendConfig, _ types.Resolver) (types.Backend, error) {
	var o RedisOptions
	if err := DecodeOptions(types.StorageTypeRedis, cfg.Options, &o); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		DB:       o.DB,
		Password: o.Password,
	})
	return NewRedisWithClient(client, o.Prefix), nil
}

// NewRedisWithClient creates a redis backend over an existing client.
// The backend owns the client and closes it.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Type() types.StorageType {
	return types.StorageTypeRedis
}

func (r *Redis) key(ns, path string) string {
	return r.prefix + ns + path
}

func (r *Redis) Handle(ctx context.Context, req *types.Request) (*types.Response, error) {
	path := types.CleanPath(req.Path)

	switch req.Method {
	case types.MethodReadMeta, types.MethodReadContent:
		if types.IsContainerPath(path) {
			return r.list(ctx, path, req.Method == types.MethodReadContent)
		}
		return r.read(ctx, req, path)
	case types.MethodWrite:
		if types.IsContainerPath(path) {
			if path != "" {
				if err := r.client.Set(ctx, r.key(redisDirNS, path), "1", 0).Err(); err != nil {
					return nil, fmt.Errorf("redis set: %w", err)
				}
			}
			return types.Created(path), nil
		}
		if err := r.write(ctx, path, req.Body); err != nil {
			return nil, err
		}
		return types.Created(path), nil
	case types.MethodDelete:
		if err := r.delete(ctx, path); err != nil {
			return nil, err
		}
		return types.NoContent(), nil
	default:
		return types.MethodNotAllowed(), nil
	}
}

func (r *Redis) write(ctx context.Context, path string, body io.Reader) error {
	var data []byte
	if body != nil {
		buf, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		data = buf
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(redisObjectNS, path), data, 0)
		pipe.Set(ctx, r.key(redisTimeNS, path), time.Now().UnixNano(), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write: %w", err)
	}
	return nil
}

func (r *Redis) read(ctx context.Context, req *types.Request, path string) (*types.Response, error) {
	key := r.key(redisObjectNS, path)

	var size *redis.IntCmd
	var mtime *redis.StringCmd
	var exists *redis.IntCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.Exists(ctx, key)
		size = pipe.StrLen(ctx, key)
		mtime = pipe.Get(ctx, r.key(redisTimeNS, path))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis stat: %w", err)
	}
	if exists.Val() == 0 {
		return types.NotFound(), nil
	}

	info := types.ObjectInfo{Size: size.Val(), ContentType: types.ContentTypeFor(path)}
	if ns, err := strconv.ParseInt(mtime.Val(), 10, 64); err == nil {
		info.ModTime = time.Unix(0, ns)
	}

	return types.ObjectResponse(req, info, func(offset, length int64) (io.ReadCloser, error) {
		if length == 0 {
			return io.NopCloser(strings.NewReader("")), nil
		}
		data, err := r.client.GetRange(ctx, key, offset, offset+length-1).Bytes()
		if err != nil {
			return nil, fmt.Errorf("redis getrange: %w", err)
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// scan returns every key in namespace ns whose path starts with prefix
func (r *Redis) scan(ctx context.Context, ns, prefix string) ([]string, error) {
	base := r.key(ns, "")
	match := globEscape(base+prefix) + "*"

	var out []string
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, redisScanSize).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		for _, k := range keys {
			// MATCH is a glob; keep only true prefix matches
			if p, ok := strings.CutPrefix(k, base); ok && strings.HasPrefix(p, prefix) {
				out = append(out, p)
			}
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

func (r *Redis) list(ctx context.Context, path string, body bool) (*types.Response, error) {
	objects, err := r.scan(ctx, redisObjectNS, path)
	if err != nil {
		return nil, err
	}
	dirs, err := r.scan(ctx, redisDirNS, path)
	if err != nil {
		return nil, err
	}
	if path != "" && len(objects) == 0 && len(dirs) == 0 {
		return types.NotFound(), nil
	}

	var names []string
	for _, p := range slices.Concat(objects, dirs) {
		rest := p[len(path):]
		if rest == "" {
			continue
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i+1]
		}
		names = append(names, rest)
	}
	slices.Sort(names)
	return types.ListingResponse(slices.Compact(names), body), nil
}

func (r *Redis) delete(ctx context.Context, path string) error {
	if !types.IsContainerPath(path) {
		if err := r.client.Del(ctx, r.key(redisObjectNS, path), r.key(redisTimeNS, path)).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		return nil
	}

	var doomed []string
	for _, ns := range []string{redisObjectNS, redisTimeNS, redisDirNS} {
		paths, err := r.scan(ctx, ns, path)
		if err != nil {
			return err
		}
		for _, p := range paths {
			doomed = append(doomed, r.key(ns, p))
		}
	}
	for batch := range slices.Chunk(doomed, redisScanSize) {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// globEscape quotes the SCAN MATCH metacharacters
func globEscape(s string) string {
	var sb strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}
