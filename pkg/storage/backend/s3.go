// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/LeeDigitalWorks/stackfs/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

func init() {
	Register(types.StorageTypeS3, NewS3)
}

// S3API is the subset of the S3 client the backend uses
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options configures the s3 backend
type S3Options struct {
	Bucket    string `mapstructure:"bucket" validate:"required"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint" validate:"omitempty,url"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// S3 implements Backend for S3-compatible storage. Containers are key
// prefixes; an empty container is kept alive by a zero-byte marker object
// whose key ends in "/".
type S3 struct {
	client S3API
	bucket string
	prefix string
}

// NewS3 creates an S3 backend
func NewS3(cfg types.BackendConfig, _ types.Resolver) (types.Backend, error) {
	var o S3Options
	if err := DecodeOptions(types.StorageTypeS3, cfg.Options, &o); err != nil {
		return nil, err
	}

	opts := []func(*config.LoadOptions) error{}

	if o.Region != "" {
		opts = append(opts, config.WithRegion(o.Region))
	}

	if o.AccessKey != "" && o.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	// Build S3 client options
	s3Opts := []func(*s3.Options){}
	if o.Endpoint != "" {
		s3Opts = append(s3Opts, func(so *s3.Options) {
			so.BaseEndpoint = aws.String(o.Endpoint)
			so.UsePathStyle = true
		})
	}

	return NewS3WithClient(s3.NewFromConfig(awsCfg, s3Opts...), o.Bucket, o.Prefix), nil
}

// NewS3WithClient creates an S3 backend over an existing client
func NewS3WithClient(client S3API, bucket, prefix string) *S3 {
	prefix = types.CleanPath(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3) Type() types.StorageType {
	return types.StorageTypeS3
}

func (s *S3) key(path string) string {
	return s.prefix + path
}

func (s *S3) Handle(ctx context.Context, req *types.Request) (*types.Response, error) {
	path := types.CleanPath(req.Path)

	switch req.Method {
	case types.MethodReadMeta, types.MethodReadContent:
		if types.IsContainerPath(path) {
			return s.list(ctx, path, req.Method == types.MethodReadContent)
		}
		if req.Method == types.MethodReadMeta {
			return s.head(ctx, path)
		}
		return s.get(ctx, req, path)
	case types.MethodWrite:
		if types.IsContainerPath(path) {
			if path != "" {
				if err := s.put(ctx, path, nil); err != nil {
					return nil, err
				}
			}
			return types.Created(path), nil
		}
		if err := s.put(ctx, path, req.Body); err != nil {
			return nil, err
		}
		return types.Created(path), nil
	case types.MethodDelete:
		if err := s.delete(ctx, path); err != nil {
			return nil, err
		}
		return types.NoContent(), nil
	default:
		return types.MethodNotAllowed(), nil
	}
}

func (s *S3) put(ctx context.Context, path string, body io.Reader) error {
	// The object is buffered so the request can be signed with a known length
	var buf []byte
	if body != nil {
		data, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("read data: %w", err)
		}
		buf = data
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(path)),
		Body:          bytes.NewReader(buf),
		ContentLength: aws.Int64(int64(len(buf))),
		ContentType:   aws.String(types.ContentTypeFor(path)),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

func (s *S3) head(ctx context.Context, path string) (*types.Response, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return types.NotFound(), nil
		}
		return nil, fmt.Errorf("head object: %w", err)
	}

	resp := types.NewResponse(http.StatusOK)
	types.SetObjectHeaders(resp.Header, types.ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ModTime:     aws.ToTime(out.LastModified),
		ContentType: aws.ToString(out.ContentType),
	})
	return resp, nil
}

func (s *S3) get(ctx context.Context, req *types.Request, path string) (*types.Response, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	}
	rng, _ := types.RequestRange(req.Header)
	if rng != nil {
		in.Range = aws.String(rng.String())
	}

	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		switch {
		case isS3NotFound(err):
			return types.NotFound(), nil
		case s3ErrorCode(err) == "InvalidRange":
			return types.NewResponse(http.StatusRequestedRangeNotSatisfiable), nil
		}
		return nil, fmt.Errorf("get object: %w", err)
	}

	resp := types.NewResponse(http.StatusOK)
	types.SetObjectHeaders(resp.Header, types.ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ModTime:     aws.ToTime(out.LastModified),
		ContentType: aws.ToString(out.ContentType),
	})
	if cr := aws.ToString(out.ContentRange); cr != "" {
		resp.Status = http.StatusPartialContent
		resp.Header.Set("Content-Range", cr)
	}
	resp.Body = out.Body
	return resp, nil
}

// list pages through one level of the prefix with a "/" delimiter
func (s *S3) list(ctx context.Context, path string, body bool) (*types.Response, error) {
	prefix := s.key(path)
	found := path == ""
	var names []string
	var token *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, cp := range out.CommonPrefixes {
			found = true
			names = append(names, strings.TrimPrefix(aws.ToString(cp.Prefix), prefix))
		}
		for _, obj := range out.Contents {
			found = true
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name != "" {
				names = append(names, name)
			}
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	if !found {
		return types.NotFound(), nil
	}
	slices.Sort(names)
	return types.ListingResponse(slices.Compact(names), body), nil
}

func (s *S3) delete(ctx context.Context, path string) error {
	if !types.IsContainerPath(path) {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(path)),
		})
		if err != nil && !isS3NotFound(err) {
			return fmt.Errorf("delete object: %w", err)
		}
		return nil
	}

	// Recursive: every key under the prefix, markers included
	prefix := s.key(path)
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range out.Contents {
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil && !isS3NotFound(err) {
				return fmt.Errorf("delete object: %w", err)
			}
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return nil
		}
		token = out.NextContinuationToken
	}
}

func (s *S3) Close() error {
	return nil
}

func s3ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isS3NotFound(err error) bool {
	switch s3ErrorCode(err) {
	case "NotFound", "NoSuchKey":
		return true
	}
	return false
}
