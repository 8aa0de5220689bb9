// Package s3source exposes S3 objects as magika sources backed by ranged GETs.
package s3source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/straja-ai/magika-go/internal/config"
	"github.com/straja-ai/magika-go/internal/magika"
)

const uriScheme = "s3://"

// API is the subset of the S3 client used here. *s3.Client satisfies it.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// IsURI reports whether s names an S3 object.
func IsURI(s string) bool {
	return strings.HasPrefix(s, uriScheme)
}

// ParseURI splits s3://bucket/key into its parts.
func ParseURI(uri string) (bucket, key string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	rest := strings.TrimPrefix(uri, uriScheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri %q must be s3://bucket/key", uri)
	}
	return bucket, key, nil
}

// NewClient builds an S3 client from the default AWS credential chain,
// overridden by cfg where set.
func NewClient(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}

	var s3Opts []func(*s3.Options)
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// Source reads an S3 object. The size is captured by Open; each ReadAt
// issues one ranged GetObject.
type Source struct {
	ctx    context.Context
	api    API
	bucket string
	key    string
	size   int64
}

// Open stats bucket/key. ctx bounds the HEAD request and every later read;
// use WithContext to bind reads to a narrower per-scan deadline.
func Open(ctx context.Context, api API, bucket, key string) (*Source, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	out, err := api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s: %w", magika.ErrSourceUnavailable, bucket, key, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("%w: head s3://%s/%s: %w", magika.ErrSourceUnavailable, bucket, key, err)
	}
	size := aws.ToInt64(out.ContentLength)
	if size < 0 {
		return nil, fmt.Errorf("%w: s3://%s/%s reported negative size", magika.ErrSourceUnavailable, bucket, key)
	}
	return &Source{ctx: ctx, api: api, bucket: bucket, key: key, size: size}, nil
}

// OpenURI is Open for an s3://bucket/key string.
func OpenURI(ctx context.Context, api API, uri string) (*Source, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", magika.ErrSourceUnavailable, err)
	}
	return Open(ctx, api, bucket, key)
}

func (s *Source) Size() int64 { return s.size }

// WithContext returns a copy of s whose reads are bound to ctx.
func (s *Source) WithContext(ctx context.Context) *Source {
	if ctx == nil {
		ctx = context.Background()
	}
	c := *s
	c.ctx = ctx
	return &c
}

// URI returns the s3:// form of the object.
func (s *Source) URI() string { return uriScheme + s.bucket + "/" + s.key }

// ReadAt implements io.ReaderAt. Reads past the end are truncated and
// report io.EOF.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("s3source: negative offset")
	}
	if off >= s.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := s.ctx.Err(); err != nil {
		return 0, fmt.Errorf("read s3://%s/%s: %w", s.bucket, s.key, err)
	}
	want := int64(len(p))
	eof := false
	if off+want > s.size {
		want = s.size - off
		eof = true
	}

	out, err := s.api.GetObject(s.ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+want-1)),
	})
	if err != nil {
		return 0, fmt.Errorf("get s3://%s/%s range %d+%d: %w", s.bucket, s.key, off, want, err)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, p[:want])
	if err != nil {
		return n, fmt.Errorf("read s3://%s/%s body: %w", s.bucket, s.key, err)
	}
	if eof {
		return n, io.EOF
	}
	return n, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var re interface{ HTTPStatusCode() int }
	if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchKey")
}
