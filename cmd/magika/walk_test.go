package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/straja-ai/magika-go/internal/config"
	"github.com/straja-ai/magika-go/internal/magika"
)

// stallingS3 blocks on HEAD and/or GET until the caller's context ends.
type stallingS3 struct {
	size      int64
	stallHead bool
}

func (s *stallingS3) HeadObject(ctx context.Context, _ *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if s.stallHead {
		return nil, wait(ctx)
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(s.size)}, nil
}

func (s *stallingS3) GetObject(ctx context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, wait(ctx)
}

func wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(3 * time.Second):
		return context.Canceled
	}
}

func newTestWalker(t *testing.T, api *stallingS3, stdout, stderr *bytes.Buffer) *walker {
	t.Helper()
	mc, err := magika.ParseModelConfig([]byte(cliModelConfig))
	if err != nil {
		t.Fatalf("parse model config: %v", err)
	}
	sc, err := magika.NewScanner(mc, magika.InferencerFunc(func(context.Context, []int32) ([]float32, error) {
		return []float32{0.7, 0.3}, nil
	}))
	if err != nil {
		t.Fatalf("new scanner: %v", err)
	}
	return &walker{
		scanner:     sc,
		model:       "standard_v3_3",
		cfg:         config.ScanConfig{},
		s3:          api,
		stdout:      stdout,
		stderr:      stderr,
		fileTimeout: 50 * time.Millisecond,
	}
}

func TestFileTimeoutBoundsS3(t *testing.T) {
	cases := []struct {
		name string
		api  *stallingS3
	}{
		{name: "hung get", api: &stallingS3{size: 64}},
		{name: "hung head", api: &stallingS3{size: 64, stallHead: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			w := newTestWalker(t, tc.api, &stdout, &stderr)

			start := time.Now()
			w.scanArg(context.Background(), "s3://b/k")
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Fatalf("per-file timeout ignored, scan took %v", elapsed)
			}
			if w.failed != 1 || w.scanned != 0 {
				t.Fatalf("expected one failure, got failed=%d scanned=%d", w.failed, w.scanned)
			}
			if !strings.Contains(stderr.String(), "deadline exceeded") {
				t.Fatalf("expected deadline error, got %q", stderr.String())
			}
		})
	}
}
