package magika

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const standardConfig = `{
  "beg_size": 1024,
  "mid_size": 0,
  "end_size": 1024,
  "use_inputs_at_offsets": false,
  "medium_confidence_threshold": 0.5,
  "min_file_size_for_dl": 8,
  "padding_token": 256,
  "block_size": 4096,
  "target_labels_space": ["ai", "apk", "pdf", "python", "txt"],
  "thresholds": {"txt": 0.9, "python": 0.7},
  "overwrite_map": {"ai": "pdf"}
}`

func TestParseModelConfig(t *testing.T) {
	cfg, err := ParseModelConfig([]byte(standardConfig))
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.BegSize)
	assert.Equal(t, 0, cfg.MidSize)
	assert.Equal(t, 1024, cfg.EndSize)
	assert.Equal(t, 4096, cfg.BlockSize)
	assert.Equal(t, int32(256), cfg.PaddingToken)
	assert.Equal(t, float32(0.5), cfg.MediumConfidenceThreshold)
	assert.Equal(t, int64(8), cfg.MinFileSizeForDL)
	assert.Equal(t, []string{"ai", "apk", "pdf", "python", "txt"}, cfg.TargetLabelsSpace)
	assert.Equal(t, float32(0.9), cfg.Thresholds["txt"])
	assert.Equal(t, "pdf", cfg.Overwrite["ai"])
	assert.Equal(t, 2048, cfg.FeatureLen())
	assert.NoError(t, cfg.Validate())
}

func TestParseModelConfigDefaultsMissingFields(t *testing.T) {
	cfg, err := ParseModelConfig([]byte(`{"target_labels_space": ["txt"]}`))
	require.NoError(t, err)

	assert.Zero(t, cfg.BegSize)
	assert.Zero(t, cfg.BlockSize)
	assert.False(t, cfg.UseInputsAtOffsets)
	assert.NotNil(t, cfg.Thresholds)
	assert.NotNil(t, cfg.Overwrite)
	assert.Empty(t, cfg.Overwrite)
}

// An absent padding_token decodes to 0 without error, but 0 is a byte value,
// so the config is rejected once it is validated for scanning.
func TestMissingPaddingTokenRejectedAtScannerConstruction(t *testing.T) {
	cfg, err := ParseModelConfig([]byte(`{"beg_size": 4, "end_size": 4, "block_size": 8, "target_labels_space": ["txt"]}`))
	require.NoError(t, err)
	assert.Equal(t, int32(0), cfg.PaddingToken)

	err = cfg.Validate()
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Contains(t, err.Error(), "padding_token")

	calls := 0
	_, err = NewScanner(cfg, InferencerFunc(func(context.Context, []int32) ([]float32, error) {
		calls++
		return []float32{1}, nil
	}))
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Equal(t, "config_invalid", ErrorKind(err))
	assert.Zero(t, calls)

	cfg.PaddingToken = 256
	_, err = NewScanner(cfg, InferencerFunc(func(context.Context, []int32) ([]float32, error) { return []float32{1}, nil }))
	assert.NoError(t, err)
}

func TestParseModelConfigMalformed(t *testing.T) {
	_, err := ParseModelConfig([]byte(`{"beg_size": "big"}`))
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestLoadModelConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(standardConfig), 0o644))

	cfg, err := LoadModelConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.TargetLabelsSpace, 5)

	_, err = LoadModelConfig(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, ErrConfigInvalid))
}

func TestModelConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ModelConfig)
		want   string
	}{
		{name: "negative beg", mutate: func(c *ModelConfig) { c.BegSize = -1 }, want: "non-negative"},
		{name: "negative block", mutate: func(c *ModelConfig) { c.BlockSize = -4 }, want: "block_size"},
		{name: "padding in byte range", mutate: func(c *ModelConfig) { c.PaddingToken = 32 }, want: "padding_token"},
		{name: "no labels", mutate: func(c *ModelConfig) { c.TargetLabelsSpace = nil }, want: "target_labels_space"},
		{name: "empty vector", mutate: func(c *ModelConfig) { c.BegSize, c.EndSize = 0, 0 }, want: "empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrConfigInvalid)
			assert.True(t, strings.Contains(err.Error(), tc.want), "error %q should mention %q", err, tc.want)
		})
	}
}

func TestFeatureLen(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, 8, cfg.FeatureLen())
	cfg.MidSize = 10
	assert.Equal(t, 18, cfg.FeatureLen())
	cfg.UseInputsAtOffsets = true
	assert.Equal(t, 50, cfg.FeatureLen())
}
