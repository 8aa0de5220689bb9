package magika

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	offsetRegionSize = 8
	// ConfigFileName is the model config file inside a model directory.
	ConfigFileName = "config.min.json"
)

// Absolute offsets probed when UseInputsAtOffsets is set, in flattening order.
var probeOffsets = [4]int64{0x8000, 0x8800, 0x9000, 0x9800}

// ModelConfig holds the parts of a model's config.min.json needed for
// inference. Absent fields decode to their zero values.
type ModelConfig struct {
	BegSize            int  `json:"beg_size"`
	MidSize            int  `json:"mid_size"`
	EndSize            int  `json:"end_size"`
	UseInputsAtOffsets bool `json:"use_inputs_at_offsets"`
	BlockSize          int  `json:"block_size"`

	// PaddingToken must be outside the 0-255 byte range.
	PaddingToken int32 `json:"padding_token"`

	// TargetLabelsSpace is index-aligned with the model's output scores.
	TargetLabelsSpace []string `json:"target_labels_space"`

	// Loaded but not applied by the scanner; see LabelPolicy.
	MediumConfidenceThreshold float32            `json:"medium_confidence_threshold"`
	MinFileSizeForDL          int64              `json:"min_file_size_for_dl"`
	Thresholds                map[string]float32 `json:"thresholds"`
	Overwrite                 map[string]string  `json:"overwrite_map"`
}

// LoadModelConfig reads and decodes a model config file.
func LoadModelConfig(path string) (*ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrConfigInvalid, path, err)
	}
	cfg, err := ParseModelConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseModelConfig decodes a model config from JSON.
func ParseModelConfig(data []byte) (*ModelConfig, error) {
	var cfg ModelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrConfigInvalid, err)
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = map[string]float32{}
	}
	if cfg.Overwrite == nil {
		cfg.Overwrite = map[string]string{}
	}
	return &cfg, nil
}

// Validate checks the fields the extraction and resolution steps rely on.
func (c *ModelConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if c.BegSize < 0 || c.MidSize < 0 || c.EndSize < 0 {
		return fmt.Errorf("%w: region sizes must be non-negative (beg=%d mid=%d end=%d)", ErrConfigInvalid, c.BegSize, c.MidSize, c.EndSize)
	}
	if c.BlockSize < 0 {
		return fmt.Errorf("%w: block_size must be non-negative, got %d", ErrConfigInvalid, c.BlockSize)
	}
	if c.PaddingToken >= 0 && c.PaddingToken <= 255 {
		return fmt.Errorf("%w: padding_token %d collides with a byte value", ErrConfigInvalid, c.PaddingToken)
	}
	if len(c.TargetLabelsSpace) == 0 {
		return fmt.Errorf("%w: target_labels_space is empty", ErrConfigInvalid)
	}
	if c.FeatureLen() == 0 {
		return fmt.Errorf("%w: feature vector would be empty", ErrConfigInvalid)
	}
	return nil
}

// FeatureLen is the length of the flattened feature vector for this config.
func (c *ModelConfig) FeatureLen() int {
	n := c.BegSize + c.EndSize
	if c.MidSize > 0 {
		n += c.MidSize
	}
	if c.UseInputsAtOffsets {
		n += len(probeOffsets) * offsetRegionSize
	}
	return n
}

// Clone returns a deep copy so callers cannot mutate a scanner's config.
func (c *ModelConfig) Clone() ModelConfig {
	out := *c
	out.TargetLabelsSpace = append([]string(nil), c.TargetLabelsSpace...)
	out.Thresholds = make(map[string]float32, len(c.Thresholds))
	for k, v := range c.Thresholds {
		out.Thresholds[k] = v
	}
	out.Overwrite = make(map[string]string, len(c.Overwrite))
	for k, v := range c.Overwrite {
		out.Overwrite[k] = v
	}
	return out
}
