// Package magika identifies the content type of a byte source by sampling
// fixed-size regions and classifying them with a byte-level model.
package magika

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"
)

// Inferencer runs the model on a flattened feature vector and returns one
// score per label. Implementations define their own concurrency contract.
type Inferencer interface {
	Infer(ctx context.Context, features []int32) ([]float32, error)
}

// InferencerFunc adapts a function to Inferencer.
type InferencerFunc func(ctx context.Context, features []int32) ([]float32, error)

func (f InferencerFunc) Infer(ctx context.Context, features []int32) ([]float32, error) {
	return f(ctx, features)
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLabelPolicy installs a post-processing step for resolved labels.
func WithLabelPolicy(p LabelPolicy) Option {
	return func(s *Scanner) {
		s.policy = p
	}
}

// Scanner classifies inputs with one model. It holds no mutable state and
// can be shared across goroutines; the Inferencer decides whether
// concurrent Infer calls are serialized.
type Scanner struct {
	cfg    ModelConfig
	model  Inferencer
	policy LabelPolicy
}

// NewScanner validates cfg and binds it to the model.
func NewScanner(cfg *ModelConfig, model Inferencer, opts ...Option) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if model == nil {
		return nil, errors.New("inferencer is nil")
	}
	s := &Scanner{
		cfg:   cfg.Clone(),
		model: model,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Scan classifies src. Empty sources resolve to LabelEmpty with score 1
// without touching the model; otherwise the model runs exactly once.
func (s *Scanner) Scan(ctx context.Context, src Source) (Prediction, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if src.Size() == 0 {
		return Prediction{Label: LabelEmpty, Score: 1}, nil
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	feats, err := ExtractFeatures(src, &s.cfg)
	if err != nil {
		return Prediction{}, err
	}
	input := feats.Flatten()
	if want := s.cfg.FeatureLen(); len(input) != want {
		return Prediction{}, fmt.Errorf("%w: feature vector has %d elements, model expects %d", ErrConfigInvalid, len(input), want)
	}

	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	scores, err := s.model.Infer(ctx, input)
	if err != nil {
		if errors.Is(err, ErrConfigInvalid) || errors.Is(err, ErrInferenceFailure) {
			return Prediction{}, err
		}
		return Prediction{}, fmt.Errorf("%w: %w", ErrInferenceFailure, err)
	}
	if len(scores) == 0 {
		return Prediction{}, fmt.Errorf("%w: model returned no scores", ErrInferenceFailure)
	}

	p := ResolveLabel(scores, s.cfg.TargetLabelsSpace)
	if s.policy != nil {
		p = s.policy.Apply(p, &s.cfg)
	}
	return p, nil
}

// Label is Scan without the score.
func (s *Scanner) Label(ctx context.Context, src Source) (string, error) {
	p, err := s.Scan(ctx, src)
	if err != nil {
		return "", err
	}
	return p.Label, nil
}

// ScanFile opens path and classifies its content.
func (s *Scanner) ScanFile(ctx context.Context, path string) (Prediction, error) {
	src, err := OpenFile(path)
	if err != nil {
		return Prediction{}, err
	}
	defer src.Close()
	return s.Scan(ctx, src)
}

// LabelFile is ScanFile without the score.
func (s *Scanner) LabelFile(ctx context.Context, path string) (string, error) {
	p, err := s.ScanFile(ctx, path)
	if err != nil {
		return "", err
	}
	return p.Label, nil
}

// ScanBytes classifies an in-memory buffer.
func (s *Scanner) ScanBytes(ctx context.Context, b []byte) (Prediction, error) {
	return s.Scan(ctx, bytes.NewReader(b))
}

// ScanBilly classifies a file on a go-billy filesystem.
func (s *Scanner) ScanBilly(ctx context.Context, fs billy.Filesystem, path string) (Prediction, error) {
	src, err := OpenBilly(fs, path)
	if err != nil {
		return Prediction{}, err
	}
	defer src.Close()
	return s.Scan(ctx, src)
}

// Labels returns a copy of the label space.
func (s *Scanner) Labels() []string {
	return append([]string(nil), s.cfg.TargetLabelsSpace...)
}

// Config returns a copy of the model config.
func (s *Scanner) Config() ModelConfig {
	return s.cfg.Clone()
}
