// Package engine assembles a ready-to-use Scanner from application config.
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/straja-ai/magika-go/internal/bundle"
	"github.com/straja-ai/magika-go/internal/config"
	"github.com/straja-ai/magika-go/internal/magika"
	"github.com/straja-ai/magika-go/internal/onnx"
	"github.com/straja-ai/magika-go/internal/redact"
)

// Engine owns a loaded model and the scanner bound to it.
type Engine struct {
	Scanner *magika.Scanner
	Paths   bundle.Paths
	Config  *magika.ModelConfig

	closer interface{ Close() error }
}

// Loader builds the inferencer for a resolved bundle. It is replaced in
// tests to avoid loading onnxruntime.
type Loader func(p bundle.Paths, mc *magika.ModelConfig, opts onnx.Options) (magika.Inferencer, error)

// ONNXLoader loads model.onnx through onnxruntime.
func ONNXLoader(p bundle.Paths, mc *magika.ModelConfig, opts onnx.Options) (magika.Inferencer, error) {
	return onnx.Load(p.ModelPath, mc.FeatureLen(), len(mc.TargetLabelsSpace), opts)
}

// Options customizes New. The zero value loads the model with ONNXLoader.
type Options struct {
	Loader Loader
	// Wrap decorates the loaded inferencer, e.g. for timing.
	Wrap           func(magika.Inferencer) magika.Inferencer
	ScannerOptions []magika.Option
}

// New resolves the configured bundle, loads the model and binds a Scanner.
func New(cfg config.ModelConfig, opts Options) (*Engine, error) {
	load := opts.Loader
	if load == nil {
		load = ONNXLoader
	}

	paths, err := resolvePaths(cfg)
	if err != nil {
		return nil, err
	}
	if err := paths.Check(); err != nil {
		return nil, err
	}

	if cfg.VerifyManifest {
		manifest, err := bundle.VerifyManifest(paths.Dir)
		switch {
		case errors.Is(err, bundle.ErrNoManifest):
			return nil, fmt.Errorf("%w: verify_manifest is set but %s has no manifest.json", magika.ErrConfigInvalid, paths.Dir)
		case err != nil:
			return nil, err
		default:
			redact.Logf("engine: manifest verified model=%s version=%s files=%d", manifest.Model, manifest.Version, len(manifest.Files))
		}
	}

	mc, err := magika.LoadModelConfig(paths.ConfigPath)
	if err != nil {
		return nil, err
	}

	inf, err := load(paths, mc, onnx.Options{
		LibraryPath:    cfg.RuntimeLibrary,
		InputName:      cfg.InputName,
		OutputName:     cfg.OutputName,
		IntraOpThreads: cfg.IntraOpThreads,
		InterOpThreads: cfg.InterOpThreads,
	})
	if err != nil {
		return nil, err
	}

	model := inf
	if opts.Wrap != nil {
		model = opts.Wrap(inf)
	}

	scanner, err := magika.NewScanner(mc, model, opts.ScannerOptions...)
	if err != nil {
		closeQuietly(inf)
		return nil, err
	}

	e := &Engine{
		Scanner: scanner,
		Paths:   paths,
		Config:  mc,
	}
	if c, ok := inf.(interface{ Close() error }); ok {
		e.closer = c
	}

	redact.Logf("engine: loaded model=%s labels=%d features=%d", paths.Name, len(mc.TargetLabelsSpace), mc.FeatureLen())
	return e, nil
}

// Close releases the model session.
func (e *Engine) Close() error {
	if e == nil || e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

func resolvePaths(cfg config.ModelConfig) (bundle.Paths, error) {
	if p := strings.TrimSpace(cfg.Path); p != "" {
		return bundle.FromModelPath(p), nil
	}
	return bundle.Resolve(cfg.AssetsDir, cfg.Name)
}

func closeQuietly(inf magika.Inferencer) {
	if c, ok := inf.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			redact.Logf("engine: close model: %v", err)
		}
	}
}
