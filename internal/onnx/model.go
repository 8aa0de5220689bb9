// Package onnx runs magika models through ONNX Runtime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/straja-ai/magika-go/internal/magika"
	"github.com/straja-ai/magika-go/internal/redact"
)

const (
	defaultInputName  = "bytes"
	defaultOutputName = "target_label"
)

// Options tunes the ONNX Runtime session.
type Options struct {
	// LibraryPath points at the onnxruntime shared library. The
	// ONNXRUNTIME_SHARED_LIBRARY_PATH environment variable wins over it.
	LibraryPath    string
	InputName      string
	OutputName     string
	IntraOpThreads int
	InterOpThreads int
}

// Model runs a byte classifier through ONNX Runtime. Input and output tensors
// are allocated once, so Infer calls are serialized.
type Model struct {
	path      string
	session   *ort.AdvancedSession
	input     *ort.Tensor[int32]
	output    *ort.Tensor[float32]
	inputLen  int
	numLabels int

	mu sync.Mutex
}

// Load creates a session for modelPath taking int32[1, inputLen] and
// producing float32[1, numLabels].
func Load(modelPath string, inputLen, numLabels int, opts Options) (*Model, error) {
	if modelPath == "" {
		return nil, errors.New("model path is empty")
	}
	if inputLen <= 0 || numLabels <= 0 {
		return nil, fmt.Errorf("%w: input length %d and label count %d must be positive", magika.ErrConfigInvalid, inputLen, numLabels)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}
	opts = withDefaults(opts)

	libPath := resolveSharedLibraryPath(filepath.Dir(modelPath), opts.LibraryPath)
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("read model io info: %w", err)
	}
	if err := checkIO(inputs, outputs, opts.InputName, opts.OutputName, inputLen, numLabels); err != nil {
		return nil, err
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer sessOpts.Destroy()
	if err := sessOpts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("set graph optimization: %w", err)
	}
	if err := sessOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
		return nil, fmt.Errorf("set intra threads: %w", err)
	}
	if err := sessOpts.SetInterOpNumThreads(opts.InterOpThreads); err != nil {
		return nil, fmt.Errorf("set inter threads: %w", err)
	}

	input, err := ort.NewEmptyTensor[int32](ort.NewShape(1, int64(inputLen)))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(numLabels)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.Value{input},
		[]ort.Value{output},
		sessOpts,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	redact.Logf("onnx: loaded %s input=%s[1,%d] output=%s[1,%d] runtime=%s", modelPath, opts.InputName, inputLen, opts.OutputName, numLabels, libPath)

	return &Model{
		path:      modelPath,
		session:   session,
		input:     input,
		output:    output,
		inputLen:  inputLen,
		numLabels: numLabels,
	}, nil
}

// Infer runs the model on one flattened feature vector.
func (m *Model) Infer(ctx context.Context, features []int32) ([]float32, error) {
	if m == nil || m.session == nil {
		return nil, fmt.Errorf("%w: model not initialized", magika.ErrInferenceFailure)
	}
	if len(features) != m.inputLen {
		return nil, fmt.Errorf("%w: got %d features, model input is %d", magika.ErrConfigInvalid, len(features), m.inputLen)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	copy(m.input.GetData(), features)
	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: onnx run: %w", magika.ErrInferenceFailure, err)
	}

	raw := m.output.GetData()
	scores := make([]float32, len(raw))
	copy(scores, raw)
	return scores, nil
}

// ModelFile returns the path the session was created from.
func (m *Model) ModelFile() string {
	if m == nil {
		return ""
	}
	return m.path
}

// Close releases the session and tensors.
func (m *Model) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.session != nil {
		errs = append(errs, m.session.Destroy())
		m.session = nil
	}
	if m.input != nil {
		errs = append(errs, m.input.Destroy())
		m.input = nil
	}
	if m.output != nil {
		errs = append(errs, m.output.Destroy())
		m.output = nil
	}
	return errors.Join(errs...)
}

func withDefaults(opts Options) Options {
	if opts.InputName == "" {
		opts.InputName = defaultInputName
	}
	if opts.OutputName == "" {
		opts.OutputName = defaultOutputName
	}
	if opts.IntraOpThreads <= 0 {
		opts.IntraOpThreads = 1
	}
	if opts.InterOpThreads <= 0 {
		opts.InterOpThreads = 1
	}
	return opts
}

// checkIO compares the declared model shapes with the feature contract.
// Dynamic dimensions (<= 0) are accepted.
func checkIO(inputs, outputs []ort.InputOutputInfo, inputName, outputName string, inputLen, numLabels int) error {
	in, ok := findInfo(inputs, inputName)
	if !ok {
		return fmt.Errorf("%w: model has no input named %q", magika.ErrConfigInvalid, inputName)
	}
	if d := lastDim(in.Dimensions); d > 0 && d != int64(inputLen) {
		return fmt.Errorf("%w: model input %q expects %d features, config produces %d", magika.ErrConfigInvalid, inputName, d, inputLen)
	}

	out, ok := findInfo(outputs, outputName)
	if !ok {
		return fmt.Errorf("%w: model has no output named %q", magika.ErrConfigInvalid, outputName)
	}
	if d := lastDim(out.Dimensions); d > 0 && d != int64(numLabels) {
		return fmt.Errorf("%w: model output %q has %d scores, label space has %d", magika.ErrConfigInvalid, outputName, d, numLabels)
	}
	return nil
}

func findInfo(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, bool) {
	for _, info := range infos {
		if info.Name == name {
			return info, true
		}
	}
	return ort.InputOutputInfo{}, false
}

func lastDim(shape ort.Shape) int64 {
	if len(shape) == 0 {
		return -1
	}
	return shape[len(shape)-1]
}

// resolveSharedLibraryPath locates a platform-specific onnxruntime library.
// ONNXRUNTIME_SHARED_LIBRARY_PATH wins, then the configured path, then
// common names next to the model and in system locations.
func resolveSharedLibraryPath(modelDir, configured string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
