package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/straja-ai/magika-go/internal/magika"
)

const (
	// ModelFileName is the ONNX model inside a model directory.
	ModelFileName = "model.onnx"
	// DefaultModelName is used when no model name is configured.
	DefaultModelName = "standard_v3_3"

	stateFileName = "state.json"
)

// ErrStateNotFound is returned when a model directory has no state.json.
var ErrStateNotFound = errors.New("model state not found")

// Paths locates the files of one model.
type Paths struct {
	Name       string
	Dir        string
	ConfigPath string
	ModelPath  string
}

// State selects the active version when several versions of a model are
// installed side by side under <assets>/<name>/<version>.
type State struct {
	CurrentVersion  string `json:"current_version"`
	PreviousVersion string `json:"previous_version,omitempty"`
}

// Resolve returns the paths for model name under assetsDir. When
// <assetsDir>/<name>/state.json names a current version, that version's
// directory is used instead.
func Resolve(assetsDir, name string) (Paths, error) {
	assetsDir = strings.TrimSpace(assetsDir)
	name = strings.TrimSpace(name)
	if assetsDir == "" {
		return Paths{}, errors.New("assets dir is empty")
	}
	if name == "" {
		name = DefaultModelName
	}
	if strings.ContainsAny(name, `/\`) || name == ".." || name == "." {
		return Paths{}, fmt.Errorf("invalid model name %q", name)
	}

	dir := filepath.Join(assetsDir, name)
	state, err := LoadState(dir)
	switch {
	case err == nil && state.CurrentVersion != "":
		versioned, err := resolveBundlePath(dir, state.CurrentVersion)
		if err != nil {
			return Paths{}, fmt.Errorf("resolve current version: %w", err)
		}
		dir = versioned
	case err != nil && !errors.Is(err, ErrStateNotFound):
		return Paths{}, err
	}

	return pathsFor(name, dir), nil
}

// FromModelPath derives the model directory from a path to model.onnx. The
// config is expected next to the model.
func FromModelPath(modelPath string) Paths {
	dir := filepath.Dir(modelPath)
	p := pathsFor(filepath.Base(dir), dir)
	p.ModelPath = modelPath
	return p
}

// Check verifies that the model and its config are present.
func (p Paths) Check() error {
	for _, f := range []string{p.ConfigPath, p.ModelPath} {
		info, err := os.Stat(f)
		if err != nil {
			return fmt.Errorf("%w: model asset missing: %w", magika.ErrConfigInvalid, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%w: model asset %s is a directory", magika.ErrConfigInvalid, f)
		}
	}
	return nil
}

// LoadState reads <dir>/state.json.
func LoadState(dir string) (State, error) {
	data, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, ErrStateNotFound
		}
		return State{}, fmt.Errorf("read model state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decode model state: %w", err)
	}
	state.CurrentVersion = strings.TrimSpace(state.CurrentVersion)
	state.PreviousVersion = strings.TrimSpace(state.PreviousVersion)
	return state, nil
}

func pathsFor(name, dir string) Paths {
	return Paths{
		Name:       name,
		Dir:        dir,
		ConfigPath: filepath.Join(dir, magika.ConfigFileName),
		ModelPath:  filepath.Join(dir, ModelFileName),
	}
}

// resolveBundlePath joins rel onto base, rejecting absolute paths and
// anything that escapes base.
func resolveBundlePath(base, rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", errors.New("empty path")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", fmt.Errorf("absolute path %q not allowed", rel)
	}
	joined := filepath.Join(base, filepath.FromSlash(rel))
	back, err := filepath.Rel(base, joined)
	if err != nil {
		return "", err
	}
	if back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %s", rel, base)
	}
	return joined, nil
}
