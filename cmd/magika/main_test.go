package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/straja-ai/magika-go/internal/bundle"
	"github.com/straja-ai/magika-go/internal/magika"
	"github.com/straja-ai/magika-go/internal/onnx"
	"github.com/straja-ai/magika-go/internal/report"
)

const cliModelConfig = `{
  "beg_size": 8,
  "mid_size": 0,
  "end_size": 8,
  "padding_token": 256,
  "block_size": 64,
  "target_labels_space": ["txt", "python"]
}`

// fakeLoader labels content starting with "#!" as python and everything
// else as txt.
func fakeLoader(bundle.Paths, *magika.ModelConfig, onnx.Options) (magika.Inferencer, error) {
	return magika.InferencerFunc(func(_ context.Context, f []int32) ([]float32, error) {
		if f[0] == '#' && f[1] == '!' {
			return []float32{0.1, 0.9}, nil
		}
		return []float32{0.7, 0.3}, nil
	}), nil
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func setup(t *testing.T) (modelPath, dataDir string) {
	t.Helper()
	root := t.TempDir()
	modelDir := filepath.Join(root, "models", "standard_v3_3")
	writeFile(t, filepath.Join(modelDir, "config.min.json"), cliModelConfig)
	writeFile(t, filepath.Join(modelDir, "model.onnx"), "graph")

	dataDir = filepath.Join(root, "data")
	writeFile(t, filepath.Join(dataDir, "notes.txt"), "just some notes\n")
	writeFile(t, filepath.Join(dataDir, "nested", "tool.py"), "#!/usr/bin/env python\nprint(1)\n")
	writeFile(t, filepath.Join(dataDir, "nested", "empty.bin"), "")
	return filepath.Join(modelDir, "model.onnx"), dataDir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"-config", filepath.Join(t.TempDir(), "absent.yaml")}, args...)
	code := run(context.Background(), args, &stdout, &stderr, fakeLoader)
	return code, stdout.String(), stderr.String()
}

func TestRunRecursive(t *testing.T) {
	modelPath, dataDir := setup(t)

	code, out, errOut := runCLI(t, "-model", modelPath, "-r", dataDir)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr=%s)", code, errOut)
	}

	want := []string{
		filepath.Join(dataDir, "nested", "empty.bin") + ": empty (confidence: 1.0000)",
		filepath.Join(dataDir, "nested", "tool.py") + ": python (confidence: 0.9000)",
		filepath.Join(dataDir, "notes.txt") + ": txt (confidence: 0.7000)",
	}
	got := strings.Split(strings.TrimSpace(out), "\n")
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(got), out)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestRunContinuesPastFailures(t *testing.T) {
	modelPath, dataDir := setup(t)
	missing := filepath.Join(dataDir, "missing.txt")

	code, out, errOut := runCLI(t, "-model", modelPath, missing, filepath.Join(dataDir, "notes.txt"), dataDir)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(out, "notes.txt: txt") {
		t.Fatalf("expected later file to be scanned, got %q", out)
	}
	if !strings.Contains(errOut, "missing.txt") {
		t.Fatalf("expected error for missing file, got %q", errOut)
	}
	if !strings.Contains(errOut, "is a directory") {
		t.Fatalf("expected directory without -r to be reported, got %q", errOut)
	}
}

func TestRunJSON(t *testing.T) {
	modelPath, dataDir := setup(t)

	code, out, errOut := runCLI(t, "-model", modelPath, "-json", filepath.Join(dataDir, "nested", "tool.py"))
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr=%s)", code, errOut)
	}
	var ev report.Event
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &ev); err != nil {
		t.Fatalf("decode json line %q: %v", out, err)
	}
	if ev.Label != "python" || ev.Status != report.StatusOK || ev.Model != "standard_v3_3" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !report.ValidID(ev.ID) {
		t.Fatalf("expected generated id, got %q", ev.ID)
	}
}

func TestRunUsageErrors(t *testing.T) {
	if code, _, _ := runCLI(t); code != 2 {
		t.Fatalf("expected exit 2 without paths, got %d", code)
	}
	if code, _, errOut := runCLI(t, "-model", filepath.Join(t.TempDir(), "nope", "model.onnx"), "x"); code != 1 || !strings.Contains(errOut, "Error") {
		t.Fatalf("expected exit 1 for missing model, got %d (%s)", code, errOut)
	}
}
