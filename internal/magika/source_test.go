package magika

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

func TestReadExactBounds(t *testing.T) {
	src := bytes.NewReader([]byte("0123456789"))

	got, err := ReadExact(src, 2, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "234" {
		t.Fatalf("expected 234, got %q", got)
	}

	got, err = ReadExact(src, 6, 4)
	if err != nil || string(got) != "6789" {
		t.Fatalf("expected tail read, got %q err=%v", got, err)
	}

	if _, err := ReadExact(src, 8, 3); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := ReadExact(src, -1, 1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange for negative offset, got %v", err)
	}
}

func TestReadExactZeroLength(t *testing.T) {
	for _, off := range []int64{0, 5, 100} {
		got, err := ReadExact(bytes.NewReader(nil), off, 0)
		if err != nil {
			t.Fatalf("zero length read at %d failed: %v", off, err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty non-nil slice, got %v", got)
		}
	}
}

type failingReader struct{ size int64 }

func (f failingReader) Size() int64 { return f.size }
func (f failingReader) ReadAt(p []byte, off int64) (int, error) {
	return 0, io.ErrClosedPipe
}

func TestReadExactSurfacesIOErrors(t *testing.T) {
	_, err := ReadExact(failingReader{size: 10}, 0, 4)
	if !errors.Is(err, ErrSourceIO) || !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected wrapped source io error, got %v", err)
	}
	if ErrorKind(err) != "source_io" {
		t.Fatalf("unexpected kind %q", ErrorKind(err))
	}

	if _, err := ExtractFeatures(failingReader{size: 10}, testConfig()); !errors.Is(err, ErrSourceIO) {
		t.Fatalf("expected extraction to propagate io error, got %v", err)
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	if src.Size() != 11 {
		t.Fatalf("expected size 11, got %d", src.Size())
	}
	got, err := ReadExact(src, 6, 5)
	if err != nil || string(got) != "world" {
		t.Fatalf("expected world, got %q err=%v", got, err)
	}
}

func TestOpenFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := OpenFile(filepath.Join(dir, "missing"))
	if !errors.Is(err, ErrSourceUnavailable) || !IsNotExist(err) {
		t.Fatalf("expected unavailable not-exist error, got %v", err)
	}

	if _, err := OpenFile(dir); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected directory to be rejected, got %v", err)
	}
}

func TestOpenFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src, err := OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()
	if src.Size() != 0 {
		t.Fatalf("expected empty file, got size %d", src.Size())
	}
}

func TestOpenBilly(t *testing.T) {
	fs := memfs.New()
	if err := util.WriteFile(fs, "docs/readme.md", []byte("# title\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := OpenBilly(fs, "docs/readme.md")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	if src.Size() != 8 {
		t.Fatalf("expected size 8, got %d", src.Size())
	}
	got, err := ReadExact(src, 2, 5)
	if err != nil || string(got) != "title" {
		t.Fatalf("expected title, got %q err=%v", got, err)
	}

	if _, err := OpenBilly(fs, "docs/missing.md"); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if _, err := OpenBilly(fs, "docs"); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected directory to be rejected, got %v", err)
	}
}
