package magika

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
)

// Source is a fixed-size sequence of bytes supporting random-offset reads.
// *bytes.Reader satisfies it directly.
type Source interface {
	io.ReaderAt
	Size() int64
}

// ReadExact returns exactly n bytes starting at off. Reads that would cross
// the end of src fail with ErrOutOfRange; n == 0 always succeeds.
func ReadExact(src Source, off, n int64) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	if off < 0 || n < 0 || off+n > src.Size() {
		return nil, fmt.Errorf("%w: offset=%d length=%d size=%d", ErrOutOfRange, off, n, src.Size())
	}
	buf := make([]byte, n)
	read, err := src.ReadAt(buf, off)
	if read == len(buf) {
		// io.ReaderAt may report io.EOF alongside a full read at the end.
		return buf, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("%w: read %d of %d bytes at offset %d: %w", ErrSourceIO, read, n, off, err)
}

// FileSource reads from an open file whose size is captured at open time.
type FileSource struct {
	f    *os.File
	size int64
}

// OpenFile opens path for random-access reads.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrSourceUnavailable, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %w", ErrSourceUnavailable, path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrSourceUnavailable, path)
	}
	return &FileSource{f: f, size: info.Size()}, nil
}

func (s *FileSource) Size() int64 { return s.size }

func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *FileSource) Close() error {
	return s.f.Close()
}

// BillySource reads from a file on a go-billy filesystem.
type BillySource struct {
	f    billy.File
	size int64
}

// OpenBilly opens path on fs for random-access reads.
func OpenBilly(fs billy.Filesystem, path string) (*BillySource, error) {
	if fs == nil {
		return nil, fmt.Errorf("%w: filesystem is nil", ErrSourceUnavailable)
	}
	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrSourceUnavailable, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrSourceUnavailable, path)
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrSourceUnavailable, path, err)
	}
	return &BillySource{f: f, size: info.Size()}, nil
}

func (s *BillySource) Size() int64 { return s.size }

func (s *BillySource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *BillySource) Close() error {
	return s.f.Close()
}

// IsNotExist reports whether err was caused by a missing input.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
