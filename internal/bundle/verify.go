package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/straja-ai/magika-go/internal/magika"
)

const manifestFileName = "manifest.json"

// ErrNoManifest is returned by VerifyManifest when the directory has no manifest.json.
var ErrNoManifest = errors.New("model manifest not found")

// ManifestFile describes one file entry in manifest.json.
type ManifestFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest mirrors manifest.json.
type Manifest struct {
	Model     string         `json:"model"`
	Version   string         `json:"version"`
	CreatedAt string         `json:"created_at"`
	Files     []ManifestFile `json:"files"`
}

// VerifyManifest checks sizes and sha256 digests of every file listed in
// <dir>/manifest.json.
func VerifyManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoManifest
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %w", magika.ErrConfigInvalid, err)
	}
	if len(manifest.Files) == 0 {
		return nil, fmt.Errorf("%w: manifest lists no files", magika.ErrConfigInvalid)
	}

	for _, f := range manifest.Files {
		local, err := resolveBundlePath(dir, f.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve path %s: %w", magika.ErrConfigInvalid, f.Path, err)
		}
		if err := verifyFile(local, f); err != nil {
			return nil, fmt.Errorf("%w: %w", magika.ErrConfigInvalid, err)
		}
	}
	return &manifest, nil
}

func verifyFile(local string, f ManifestFile) error {
	info, err := os.Stat(local)
	if err != nil {
		return fmt.Errorf("stat %s: %w", f.Path, err)
	}
	if f.Size > 0 && info.Size() != f.Size {
		return fmt.Errorf("size mismatch for %s: expected %d got %d", f.Path, f.Size, info.Size())
	}
	if f.SHA256 == "" {
		return nil
	}

	fh, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer fh.Close()

	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return fmt.Errorf("hash %s: %w", f.Path, err)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(sum, f.SHA256) {
		return fmt.Errorf("sha256 mismatch for %s: expected %s got %s", f.Path, f.SHA256, sum)
	}
	return nil
}
