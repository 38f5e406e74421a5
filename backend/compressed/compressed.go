// Package compressed lets Image I/O open ext4 images distributed as
// .xz or .lz4 streams transparently. A compressed stream is not
// randomly addressable, so Open spools the decompressed bytes to a
// spill file on disk and returns an ordinary backend.Storage over
// that spill file; the spill file is removed when the returned
// Storage is closed.
package compressed

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz"

	"github.com/ext4view/ext4view/backend"
	"github.com/ext4view/ext4view/backend/file"
)

// Format identifies a supported compression container.
type Format int

const (
	// FormatNone means the input is already a plain, randomly
	// addressable image and needs no spooling.
	FormatNone Format = iota
	FormatXZ
	FormatLZ4
)

// DetectFormat guesses the compression format from a file name's
// extension. It never inspects file contents; callers with an
// unusual name can pass the Format explicitly to Open.
func DetectFormat(pathName string) Format {
	switch {
	case strings.HasSuffix(pathName, ".xz"):
		return FormatXZ
	case strings.HasSuffix(pathName, ".lz4"):
		return FormatLZ4
	default:
		return FormatNone
	}
}

// Open decompresses pathName (per format) into a spill file and
// returns a backend.Storage over the decompressed content. The spill
// file stays on disk while the returned Storage is open and is removed
// when that Storage is closed.
func Open(pathName string, format Format) (backend.Storage, error) {
	src, err := os.Open(pathName)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", pathName, err)
	}
	defer src.Close()

	var r io.Reader
	switch format {
	case FormatXZ:
		xr, err := xz.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("open xz stream %s: %w", pathName, err)
		}
		r = xr
	case FormatLZ4:
		r = lz4.NewReader(src)
	default:
		return nil, fmt.Errorf("open %s: unsupported compressed format %d", pathName, format)
	}

	spill, err := os.CreateTemp("", "ext4view-spill-*.img")
	if err != nil {
		return nil, fmt.Errorf("create spill file: %w", err)
	}
	spillName := spill.Name()

	if _, err := io.Copy(spill, r); err != nil {
		spill.Close()
		os.Remove(spillName)
		return nil, fmt.Errorf("decompress %s: %w", pathName, err)
	}
	if _, err := spill.Seek(0, io.SeekStart); err != nil {
		spill.Close()
		os.Remove(spillName)
		return nil, fmt.Errorf("rewind spill file: %w", err)
	}

	st, err := file.New(spill)
	if err != nil {
		spill.Close()
		os.Remove(spillName)
		return nil, err
	}
	return &spillStorage{Storage: st, path: spillName}, nil
}

// spillStorage removes its backing spill file once closed.
type spillStorage struct {
	backend.Storage
	path string
}

func (s *spillStorage) Close() error {
	err := s.Storage.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && err == nil {
		err = fmt.Errorf("remove spill file %s: %w", s.path, rmErr)
	}
	return err
}
