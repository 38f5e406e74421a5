// Package file provides a backend.Storage backed by a local file or
// block device.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ext4view/ext4view/backend"
)

type osBackend struct {
	f    *os.File
	size int64
}

var _ backend.Storage = (*osBackend)(nil)

// New wraps an already-open *os.File as a backend.Storage.
func New(f *os.File) (backend.Storage, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", f.Name(), err)
	}
	size, err := sizeOf(f, fi)
	if err != nil {
		return nil, err
	}
	return &osBackend{f: f, size: size}, nil
}

// Open opens pathName (a regular file or a block device) read-only.
func Open(pathName string) (backend.Storage, error) {
	if pathName == "" {
		return nil, errors.New("must pass a device or file name")
	}
	f, err := os.OpenFile(pathName, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", pathName, err)
	}
	b, err := New(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return b, nil
}

func sizeOf(f *os.File, fi fs.FileInfo) (int64, error) {
	if fi.Mode().IsRegular() {
		return fi.Size(), nil
	}
	// block devices report a zero regular size; seek to the end to
	// discover the addressable length instead.
	size, err := f.Seek(0, 2)
	if err != nil {
		return 0, fmt.Errorf("determine size of %s: %w", f.Name(), err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return 0, fmt.Errorf("rewind %s: %w", f.Name(), err)
	}
	return size, nil
}

func (b *osBackend) Size() int64 { return b.size }

func (b *osBackend) Close() error { return b.f.Close() }

func (b *osBackend) ReadAt(p []byte, off int64) (int, error) {
	return b.f.ReadAt(p, off)
}

// Sys returns the underlying *os.File, for callers that need the raw
// file descriptor.
func (b *osBackend) Sys() (*os.File, error) {
	return b.f, nil
}
