//go:build !linux && !darwin && !freebsd

package mmap

import (
	"errors"

	"github.com/ext4view/ext4view/backend"
)

// ErrUnsupported is returned by Open on platforms without a mmap
// syscall wired up (golang.org/x/sys/unix targets unix-likes only).
var ErrUnsupported = errors.New("mmap backend: unsupported on this platform")

// Open always fails on non-unix platforms; callers should fall back
// to backend/file.Open.
func Open(string) (backend.Storage, error) {
	return nil, ErrUnsupported
}
