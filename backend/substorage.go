package backend

import (
	"fmt"
	"io"
)

// SubStorage exposes a bounded [offset, offset+size) window of an
// underlying Storage as if it were the whole device. This is how a
// Volume opened against a partition embedded in a larger disk image
// (spec's "bounded range within a larger container") is expressed:
// the ext4 decoder never sees anything but offsets relative to its
// own sub-range.
type SubStorage struct {
	underlying Storage
	offset     int64
	size       int64
}

// Sub wraps u, exposing only the byte range [offset, offset+size).
// If size is 0, the window extends to the end of the underlying store.
func Sub(u Storage, offset, size int64) Storage {
	if size == 0 {
		size = u.Size() - offset
	}
	return SubStorage{underlying: u, offset: offset, size: size}
}

func (s SubStorage) Size() int64 {
	return s.size
}

func (s SubStorage) Close() error {
	return s.underlying.Close()
}

func (s SubStorage) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > s.size {
		return 0, fmt.Errorf("read at %d: %w", off, ErrNotSuitable)
	}
	if off+int64(len(p)) > s.size {
		avail := s.size - off
		n, err := s.underlying.ReadAt(p[:avail], s.offset+off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return s.underlying.ReadAt(p, s.offset+off)
}
