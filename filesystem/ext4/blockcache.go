package ext4

import "github.com/ext4view/ext4view/filesystem/internal/lru"

// newBlockCache wraps the internal LRU cache behind the blockCacheLRU
// interface volume.go expects.
func newBlockCache(maxBlocks int) blockCacheLRU {
	return lru.New(maxBlocks)
}
