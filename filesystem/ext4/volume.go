// Package ext4 decodes ext2/ext3/ext4 volumes read-only: superblock,
// group descriptors, inode table, directory and extended attribute
// structures, and the extent/indirect block maps that locate file
// data. It never writes to the backing store and never replays the
// journal.
package ext4

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ext4view/ext4view/backend"
)

const rootInodeNumber = 2

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	offset    int64
	cacheSize int
	logger    *logrus.Logger
}

// WithOffset opens a volume starting at byte offset off within
// storage, for images embedded in a partitioned disk.
func WithOffset(off int64) Option {
	return func(o *openOptions) { o.offset = off }
}

// WithCacheSize sets the block cache's maximum resident block count.
// The default is 128 blocks.
func WithCacheSize(blocks int) Option {
	return func(o *openOptions) { o.cacheSize = blocks }
}

// WithLogger attaches a logrus.Logger for structured diagnostic
// output. Without this option, Volume logs nothing.
func WithLogger(l *logrus.Logger) Option {
	return func(o *openOptions) { o.logger = l }
}

// Volume is an open, read-only ext2/ext3/ext4 image.
type Volume struct {
	storage backend.Storage
	sb      *superblock
	gds     []*groupDescriptor
	log     *logrus.Logger

	mu       sync.Mutex
	cache    blockCacheLRU
	inflight map[uint64]*inflightRead

	aborted atomic.Bool
}

type inflightRead struct {
	done chan struct{}
	data []byte
	err  error
}

// blockCacheLRU is satisfied by *lru.LRU; declared here as an
// interface so volume.go doesn't need to import the lru package's
// concrete Block type into its exported surface.
type blockCacheLRU interface {
	Get(pos int64, fetch func() ([]byte, error)) ([]byte, error)
}

// Open decodes storage as an ext2/3/4 volume: the superblock, the
// group descriptor table, and enough of the feature bitmaps to
// know whether this decoder can safely read it.
func Open(storage backend.Storage, opts ...Option) (*Volume, error) {
	o := &openOptions{cacheSize: 128}
	for _, opt := range opts {
		opt(o)
	}

	src := storage
	if o.offset != 0 {
		src = backend.Sub(storage, o.offset, 0)
	}

	sbBytes := make([]byte, superblockSize)
	if _, err := src.ReadAt(sbBytes, superblockOffset); err != nil {
		return nil, newErr(KindIO, "open", err)
	}
	sb, err := superblockFromBytes(sbBytes)
	if err != nil {
		return nil, err
	}

	v := &Volume{
		storage:  src,
		sb:       sb,
		log:      o.logger,
		cache:    newBlockCache(o.cacheSize),
		inflight: make(map[uint64]*inflightRead),
	}

	if err := v.readGroupDescriptors(); err != nil {
		return nil, err
	}

	v.logf("opened volume: blocks=%d inodes=%d block_size=%d groups=%d",
		sb.blockCount, sb.inodeCount, sb.blockSize, len(v.gds))

	return v, nil
}

func (v *Volume) logf(format string, args ...interface{}) {
	if v.log == nil {
		return
	}
	v.log.WithField("component", "ext4").Debugf(format, args...)
}

// Close releases the underlying backend.Storage. It does not error
// on a volume already aborted.
func (v *Volume) Close() error {
	return v.storage.Close()
}

// Abort causes every in-flight and future block read on this Volume
// to fail with KindAborted at its next block-read boundary. It is
// safe to call concurrently with any other Volume method, and safe to
// call more than once.
func (v *Volume) Abort() {
	v.aborted.Store(true)
}

func (v *Volume) checkAborted() error {
	if v.aborted.Load() {
		return newErr(KindAborted, "read-block", nil)
	}
	return nil
}

// readBlock implements blockReader: a mutex-guarded, cached,
// stall-coalescing read of one absolute filesystem block.
func (v *Volume) readBlock(blockNum uint64) ([]byte, error) {
	if err := v.checkAborted(); err != nil {
		return nil, err
	}

	pos := int64(blockNum) * int64(v.sb.blockSize)
	if blockNum == 0 {
		// block 0 is reserved and never enters the cache
		buf := make([]byte, v.sb.blockSize)
		if _, err := v.storage.ReadAt(buf, pos); err != nil {
			return nil, newErr(KindIO, "read-block", err)
		}
		return buf, nil
	}

	v.mu.Lock()
	if infl, ok := v.inflight[blockNum]; ok {
		v.mu.Unlock()
		<-infl.done
		if infl.err != nil {
			return nil, infl.err
		}
		cp := make([]byte, len(infl.data))
		copy(cp, infl.data)
		return cp, nil
	}
	infl := &inflightRead{done: make(chan struct{})}
	v.inflight[blockNum] = infl
	v.mu.Unlock()

	data, err := v.cache.Get(pos, func() ([]byte, error) {
		buf := make([]byte, v.sb.blockSize)
		if _, err := v.storage.ReadAt(buf, pos); err != nil {
			return nil, newErr(KindIO, "read-block", err)
		}
		return buf, nil
	})

	v.mu.Lock()
	delete(v.inflight, blockNum)
	v.mu.Unlock()

	infl.data, infl.err = data, err
	close(infl.done)

	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (v *Volume) readGroupDescriptors() error {
	gdSize := uint16(groupDescriptorSize32)
	if v.sb.is64Bit() && v.sb.groupDescriptorSize >= groupDescriptorSize64 {
		gdSize = v.sb.groupDescriptorSize
	}

	gdtStartBlock := uint64(1)
	if v.sb.blockSize == 1024 {
		gdtStartBlock = 2
	}

	groupCount := v.sb.groupCount()
	perBlock := uint64(v.sb.blockSize) / uint64(gdSize)
	if perBlock == 0 {
		return newErr(KindCorrupt, "read-group-descriptors", errShortBuffer)
	}

	v.gds = make([]*groupDescriptor, 0, groupCount)
	for i := uint64(0); i < groupCount; i++ {
		blockOffset := i / perBlock
		within := i % perBlock
		b, err := v.readBlock(gdtStartBlock + blockOffset)
		if err != nil {
			return err
		}
		start := within * uint64(gdSize)
		if start+uint64(gdSize) > uint64(len(b)) {
			return newErr(KindCorrupt, "read-group-descriptors", errShortBuffer)
		}
		gd, err := groupDescriptorFromBytes(b[start:start+uint64(gdSize)], uint32(i), gdSize)
		if err != nil {
			return err
		}
		v.gds = append(v.gds, gd)
	}
	return nil
}

// Root returns the FileEntry for the volume's root directory (always
// inode 2).
func (v *Volume) Root() (*FileEntry, error) {
	entry, ok, err := v.ByInode(rootInodeNumber)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newErr(KindCorrupt, "root", errInodeOutOfRange)
	}
	return entry, nil
}

// ByInode decodes the inode numbered id and wraps it as a FileEntry.
// ok is false, with a nil error, when the inode slot is unallocated
// (link_count=0, dtime=0, mode=0) — never used, as opposed to deleted
// (link_count=0, dtime!=0), which still decodes normally. It returns
// KindInvalidArgument for an out-of-range inode number.
func (v *Volume) ByInode(id uint32) (entry *FileEntry, ok bool, err error) {
	ino, err := v.readInode(id)
	if err != nil {
		return nil, false, err
	}
	if ino.fileType == 0 && ino.hardLinks == 0 && ino.deletionTime == 0 {
		return nil, false, nil
	}
	return &FileEntry{volume: v, inode: ino, name: ""}, true, nil
}

func (v *Volume) readInode(number uint32) (*inode, error) {
	if number == 0 || uint64(number) > uint64(v.sb.inodeCount) {
		return nil, newErr(KindInvalidArgument, "read-inode", errInodeOutOfRange)
	}
	if err := v.checkAborted(); err != nil {
		return nil, err
	}

	group := (number - 1) / v.sb.inodesPerGroup
	index := (number - 1) % v.sb.inodesPerGroup

	if int(group) >= len(v.gds) {
		return nil, newErr(KindCorrupt, "read-inode", errInodeOutOfRange)
	}
	gd := v.gds[group]

	inodeSize := uint64(v.sb.inodeSize)
	perBlock := uint64(v.sb.blockSize) / inodeSize
	if perBlock == 0 {
		return nil, newErr(KindCorrupt, "read-inode", errShortBuffer)
	}

	blockOffset := uint64(index) / perBlock
	within := uint64(index) % perBlock

	b, err := v.readBlock(gd.inodeTableLocation + blockOffset)
	if err != nil {
		return nil, err
	}
	start := within * inodeSize
	end := start + inodeSize
	if end > uint64(len(b)) {
		return nil, newErr(KindCorrupt, "read-inode", errShortBuffer)
	}

	return inodeFromBytes(b[start:end], v.sb, number)
}
