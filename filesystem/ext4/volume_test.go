package ext4

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// memStorage is a trivial in-memory backend.Storage, just enough to
// let Open decode a hand-built image without touching a real disk.
type memStorage struct {
	data []byte
}

func (m *memStorage) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

func (m *memStorage) Close() error  { return nil }
func (m *memStorage) Size() int64   { return int64(len(m.data)) }

const testImageBlockSize = 1024

// buildTestImage constructs a minimal, valid ext2-revision-0 image in
// memory: one block group, a root directory containing one regular
// file, using the classical indirect block map (no extents, no
// metadata_csum, no htree) to keep the fixture legible.
func buildTestImage(t *testing.T, fileContent []byte) []byte {
	t.Helper()
	const (
		blockSuperblock  = 1
		blockGDT         = 2
		blockBlockBitmap = 3
		blockInodeBitmap = 4
		blockInodeTable0 = 5
		blockInodeTable1 = 6
		blockRootDir     = 7
		blockFileData    = 8
		totalBlocks      = 16
	)
	img := make([]byte, totalBlocks*testImageBlockSize)
	le := binary.LittleEndian

	// --- superblock (rev_level 0: GOOD_OLD_REV) ---
	sb := make([]byte, superblockSize)
	le.PutUint32(sb[0:4], 16)                 // inodes_count
	le.PutUint32(sb[4:8], totalBlocks)        // blocks_count
	le.PutUint32(sb[12:16], 4)                // free_blocks_count
	le.PutUint32(sb[16:20], 3)                // free_inodes_count
	le.PutUint32(sb[20:24], 1)                // first_data_block (1KB blocks)
	le.PutUint32(sb[24:28], 0)                // log_block_size -> 1024
	le.PutUint32(sb[32:36], 8192)             // blocks_per_group
	le.PutUint32(sb[40:44], 16)               // inodes_per_group
	le.PutUint16(sb[56:58], superblockMagic)
	// revision_level (b[76:80]) left 0 -> EXT2_GOOD_OLD_REV

	copy(img[blockSuperblock*testImageBlockSize:], sb)

	// --- group descriptor (32 bytes) ---
	gd := make([]byte, groupDescriptorSize32)
	le.PutUint32(gd[0:4], blockBlockBitmap)
	le.PutUint32(gd[4:8], blockInodeBitmap)
	le.PutUint32(gd[8:12], blockInodeTable0)
	le.PutUint16(gd[12:14], 4) // free_blocks_count
	le.PutUint16(gd[14:16], 3) // free_inodes_count
	le.PutUint16(gd[16:18], 1) // used_dirs_count
	copy(img[blockGDT*testImageBlockSize:], gd)

	// --- root directory inode (#2) ---
	rootDirData := buildLinearDirBlock(t, []dirFixtureEntry{
		{inode: 2, name: ".", ft: directoryFileTypeDirectory},
		{inode: 2, name: "..", ft: directoryFileTypeDirectory},
		{inode: 12, name: "hello.txt", ft: directoryFileTypeRegular},
	}, testImageBlockSize)
	copy(img[blockRootDir*testImageBlockSize:], rootDirData)

	writeTestInode(img, blockInodeTable0, 2, func(b []byte) {
		le.PutUint16(b[0x00:0x02], uint16(fileTypeDirectory)|0o755)
		le.PutUint32(b[0x04:0x08], testImageBlockSize) // size
		le.PutUint16(b[0x1a:0x1c], 2)                  // hard links
		le.PutUint32(b[0x1c:0x20], 2)                  // blocks (512B units)
		le.PutUint32(b[0x28:0x2c], blockRootDir)        // direct[0]
	})

	// --- file data + inode (#12) ---
	copy(img[blockFileData*testImageBlockSize:], fileContent)
	writeTestInode(img, blockInodeTable0, 12, func(b []byte) {
		le.PutUint16(b[0x00:0x02], uint16(fileTypeRegularFile)|0o644)
		le.PutUint32(b[0x04:0x08], uint32(len(fileContent)))
		le.PutUint16(b[0x1a:0x1c], 1)
		le.PutUint32(b[0x1c:0x20], 2)
		le.PutUint32(b[0x28:0x2c], blockFileData)
	})

	return img
}

type dirFixtureEntry struct {
	inode uint32
	name  string
	ft    directoryFileType
}

// buildLinearDirBlock lays out entries as rec_len-chained classical
// directory entries, with the final entry's rec_len padded to the end
// of the block.
func buildLinearDirBlock(t *testing.T, entries []dirFixtureEntry, blockSize int) []byte {
	t.Helper()
	b := make([]byte, 0, blockSize)
	offsets := make([]int, 0, len(entries))
	for _, e := range entries {
		offsets = append(offsets, len(b))
		recLen := 8 + len(e.name)
		recLen = (recLen + 3) &^ 3
		b = appendDirEntry(b, e.inode, uint16(recLen), e.name, e.ft)
	}
	b = append(b, make([]byte, blockSize-len(b))...)
	lastOff := offsets[len(offsets)-1]
	binary.LittleEndian.PutUint16(b[lastOff+4:lastOff+6], uint16(blockSize-lastOff))
	return b
}

// writeTestInode writes a 128-byte inode record into the inode table
// starting at tableBlock, at the slot for a 16-inodes-per-group,
// 8-inodes-per-block, 1024-byte-block-size test image.
func writeTestInode(img []byte, tableBlock int, number uint32, fill func(b []byte)) {
	const inodesPerBlock = testImageBlockSize / 128
	idx := int(number) - 1
	block := tableBlock + idx/inodesPerBlock
	within := idx % inodesPerBlock
	off := block*testImageBlockSize + within*128
	fill(img[off : off+128])
}

func openTestVolume(t *testing.T, fileContent []byte) *Volume {
	t.Helper()
	img := buildTestImage(t, fileContent)
	v, err := Open(&memStorage{data: img})
	require.NoError(t, err)
	return v
}

func TestOpenAndRoot(t *testing.T) {
	v := openTestVolume(t, []byte("hello world\n"))
	defer v.Close()

	root, err := v.Root()
	require.NoError(t, err)
	require.True(t, root.IsDir())
	require.Equal(t, uint32(2), root.InodeNumber())
}

func TestVolumeChildrenEnumeratesExcludingDotEntries(t *testing.T) {
	v := openTestVolume(t, []byte("hello world\n"))
	defer v.Close()

	root, err := v.Root()
	require.NoError(t, err)

	it, err := root.Children()
	require.NoError(t, err)

	var names []string
	for {
		name, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, name)
	}
	require.Equal(t, []string{"hello.txt"}, names)
}

func TestByPathResolvesRegularFile(t *testing.T) {
	v := openTestVolume(t, []byte("hello world\n"))
	defer v.Close()

	entry, err := v.ByPath("/hello.txt")
	require.NoError(t, err)
	require.True(t, entry.IsRegular())
	require.Equal(t, uint32(12), entry.InodeNumber())
	require.Equal(t, int64(len("hello world\n")), entry.Size())
}

func TestByPathMissingComponent(t *testing.T) {
	v := openTestVolume(t, []byte("hello world\n"))
	defer v.Close()

	_, err := v.ByPath("/does-not-exist")
	require.Error(t, err)
	require.True(t, IsKind(err, KindNotFound))
}

func TestByPathThroughNonDirectory(t *testing.T) {
	v := openTestVolume(t, []byte("hello world\n"))
	defer v.Close()

	_, err := v.ByPath("/hello.txt/nested")
	require.Error(t, err)
	require.True(t, IsKind(err, KindNotADirectory))
}

func TestFileEntryReadReturnsContent(t *testing.T) {
	content := []byte("hello world\n")
	v := openTestVolume(t, content)
	defer v.Close()

	entry, err := v.ByPath("/hello.txt")
	require.NoError(t, err)

	got := make([]byte, len(content))
	n, err := entry.Read(got)
	require.NoError(t, err)
	require.Equal(t, len(content), n)
	require.Equal(t, content, got)

	n, err = entry.Read(got)
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestFileEntrySeekThenRead(t *testing.T) {
	content := []byte("hello world\n")
	v := openTestVolume(t, content)
	defer v.Close()

	entry, err := v.ByPath("/hello.txt")
	require.NoError(t, err)

	pos, err := entry.Seek(6, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(6), pos)

	got := make([]byte, 5)
	n, err := entry.Read(got)
	require.NoError(t, err)
	require.Equal(t, "world", string(got[:n]))
}

func TestByInodeUnallocatedSlot(t *testing.T) {
	v := openTestVolume(t, []byte("x"))
	defer v.Close()

	_, ok, err := v.ByInode(11)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestByInodeOutOfRange(t *testing.T) {
	v := openTestVolume(t, []byte("x"))
	defer v.Close()

	_, _, err := v.ByInode(9999)
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidArgument))
}
