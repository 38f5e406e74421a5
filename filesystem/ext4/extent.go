package ext4

import (
	"encoding/binary"
)

const (
	extentTreeHeaderLength int    = 12
	extentTreeEntryLength  int    = 12
	extentHeaderSignature  uint16 = 0xf30a
	extentTreeMaxDepth     int    = 5
	// uninitializedExtentBit marks an extent whose blocks are
	// allocated but not yet written; ee_len above this threshold
	// encodes an uninitialized extent of (ee_len - 32768) blocks.
	uninitializedExtentBit uint16 = 0x8000
	maxInitializedExtentLen uint16 = 32768
)

// blockReader is the minimal volume-level dependency the extent and
// indirect-block decoders need: read one filesystem block by its
// absolute block number, through the block cache.
type blockReader interface {
	readBlock(n uint64) ([]byte, error)
}

// extents holds multiple contiguous block runs, in file-block order.
type extents []extent

// extent is one contiguous run of blocks containing file data.
type extent struct {
	// fileBlock is the file-relative block number this extent starts at.
	fileBlock uint32
	// startingBlock is the first absolute disk block holding the data.
	startingBlock uint64
	// count is the number of contiguous blocks, after unpacking the
	// uninitialized-extent bit out of the raw on-disk ee_len.
	count uint16
	// uninitialized marks an extent whose blocks are reserved but
	// never written: reads within it should return zeros rather than
	// dereference startingBlock's stale content.
	uninitialized bool
}

func (e extents) blockCount() uint64 {
	var count uint64
	for _, ext := range e {
		count += uint64(ext.count)
	}
	return count
}

// extentBlockFinder locates the on-disk blocks backing a range of a
// file's logical blocks. Implementations do not recurse eagerly: an
// internal node only reads its child block once asked for a range
// that falls inside it.
type extentBlockFinder interface {
	findBlocks(start, count uint64, br blockReader) ([]uint64, error)
	blocks(br blockReader) (extents, error)
	getDepth() uint16
	getMax() uint16
	getBlockSize() uint32
	getFileBlock() uint32
	getCount() uint32
}

var (
	_ extentBlockFinder = &extentInternalNode{}
	_ extentBlockFinder = &extentLeafNode{}
)

type extentNodeHeader struct {
	depth     uint16
	entries   uint16
	max       uint16
	blockSize uint32
}

type extentChildPtr struct {
	fileBlock uint32
	count     uint32
	diskBlock uint64
}

type extentLeafNode struct {
	extentNodeHeader
	extents   extents
	diskBlock uint64
}

func (e extentLeafNode) findBlocks(start, count uint64, _ blockReader) ([]uint64, error) {
	var ret []uint64
	end := start + count - 1

	for _, ext := range e.extents {
		extentStart := uint64(ext.fileBlock)
		extentEnd := uint64(ext.fileBlock + uint32(ext.count) - 1)

		if extentEnd < start || extentStart > end {
			continue
		}

		overlapStart := max(start, extentStart)
		overlapEnd := min(end, extentEnd)
		diskBlockStart := ext.startingBlock + (overlapStart - extentStart)

		for i := uint64(0); i <= overlapEnd-overlapStart; i++ {
			ret = append(ret, diskBlockStart+i)
		}
	}
	return ret, nil
}

func (e extentLeafNode) blocks(_ blockReader) (extents, error) {
	return e.extents, nil
}

func (e *extentLeafNode) getDepth() uint16     { return e.depth }
func (e *extentLeafNode) getMax() uint16       { return e.max }
func (e *extentLeafNode) getBlockSize() uint32 { return e.blockSize }
func (e *extentLeafNode) getFileBlock() uint32 {
	if len(e.extents) == 0 {
		return 0
	}
	return e.extents[0].fileBlock
}
func (e *extentLeafNode) getCount() uint32 { return uint32(len(e.extents)) }

// resolve looks up the single extent, if any, covering logical block
// fileBlock. ok is false when the block falls in a hole (sparse,
// reads as zero) not covered by any extent in this leaf.
func (e extentLeafNode) resolve(fileBlock uint64) (ext extent, ok bool) {
	for _, ext := range e.extents {
		start := uint64(ext.fileBlock)
		end := start + uint64(ext.count) - 1
		if fileBlock >= start && fileBlock <= end {
			return ext, true
		}
	}
	return extent{}, false
}

type extentInternalNode struct {
	extentNodeHeader
	children  []*extentChildPtr
	diskBlock uint64
}

func (e extentInternalNode) findBlocks(start, count uint64, br blockReader) ([]uint64, error) {
	var ret []uint64
	end := start + count - 1

	for _, child := range e.children {
		extentStart := uint64(child.fileBlock)
		extentEnd := uint64(child.fileBlock + child.count - 1)

		if extentEnd < start || extentStart > end {
			continue
		}

		b, err := br.readBlock(child.diskBlock)
		if err != nil {
			return nil, err
		}
		ebf, err := parseExtents(b, e.blockSize, child.fileBlock, child.count)
		if err != nil {
			return nil, err
		}
		overlapStart := max(start, extentStart)
		overlapEnd := min(end, extentEnd)
		blocks, err := ebf.findBlocks(overlapStart, overlapEnd-overlapStart+1, br)
		if err != nil {
			return nil, err
		}
		ret = append(ret, blocks...)
	}
	return ret, nil
}

func (e extentInternalNode) blocks(br blockReader) (extents, error) {
	var ret extents
	for _, child := range e.children {
		b, err := br.readBlock(child.diskBlock)
		if err != nil {
			return nil, err
		}
		ebf, err := parseExtents(b, e.blockSize, child.fileBlock, child.count)
		if err != nil {
			return nil, err
		}
		blocks, err := ebf.blocks(br)
		if err != nil {
			return nil, err
		}
		ret = append(ret, blocks...)
	}
	return ret, nil
}

func (e *extentInternalNode) getDepth() uint16     { return e.depth }
func (e *extentInternalNode) getMax() uint16       { return e.max }
func (e *extentInternalNode) getBlockSize() uint32 { return e.blockSize }
func (e *extentInternalNode) getFileBlock() uint32 {
	if len(e.children) == 0 {
		return 0
	}
	return e.children[0].fileBlock
}
func (e *extentInternalNode) getCount() uint32 { return uint32(len(e.children)) }

// resolveChild returns the child pointer, if any, covering logical
// block fileBlock, so the caller can read that block and recurse.
func (e extentInternalNode) resolveChild(fileBlock uint64) (*extentChildPtr, bool) {
	for _, child := range e.children {
		start := uint64(child.fileBlock)
		end := start + uint64(child.count) - 1
		if fileBlock >= start && fileBlock <= end {
			return child, true
		}
	}
	return nil, false
}

// parseExtents decodes one extent tree node (the 60 bytes embedded in
// an inode, or a full extent tree block) without recursing into any
// child blocks. depth determines whether entries decode as leaf
// extents or as pointers to child nodes.
func parseExtents(b []byte, blocksize, start, count uint32) (extentBlockFinder, error) {
	var ret extentBlockFinder
	minLength := extentTreeHeaderLength + extentTreeEntryLength
	if len(b) < minLength {
		return nil, newErr(KindCorrupt, "parse-extent-tree", errShortBuffer)
	}
	if binary.LittleEndian.Uint16(b[0:2]) != extentHeaderSignature {
		return nil, newErr(KindCorrupt, "parse-extent-tree", errBadExtentMagic)
	}
	e := extentNodeHeader{
		entries:   binary.LittleEndian.Uint16(b[0x2:0x4]),
		max:       binary.LittleEndian.Uint16(b[0x4:0x6]),
		depth:     binary.LittleEndian.Uint16(b[0x6:0x8]),
		blockSize: blocksize,
	}
	if int(e.depth) > extentTreeMaxDepth {
		return nil, newErr(KindCorrupt, "parse-extent-tree", errExtentDepthExceeded)
	}
	if e.entries > e.max {
		return nil, newErr(KindCorrupt, "parse-extent-tree", errExtentEntriesExceedMax)
	}
	available := (len(b) - extentTreeHeaderLength) / extentTreeEntryLength
	if int(e.entries) > available {
		return nil, newErr(KindCorrupt, "parse-extent-tree", errExtentEntriesExceedMax)
	}

	switch e.depth {
	case 0:
		leafNode := extentLeafNode{extentNodeHeader: e}
		var prevFileBlock uint32
		for i := 0; i < int(e.entries); i++ {
			off := i*extentTreeEntryLength + extentTreeHeaderLength
			diskBlock := make([]byte, 8)
			copy(diskBlock[0:4], b[off+8:off+12])
			copy(diskBlock[4:6], b[off+6:off+8])

			fileBlock := binary.LittleEndian.Uint32(b[off : off+4])
			rawLen := binary.LittleEndian.Uint16(b[off+4 : off+6])
			if i > 0 && fileBlock <= prevFileBlock {
				return nil, newErr(KindCorrupt, "parse-extent-tree", errExtentNotIncreasing)
			}
			prevFileBlock = fileBlock

			uninitialized := rawLen > maxInitializedExtentLen
			length := rawLen
			if uninitialized {
				length = rawLen - maxInitializedExtentLen
			}
			if length == 0 || length > maxInitializedExtentLen {
				return nil, newErr(KindCorrupt, "parse-extent-tree", errExtentBadLength)
			}

			leafNode.extents = append(leafNode.extents, extent{
				fileBlock:     fileBlock,
				count:         length,
				startingBlock: binary.LittleEndian.Uint64(diskBlock),
				uninitialized: uninitialized,
			})
		}
		ret = &leafNode
	default:
		internalNode := extentInternalNode{extentNodeHeader: e}
		var prevFileBlock uint32
		for i := 0; i < int(e.entries); i++ {
			off := i*extentTreeEntryLength + extentTreeHeaderLength
			diskBlock := make([]byte, 8)
			copy(diskBlock[0:4], b[off+4:off+8])
			copy(diskBlock[4:6], b[off+8:off+10])
			ptr := &extentChildPtr{
				diskBlock: binary.LittleEndian.Uint64(diskBlock),
				fileBlock: binary.LittleEndian.Uint32(b[off : off+4]),
			}
			if i > 0 && ptr.fileBlock <= prevFileBlock {
				return nil, newErr(KindCorrupt, "parse-extent-tree", errExtentNotIncreasing)
			}
			prevFileBlock = ptr.fileBlock
			internalNode.children = append(internalNode.children, ptr)
			if i > 0 {
				internalNode.children[i-1].count = ptr.fileBlock - internalNode.children[i-1].fileBlock
			}
		}
		if len(internalNode.children) > 0 {
			last := internalNode.children[len(internalNode.children)-1]
			if start+count > last.fileBlock {
				last.count = start + count - last.fileBlock
			}
		}
		ret = &internalNode
	}

	return ret, nil
}
