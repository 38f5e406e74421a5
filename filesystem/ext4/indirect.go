package ext4

import "encoding/binary"

const (
	indirectDirectCount = 12
)

// indirectBlockMap is the classical ext2/ext3 block-mapping scheme,
// still legal in ext4 for inodes that don't carry the extents flag:
// 12 direct block pointers, then single, double, and triple indirect
// pointers, each indirect block holding blockSize/4 more pointers.
type indirectBlockMap struct {
	direct           [indirectDirectCount]uint32
	singleIndirect   uint32
	doubleIndirect   uint32
	tripleIndirect   uint32
	blockSize        uint32
}

// indirectBlockMapFromBytes decodes the 60-byte i_block field (the
// same bytes that hold the extent tree root when the extents flag is
// set) as the classical direct/indirect pointer layout.
func indirectBlockMapFromBytes(b []byte, blockSize uint32) (*indirectBlockMap, error) {
	if len(b) < 60 {
		return nil, newErr(KindCorrupt, "parse-indirect-block-map", errShortBuffer)
	}
	m := &indirectBlockMap{blockSize: blockSize}
	for i := 0; i < indirectDirectCount; i++ {
		m.direct[i] = binary.LittleEndian.Uint32(b[i*4 : i*4+4])
	}
	m.singleIndirect = binary.LittleEndian.Uint32(b[48:52])
	m.doubleIndirect = binary.LittleEndian.Uint32(b[52:56])
	m.tripleIndirect = binary.LittleEndian.Uint32(b[56:60])
	return m, nil
}

// pointersPerBlock is how many uint32 block pointers fit in one
// indirect block.
func (m *indirectBlockMap) pointersPerBlock() uint64 {
	return uint64(m.blockSize) / 4
}

// resolve returns the absolute disk block number holding logical
// block fileBlock, or ok=false for a hole (an unallocated pointer,
// which reads as zero per the classical sparse-file convention).
func (m *indirectBlockMap) resolve(br blockReader, fileBlock uint64) (blockNum uint64, ok bool, err error) {
	ppb := m.pointersPerBlock()

	if fileBlock < indirectDirectCount {
		p := m.direct[fileBlock]
		return uint64(p), p != 0, nil
	}
	fileBlock -= indirectDirectCount

	if fileBlock < ppb {
		return m.resolveIndirect(br, m.singleIndirect, fileBlock)
	}
	fileBlock -= ppb

	if fileBlock < ppb*ppb {
		return m.resolveDoubleIndirect(br, m.doubleIndirect, fileBlock)
	}
	fileBlock -= ppb * ppb

	if fileBlock < ppb*ppb*ppb {
		return m.resolveTripleIndirect(br, m.tripleIndirect, fileBlock)
	}

	return 0, false, newErr(KindCorrupt, "resolve-indirect-block", errIndirectOutOfRange)
}

func (m *indirectBlockMap) resolveIndirect(br blockReader, indirectBlock uint32, idx uint64) (uint64, bool, error) {
	if indirectBlock == 0 {
		return 0, false, nil
	}
	b, err := br.readBlock(uint64(indirectBlock))
	if err != nil {
		return 0, false, err
	}
	if idx*4+4 > uint64(len(b)) {
		return 0, false, newErr(KindCorrupt, "resolve-indirect-block", errIndirectOutOfRange)
	}
	p := binary.LittleEndian.Uint32(b[idx*4 : idx*4+4])
	return uint64(p), p != 0, nil
}

func (m *indirectBlockMap) resolveDoubleIndirect(br blockReader, doubleBlock uint32, idx uint64) (uint64, bool, error) {
	if doubleBlock == 0 {
		return 0, false, nil
	}
	ppb := m.pointersPerBlock()
	outer := idx / ppb
	inner := idx % ppb

	b, err := br.readBlock(uint64(doubleBlock))
	if err != nil {
		return 0, false, err
	}
	if outer*4+4 > uint64(len(b)) {
		return 0, false, newErr(KindCorrupt, "resolve-indirect-block", errIndirectOutOfRange)
	}
	singleBlock := binary.LittleEndian.Uint32(b[outer*4 : outer*4+4])
	return m.resolveIndirect(br, singleBlock, inner)
}

func (m *indirectBlockMap) resolveTripleIndirect(br blockReader, tripleBlock uint32, idx uint64) (uint64, bool, error) {
	if tripleBlock == 0 {
		return 0, false, nil
	}
	ppb := m.pointersPerBlock()
	outer := idx / (ppb * ppb)
	rem := idx % (ppb * ppb)

	b, err := br.readBlock(uint64(tripleBlock))
	if err != nil {
		return 0, false, err
	}
	if outer*4+4 > uint64(len(b)) {
		return 0, false, newErr(KindCorrupt, "resolve-indirect-block", errIndirectOutOfRange)
	}
	doubleBlock := binary.LittleEndian.Uint32(b[outer*4 : outer*4+4])
	return m.resolveDoubleIndirect(br, doubleBlock, rem)
}
