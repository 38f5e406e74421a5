package ext4

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func indirectFixture(t *testing.T, direct [12]uint32, single, double, triple uint32) []byte {
	t.Helper()
	b := make([]byte, 60)
	le := binary.LittleEndian
	for i, d := range direct {
		le.PutUint32(b[i*4:i*4+4], d)
	}
	le.PutUint32(b[48:52], single)
	le.PutUint32(b[52:56], double)
	le.PutUint32(b[56:60], triple)
	return b
}

func fixedBlock(blockSize uint32, fill func([]byte)) []byte {
	b := make([]byte, blockSize)
	fill(b)
	return b
}

func TestIndirectBlockMapFromBytesRejectsShortBuffer(t *testing.T) {
	_, err := indirectBlockMapFromBytes(make([]byte, 10), 4096)
	require.Error(t, err)
	require.True(t, IsKind(err, KindCorrupt))
}

func TestIndirectBlockMapDirectBlocks(t *testing.T) {
	var direct [12]uint32
	direct[0] = 100
	direct[11] = 111
	b := indirectFixture(t, direct, 0, 0, 0)
	m, err := indirectBlockMapFromBytes(b, 4096)
	require.NoError(t, err)

	blk, ok, err := m.resolve(nil, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(100), blk)

	blk, ok, err = m.resolve(nil, 11)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(111), blk)

	_, ok, err = m.resolve(nil, 5)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIndirectBlockMapSingleIndirect(t *testing.T) {
	blockSize := uint32(16)
	ppb := uint64(blockSize) / 4

	indirectBlock := fixedBlock(blockSize, func(b []byte) {
		binary.LittleEndian.PutUint32(b[0:4], 500)
		binary.LittleEndian.PutUint32(b[4:8], 501)
	})
	fr := &fakeBlockReader{blocks: map[uint64][]byte{200: indirectBlock}}

	var direct [12]uint32
	b := indirectFixture(t, direct, 200, 0, 0)
	m, err := indirectBlockMapFromBytes(b, blockSize)
	require.NoError(t, err)
	require.Equal(t, ppb, m.pointersPerBlock())

	blk, ok, err := m.resolve(fr, indirectDirectCount+0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(500), blk)

	blk, ok, err = m.resolve(fr, indirectDirectCount+1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(501), blk)
}

func TestIndirectBlockMapSingleIndirectZeroIsHole(t *testing.T) {
	var direct [12]uint32
	b := indirectFixture(t, direct, 0, 0, 0)
	m, err := indirectBlockMapFromBytes(b, 4096)
	require.NoError(t, err)

	blk, ok, err := m.resolve(nil, indirectDirectCount)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, uint64(0), blk)
}

func TestIndirectBlockMapDoubleIndirect(t *testing.T) {
	blockSize := uint32(16)
	ppb := uint64(blockSize) / 4

	leafBlock := fixedBlock(blockSize, func(b []byte) {
		binary.LittleEndian.PutUint32(b[0:4], 700)
	})
	doubleBlock := fixedBlock(blockSize, func(b []byte) {
		binary.LittleEndian.PutUint32(b[0:4], 300)
	})
	fr := &fakeBlockReader{blocks: map[uint64][]byte{
		600: doubleBlock,
		300: leafBlock,
	}}

	var direct [12]uint32
	b := indirectFixture(t, direct, 0, 600, 0)
	m, err := indirectBlockMapFromBytes(b, blockSize)
	require.NoError(t, err)

	fileBlock := uint64(indirectDirectCount) + ppb
	blk, ok, err := m.resolve(fr, fileBlock)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(700), blk)
}

func TestIndirectBlockMapTripleIndirect(t *testing.T) {
	blockSize := uint32(16)
	ppb := uint64(blockSize) / 4

	leafBlock := fixedBlock(blockSize, func(b []byte) {
		binary.LittleEndian.PutUint32(b[0:4], 900)
	})
	doubleBlock := fixedBlock(blockSize, func(b []byte) {
		binary.LittleEndian.PutUint32(b[0:4], 800)
	})
	tripleBlock := fixedBlock(blockSize, func(b []byte) {
		binary.LittleEndian.PutUint32(b[0:4], 750)
	})
	fr := &fakeBlockReader{blocks: map[uint64][]byte{
		999: tripleBlock,
		750: doubleBlock,
		800: leafBlock,
	}}

	var direct [12]uint32
	b := indirectFixture(t, direct, 0, 0, 999)
	m, err := indirectBlockMapFromBytes(b, blockSize)
	require.NoError(t, err)

	fileBlock := uint64(indirectDirectCount) + ppb + ppb*ppb
	blk, ok, err := m.resolve(fr, fileBlock)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(900), blk)
}

func TestIndirectBlockMapResolveOutOfRange(t *testing.T) {
	blockSize := uint32(16)
	ppb := uint64(blockSize) / 4

	var direct [12]uint32
	b := indirectFixture(t, direct, 0, 0, 0)
	m, err := indirectBlockMapFromBytes(b, blockSize)
	require.NoError(t, err)

	fileBlock := uint64(indirectDirectCount) + ppb + ppb*ppb + ppb*ppb*ppb
	_, _, err = m.resolve(nil, fileBlock)
	require.Error(t, err)
	require.True(t, IsKind(err, KindCorrupt))
}
