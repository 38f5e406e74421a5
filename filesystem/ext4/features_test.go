package ext4

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompatFeaturesFromUint32DirIndexUsesNonCollidingBit(t *testing.T) {
	f := compatFeaturesFromUint32(0x0020)
	require.True(t, f.DirIndex)
	require.False(t, f.HasJournal)

	f = compatFeaturesFromUint32(0x0004)
	require.True(t, f.HasJournal)
	require.False(t, f.DirIndex)
}

func TestCompatFeaturesStringListsSetBits(t *testing.T) {
	f := compatFeaturesFromUint32(0x0001 | 0x0008)
	require.Equal(t, "dir_prealloc,ext_attr", f.String())
}

func TestIncompatFeaturesFromUint32ZeroIsAllUnset(t *testing.T) {
	f := incompatFeaturesFromUint32(0)
	require.Zero(t, f.Unrecognized())
	name, rejected := f.Rejected()
	require.False(t, rejected)
	require.Empty(t, name)
	require.Empty(t, f.String())
}

func TestIncompatFeaturesFromUint32RecognizesKnownBits(t *testing.T) {
	f := incompatFeaturesFromUint32(0x0040 | 0x0002)
	require.True(t, f.Extents)
	require.True(t, f.FileType)
	require.Zero(t, f.Unrecognized())
}

func TestIncompatFeaturesUnrecognizedCarriesUnknownBits(t *testing.T) {
	f := incompatFeaturesFromUint32(0x80000000)
	require.Equal(t, uint32(0x80000000), f.Unrecognized())
}

func TestIncompatFeaturesRejectedReportsCompressionJournalDeviceAndDirData(t *testing.T) {
	cases := []struct {
		bit  uint32
		name string
	}{
		{0x0001, rejectedIncompatNames[0x0001]},
		{0x0008, rejectedIncompatNames[0x0008]},
		{0x1000, rejectedIncompatNames[0x1000]},
	}
	for _, c := range cases {
		f := incompatFeaturesFromUint32(c.bit)
		name, ok := f.Rejected()
		require.True(t, ok)
		require.Equal(t, c.name, name)
	}
}

func TestIncompatFeaturesRejectedIgnoresNonRejectedBits(t *testing.T) {
	f := incompatFeaturesFromUint32(0x0040 | 0x0080) // extents + 64bit
	_, ok := f.Rejected()
	require.False(t, ok)
}

func TestRoCompatFeaturesFromUint32(t *testing.T) {
	f := roCompatFeaturesFromUint32(0x0008 | 0x0400)
	require.True(t, f.HugeFile)
	require.True(t, f.MetadataChecksum)
	require.False(t, f.SparseSuper)
}

func TestRoCompatFeaturesStringListsSetBits(t *testing.T) {
	f := roCompatFeaturesFromUint32(0x0001 | 0x8000)
	require.Equal(t, "sparse_super,verity", f.String())
}
