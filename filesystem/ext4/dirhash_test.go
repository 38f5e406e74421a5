package ext4

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExt4fsDirhashIsDeterministic(t *testing.T) {
	h1, m1 := ext4fsDirhash("example.txt", hashVersionHalfMD4, nil)
	h2, m2 := ext4fsDirhash("example.txt", hashVersionHalfMD4, nil)
	require.Equal(t, h1, h2)
	require.Equal(t, m1, m2)
}

func TestExt4fsDirhashDiffersByName(t *testing.T) {
	h1, _ := ext4fsDirhash("alpha", hashVersionHalfMD4, nil)
	h2, _ := ext4fsDirhash("bravo", hashVersionHalfMD4, nil)
	require.NotEqual(t, h1, h2)
}

func TestExt4fsDirhashLowBitAlwaysClear(t *testing.T) {
	for _, version := range []hashVersion{
		hashVersionLegacy, hashVersionLegacyUnsigned,
		hashVersionHalfMD4, hashVersionHalfMD4Unsigned,
		hashVersionTea, hashVersionTeaUnsigned,
	} {
		hash, _ := ext4fsDirhash("some-file-name", version, nil)
		require.Zero(t, hash&1, "version %v set the reserved low bit", version)
	}
}

func TestExt4fsDirhashUnknownVersionIsZero(t *testing.T) {
	hash, minor := ext4fsDirhash("x", hashVersion(99), nil)
	require.Zero(t, hash)
	require.Zero(t, minor)
}

func TestExt4fsDirhashSeedChangesResult(t *testing.T) {
	seed := []uint32{1, 2, 3, 4}
	h1, _ := ext4fsDirhash("name", hashVersionHalfMD4, nil)
	h2, _ := ext4fsDirhash("name", hashVersionHalfMD4, seed)
	require.NotEqual(t, h1, h2)
}

func TestExt4fsDirhashLongNameChunks(t *testing.T) {
	// exercises the >32-byte (half-MD4) and >16-byte (TEA) chunking loops
	long := "this-name-is-longer-than-thirty-two-bytes-for-sure"
	h1, _ := ext4fsDirhash(long, hashVersionHalfMD4, nil)
	h2, _ := ext4fsDirhash(long, hashVersionTea, nil)
	require.NotZero(t, h1)
	require.NotZero(t, h2)
}

func TestDxHackHashSignedVsUnsigned(t *testing.T) {
	// a name containing a high-bit byte distinguishes signed/unsigned paths
	name := string([]byte{0xFF, 'a'})
	signed := dxHackHash(name, true)
	unsigned := dxHackHash(name, false)
	require.NotEqual(t, signed, unsigned)
}

func TestStr2hashbufPadsShortInput(t *testing.T) {
	buf := str2hashbuf("ab", 4, true)
	require.Len(t, buf, 4)
	// every word beyond the ones touched by input bytes carries the
	// length-derived pad value
	pad := uint32(2) | uint32(2)<<8
	pad |= pad << 16
	require.Equal(t, pad, buf[1])
	require.Equal(t, pad, buf[2])
	require.Equal(t, pad, buf[3])
}

func TestTEATransformDeterministic(t *testing.T) {
	buf := [4]uint32{1, 2, 3, 4}
	in := []uint32{5, 6, 7, 8}
	out1 := TEATransform(buf, in)
	out2 := TEATransform(buf, in)
	require.Equal(t, out1, out2)
	require.NotEqual(t, buf, out1)
}
