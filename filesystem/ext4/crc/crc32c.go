// Package crc computes the CRC32c (Castagnoli) checksums used
// throughout ext4 metadata: superblock, group descriptors, inodes,
// directory blocks, and extended attribute blocks all append a
// CRC32c of their own bytes (seeded by the superblock's
// checksum_seed, itself a CRC32c of the volume UUID) when the
// metadata_csum feature is enabled.
//
// ext4view reads these checksums but, per the read-only contract, a
// mismatch is reported on the decoded struct rather than treated as
// a fatal decode error.
package crc

import "hash/crc32"

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32c extends a running CRC32c checksum over b, seeded by crc.
// Passing 0 computes the checksum of b alone.
func CRC32c(crc uint32, b []byte) uint32 {
	return crc32.Update(crc, castagnoliTable, b)
}
