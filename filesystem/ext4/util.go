package ext4

import (
	"errors"

	"github.com/ext4view/ext4view/filesystem/ext4/crc"
)

var (
	errShortBuffer            = errors.New("buffer too short for on-disk structure")
	errBadMagic               = errors.New("bad superblock magic")
	errInodeSizeTooSmall      = errors.New("inode size smaller than 128 bytes")
	errLogBlockSizeTooLarge   = errors.New("log_block_size exceeds maximum of 16")
	errBadRevisionLevel       = errors.New("revision level is neither EXT2_GOOD_OLD_REV nor EXT2_DYNAMIC_REV")
	errUnsupportedIncompat    = errors.New("unrecognized incompat feature bit")
	errRejectedIncompat       = errors.New("incompat feature explicitly unsupported by this read-only decoder")
	errBadExtentMagic         = errors.New("invalid extent tree signature")
	errExtentDepthExceeded    = errors.New("extent tree depth exceeds maximum")
	errExtentEntriesExceedMax = errors.New("extent tree entries exceed node capacity")
	errExtentNotIncreasing    = errors.New("extent tree entries are not strictly increasing by file block")
	errExtentBadLength        = errors.New("extent length is zero or exceeds maximum")
	errIndirectOutOfRange     = errors.New("logical block out of range for indirect block map")
	errDirRecLenInvalid       = errors.New("directory entry record length invalid or overruns block")
	errBadXattrMagic          = errors.New("bad extended attribute block magic")
	errXattrNameOverrun       = errors.New("extended attribute name overruns buffer")
	errInodeOutOfRange        = errors.New("inode number out of range for volume")
	errDotDotUnsupported      = errors.New("\"..\" path components are not supported; resolve relative to a known FileEntry instead")
)

func crc32cOf(seed uint32, b []byte) uint32 {
	return crc.CRC32c(seed, b)
}
