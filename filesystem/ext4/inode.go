package ext4

import (
	"encoding/binary"
	"os"
	"time"

	"github.com/ext4view/ext4view/filesystem/ext4/crc"
)

type inodeFlag uint32
type fileType uint16

func (i inodeFlag) included(a uint32) bool {
	return a&uint32(i) == uint32(i)
}

const (
	ext2InodeSize uint16 = 128

	inodeFlagSecureDeletion          inodeFlag = 0x1
	inodeFlagPreserveForUndeletion   inodeFlag = 0x2
	inodeFlagCompressed              inodeFlag = 0x4
	inodeFlagSynchronous             inodeFlag = 0x8
	inodeFlagImmutable               inodeFlag = 0x10
	inodeFlagAppendOnly              inodeFlag = 0x20
	inodeFlagNoDump                  inodeFlag = 0x40
	inodeFlagNoAccessTimeUpdate      inodeFlag = 0x80
	inodeFlagDirtyCompressed         inodeFlag = 0x100
	inodeFlagCompressedClusters      inodeFlag = 0x200
	inodeFlagNoCompress              inodeFlag = 0x400
	inodeFlagEncryptedInode          inodeFlag = 0x800
	inodeFlagHashedDirectoryIndexes  inodeFlag = 0x1000
	inodeFlagAFSMagicDirectory       inodeFlag = 0x2000
	inodeFlagAlwaysJournal           inodeFlag = 0x4000
	inodeFlagNoMergeTail             inodeFlag = 0x8000
	inodeFlagSyncDirectoryData       inodeFlag = 0x10000
	inodeFlagTopDirectory            inodeFlag = 0x20000
	inodeFlagHugeFile                inodeFlag = 0x40000
	inodeFlagUsesExtents             inodeFlag = 0x80000
	inodeFlagExtendedAttributes      inodeFlag = 0x200000
	inodeFlagBlocksPastEOF           inodeFlag = 0x400000
	inodeFlagSnapshot                inodeFlag = 0x1000000
	inodeFlagDeletingSnapshot        inodeFlag = 0x4000000
	inodeFlagCompletedSnapshotShrink inodeFlag = 0x8000000
	inodeFlagInlineData              inodeFlag = 0x10000000
	inodeFlagInheritProject          inodeFlag = 0x20000000

	fileTypeFifo            fileType = 0x1000
	fileTypeCharacterDevice fileType = 0x2000
	fileTypeDirectory       fileType = 0x4000
	fileTypeBlockDevice     fileType = 0x6000
	fileTypeRegularFile     fileType = 0x8000
	fileTypeSymbolicLink    fileType = 0xA000
	fileTypeSocket          fileType = 0xC000

	filePermissionsOwnerExecute uint16 = 0x40
	filePermissionsOwnerWrite   uint16 = 0x80
	filePermissionsOwnerRead    uint16 = 0x100
	filePermissionsGroupExecute uint16 = 0x8
	filePermissionsGroupWrite   uint16 = 0x10
	filePermissionsGroupRead    uint16 = 0x20
	filePermissionsOtherExecute uint16 = 0x1
	filePermissionsOtherWrite   uint16 = 0x2
	filePermissionsOtherRead    uint16 = 0x4
	filePermissionsSticky       uint16 = 0x200
	filePermissionsGroupSetgid  uint16 = 0x400
	filePermissionsOwnerSetuid  uint16 = 0x800
)

type inodeFlags struct {
	secureDeletion          bool
	preserveForUndeletion   bool
	compressed              bool
	synchronous             bool
	immutable               bool
	appendOnly              bool
	noDump                  bool
	noAccessTimeUpdate      bool
	dirtyCompressed         bool
	compressedClusters      bool
	noCompress              bool
	encryptedInode          bool
	hashedDirectoryIndexes  bool
	AFSMagicDirectory       bool
	alwaysJournal           bool
	noMergeTail             bool
	syncDirectoryData       bool
	topDirectory            bool
	hugeFile                bool
	usesExtents             bool
	extendedAttributes      bool
	blocksPastEOF           bool
	snapshot                bool
	deletingSnapshot        bool
	completedSnapshotShrink bool
	inlineData              bool
	inheritProject          bool
}

type filePermissions struct {
	read    bool
	write   bool
	execute bool
	special bool
}

// inode is the decoded form of one 128-to-1024-byte inode table entry.
type inode struct {
	number                 uint32
	permissionsOther       filePermissions
	permissionsGroup       filePermissions
	permissionsOwner       filePermissions
	fileType               fileType
	owner                  uint32
	group                  uint32
	size                   uint64
	accessTime             time.Time
	changeTime             time.Time
	modifyTime             time.Time
	createTime             time.Time
	deletionTime           uint32
	hardLinks              uint16
	blocks                 uint64
	filesystemBlocks       bool
	flags                  *inodeFlags
	version                uint64
	nfsFileVersion         uint32
	extendedAttributeBlock uint64
	inodeSize              uint16
	project                uint32
	extents                extentBlockFinder
	indirect               *indirectBlockMap
	linkTarget             string
	// inlineData holds the raw i_block bytes verbatim when the
	// inline_data flag is set: for a directory this is the inline
	// directory-entry area, for a symlink or small regular file it is
	// the file content itself. Any content beyond these 60 bytes
	// lives in the inode's "system.data" extended attribute, which
	// the directory/filedata readers consult as a fallback.
	inlineData []byte

	// inlineXattrArea holds the bytes following i_extra_isize where
	// inline extended attributes live, when inode_size and
	// i_extra_isize leave room for any. Empty otherwise.
	inlineXattrArea []byte

	// ChecksumValid reports whether the inode's checksum, if the
	// volume carries metadata_csum, matched the decoded bytes. A
	// mismatch is never treated as a decode failure.
	ChecksumValid bool
}

// isFastSymlink reports whether the inode stores its link target
// inline rather than in a data block. This decoder requires both
// size<=60 and zero allocated blocks, stricter than simply checking
// the size: a corrupt or adversarially constructed image could set a
// small size while still pointing i_block at real extent/indirect
// data, and treating that as a fast symlink would silently drop it.
func (i *inode) isFastSymlink() bool {
	return i.fileType == fileTypeSymbolicLink && i.size <= 60 && i.blocks == 0
}

// inodeFromBytes decodes one inode table entry. b must be at least
// ext2InodeSize (128) bytes, the minimum legal inode_size; an ext2/3
// volume may legitimately carry no extra fields at all, in which case
// every byte beyond 128 is treated as absent rather than corrupt.
func inodeFromBytes(b []byte, sb *superblock, number uint32) (*inode, error) {
	if len(b) < int(ext2InodeSize) {
		return nil, newErr(KindCorrupt, "parse-inode", errShortBuffer)
	}

	raw := make([]byte, len(b))
	copy(raw, b)
	if len(raw) >= 0x84 {
		// zero the on-disk checksum fields before recomputing, same as
		// the kernel driver does.
		raw[0x7c] = 0
		raw[0x7d] = 0
		raw[0x82] = 0
		raw[0x83] = 0
	}

	// b is worked with through a fixed-size buffer so that offsets
	// beyond a short (128-byte) inode's actual content read as zero
	// instead of panicking; nothing past 0x80 is defined for such an
	// inode anyway (no i_extra_isize, no nanosecond timestamps).
	work := make([]byte, 0xa0)
	copy(work, b)
	b = work

	owner := make([]byte, 4)
	fileSize := make([]byte, 8)
	group := make([]byte, 4)
	version := make([]byte, 8)
	extendedAttributeBlock := make([]byte, 8)

	mode := binary.LittleEndian.Uint16(b[0x0:0x2])

	copy(owner[0:2], b[0x2:0x4])
	copy(owner[2:4], b[0x78:0x7a])
	copy(group[0:2], b[0x18:0x20])
	copy(group[2:4], b[0x7a:0x7c])
	copy(fileSize[0:4], b[0x4:0x8])
	copy(fileSize[4:8], b[0x6c:0x70])
	copy(version[0:4], b[0x24:0x28])
	copy(version[4:8], b[0x98:0x9c])
	copy(extendedAttributeBlock[0:4], b[0x68:0x6c])
	copy(extendedAttributeBlock[4:6], b[0x76:0x78])

	// Timestamps: the base 32-bit seconds field is widened when the
	// inode carries an "extra" field. The extra field's low 2 bits
	// extend seconds to 34 bits; the high 30 bits are nanoseconds.
	accessTimeSeconds := int32(binary.LittleEndian.Uint32(b[0x8:0xc]))
	changeTimeSeconds := int32(binary.LittleEndian.Uint32(b[0xc:0x10]))
	modifyTimeSeconds := int32(binary.LittleEndian.Uint32(b[0x10:0x14]))
	createTimeSeconds := int32(binary.LittleEndian.Uint32(b[0x90:0x94]))

	accessTimeExtra := binary.LittleEndian.Uint32(b[0x8c:0x90])
	changeTimeExtra := binary.LittleEndian.Uint32(b[0x84:0x88])
	modifyTimeExtra := binary.LittleEndian.Uint32(b[0x88:0x8c])
	createTimeExtra := binary.LittleEndian.Uint32(b[0x94:0x98])

	atimeSec, atimeNano := decodeTimestamp(accessTimeSeconds, accessTimeExtra)
	ctimeSec, ctimeNano := decodeTimestamp(changeTimeSeconds, changeTimeExtra)
	mtimeSec, mtimeNano := decodeTimestamp(modifyTimeSeconds, modifyTimeExtra)
	crtimeSec, crtimeNano := decodeTimestamp(createTimeSeconds, createTimeExtra)

	flagsNum := binary.LittleEndian.Uint32(b[0x20:0x24])
	flags := parseInodeFlags(flagsNum)

	blocksLow := binary.LittleEndian.Uint32(b[0x1c:0x20])
	blocksHigh := binary.LittleEndian.Uint16(b[0x74:0x76])
	var (
		blocks           uint64
		filesystemBlocks bool
	)

	hugeFile := sb.roCompatFeatures.HugeFile
	switch {
	case !hugeFile:
		blocks = uint64(blocksLow)
	case hugeFile && !flags.hugeFile:
		blocks = uint64(blocksHigh)<<32 + uint64(blocksLow)
	default:
		blocks = uint64(blocksHigh)<<32 + uint64(blocksLow)
		filesystemBlocks = true
	}

	ft := parseFileType(mode)
	fileSizeNum := binary.LittleEndian.Uint64(fileSize)

	iBlockRaw := make([]byte, 60)
	copy(iBlockRaw, b[0x28:0x64])

	var (
		linkTarget string
		extents    extentBlockFinder
		indirect   *indirectBlockMap
		err        error
	)

	isSymlink := ft == fileTypeSymbolicLink && fileSizeNum <= 60 && blocks == 0
	switch {
	case isSymlink:
		linkTarget = string(iBlockRaw[:fileSizeNum])
	case flags.inlineData:
		// content (directory entries, symlink target, or small file
		// body) lives directly in iBlockRaw, with any overflow in the
		// "system.data" xattr; the directory/filedata/symlink layers
		// read inlineData directly rather than through extents.
	case flags.usesExtents:
		extents, err = parseExtents(iBlockRaw, sb.blockSize, 0, uint32(blocks))
		if err != nil {
			return nil, newPathErr(KindCorrupt, "parse-inode", "", err)
		}
	default:
		indirect, err = indirectBlockMapFromBytes(iBlockRaw, sb.blockSize)
		if err != nil {
			return nil, newPathErr(KindCorrupt, "parse-inode", "", err)
		}
	}

	i := &inode{
		number:                 number,
		permissionsGroup:       parseGroupPermissions(mode),
		permissionsOwner:       parseOwnerPermissions(mode),
		permissionsOther:       parseOtherPermissions(mode),
		fileType:               ft,
		owner:                  binary.LittleEndian.Uint32(owner),
		group:                  binary.LittleEndian.Uint32(group),
		size:                   fileSizeNum,
		hardLinks:              binary.LittleEndian.Uint16(b[0x1a:0x1c]),
		blocks:                 blocks,
		filesystemBlocks:       filesystemBlocks,
		flags:                  &flags,
		nfsFileVersion:         binary.LittleEndian.Uint32(b[0x64:0x68]),
		version:                binary.LittleEndian.Uint64(version),
		inodeSize:              ext2InodeSize + binary.LittleEndian.Uint16(b[0x80:0x82]),
		deletionTime:           binary.LittleEndian.Uint32(b[0x14:0x18]),
		accessTime:             time.Unix(atimeSec, atimeNano),
		changeTime:             time.Unix(ctimeSec, ctimeNano),
		modifyTime:             time.Unix(mtimeSec, mtimeNano),
		createTime:             time.Unix(crtimeSec, crtimeNano),
		extendedAttributeBlock: binary.LittleEndian.Uint64(extendedAttributeBlock),
		project:                binary.LittleEndian.Uint32(b[0x9c:0xa0]),
		extents:                extents,
		indirect:               indirect,
		linkTarget:             linkTarget,
	}
	if flags.inlineData {
		i.inlineData = iBlockRaw
	}

	extraIsize := binary.LittleEndian.Uint16(b[0x80:0x82])
	xattrStart := int(ext2InodeSize) + int(extraIsize)
	if extraIsize > 0 && xattrStart < len(raw) {
		i.inlineXattrArea = raw[xattrStart:]
	}

	onDiskLo := binary.LittleEndian.Uint16(b[0x7c:0x7e])
	onDiskHi := binary.LittleEndian.Uint16(b[0x82:0x84])
	onDiskChecksum := uint32(onDiskLo) | uint32(onDiskHi)<<16
	i.ChecksumValid = !sb.roCompatFeatures.MetadataChecksum ||
		inodeChecksum(raw, sb.checksumSeed, number, i.nfsFileVersion) == onDiskChecksum

	return i, nil
}

func decodeTimestamp(seconds int32, extra uint32) (int64, int64) {
	sec := int64(seconds) + (int64(extra&0x3) << 32)
	nano := int64(extra >> 2)
	return sec, nano
}

func (i *inode) permissionsToMode() os.FileMode {
	var mode os.FileMode

	switch i.fileType {
	case fileTypeRegularFile:
	case fileTypeDirectory:
		mode |= os.ModeDir
	case fileTypeSymbolicLink:
		mode |= os.ModeSymlink
	case fileTypeCharacterDevice:
		mode |= os.ModeDevice | os.ModeCharDevice
	case fileTypeBlockDevice:
		mode |= os.ModeDevice
	case fileTypeFifo:
		mode |= os.ModeNamedPipe
	case fileTypeSocket:
		mode |= os.ModeSocket
	}

	if i.permissionsOwner.read {
		mode |= 0o400
	}
	if i.permissionsOwner.write {
		mode |= 0o200
	}
	if i.permissionsOwner.execute {
		mode |= 0o100
	}
	if i.permissionsOwner.special {
		mode |= os.ModeSetuid
	}
	if i.permissionsGroup.read {
		mode |= 0o040
	}
	if i.permissionsGroup.write {
		mode |= 0o020
	}
	if i.permissionsGroup.execute {
		mode |= 0o010
	}
	if i.permissionsGroup.special {
		mode |= os.ModeSetgid
	}
	if i.permissionsOther.read {
		mode |= 0o004
	}
	if i.permissionsOther.write {
		mode |= 0o002
	}
	if i.permissionsOther.execute {
		mode |= 0o001
	}
	if i.permissionsOther.special {
		mode |= os.ModeSticky
	}

	return mode
}

func parseOwnerPermissions(mode uint16) filePermissions {
	return filePermissions{
		execute: mode&filePermissionsOwnerExecute == filePermissionsOwnerExecute,
		write:   mode&filePermissionsOwnerWrite == filePermissionsOwnerWrite,
		read:    mode&filePermissionsOwnerRead == filePermissionsOwnerRead,
		special: mode&filePermissionsOwnerSetuid == filePermissionsOwnerSetuid,
	}
}
func parseGroupPermissions(mode uint16) filePermissions {
	return filePermissions{
		execute: mode&filePermissionsGroupExecute == filePermissionsGroupExecute,
		write:   mode&filePermissionsGroupWrite == filePermissionsGroupWrite,
		read:    mode&filePermissionsGroupRead == filePermissionsGroupRead,
		special: mode&filePermissionsGroupSetgid == filePermissionsGroupSetgid,
	}
}
func parseOtherPermissions(mode uint16) filePermissions {
	return filePermissions{
		execute: mode&filePermissionsOtherExecute == filePermissionsOtherExecute,
		write:   mode&filePermissionsOtherWrite == filePermissionsOtherWrite,
		read:    mode&filePermissionsOtherRead == filePermissionsOtherRead,
		special: mode&filePermissionsSticky == filePermissionsSticky,
	}
}

// parseFileType extracts the type nibble from the mode field; the
// bottom 12 bits are permission bits and resolved separately.
func parseFileType(mode uint16) fileType {
	return fileType(mode & 0xF000)
}

func parseInodeFlags(flags uint32) inodeFlags {
	return inodeFlags{
		secureDeletion:          inodeFlagSecureDeletion.included(flags),
		preserveForUndeletion:   inodeFlagPreserveForUndeletion.included(flags),
		compressed:              inodeFlagCompressed.included(flags),
		synchronous:             inodeFlagSynchronous.included(flags),
		immutable:               inodeFlagImmutable.included(flags),
		appendOnly:              inodeFlagAppendOnly.included(flags),
		noDump:                  inodeFlagNoDump.included(flags),
		noAccessTimeUpdate:      inodeFlagNoAccessTimeUpdate.included(flags),
		dirtyCompressed:         inodeFlagDirtyCompressed.included(flags),
		compressedClusters:      inodeFlagCompressedClusters.included(flags),
		noCompress:              inodeFlagNoCompress.included(flags),
		encryptedInode:          inodeFlagEncryptedInode.included(flags),
		hashedDirectoryIndexes:  inodeFlagHashedDirectoryIndexes.included(flags),
		AFSMagicDirectory:       inodeFlagAFSMagicDirectory.included(flags),
		alwaysJournal:           inodeFlagAlwaysJournal.included(flags),
		noMergeTail:             inodeFlagNoMergeTail.included(flags),
		syncDirectoryData:       inodeFlagSyncDirectoryData.included(flags),
		topDirectory:            inodeFlagTopDirectory.included(flags),
		hugeFile:                inodeFlagHugeFile.included(flags),
		usesExtents:             inodeFlagUsesExtents.included(flags),
		extendedAttributes:      inodeFlagExtendedAttributes.included(flags),
		blocksPastEOF:           inodeFlagBlocksPastEOF.included(flags),
		snapshot:                inodeFlagSnapshot.included(flags),
		deletingSnapshot:        inodeFlagDeletingSnapshot.included(flags),
		completedSnapshotShrink: inodeFlagCompletedSnapshotShrink.included(flags),
		inlineData:              inodeFlagInlineData.included(flags),
		inheritProject:          inodeFlagInheritProject.included(flags),
	}
}

// inodeChecksum computes the CRC32c the kernel stores split across
// i_checksum_lo and i_checksum_hi, seeded by the inode number and nfs
// generation before folding in the inode bytes themselves.
func inodeChecksum(b []byte, checksumSeed, inodeNumber, inodeGeneration uint32) uint32 {
	numberBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(numberBytes, inodeNumber)
	crcResult := crc.CRC32c(checksumSeed, numberBytes)
	genBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(genBytes, inodeGeneration)
	crcResult = crc.CRC32c(crcResult, genBytes)
	return crc.CRC32c(crcResult, b)
}
