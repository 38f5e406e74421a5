package ext4

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

const (
	superblockOffset = 1024
	superblockSize   = 1024
	superblockMagic  = 0xEF53

	minInodeSize = 128
)

type hashVersion uint8

const (
	hashVersionLegacy         hashVersion = 0
	hashVersionHalfMD4        hashVersion = 1
	hashVersionTea            hashVersion = 2
	hashVersionLegacyUnsigned hashVersion = 3
	hashVersionHalfMD4Unsigned hashVersion = 4
	hashVersionTeaUnsigned    hashVersion = 5
	hashVersionSIP            hashVersion = 6
)

type checksumType uint8

const checkSumTypeCRC32c checksumType = 1

type filesystemState uint16

const (
	fsStateCleanlyUnmounted filesystemState = 0x0001
	fsStateErrors           filesystemState = 0x0002
)

type errorBehaviour uint16

const (
	errorsContinue  errorBehaviour = 1
	errorsReadOnly  errorBehaviour = 2
	errorsPanic     errorBehaviour = 3
)

type miscFlags struct {
	signedDirectoryHash   bool
	unsignedDirectoryHash bool
	developmentTest       bool
}

type defaultMountOptions struct {
	printDebugInfo            bool
	newFilesGroupID           bool
	userspaceExtendedAttributes bool
	posixACLs                 bool
	usesUID16                bool
	journalDataMode           uint8
	disableWriteFlush         bool
	trackFileTasksInMemory    bool
	disableDeleteTimeRecording bool
	enableClusteredAllocation bool
	discardDeviceBlocks       bool
	disableDelayedAllocation  bool
}

func defaultMountOptionsFromUint32(v uint32) defaultMountOptions {
	return defaultMountOptions{
		printDebugInfo:              v&0x0001 != 0,
		newFilesGroupID:             v&0x0002 != 0,
		userspaceExtendedAttributes: v&0x0004 != 0,
		posixACLs:                   v&0x0008 != 0,
		usesUID16:                   v&0x0010 != 0,
		journalDataMode:             uint8((v & 0x0060) >> 5),
		disableWriteFlush:           v&0x0100 != 0,
		trackFileTasksInMemory:      v&0x0200 != 0,
		disableDeleteTimeRecording:  v&0x0400 != 0,
		enableClusteredAllocation:   v&0x0800 != 0,
		discardDeviceBlocks:         v&0x1000 != 0,
		disableDelayedAllocation:    v&0x2000 != 0,
	}
}

// journalBackup mirrors the first 15 block pointers and size of the
// journal inode, kept in the superblock so a reader can locate the
// journal without first decoding inode 8. ext4view never replays the
// journal; this struct is exposed for diagnostics only.
type journalBackup struct {
	iBlocks [15]uint32
	iSize   uint64
}

// superblock is the decoded form of the 1024-byte ext2/3/4 superblock
// that starts at byte offset 1024 of the volume.
type superblock struct {
	inodeCount      uint32
	blockCount      uint64
	reservedBlocks  uint64
	overheadBlocks  uint64
	freeBlocks      uint64
	freeInodes      uint32
	firstDataBlock  uint32
	blockSize       uint32
	clusterSize     uint32
	blocksPerGroup  uint32
	clustersPerGroup uint32
	inodesPerGroup  uint32
	mountTime       int64
	writeTime       int64
	mountCount      uint16
	mountsToFsck    uint16
	magic           uint16
	filesystemState filesystemState
	errorBehaviour  errorBehaviour
	minorRevision   uint16
	lastCheck       int64
	checkInterval   uint32
	creatorOS       uint32
	revisionLevel   uint32
	reservedBlocksDefaultUID uint16
	reservedBlocksDefaultGID uint16

	firstNonReservedInode uint32
	inodeSize             uint16
	blockGroupNumber      uint16

	compatFeatures   CompatFeatures
	incompatFeatures IncompatFeatures
	roCompatFeatures RoCompatFeatures

	uuid                  *uuid.UUID
	volumeLabel           string
	lastMountedDirectory  string

	algorithmUsageBitmap uint32

	preallocBlocks     uint8
	preallocDirBlocks  uint8
	reservedGDTBlocks  uint16

	journalUUID              *uuid.UUID
	journalInode             uint32
	journalDevice            uint32
	orphanedInodeInodeNumber uint32

	hashTreeSeed []uint32
	hashVersion  hashVersion

	groupDescriptorSize uint16

	defaultMountOpts defaultMountOptions
	miscFlags        miscFlags

	flexBlockGroupSize  uint32 // 2^log_groups_per_flex
	logGroupsPerFlex    uint8
	checksumType        checksumType
	checksum            uint32

	errorCount     uint32
	errorFirstTime int64
	errorFirstInode uint32
	errorFirstBlock int64
	errorFirstFunction string
	errorFirstLine uint32
	errorLastTime  int64
	errorLastInode uint32
	errorLastBlock int64
	errorLastFunction string
	errorLastLine  uint32

	mountOptionsText string

	usrQuotaInode uint32
	grpQuotaInode uint32
	overheadClusters uint32

	backupBlockGroups [2]uint32
	journalBackup     *journalBackup

	wtimeHi          uint8
	mtimeHi          uint8
	mkfsTimeHi       uint8
	lastcheckHi      uint8
	errorFirstTimeHi uint8
	errorLastTimeHi  uint8
	mkfsTime         int64

	inodeMinBytes   uint16
	inodeReserveBytes uint16
	checksumSeed    uint32

	totalKBWritten uint64

	snapshotInodeNumber uint32
	snapshotID          uint32
	snapshotReservedBlocks uint64
	snapshotListInode   uint32

	projectQuotaInode uint32
}

func (sb *superblock) inodesPerBlock() uint32 {
	if sb.inodeSize == 0 {
		return 0
	}
	return sb.blockSize / uint32(sb.inodeSize)
}

func (sb *superblock) is64Bit() bool {
	return sb.incompatFeatures.Is64Bit
}

func (sb *superblock) groupCount() uint64 {
	if sb.blocksPerGroup == 0 {
		return 0
	}
	n := (sb.blockCount - uint64(sb.firstDataBlock) + uint64(sb.blocksPerGroup) - 1) / uint64(sb.blocksPerGroup)
	return n
}

func superblockFromBytes(b []byte) (*superblock, error) {
	if len(b) < superblockSize {
		return nil, newErr(KindCorrupt, "parse-superblock", errShortBuffer)
	}
	le := binary.LittleEndian

	magic := le.Uint16(b[56:58])
	if magic != superblockMagic {
		return nil, newErr(KindInvalidSignature, "parse-superblock", errBadMagic)
	}

	sb := &superblock{}
	sb.inodeCount = le.Uint32(b[0:4])
	blocksLo := le.Uint32(b[4:8])
	reservedLo := le.Uint32(b[8:12])
	freeBlocksLo := le.Uint32(b[12:16])
	sb.freeInodes = le.Uint32(b[16:20])
	sb.firstDataBlock = le.Uint32(b[20:24])
	logBlockSize := le.Uint32(b[24:28])
	if logBlockSize > 16 {
		return nil, newErr(KindCorrupt, "parse-superblock", errLogBlockSizeTooLarge)
	}
	sb.blockSize = 1024 << logBlockSize
	logClusterSize := le.Uint32(b[28:32])
	sb.blocksPerGroup = le.Uint32(b[32:36])
	sb.clustersPerGroup = le.Uint32(b[36:40])
	sb.inodesPerGroup = le.Uint32(b[40:44])
	sb.mountTime = int64(le.Uint32(b[44:48]))
	sb.writeTime = int64(le.Uint32(b[48:52]))
	sb.mountCount = le.Uint16(b[52:54])
	sb.mountsToFsck = le.Uint16(b[54:56])
	sb.magic = magic
	sb.filesystemState = filesystemState(le.Uint16(b[58:60]))
	sb.errorBehaviour = errorBehaviour(le.Uint16(b[60:62]))
	sb.minorRevision = le.Uint16(b[62:64])
	sb.lastCheck = int64(le.Uint32(b[64:68]))
	sb.checkInterval = le.Uint32(b[68:72])
	sb.creatorOS = le.Uint32(b[72:76])
	sb.revisionLevel = le.Uint32(b[76:80])
	sb.reservedBlocksDefaultUID = le.Uint16(b[80:82])
	sb.reservedBlocksDefaultGID = le.Uint16(b[82:84])

	sb.firstNonReservedInode = le.Uint32(b[84:88])
	sb.inodeSize = le.Uint16(b[88:90])
	sb.blockGroupNumber = le.Uint16(b[90:92])

	sb.compatFeatures = compatFeaturesFromUint32(le.Uint32(b[92:96]))
	sb.incompatFeatures = incompatFeaturesFromUint32(le.Uint32(b[96:100]))
	sb.roCompatFeatures = roCompatFeaturesFromUint32(le.Uint32(b[100:104]))

	if u, err := uuid.FromBytes(b[104:120]); err == nil {
		sb.uuid = &u
	}
	sb.volumeLabel = cStringTrim(b[120:136])
	sb.lastMountedDirectory = cStringTrim(b[136:200])

	sb.algorithmUsageBitmap = le.Uint32(b[200:204])

	sb.preallocBlocks = b[204]
	sb.preallocDirBlocks = b[205]
	sb.reservedGDTBlocks = le.Uint16(b[206:208])

	if u, err := uuid.FromBytes(b[208:224]); err == nil {
		sb.journalUUID = &u
	}
	sb.journalInode = le.Uint32(b[224:228])
	sb.journalDevice = le.Uint32(b[228:232])
	sb.orphanedInodeInodeNumber = le.Uint32(b[232:236])

	sb.hashTreeSeed = []uint32{
		le.Uint32(b[236:240]), le.Uint32(b[240:244]),
		le.Uint32(b[244:248]), le.Uint32(b[248:252]),
	}
	sb.hashVersion = hashVersion(b[252])
	sb.groupDescriptorSize = le.Uint16(b[254:256])

	sb.defaultMountOpts = defaultMountOptionsFromUint32(le.Uint32(b[256:260]))
	// s_first_meta_bg at b[260:264] is unused by a read-only decoder:
	// it only matters for locating the GDT under meta_bg, a layout this
	// package does not need to reconstruct writer-side.
	sb.mkfsTime = int64(le.Uint32(b[264:268]))

	sb.journalBackup = &journalBackup{}
	for i := 0; i < 15; i++ {
		sb.journalBackup.iBlocks[i] = le.Uint32(b[268+i*4 : 272+i*4])
	}
	jnlSizeHi := uint64(le.Uint32(b[328:332]))
	jnlSizeLo := uint64(le.Uint32(b[332:336]))
	sb.journalBackup.iSize = jnlSizeHi<<32 | jnlSizeLo

	blocksHi := uint64(le.Uint32(b[336:340]))
	reservedHi := uint64(le.Uint32(b[340:344]))
	freeBlocksHi := uint64(le.Uint32(b[344:348]))
	sb.inodeMinBytes = le.Uint16(b[348:350])
	sb.inodeReserveBytes = le.Uint16(b[350:352])

	flags := le.Uint32(b[352:356])
	sb.miscFlags = miscFlags{
		signedDirectoryHash:   flags&0x0001 != 0,
		unsignedDirectoryHash: flags&0x0002 != 0,
		developmentTest:       flags&0x0004 != 0,
	}

	// raid_stride, mmp_update_interval, mmp_block, and raid_stripe_width
	// occupy b[356:372]; none of them bear on read-only navigation.

	sb.logGroupsPerFlex = b[372]
	sb.checksumType = checksumType(b[373])
	// reserved_pad at b[374:376]
	sb.flexBlockGroupSize = 1 << sb.logGroupsPerFlex

	sb.totalKBWritten = le.Uint64(b[376:384])

	sb.snapshotInodeNumber = le.Uint32(b[384:388])
	sb.snapshotID = le.Uint32(b[388:392])
	sb.snapshotReservedBlocks = le.Uint64(b[392:400])
	sb.snapshotListInode = le.Uint32(b[400:404])

	sb.errorCount = le.Uint32(b[404:408])
	sb.errorFirstTime = int64(le.Uint32(b[408:412]))
	sb.errorFirstInode = le.Uint32(b[412:416])
	sb.errorFirstBlock = int64(le.Uint64(b[416:424]))
	sb.errorFirstFunction = cStringTrim(b[424:456])
	sb.errorFirstLine = le.Uint32(b[456:460])
	sb.errorLastTime = int64(le.Uint32(b[460:464]))
	sb.errorLastInode = le.Uint32(b[464:468])
	sb.errorLastLine = le.Uint32(b[468:472])
	sb.errorLastBlock = int64(le.Uint64(b[472:480]))
	sb.errorLastFunction = cStringTrim(b[480:512])

	sb.mountOptionsText = cStringTrim(b[512:576])

	sb.usrQuotaInode = le.Uint32(b[576:580])
	sb.grpQuotaInode = le.Uint32(b[580:584])
	sb.overheadClusters = le.Uint32(b[584:588])
	sb.backupBlockGroups = [2]uint32{le.Uint32(b[588:592]), le.Uint32(b[592:596])}

	// encrypt_algos[4] and encrypt_pw_salt[16] occupy b[596:616]; this
	// decoder never decrypts content, so neither is read. lpf_ino at
	// b[616:620] names the well-known lost+found inode as a mkfs hint,
	// redundant with a path lookup and not read here.

	sb.projectQuotaInode = le.Uint32(b[620:624])
	sb.checksumSeed = le.Uint32(b[624:628])

	sb.wtimeHi = b[628]
	sb.mtimeHi = b[629]
	sb.mkfsTimeHi = b[630]
	sb.lastcheckHi = b[631]
	sb.errorFirstTimeHi = b[632]
	sb.errorLastTimeHi = b[633]
	// first/last_error_errcode at b[634:636], encoding/encoding_flags at
	// b[636:640], and orphan_file_inum at b[640:644] round out the
	// documented fields; b[644:1020] is reserved padding.

	sb.blockCount = blocksLo | blocksHi<<32
	sb.reservedBlocks = uint64(reservedLo) | reservedHi<<32
	sb.freeBlocks = uint64(freeBlocksLo) | freeBlocksHi<<32

	sb.writeTime |= int64(sb.wtimeHi) << 32
	sb.mountTime |= int64(sb.mtimeHi) << 32
	sb.mkfsTime |= int64(sb.mkfsTimeHi) << 32
	sb.lastCheck |= int64(sb.lastcheckHi) << 32
	sb.errorFirstTime |= int64(sb.errorFirstTimeHi) << 32
	sb.errorLastTime |= int64(sb.errorLastTimeHi) << 32

	sb.checksum = le.Uint32(b[1020:1024])

	if sb.revisionLevel > 1 {
		return nil, newErr(KindCorrupt, "parse-superblock", errBadRevisionLevel)
	}

	if sb.revisionLevel == 0 {
		// EXT2_GOOD_OLD_REV: none of the dynamic-revision fields exist
		// on disk (inode_size, first_inode, feature words, uuid, label
		// all read as zero above); the format fixes them instead.
		sb.inodeSize = ext2InodeSize
		sb.firstNonReservedInode = 11
	}

	if sb.inodeSize < minInodeSize {
		return nil, newErr(KindCorrupt, "parse-superblock", errInodeSizeTooSmall)
	}
	if unrec := sb.incompatFeatures.Unrecognized(); unrec != 0 {
		return nil, newErr(KindUnsupportedFeature, "parse-superblock", errUnsupportedIncompat)
	}
	if name, rejected := sb.incompatFeatures.Rejected(); rejected {
		return nil, newErr(KindUnsupportedFeature, "parse-superblock", fmt.Errorf("%w: %s", errRejectedIncompat, name))
	}
	if sb.roCompatFeatures.BigAlloc {
		return nil, newErr(KindUnsupportedFeature, "parse-superblock", fmt.Errorf("%w: bigalloc", errRejectedIncompat))
	}

	return sb, nil
}

// checksumValid reports whether the superblock's trailing CRC32c
// matches its own bytes. Per the read-only contract this is never
// treated as fatal; callers decide what to do with a mismatch.
func (sb *superblock) checksumValid(raw []byte) bool {
	if !sb.roCompatFeatures.MetadataChecksum || len(raw) < superblockSize {
		return true
	}
	computed := crc32cOf(0, raw[:1020])
	return computed == sb.checksum
}

// cStringTrim trims a fixed-width NUL-padded byte field to its
// string content, matching the convention ext2/3/4 uses for volume
// labels, mount directories, and error function names.
func cStringTrim(b []byte) string {
	i := 0
	for i < len(b) && b[i] != 0 {
		i++
	}
	return string(b[:i])
}

// calculateBackupSuperblockGroups returns the block group indices that
// carry a backup superblock and GDT copy, following the sparse_super
// convention: group 0, group 1, and groups that are a power of 3, 5,
// or 7 when sparse_super is set; every group otherwise.
func calculateBackupSuperblockGroups(sb *superblock, groupCount int64) []int64 {
	if !sb.roCompatFeatures.SparseSuper {
		groups := make([]int64, groupCount)
		for i := range groups {
			groups[i] = int64(i)
		}
		return groups
	}
	var groups []int64
	for g := int64(0); g < groupCount; g++ {
		if g == 0 || g == 1 {
			groups = append(groups, g)
			continue
		}
		if isPowerOf(g, 3) || isPowerOf(g, 5) || isPowerOf(g, 7) {
			groups = append(groups, g)
		}
	}
	return groups
}

func isPowerOf(n, base int64) bool {
	if n < 1 {
		return false
	}
	for n%base == 0 {
		n /= base
	}
	return n == 1
}
