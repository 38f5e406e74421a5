package ext4

import (
	"time"

	"github.com/google/uuid"
)

// Superblock exposes the decoded superblock's read-only fields: the
// same set debugfs prints for an ext2/3/4 image, grounded on what the
// teacher's superblock test fixtures assert. Every getter is a plain
// field read; none re-touches the backing storage.
type Superblock struct {
	sb *superblock
}

// Superblock returns the volume's decoded superblock.
func (v *Volume) Superblock() Superblock {
	return Superblock{sb: v.sb}
}

// InodeCount is the total number of inode slots, s_inodes_count.
func (s Superblock) InodeCount() uint32 { return s.sb.inodeCount }

// BlockCount is the total number of blocks, s_blocks_count.
func (s Superblock) BlockCount() uint64 { return s.sb.blockCount }

// FreeBlocks is the superblock's declared free block count. It is not
// cross-checked against the block bitmaps; use Volume.VerifyAllocation
// for that.
func (s Superblock) FreeBlocks() uint64 { return s.sb.freeBlocks }

// FreeInodes is the superblock's declared free inode count, with the
// same caveat as FreeBlocks.
func (s Superblock) FreeInodes() uint32 { return s.sb.freeInodes }

// BlockSize is the filesystem's block size in bytes.
func (s Superblock) BlockSize() uint32 { return s.sb.blockSize }

// InodeSize is the on-disk size of one inode record in bytes.
func (s Superblock) InodeSize() uint16 { return s.sb.inodeSize }

// InodesPerGroup is the number of inode slots in each block group.
func (s Superblock) InodesPerGroup() uint32 { return s.sb.inodesPerGroup }

// BlocksPerGroup is the number of blocks in each block group.
func (s Superblock) BlocksPerGroup() uint32 { return s.sb.blocksPerGroup }

// GroupCount is the number of block groups this volume is divided
// into, derived from BlockCount and BlocksPerGroup.
func (s Superblock) GroupCount() uint64 { return s.sb.groupCount() }

// VolumeLabel is the filesystem's volume name, s_volume_name.
func (s Superblock) VolumeLabel() string { return s.sb.volumeLabel }

// LastMountedDirectory is the path this volume was last mounted at,
// s_last_mounted.
func (s Superblock) LastMountedDirectory() string { return s.sb.lastMountedDirectory }

// UUID is the volume's filesystem UUID, s_uuid. It is never nil; on a
// revision-0 volume it holds whatever those 16 bytes contain.
func (s Superblock) UUID() *uuid.UUID { return s.sb.uuid }

// JournalUUID is the external journal's UUID, s_journal_uuid. It is
// never nil; a volume without an external journal usually stores all
// zeros there.
func (s Superblock) JournalUUID() *uuid.UUID { return s.sb.journalUUID }

// JournalInode is the inode number of the internal journal file, or 0
// if the volume has no internal journal (ext2, or an external one).
func (s Superblock) JournalInode() uint32 { return s.sb.journalInode }

// MountCount is the number of times this volume has been mounted
// since its last full fsck, s_mnt_count.
func (s Superblock) MountCount() uint16 { return s.sb.mountCount }

// MountsToFsck is the mount count at which the kernel will force a
// full check, s_max_mnt_count.
func (s Superblock) MountsToFsck() uint16 { return s.sb.mountsToFsck }

// CheckInterval is the maximum time, in seconds, between full checks,
// s_checkinterval. Zero means no time-based check is scheduled.
func (s Superblock) CheckInterval() uint32 { return s.sb.checkInterval }

// LastMountTime is when this volume was last mounted, s_mtime
// extended with its high byte when present.
func (s Superblock) LastMountTime() time.Time { return time.Unix(s.sb.mountTime, 0).UTC() }

// LastWriteTime is when this volume was last written, s_wtime
// extended with its high byte when present.
func (s Superblock) LastWriteTime() time.Time { return time.Unix(s.sb.writeTime, 0).UTC() }

// LastCheckTime is when this volume was last fully checked, s_lastcheck.
func (s Superblock) LastCheckTime() time.Time { return time.Unix(s.sb.lastCheck, 0).UTC() }

// State reports whether the volume was cleanly unmounted.
func (s Superblock) State() (cleanlyUnmounted, hasErrors bool) {
	return s.sb.filesystemState&fsStateCleanlyUnmounted != 0,
		s.sb.filesystemState&fsStateErrors != 0
}

// MountOptions is the set of mount options stored in the superblock
// as defaults for this volume, s_default_mount_opts.
type MountOptions struct {
	PrintDebugInfo             bool
	NewFilesGroupID            bool
	UserspaceExtendedAttributes bool
	PosixACLs                  bool
	UsesUID16                  bool
	DisableWriteFlush          bool
	TrackFileTasksInMemory     bool
	DisableDeleteTimeRecording bool
	EnableClusteredAllocation  bool
	DiscardDeviceBlocks        bool
	DisableDelayedAllocation   bool
}

// DefaultMountOptions is the set of mount options stored in the
// superblock as defaults for this volume, s_default_mount_opts.
func (s Superblock) DefaultMountOptions() MountOptions {
	o := s.sb.defaultMountOpts
	return MountOptions{
		PrintDebugInfo:              o.printDebugInfo,
		NewFilesGroupID:             o.newFilesGroupID,
		UserspaceExtendedAttributes: o.userspaceExtendedAttributes,
		PosixACLs:                   o.posixACLs,
		UsesUID16:                   o.usesUID16,
		DisableWriteFlush:           o.disableWriteFlush,
		TrackFileTasksInMemory:      o.trackFileTasksInMemory,
		DisableDeleteTimeRecording:  o.disableDeleteTimeRecording,
		EnableClusteredAllocation:   o.enableClusteredAllocation,
		DiscardDeviceBlocks:         o.discardDeviceBlocks,
		DisableDelayedAllocation:    o.disableDelayedAllocation,
	}
}

// SignedDirectoryHash reports whether directory hashes on this volume
// were computed with a signed char hash input (s_flags bit 0).
func (s Superblock) SignedDirectoryHash() bool { return s.sb.miscFlags.signedDirectoryHash }

// UnsignedDirectoryHash reports the s_flags bit 1 counterpart of
// SignedDirectoryHash.
func (s Superblock) UnsignedDirectoryHash() bool { return s.sb.miscFlags.unsignedDirectoryHash }

// HashSeed is the 128-bit seed used by the htree directory hash,
// s_hash_seed.
func (s Superblock) HashSeed() []uint32 {
	out := make([]uint32, len(s.sb.hashTreeSeed))
	copy(out, s.sb.hashTreeSeed)
	return out
}

// HashVersion is the default htree hash algorithm new directories on
// this volume are indexed with, s_def_hash_version.
func (s Superblock) HashVersion() uint8 { return uint8(s.sb.hashVersion) }

// ChecksumSeed is the seed metadata_csum mixes into every CRC32c on
// this volume, s_checksum_seed. It is zero when the feature carries
// its own UUID-derived seed instead.
func (s Superblock) ChecksumSeed() uint32 { return s.sb.checksumSeed }

// ChecksumType identifies the checksum algorithm in use; 1 means
// CRC32c, the only value ext4 currently defines.
func (s Superblock) ChecksumType() uint8 { return uint8(s.sb.checksumType) }

// LifetimeKBWritten is the cumulative number of kibibytes written to
// this volume over its life, s_kbytes_written.
func (s Superblock) LifetimeKBWritten() uint64 { return s.sb.totalKBWritten }

// MkfsTime is when this volume was created, s_mkfs_time. It is zero
// if the volume predates that field.
func (s Superblock) MkfsTime() time.Time { return time.Unix(s.sb.mkfsTime, 0).UTC() }

// ErrorCount is the number of filesystem errors recorded since the
// last e2fsck, s_error_count.
func (s Superblock) ErrorCount() uint32 { return s.sb.errorCount }

// JournalBackupBlocks is the backup copy of the journal inode's first
// 15 block pointers and its size, kept in the superblock so a reader
// can locate journal data without decoding inode 8 first.
func (s Superblock) JournalBackupBlocks() ([15]uint32, uint64) {
	if s.sb.journalBackup == nil {
		return [15]uint32{}, 0
	}
	return s.sb.journalBackup.iBlocks, s.sb.journalBackup.iSize
}

// CompatFeatures is the set of backward-compatible optional features
// this volume carries.
func (s Superblock) CompatFeatures() CompatFeatures { return s.sb.compatFeatures }

// IncompatFeatures is the set of features a reader must understand to
// safely navigate this volume at all.
func (s Superblock) IncompatFeatures() IncompatFeatures { return s.sb.incompatFeatures }

// RoCompatFeatures is the set of features a reader must understand to
// safely mount this volume for writing. Read-only navigation does not
// depend on them, except that Open refuses a volume with BIGALLOC set.
func (s Superblock) RoCompatFeatures() RoCompatFeatures { return s.sb.roCompatFeatures }

// RevisionLevel is s_rev_level: 0 for EXT2_GOOD_OLD_REV, 1 for
// EXT2_DYNAMIC_REV (the only revision that carries feature bits, a
// UUID, or a volume label).
func (s Superblock) RevisionLevel() uint32 { return s.sb.revisionLevel }

// ChecksumValid recomputes the superblock's trailing CRC32c over raw,
// the superblock's on-disk bytes supplied by the caller, and reports
// whether it matches. A mismatch is never treated as fatal; callers
// decide what to do with it.
func (s Superblock) ChecksumValid(raw []byte) bool { return s.sb.checksumValid(raw) }
