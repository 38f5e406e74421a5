package ext4

import (
	"encoding/binary"
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
)

// newSuperblockFixture returns a 1024-byte ext4 superblock with a
// small but fully populated dynamic-revision layout: enough feature
// bits set to exercise UUID, label, journal backup, and the 64-bit
// block-count extension, and every "this is definitely not the
// neighboring field" value distinct so an offset mistake fails loudly.
func newSuperblockFixture(t *testing.T) []byte {
	t.Helper()
	b := make([]byte, superblockSize)
	le := binary.LittleEndian

	le.PutUint32(b[0:4], 1000)          // inodes_count
	le.PutUint32(b[4:8], 2000)          // blocks_count_lo
	le.PutUint32(b[8:12], 100)          // r_blocks_count_lo
	le.PutUint32(b[12:16], 1500)        // free_blocks_count_lo
	le.PutUint32(b[16:20], 900)         // free_inodes_count
	le.PutUint32(b[20:24], 1)           // first_data_block
	le.PutUint32(b[24:28], 2)           // log_block_size -> 4096
	le.PutUint32(b[28:32], 2)           // log_cluster_size
	le.PutUint32(b[32:36], 8192)        // blocks_per_group
	le.PutUint32(b[36:40], 8192)        // clusters_per_group
	le.PutUint32(b[40:44], 256)         // inodes_per_group
	le.PutUint32(b[44:48], 1700000001)  // mtime
	le.PutUint32(b[48:52], 1700000002)  // wtime
	le.PutUint16(b[52:54], 3)           // mnt_count
	le.PutUint16(b[54:56], 20)          // max_mnt_count
	le.PutUint16(b[56:58], superblockMagic)
	le.PutUint16(b[58:60], uint16(fsStateCleanlyUnmounted))
	le.PutUint16(b[60:62], uint16(errorsContinue))
	le.PutUint16(b[62:64], 0) // minor_rev_level
	le.PutUint32(b[64:68], 1700000003) // lastcheck
	le.PutUint32(b[68:72], 15552000)   // checkinterval (180 days)
	le.PutUint32(b[72:76], 0)          // creator_os = linux
	le.PutUint32(b[76:80], 1)          // rev_level = dynamic
	le.PutUint16(b[80:82], 0)          // def_resuid
	le.PutUint16(b[82:84], 0)          // def_resgid

	le.PutUint32(b[84:88], 11) // first_ino
	le.PutUint16(b[88:90], 256) // inode_size
	le.PutUint16(b[90:92], 0)   // block_group_nr

	le.PutUint32(b[92:96], 0x000C)  // feature_compat: HAS_JOURNAL|EXT_ATTR
	le.PutUint32(b[96:100], 0x0042) // feature_incompat: FILETYPE|EXTENTS
	le.PutUint32(b[100:104], 0x0002) // feature_ro_compat: LARGE_FILE

	copy(b[104:120], []byte{
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	})
	copy(b[120:136], []byte("myvolume"))
	copy(b[136:200], []byte("/mnt/data"))

	le.PutUint32(b[200:204], 0) // algorithm_usage_bitmap
	b[204] = 4                  // prealloc_blocks
	b[205] = 2                  // prealloc_dir_blocks
	le.PutUint16(b[206:208], 8) // reserved_gdt_blocks

	copy(b[208:224], []byte{
		0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18,
		0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f, 0x20,
	})
	le.PutUint32(b[224:228], 8) // journal_inum
	le.PutUint32(b[228:232], 0) // journal_dev
	le.PutUint32(b[232:236], 0) // last_orphan

	le.PutUint32(b[236:240], 111)
	le.PutUint32(b[240:244], 222)
	le.PutUint32(b[244:248], 333)
	le.PutUint32(b[248:252], 444)
	b[252] = 1 // def_hash_version = half_md4
	le.PutUint16(b[254:256], 32) // desc_size

	le.PutUint32(b[256:260], 0x000C) // default_mount_opts
	le.PutUint32(b[260:264], 0)      // first_meta_bg (unread)
	le.PutUint32(b[264:268], 1600000000) // mkfs_time

	for i := 0; i < 15; i++ {
		le.PutUint32(b[268+i*4:272+i*4], uint32(1000+i))
	}
	le.PutUint32(b[328:332], 0) // jnl size hi
	le.PutUint32(b[332:336], 5242880) // jnl size lo

	le.PutUint32(b[336:340], 0) // blocks_count_hi
	le.PutUint32(b[340:344], 0) // r_blocks_count_hi
	le.PutUint32(b[344:348], 0) // free_blocks_count_hi
	le.PutUint16(b[348:350], 32) // min_extra_isize
	le.PutUint16(b[350:352], 32) // want_extra_isize
	le.PutUint32(b[352:356], 0x0003) // flags: signed|unsigned dirhash

	le.PutUint16(b[356:358], 0) // raid_stride
	le.PutUint16(b[358:360], 0) // mmp_interval
	le.PutUint64(b[360:368], 0) // mmp_block
	le.PutUint32(b[368:372], 0) // raid_stripe_width

	b[372] = 2 // log_groups_per_flex
	b[373] = 1 // checksum_type = crc32c
	le.PutUint64(b[376:384], 123456789) // kbytes_written

	le.PutUint32(b[384:388], 0) // snapshot_inum
	le.PutUint32(b[388:392], 0) // snapshot_id
	le.PutUint64(b[392:400], 0) // snapshot_r_blocks_count
	le.PutUint32(b[400:404], 0) // snapshot_list

	le.PutUint32(b[404:408], 7) // error_count
	le.PutUint32(b[408:412], 1650000000) // first_error_time
	le.PutUint32(b[412:416], 42) // first_error_ino
	le.PutUint64(b[416:424], 99) // first_error_block
	copy(b[424:456], []byte("ext4_lookup"))
	le.PutUint32(b[456:460], 123) // first_error_line
	le.PutUint32(b[460:464], 1650000500) // last_error_time
	le.PutUint32(b[464:468], 43) // last_error_ino
	le.PutUint32(b[468:472], 456) // last_error_line
	le.PutUint64(b[472:480], 100) // last_error_block
	copy(b[480:512], []byte("ext4_readdir"))

	copy(b[512:576], []byte("errors=remount-ro"))

	le.PutUint32(b[576:580], 3)   // usr_quota_inum
	le.PutUint32(b[580:584], 4)   // grp_quota_inum
	le.PutUint32(b[584:588], 10)  // overhead_clusters
	le.PutUint32(b[588:592], 1)   // backup_bgs[0]
	le.PutUint32(b[592:596], 127) // backup_bgs[1]

	le.PutUint32(b[620:624], 11)       // prj_quota_inum
	le.PutUint32(b[624:628], 0xCAFEBABE) // checksum_seed

	b[628] = 1 // wtime_hi
	b[629] = 2 // mtime_hi
	b[630] = 0 // mkfs_time_hi
	b[631] = 0 // lastcheck_hi
	b[632] = 0 // first_error_time_hi
	b[633] = 0 // last_error_time_hi

	le.PutUint32(b[1020:1024], 0) // checksum (metadata_csum off in this fixture)

	return b
}

// TestSuperblockFromBytesIsDeterministic decodes the same bytes twice
// and field-by-field diffs the resulting structs with deep.Equal,
// catching any stray nondeterminism (e.g. map-iteration-order leaking
// into a slice) that a spot-check of a few fields would miss.
func TestSuperblockFromBytesIsDeterministic(t *testing.T) {
	b := newSuperblockFixture(t)
	first, err := superblockFromBytes(b)
	require.NoError(t, err)
	second, err := superblockFromBytes(b)
	require.NoError(t, err)

	deep.CompareUnexportedFields = true
	if diff := deep.Equal(*first, *second); diff != nil {
		t.Fatalf("repeated decode of identical bytes diverged: %v", diff)
	}
}

func TestSuperblockFromBytesFieldOffsets(t *testing.T) {
	b := newSuperblockFixture(t)
	sb, err := superblockFromBytes(b)
	require.NoError(t, err)

	require.Equal(t, uint32(1000), sb.inodeCount)
	require.Equal(t, uint64(2000), sb.blockCount)
	require.Equal(t, uint32(4096), sb.blockSize)
	require.Equal(t, uint16(256), sb.inodeSize)
	require.Equal(t, "myvolume", sb.volumeLabel)
	require.Equal(t, "/mnt/data", sb.lastMountedDirectory)

	require.NotNil(t, sb.uuid)
	require.NotNil(t, sb.journalUUID)
	require.Equal(t, uint32(8), sb.journalInode)

	require.Equal(t, []uint32{111, 222, 333, 444}, sb.hashTreeSeed)
	require.Equal(t, hashVersion(1), sb.hashVersion)
	require.Equal(t, uint16(32), sb.groupDescriptorSize)

	// this is the field the old offsets got wrong: mkfs_time sits
	// right after first_meta_bg, not where kbytes_written used to be
	// read from.
	require.Equal(t, int64(1600000000), sb.mkfsTime)

	for i := 0; i < 15; i++ {
		require.Equal(t, uint32(1000+i), sb.journalBackup.iBlocks[i])
	}
	require.Equal(t, uint64(5242880), sb.journalBackup.iSize)

	require.Equal(t, uint16(32), sb.inodeMinBytes)
	require.Equal(t, uint16(32), sb.inodeReserveBytes)
	require.True(t, sb.miscFlags.signedDirectoryHash)
	require.True(t, sb.miscFlags.unsignedDirectoryHash)

	require.Equal(t, uint8(2), sb.logGroupsPerFlex)
	require.Equal(t, uint32(4), sb.flexBlockGroupSize)
	require.Equal(t, checksumType(1), sb.checksumType)
	require.Equal(t, uint64(123456789), sb.totalKBWritten)

	require.Equal(t, uint32(7), sb.errorCount)
	require.Equal(t, uint32(42), sb.errorFirstInode)
	require.Equal(t, int64(99), sb.errorFirstBlock)
	require.Equal(t, "ext4_lookup", sb.errorFirstFunction)
	require.Equal(t, uint32(43), sb.errorLastInode)
	require.Equal(t, int64(100), sb.errorLastBlock)
	require.Equal(t, "ext4_readdir", sb.errorLastFunction)

	require.Equal(t, "errors=remount-ro", sb.mountOptionsText)

	// the field this decoder used to assign twice at conflicting
	// offsets: only one value must win, and it must be the real one.
	require.Equal(t, uint32(3), sb.usrQuotaInode)
	require.Equal(t, uint32(4), sb.grpQuotaInode)
	require.Equal(t, uint32(10), sb.overheadClusters)
	require.Equal(t, [2]uint32{1, 127}, sb.backupBlockGroups)

	require.Equal(t, uint32(11), sb.projectQuotaInode)
	require.Equal(t, uint32(0xCAFEBABE), sb.checksumSeed)

	// 40-bit timestamp extension: hi byte folded into the low 32 bits.
	require.Equal(t, int64(1700000002)|int64(1)<<32, sb.writeTime)
	require.Equal(t, int64(1700000001)|int64(2)<<32, sb.mountTime)
}

func TestSuperblockFromBytesRejectsShortBuffer(t *testing.T) {
	_, err := superblockFromBytes(make([]byte, 100))
	require.Error(t, err)
	require.True(t, IsKind(err, KindCorrupt))
}

func TestSuperblockFromBytesRejectsBadMagic(t *testing.T) {
	b := newSuperblockFixture(t)
	binary.LittleEndian.PutUint16(b[56:58], 0x1234)
	_, err := superblockFromBytes(b)
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidSignature))
}

func TestSuperblockFromBytesGoodOldRevDefaults(t *testing.T) {
	b := newSuperblockFixture(t)
	binary.LittleEndian.PutUint32(b[76:80], 0) // rev_level = 0
	binary.LittleEndian.PutUint16(b[88:90], 0) // inode_size garbage on a rev-0 image
	binary.LittleEndian.PutUint32(b[84:88], 0) // first_ino garbage on a rev-0 image

	sb, err := superblockFromBytes(b)
	require.NoError(t, err)
	require.Equal(t, uint16(ext2InodeSize), sb.inodeSize)
	require.Equal(t, uint32(11), sb.firstNonReservedInode)
}

func TestSuperblockFromBytesRejectsUnrecognizedIncompat(t *testing.T) {
	b := newSuperblockFixture(t)
	binary.LittleEndian.PutUint32(b[96:100], 1<<30) // a bit nobody defines
	_, err := superblockFromBytes(b)
	require.Error(t, err)
	require.True(t, IsKind(err, KindUnsupportedFeature))
}

func TestSuperblockFromBytesRejectsCompression(t *testing.T) {
	b := newSuperblockFixture(t)
	binary.LittleEndian.PutUint32(b[96:100], 0x0042|0x0001) // extents|filetype|compression
	_, err := superblockFromBytes(b)
	require.Error(t, err)
	require.True(t, IsKind(err, KindUnsupportedFeature))
}

func TestSuperblockFromBytesRejectsBigAlloc(t *testing.T) {
	b := newSuperblockFixture(t)
	binary.LittleEndian.PutUint32(b[100:104], 0x0002|0x0200) // large_file|bigalloc
	_, err := superblockFromBytes(b)
	require.Error(t, err)
	require.True(t, IsKind(err, KindUnsupportedFeature))
}

func TestSuperblockPublicAccessors(t *testing.T) {
	b := newSuperblockFixture(t)
	sb, err := superblockFromBytes(b)
	require.NoError(t, err)

	s := Superblock{sb: sb}
	require.Equal(t, uint32(1000), s.InodeCount())
	require.Equal(t, uint64(2000), s.BlockCount())
	require.Equal(t, uint32(4096), s.BlockSize())
	require.Equal(t, "myvolume", s.VolumeLabel())
	require.Equal(t, uint32(0xCAFEBABE), s.ChecksumSeed())
	require.Equal(t, uint64(123456789), s.LifetimeKBWritten())
	require.Equal(t, []uint32{111, 222, 333, 444}, s.HashSeed())
	require.Equal(t, uint8(1), s.HashVersion())

	blocks, size := s.JournalBackupBlocks()
	require.Equal(t, uint32(1000), blocks[0])
	require.Equal(t, uint64(5242880), size)

	cleanly, hasErrors := s.State()
	require.True(t, cleanly)
	require.False(t, hasErrors)

	opts := s.DefaultMountOptions()
	require.True(t, opts.UserspaceExtendedAttributes)
}

func TestSuperblockFeatureAccessors(t *testing.T) {
	b := newSuperblockFixture(t)
	sb, err := superblockFromBytes(b)
	require.NoError(t, err)

	s := Superblock{sb: sb}
	require.True(t, s.CompatFeatures().HasJournal)
	require.True(t, s.CompatFeatures().ExtendedAttrs)
	require.True(t, s.IncompatFeatures().FileType)
	require.True(t, s.IncompatFeatures().Extents)
	require.True(t, s.RoCompatFeatures().LargeFile)

	ts := s.LastMountTime()
	require.Equal(t, int64(1700000001)|int64(2)<<32, ts.Unix())
}
