package ext4

import "strings"

// CompatFeatures are features that a reader ignorant of them can
// safely ignore: presence only changes where optional metadata lives.
type CompatFeatures struct {
	DirPreallocate   bool
	HasJournal       bool
	ExtendedAttrs    bool
	ResizeInode      bool
	DirIndex         bool
	SparseSuper2     bool
}

func compatFeaturesFromUint32(v uint32) CompatFeatures {
	return CompatFeatures{
		DirPreallocate: v&0x0001 != 0,
		HasJournal:     v&0x0004 != 0,
		ExtendedAttrs:  v&0x0008 != 0,
		ResizeInode:    v&0x0010 != 0,
		// 0x20 is DIR_INDEX. A widely copied early patch numbered it
		// 0x0010 and collided with RESIZE_INO; the upstream kernel
		// and e2fsprogs have used 0x0020 since, and that is what this
		// decoder recognizes.
		DirIndex:     v&0x0020 != 0,
		SparseSuper2: v&0x0200 != 0,
	}
}

func (f CompatFeatures) String() string {
	var names []string
	if f.DirPreallocate {
		names = append(names, "dir_prealloc")
	}
	if f.HasJournal {
		names = append(names, "has_journal")
	}
	if f.ExtendedAttrs {
		names = append(names, "ext_attr")
	}
	if f.ResizeInode {
		names = append(names, "resize_inode")
	}
	if f.DirIndex {
		names = append(names, "dir_index")
	}
	if f.SparseSuper2 {
		names = append(names, "sparse_super2")
	}
	return strings.Join(names, ",")
}

// IncompatFeatures are features a reader must understand or refuse to
// mount; unrecognized bits here are what makes Open reject a volume.
type IncompatFeatures struct {
	Compression    bool
	FileType       bool
	RecoverJournal bool
	JournalDevice  bool
	MetaBlockGroup bool
	Extents        bool
	Is64Bit        bool
	MultipleMountProtection bool
	FlexBlockGroups bool
	ExtendedAttrsInInode    bool
	DirData        bool
	MetadataChecksumSeed    bool
	LargeDir       bool
	InlineData     bool
	Encrypt        bool

	// unrecognized carries any bits this decoder does not know about,
	// so Open can report exactly which bit tripped rejection.
	unrecognized uint32
}

const incompatRecognizedMask = 0x0001 | 0x0002 | 0x0004 | 0x0008 | 0x0010 |
	0x0040 | 0x0080 | 0x0100 | 0x0200 | 0x0400 | 0x1000 | 0x2000 |
	0x4000 | 0x8000 | 0x10000

func incompatFeaturesFromUint32(v uint32) IncompatFeatures {
	return IncompatFeatures{
		Compression:             v&0x0001 != 0,
		FileType:                v&0x0002 != 0,
		RecoverJournal:          v&0x0004 != 0,
		JournalDevice:           v&0x0008 != 0,
		MetaBlockGroup:          v&0x0010 != 0,
		Extents:                 v&0x0040 != 0,
		Is64Bit:                 v&0x0080 != 0,
		MultipleMountProtection: v&0x0100 != 0,
		FlexBlockGroups:         v&0x0200 != 0,
		ExtendedAttrsInInode:    v&0x0400 != 0,
		DirData:                 v&0x1000 != 0,
		MetadataChecksumSeed:    v&0x2000 != 0,
		LargeDir:                v&0x4000 != 0,
		InlineData:              v&0x8000 != 0,
		Encrypt:                 v&0x10000 != 0,
		unrecognized:            v &^ incompatRecognizedMask,
	}
}

// Unrecognized reports any incompat bits outside this decoder's
// recognized set, and the bit values themselves for diagnostics.
func (f IncompatFeatures) Unrecognized() uint32 { return f.unrecognized }

// Rejected reports whether this feature set carries a bit this
// decoder recognizes by name but refuses to read regardless: on-disk
// compression (no read-only decompression path), a journal-device
// superblock (not a filesystem to navigate), or DIRDATA (a patch set
// never merged upstream, with no stable on-disk contract to decode).
func (f IncompatFeatures) Rejected() (name string, ok bool) {
	switch {
	case f.Compression:
		return rejectedIncompatNames[0x0001], true
	case f.JournalDevice:
		return rejectedIncompatNames[0x0008], true
	case f.DirData:
		return rejectedIncompatNames[0x1000], true
	default:
		return "", false
	}
}

func (f IncompatFeatures) String() string {
	var names []string
	if f.Compression {
		names = append(names, "compression")
	}
	if f.FileType {
		names = append(names, "filetype")
	}
	if f.RecoverJournal {
		names = append(names, "recover")
	}
	if f.JournalDevice {
		names = append(names, "journal_dev")
	}
	if f.MetaBlockGroup {
		names = append(names, "meta_bg")
	}
	if f.Extents {
		names = append(names, "extents")
	}
	if f.Is64Bit {
		names = append(names, "64bit")
	}
	if f.MultipleMountProtection {
		names = append(names, "mmp")
	}
	if f.FlexBlockGroups {
		names = append(names, "flex_bg")
	}
	if f.ExtendedAttrsInInode {
		names = append(names, "ea_inode")
	}
	if f.DirData {
		names = append(names, "dirdata")
	}
	if f.MetadataChecksumSeed {
		names = append(names, "csum_seed")
	}
	if f.LargeDir {
		names = append(names, "largedir")
	}
	if f.InlineData {
		names = append(names, "inline_data")
	}
	if f.Encrypt {
		names = append(names, "encrypt")
	}
	return strings.Join(names, ",")
}

// RoCompatFeatures are read-only-compat features: a writer ignorant of
// them must mount read-only. ext4view is read-only by construction, so
// these bits only affect what it reports, with one exception: Open
// refuses a volume that has BIGALLOC set.
type RoCompatFeatures struct {
	SparseSuper     bool
	LargeFile       bool
	BTreeDir        bool
	HugeFile        bool
	GDTChecksum     bool
	DirNLink        bool
	ExtraIsize      bool
	Quota           bool
	BigAlloc        bool
	MetadataChecksum bool
	Replica         bool
	ReadOnly        bool
	ProjectQuota    bool
	Verity          bool
}

func roCompatFeaturesFromUint32(v uint32) RoCompatFeatures {
	return RoCompatFeatures{
		SparseSuper:      v&0x0001 != 0,
		LargeFile:        v&0x0002 != 0,
		BTreeDir:         v&0x0004 != 0,
		HugeFile:         v&0x0008 != 0,
		GDTChecksum:      v&0x0010 != 0,
		DirNLink:         v&0x0020 != 0,
		ExtraIsize:       v&0x0040 != 0,
		Quota:            v&0x0100 != 0,
		BigAlloc:         v&0x0200 != 0,
		MetadataChecksum: v&0x0400 != 0,
		Replica:          v&0x0800 != 0,
		ReadOnly:         v&0x1000 != 0,
		ProjectQuota:     v&0x2000 != 0,
		Verity:           v&0x8000 != 0,
	}
}

func (f RoCompatFeatures) String() string {
	var names []string
	if f.SparseSuper {
		names = append(names, "sparse_super")
	}
	if f.LargeFile {
		names = append(names, "large_file")
	}
	if f.BTreeDir {
		names = append(names, "btree_dir")
	}
	if f.HugeFile {
		names = append(names, "huge_file")
	}
	if f.GDTChecksum {
		names = append(names, "uninit_bg")
	}
	if f.DirNLink {
		names = append(names, "dir_nlink")
	}
	if f.ExtraIsize {
		names = append(names, "extra_isize")
	}
	if f.Quota {
		names = append(names, "quota")
	}
	if f.BigAlloc {
		names = append(names, "bigalloc")
	}
	if f.MetadataChecksum {
		names = append(names, "metadata_csum")
	}
	if f.Replica {
		names = append(names, "replica")
	}
	if f.ReadOnly {
		names = append(names, "readonly")
	}
	if f.ProjectQuota {
		names = append(names, "project")
	}
	if f.Verity {
		names = append(names, "verity")
	}
	return strings.Join(names, ",")
}

// rejectedIncompatNames names incompat features this decoder
// recognizes well enough to report by name, but deliberately refuses
// to read: none admit a sensible read-only interpretation without the
// write-side machinery this package omits.
var rejectedIncompatNames = map[uint32]string{
	0x0001: "compression",
	0x0008: "journal_dev",
	0x1000: "dirdata",
}
