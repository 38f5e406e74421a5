package ext4

import "encoding/binary"

const (
	xattrMagic           uint32 = 0xEA020000
	xattrBlockHeaderSize        = 32
	xattrEntrySize              = 16
)

// xattrNamePrefixes maps the e_name_index byte to the namespace
// prefix ext4 elides from the stored name, per the kernel's
// fs/ext4/xattr.h name index table.
var xattrNamePrefixes = map[uint8]string{
	1: "user.",
	2: "system.posix_acl_access",
	3: "system.posix_acl_default",
	4: "trusted.",
	6: "security.",
	7: "system.",
	8: "system.richacl",
}

// rawXattr is one decoded extended attribute entry, before the
// public ExtendedAttribute wrapper adds provenance (inline vs block).
// valueInode is nonzero when EA_INODE stores the value out-of-line in
// a dedicated inode (e_value_inum reuses the field historically named
// e_value_block, which is otherwise always zero); value is nil in
// that case until the caller resolves it via that inode's data.
type rawXattr struct {
	name       string
	value      []byte
	valueInode uint32
	valueSize  uint32
}

// parseInodeXattrs decodes the inline extended attribute entries that
// follow an inode's fixed and extra fields, when i_extra_isize leaves
// room and the area begins with the xattr magic.
func parseInodeXattrs(b []byte) ([]rawXattr, error) {
	if len(b) < 4 {
		return nil, nil
	}
	if binary.LittleEndian.Uint32(b[0:4]) != xattrMagic {
		return nil, nil
	}
	// in-inode entries follow immediately after the magic; value
	// offsets are relative to the start of this area (the magic), not
	// to the start of the entry table.
	return parseXattrEntries(b, 4, b)
}

// parseBlockXattrs decodes a dedicated external attribute block: a
// 32-byte header (magic, refcount, block count used for extent
// metadata, hash, checksum, reserved) followed by the entry table,
// with values stored back-to-front from the end of the block.
func parseBlockXattrs(b []byte) ([]rawXattr, bool, error) {
	if len(b) < xattrBlockHeaderSize {
		return nil, false, newErr(KindCorrupt, "parse-xattr-block", errShortBuffer)
	}
	if binary.LittleEndian.Uint32(b[0:4]) != xattrMagic {
		return nil, false, newErr(KindCorrupt, "parse-xattr-block", errBadXattrMagic)
	}
	storedChecksum := binary.LittleEndian.Uint32(b[16:20])

	entries, err := parseXattrEntries(b, xattrBlockHeaderSize, b)
	if err != nil {
		return nil, false, err
	}

	zeroed := make([]byte, len(b))
	copy(zeroed, b)
	zeroed[16], zeroed[17], zeroed[18], zeroed[19] = 0, 0, 0, 0
	computed := crc32cOf(0, zeroed)
	checksumValid := storedChecksum == 0 || computed == storedChecksum

	return entries, checksumValid, nil
}

// parseXattrEntries walks a table of fixed 16-byte xattr_entry
// records starting at entryStart within b, stopping at the first
// all-zero (terminator) entry. valueBase is the byte slice against
// which e_value_offs is resolved (the in-inode area for inline
// attributes, the whole block for external ones).
func parseXattrEntries(b []byte, entryStart int, valueBase []byte) ([]rawXattr, error) {
	var entries []rawXattr
	pos := entryStart

	for pos+xattrEntrySize <= len(b) {
		nameLen := b[pos]
		nameIndex := b[pos+1]
		if nameLen == 0 && nameIndex == 0 {
			break
		}
		valueOffs := binary.LittleEndian.Uint16(b[pos+2 : pos+4])
		valueBlock := binary.LittleEndian.Uint32(b[pos+4 : pos+8])
		valueSize := binary.LittleEndian.Uint32(b[pos+8 : pos+12])

		nameStart := pos + xattrEntrySize
		nameEnd := nameStart + int(nameLen)
		if nameEnd > len(b) {
			return entries, newErr(KindCorrupt, "parse-xattr-entry", errXattrNameOverrun)
		}
		name := xattrNamePrefixes[nameIndex] + string(b[nameStart:nameEnd])

		var value []byte
		if valueBlock == 0 {
			start := int(valueOffs)
			end := start + int(valueSize)
			if start >= 0 && end <= len(valueBase) && end >= start {
				value = append([]byte(nil), valueBase[start:end]...)
			}
		}

		entries = append(entries, rawXattr{name: name, value: value, valueInode: valueBlock, valueSize: valueSize})

		// entries are padded to a 4-byte boundary
		entryLen := xattrEntrySize + int(nameLen)
		entryLen = (entryLen + 3) &^ 3
		pos += entryLen
	}

	return entries, nil
}

// lookupInodeXattr returns the value of the single named extended
// attribute an inode carries, checked inline first and then in its
// dedicated attribute block, or ok=false if neither has it. Used by
// the inline-data file reader to find the "system.data" xattr that
// holds content past the 60 bytes stored directly in i_block.
func lookupInodeXattr(v *Volume, ino *inode, name string) (value []byte, ok bool, err error) {
	find := func(raws []rawXattr) ([]byte, bool, error) {
		for _, r := range raws {
			if r.name != name {
				continue
			}
			val, err := v.resolveXattrValue(r)
			return val, true, err
		}
		return nil, false, nil
	}

	if ino.inlineXattrArea != nil {
		raws, err := parseInodeXattrs(ino.inlineXattrArea)
		if err != nil {
			return nil, false, err
		}
		if value, ok, err = find(raws); ok || err != nil {
			return value, ok, err
		}
	}

	if ino.extendedAttributeBlock != 0 {
		b, err := v.readBlock(ino.extendedAttributeBlock)
		if err != nil {
			return nil, false, err
		}
		raws, _, err := parseBlockXattrs(b)
		if err != nil {
			return nil, false, err
		}
		return find(raws)
	}

	return nil, false, nil
}
