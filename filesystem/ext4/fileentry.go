package ext4

import "io"

// FileEntry is a decoded inode together with the name it was reached
// under, giving callers a single handle for metadata, content, child
// enumeration, and extended attributes without separate lookups.
type FileEntry struct {
	volume *Volume
	inode  *inode
	name   string

	pos int64
}

// Name is the entry's name as seen from its parent directory. The
// volume root's Name is empty.
func (e *FileEntry) Name() string { return e.name }

// InodeNumber is this entry's inode number, stable for the life of
// the volume and suitable as a bodyfile-style identity key. Inode 2
// is always the volume root, by the same convention a bodyfile writer
// uses for its own self-entry.
func (e *FileEntry) InodeNumber() uint32 { return e.inode.number }

// Size is the inode's declared byte size for a regular file, or the
// number of bytes used by the directory's raw entry data for a
// directory.
func (e *FileEntry) Size() int64 { return int64(e.inode.size) }

// IsDir reports whether this entry is a directory.
func (e *FileEntry) IsDir() bool { return e.inode.fileType == fileTypeDirectory }

// IsRegular reports whether this entry is a regular file.
func (e *FileEntry) IsRegular() bool { return e.inode.fileType == fileTypeRegularFile }

// IsSymlink reports whether this entry is a symbolic link.
func (e *FileEntry) IsSymlink() bool { return e.inode.fileType == fileTypeSymbolicLink }

// Mode returns the POSIX-style file mode bits and type, as decoded
// from the inode.
func (e *FileEntry) Mode() (perm uint32, isDir, isSymlink bool) {
	m := e.inode.permissionsToMode()
	return uint32(m.Perm()), e.IsDir(), e.IsSymlink()
}

// ChecksumValid reports whether the inode's on-disk metadata checksum
// matched its bytes, when the volume carries metadata_csum. It is
// always true on volumes without that feature: there is nothing to
// mismatch.
func (e *FileEntry) ChecksumValid() bool { return e.inode.ChecksumValid }

// Read implements io.Reader over the file's content, honoring the
// current seek position. It returns KindNotRegular for anything other
// than a regular file.
func (e *FileEntry) Read(p []byte) (int, error) {
	if !e.IsRegular() {
		return 0, newErr(KindNotRegular, "read", nil)
	}
	n, err := readAt(e.volume, e.inode, p, e.pos)
	e.pos += int64(n)
	return n, err
}

// Seek implements io.Seeker over the file's declared size.
func (e *FileEntry) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = e.pos + offset
	case io.SeekEnd:
		newPos = int64(e.inode.size) + offset
	default:
		return 0, newErr(KindInvalidArgument, "seek", nil)
	}
	if newPos < 0 {
		return 0, newErr(KindInvalidArgument, "seek", nil)
	}
	e.pos = newPos
	return e.pos, nil
}

// ChildIterator walks a directory's entries in on-disk order.
type ChildIterator struct {
	volume  *Volume
	entries []*directoryEntry
	pos     int
}

// Next advances the iterator and returns the next child, or
// ok=false once exhausted.
func (it *ChildIterator) Next() (name string, entry *FileEntry, ok bool, err error) {
	for it.pos < len(it.entries) {
		de := it.entries[it.pos]
		it.pos++
		if de.filename == "." || de.filename == ".." {
			continue
		}
		ino, err := it.volume.readInode(de.inode)
		if err != nil {
			return "", nil, false, err
		}
		return de.filename, &FileEntry{volume: it.volume, inode: ino, name: de.filename}, true, nil
	}
	return "", nil, false, nil
}

// Children returns an iterator over this directory's entries,
// excluding "." and "..". It returns KindNotADirectory for anything
// other than a directory.
func (e *FileEntry) Children() (*ChildIterator, error) {
	if !e.IsDir() {
		return nil, newErr(KindNotADirectory, "children", nil)
	}
	entries, err := directoryEntries(e.volume, e.inode)
	if err != nil {
		return nil, err
	}
	return &ChildIterator{volume: e.volume, entries: entries}, nil
}

// lookupChild resolves a single name within this directory, using the
// htree hash index when the inode carries one (an O(log n) descent
// instead of a full scan) and falling back to a linear scan of every
// leaf block otherwise. It returns KindNotADirectory for anything
// other than a directory.
func (e *FileEntry) lookupChild(name string) (*FileEntry, bool, error) {
	if !e.IsDir() {
		return nil, false, newErr(KindNotADirectory, "lookup", nil)
	}

	if e.inode.flags.hashedDirectoryIndexes && !e.inode.flags.inlineData {
		de, ok, err := lookupHashed(e.volume, e.inode, name)
		if err != nil {
			return nil, false, err
		}
		if ok {
			ino, err := e.volume.readInode(de.inode)
			if err != nil {
				return nil, false, err
			}
			return &FileEntry{volume: e.volume, inode: ino, name: de.filename}, true, nil
		}
		return nil, false, nil
	}

	children, err := e.Children()
	if err != nil {
		return nil, false, err
	}
	for {
		childName, child, ok, err := children.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if childName == name {
			return child, true, nil
		}
	}
}

// directoryEntries gathers every entry of a directory inode,
// resolving htree-indexed directories down to their leaf blocks and
// falling back to a plain sequential scan for non-indexed and inline
// directories.
func directoryEntries(v *Volume, ino *inode) ([]*directoryEntry, error) {
	if ino.flags.inlineData {
		entries, _, err := parseDirEntriesLinear(ino.inlineData, false, v.sb.blockSize, ino.number, ino.nfsFileVersion, v.sb.checksumSeed)
		return entries, err
	}

	blockCount := (ino.size + uint64(v.sb.blockSize) - 1) / uint64(v.sb.blockSize)
	if blockCount == 0 {
		return nil, nil
	}

	metadataChecksums := v.sb.roCompatFeatures.MetadataChecksum

	if ino.flags.hashedDirectoryIndexes {
		return htreeDirectoryEntries(v, ino, metadataChecksums)
	}

	var all []*directoryEntry
	for fb := uint64(0); fb < blockCount; fb++ {
		data, err := readFileBlock(v, ino, fb)
		if err != nil {
			return all, err
		}
		entries, _, err := parseDirEntriesLinear(data, metadataChecksums, v.sb.blockSize, ino.number, ino.nfsFileVersion, v.sb.checksumSeed)
		if err != nil {
			return all, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

// htreeDirectoryEntries walks a hashed directory's index tree to find
// every leaf block, then linearly scans each leaf. The root block's
// own "." and ".." entries are real dirents and are picked up by the
// initial linear scan, which stops naturally once it reaches the
// dx_root_info region (the on-disk convention pads the ".." entry's
// record length to span it).
func htreeDirectoryEntries(v *Volume, ino *inode, metadataChecksums bool) ([]*directoryEntry, error) {
	rootData, err := readFileBlock(v, ino, 0)
	if err != nil {
		return nil, err
	}

	all, _, err := parseDirEntriesLinear(rootData, metadataChecksums, v.sb.blockSize, ino.number, ino.nfsFileVersion, v.sb.checksumSeed)
	if err != nil {
		return nil, err
	}

	info, firstLevel, err := parseDxRoot(rootData)
	if err != nil {
		return nil, err
	}

	levels := [][]uint32{leafBlocksForDxEntries(firstLevel)}
	for depth := 0; depth < int(info.indirectLevels); depth++ {
		var next []uint32
		for _, blockNum := range levels[len(levels)-1] {
			data, err := readFileBlock(v, ino, uint64(blockNum))
			if err != nil {
				return all, err
			}
			entries, err := parseDxNode(data)
			if err != nil {
				return all, err
			}
			next = append(next, leafBlocksForDxEntries(entries)...)
		}
		levels = append(levels, next)
	}

	for _, blockNum := range levels[len(levels)-1] {
		data, err := readFileBlock(v, ino, uint64(blockNum))
		if err != nil {
			return all, err
		}
		entries, _, err := parseDirEntriesLinear(data, metadataChecksums, v.sb.blockSize, ino.number, ino.nfsFileVersion, v.sb.checksumSeed)
		if err != nil {
			return all, err
		}
		all = append(all, entries...)
	}

	return all, nil
}

// ExtendedAttribute is one decoded extended attribute: a namespaced
// name (e.g. "user.comment", "security.selinux") and its raw value
// bytes.
type ExtendedAttribute struct {
	Name  string
	Value []byte
}

// ExtendedAttributes returns every extended attribute this entry
// carries, whether stored inline in the inode or in its dedicated
// attribute block. A value kept in a dedicated EA_INODE value inode is
// read from that inode. A value whose offset and size fall outside the
// attribute area is reported with a nil Value rather than omitted, so
// callers can still see the attribute exists.
func (e *FileEntry) ExtendedAttributes() ([]ExtendedAttribute, error) {
	var out []ExtendedAttribute

	inlineArea := e.inlineXattrArea()
	if inlineArea != nil {
		raws, err := parseInodeXattrs(inlineArea)
		if err != nil {
			return nil, err
		}
		for _, r := range raws {
			v, err := e.volume.resolveXattrValue(r)
			if err != nil {
				return out, err
			}
			out = append(out, ExtendedAttribute{Name: r.name, Value: v})
		}
	}

	if e.inode.extendedAttributeBlock != 0 {
		b, err := e.volume.readBlock(e.inode.extendedAttributeBlock)
		if err != nil {
			return out, err
		}
		raws, _, err := parseBlockXattrs(b)
		if err != nil {
			return out, err
		}
		for _, r := range raws {
			v, err := e.volume.resolveXattrValue(r)
			if err != nil {
				return out, err
			}
			out = append(out, ExtendedAttribute{Name: r.name, Value: v})
		}
	}

	return out, nil
}

// resolveXattrValue returns a raw attribute's value bytes, reading
// them from a dedicated EA_INODE value-inode when the entry names one
// rather than storing the value inline.
func (v *Volume) resolveXattrValue(r rawXattr) ([]byte, error) {
	if r.valueInode == 0 {
		return r.value, nil
	}
	valIno, err := v.readInode(r.valueInode)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, r.valueSize)
	n, err := readAt(v, valIno, buf, 0)
	if err != nil && n == 0 {
		return nil, err
	}
	return buf[:n], nil
}

// inlineXattrArea returns the bytes following an inode's fixed and
// extra fields where inline extended attributes live, or nil if the
// inode's size leaves no room for any.
func (e *FileEntry) inlineXattrArea() []byte {
	return e.inode.inlineXattrArea
}
