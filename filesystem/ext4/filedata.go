package ext4

import "io"

// readFileBlock returns the blockSize-or-fewer bytes of file-relative
// block fileBlock, dispatching to whichever block-mapping scheme the
// inode uses. A hole (sparse, unallocated block) returns a
// blockSize-sized slice of zeros rather than an error, matching a
// POSIX reader's view of a sparse file. Inline-data inodes have no
// block mapping at all; callers read those through readInlineFileData
// instead of calling this.
func readFileBlock(v *Volume, ino *inode, fileBlock uint64) ([]byte, error) {
	switch {
	case ino.flags.usesExtents:
		return readExtentFileBlock(v, ino, fileBlock)
	case ino.indirect != nil:
		return readIndirectFileBlock(v, ino, fileBlock)
	default:
		return make([]byte, v.sb.blockSize), nil
	}
}

// readInlineFileData returns the full content of an inline-data
// regular file: up to 60 bytes stored directly in i_block, with any
// remaining bytes continuing in the inode's "system.data" extended
// attribute.
func readInlineFileData(v *Volume, ino *inode) ([]byte, error) {
	n := int(ino.size)
	if n <= len(ino.inlineData) {
		return ino.inlineData[:n], nil
	}

	overflow, ok, err := lookupInodeXattr(v, ino, "system.data")
	if err != nil {
		return nil, err
	}
	data := append([]byte(nil), ino.inlineData...)
	if ok {
		data = append(data, overflow...)
	}
	if len(data) > n {
		data = data[:n]
	}
	return data, nil
}

func readExtentFileBlock(v *Volume, ino *inode, fileBlock uint64) ([]byte, error) {
	found, err := resolveExtent(v, ino.extents, fileBlock)
	if err != nil {
		return nil, err
	}
	if found == nil || found.uninitialized {
		return make([]byte, v.sb.blockSize), nil
	}
	offsetIntoExtent := fileBlock - uint64(found.fileBlock)
	return v.readBlock(found.startingBlock + offsetIntoExtent)
}

// resolveExtent finds the extent covering fileBlock by walking down
// the extent tree one level at a time, reading only the nodes on the
// path to the answer.
func resolveExtent(v *Volume, root extentBlockFinder, fileBlock uint64) (*extent, error) {
	node := root
	for {
		switch n := node.(type) {
		case *extentLeafNode:
			ext, ok := n.resolve(fileBlock)
			if !ok {
				return nil, nil
			}
			return &ext, nil
		case *extentInternalNode:
			child, ok := n.resolveChild(fileBlock)
			if !ok {
				return nil, nil
			}
			b, err := v.readBlock(child.diskBlock)
			if err != nil {
				return nil, err
			}
			next, err := parseExtents(b, v.sb.blockSize, child.fileBlock, child.count)
			if err != nil {
				return nil, err
			}
			node = next
		default:
			return nil, nil
		}
	}
}

func readIndirectFileBlock(v *Volume, ino *inode, fileBlock uint64) ([]byte, error) {
	blockNum, ok, err := ino.indirect.resolve(v, fileBlock)
	if err != nil {
		return nil, err
	}
	if !ok {
		return make([]byte, v.sb.blockSize), nil
	}
	return v.readBlock(blockNum)
}

// readAt reads len(p) bytes of file content starting at byte offset
// off, stopping short at ino.size. It never reads past the inode's
// declared size even if the underlying block mapping covers more.
func readAt(v *Volume, ino *inode, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, newErr(KindInvalidArgument, "read", nil)
	}
	size := int64(ino.size)
	if off >= size {
		return 0, io.EOF
	}

	if ino.flags.inlineData {
		data, err := readInlineFileData(v, ino)
		if err != nil {
			return 0, err
		}
		if off >= int64(len(data)) {
			return 0, io.EOF
		}
		n := copy(p, data[off:])
		return n, nil
	}

	blockSize := int64(v.sb.blockSize)
	n := 0
	for n < len(p) {
		cur := off + int64(n)
		if cur >= size {
			break
		}
		fileBlock := uint64(cur / blockSize)
		withinBlock := cur % blockSize

		data, err := readFileBlock(v, ino, fileBlock)
		if err != nil {
			return n, err
		}

		avail := int64(len(data)) - withinBlock
		remaining := size - cur
		if avail > remaining {
			avail = remaining
		}
		want := int64(len(p) - n)
		if avail > want {
			avail = want
		}
		if avail <= 0 {
			break
		}
		copy(p[n:], data[withinBlock:withinBlock+avail])
		n += int(avail)
	}

	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
