package ext4

// SymlinkTarget returns the textual link target of a symbolic link.
// Fast symlinks (target stored inline in the inode) are returned
// directly; slow symlinks read their target out of file data the same
// way a regular file's content is read. It returns KindNotASymlink for
// anything else.
func (e *FileEntry) SymlinkTarget() (string, error) {
	if !e.IsSymlink() {
		return "", newErr(KindNotASymlink, "symlink-target", nil)
	}
	if e.inode.isFastSymlink() {
		return e.inode.linkTarget, nil
	}
	if e.inode.flags.inlineData {
		n := int(e.inode.size)
		if n > len(e.inode.inlineData) {
			n = len(e.inode.inlineData)
		}
		return string(e.inode.inlineData[:n]), nil
	}

	buf := make([]byte, e.inode.size)
	n, err := readAt(e.volume, e.inode, buf, 0)
	if err != nil && n == 0 {
		return "", err
	}
	return string(buf[:n]), nil
}
