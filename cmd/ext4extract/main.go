// Command ext4extract copies a file or directory subtree out of an
// ext2/ext3/ext4 image onto the host filesystem, mirroring each
// entry's extended attributes onto the extracted copy.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/xattr"

	"github.com/ext4view/ext4view/backend/file"
	"github.com/ext4view/ext4view/filesystem/ext4"
)

func main() {
	var (
		offset  = flag.Int64("offset", 0, "byte offset of the ext4 volume within the image")
		noXattr = flag.Bool("no-xattrs", false, "skip copying extended attributes onto extracted files")
	)
	flag.Parse()

	if flag.NArg() != 3 {
		fmt.Fprintln(os.Stderr, "usage: ext4extract [flags] <image> <source-path> <dest-dir>")
		os.Exit(2)
	}
	imagePath, srcPath, destDir := flag.Arg(0), flag.Arg(1), flag.Arg(2)

	storage, err := file.Open(imagePath)
	if err != nil {
		log.Fatalf("open %s: %v", imagePath, err)
	}
	defer storage.Close()

	var opts []ext4.Option
	if *offset != 0 {
		opts = append(opts, ext4.WithOffset(*offset))
	}
	v, err := ext4.Open(storage, opts...)
	if err != nil {
		log.Fatalf("open volume: %v", err)
	}
	defer v.Close()

	entry, err := v.ByPath(srcPath)
	if err != nil {
		log.Fatalf("resolve %s: %v", srcPath, err)
	}

	if err := extract(entry, destDir, !*noXattr); err != nil {
		log.Fatalf("extract: %v", err)
	}
}

func extract(e *ext4.FileEntry, destPath string, withXattrs bool) error {
	switch {
	case e.IsDir():
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", destPath, err)
		}
		children, err := e.Children()
		if err != nil {
			return err
		}
		for {
			name, child, ok, err := children.Next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if err := extract(child, filepath.Join(destPath, name), withXattrs); err != nil {
				return err
			}
		}
		return applyXattrs(e, destPath, withXattrs)

	case e.IsSymlink():
		target, err := e.SymlinkTarget()
		if err != nil {
			return err
		}
		if err := os.Symlink(target, destPath); err != nil {
			return fmt.Errorf("symlink %s: %w", destPath, err)
		}
		return applyXattrs(e, destPath, withXattrs)

	default:
		out, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", destPath, err)
		}
		defer out.Close()
		if _, err := io.Copy(out, io.NewSectionReader(fileEntryReaderAt{e}, 0, e.Size())); err != nil {
			return fmt.Errorf("copy %s: %w", destPath, err)
		}
		return applyXattrs(e, destPath, withXattrs)
	}
}

// fileEntryReaderAt adapts FileEntry's stateful Seek+Read to
// io.ReaderAt so io.NewSectionReader can drive a single linear copy
// without ext4extract needing to track its own offset.
type fileEntryReaderAt struct {
	e *ext4.FileEntry
}

func (r fileEntryReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := r.e.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return r.e.Read(p)
}

func applyXattrs(e *ext4.FileEntry, destPath string, enabled bool) error {
	if !enabled {
		return nil
	}
	attrs, err := e.ExtendedAttributes()
	if err != nil {
		return fmt.Errorf("read xattrs for %s: %w", destPath, err)
	}
	for _, a := range attrs {
		if a.Value == nil {
			continue
		}
		if err := xattr.LSet(destPath, a.Name, a.Value); err != nil {
			// best-effort: many namespaces (e.g. security.selinux) require
			// privileges this tool may not have; note and continue.
			fmt.Fprintf(os.Stderr, "warning: set xattr %s on %s: %v\n", a.Name, destPath, err)
		}
	}
	return nil
}
