// Command ext4dump walks an ext2/ext3/ext4 image and prints its
// directory hierarchy, similar in spirit to the teacher's
// examples/serve-image but read-only and recursive rather than
// serving the filesystem over HTTP.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path"

	"github.com/sirupsen/logrus"

	"github.com/ext4view/ext4view/backend"
	"github.com/ext4view/ext4view/backend/compressed"
	"github.com/ext4view/ext4view/backend/file"
	"github.com/ext4view/ext4view/backend/mmap"
	"github.com/ext4view/ext4view/filesystem/ext4"
	"github.com/ext4view/ext4view/util"
	"github.com/ext4view/ext4view/util/timestamp"
)

func main() {
	var (
		offset    = flag.Int64("offset", 0, "byte offset of the ext4 volume within the image")
		cacheSize = flag.Int("cache-blocks", 0, "block cache size (0 uses the library default)")
		useMmap   = flag.Bool("mmap", false, "memory-map the image instead of using ReadAt")
		verbose   = flag.Bool("v", false, "log debug diagnostics to stderr")
		hexdump   = flag.Bool("hexdump-superblock", false, "dump the raw superblock bytes before walking")
		xattrs    = flag.Bool("xattrs", false, "print extended attributes alongside each entry")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ext4dump [flags] <image>")
		os.Exit(2)
	}
	imagePath := flag.Arg(0)

	storage, err := openBackend(imagePath, *useMmap)
	if err != nil {
		log.Fatalf("open %s: %v", imagePath, err)
	}
	defer storage.Close()

	var opts []ext4.Option
	if *offset != 0 {
		opts = append(opts, ext4.WithOffset(*offset))
	}
	if *cacheSize > 0 {
		opts = append(opts, ext4.WithCacheSize(*cacheSize))
	}
	if *verbose {
		logger := logrus.New()
		logger.SetLevel(logrus.DebugLevel)
		opts = append(opts, ext4.WithLogger(logger))

		if t, hasBirth, err := file.StatTimes(imagePath); err == nil {
			logger.WithFields(logrus.Fields{
				"mtime": t.ModTime(), "ctime": t.ChangeTime(),
			}).Debug("host image stat times")
			if hasBirth {
				logger.WithField("birthtime", t.BirthTime()).Debug("host image birth time")
			}
		}
	}

	v, err := ext4.Open(storage, opts...)
	if err != nil {
		log.Fatalf("open volume: %v", err)
	}
	defer v.Close()

	if *hexdump {
		sb := make([]byte, 1024)
		if _, err := storage.ReadAt(sb, 1024); err == nil {
			fmt.Print(util.DumpByteSlice(sb, 16, true, true, false, nil))
		}
	}

	root, err := v.Root()
	if err != nil {
		log.Fatalf("root: %v", err)
	}

	fmt.Printf("# scanned %s\n", timestamp.GetTime().Format("2006-01-02T15:04:05Z"))

	if err := walk(root, "/", *xattrs); err != nil {
		log.Fatalf("walk: %v", err)
	}
}

func openBackend(imagePath string, useMmap bool) (backend.Storage, error) {
	switch compressed.DetectFormat(imagePath) {
	case compressed.FormatXZ:
		return compressed.Open(imagePath, compressed.FormatXZ)
	case compressed.FormatLZ4:
		return compressed.Open(imagePath, compressed.FormatLZ4)
	}
	if useMmap {
		return mmap.Open(imagePath)
	}
	return file.Open(imagePath)
}

func walk(e *ext4.FileEntry, name string, showXattrs bool) error {
	kind := "file"
	switch {
	case e.IsDir():
		kind = "dir"
	case e.IsSymlink():
		kind = "symlink"
	}
	fmt.Printf("%8d  %-6s  %s\n", e.InodeNumber(), kind, name)

	if e.IsSymlink() {
		target, err := e.SymlinkTarget()
		if err == nil {
			fmt.Printf("            -> %s\n", target)
		}
	}

	if showXattrs {
		if xattrs, err := e.ExtendedAttributes(); err == nil {
			for _, x := range xattrs {
				fmt.Printf("            %s = %q\n", x.Name, string(x.Value))
			}
		}
	}

	if !e.IsDir() {
		return nil
	}

	children, err := e.Children()
	if err != nil {
		return err
	}
	for {
		childName, child, ok, err := children.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := walk(child, path.Join(name, childName), showXattrs); err != nil {
			return err
		}
	}
	return nil
}
