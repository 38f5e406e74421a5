package ext4

import "strings"

// maxSymlinkHops bounds how many symlinks ByPath will follow while
// resolving a single path, protecting against a symlink cycle an
// adversarial or corrupt image might construct.
const maxSymlinkHops = 40

// ByPath resolves a slash-separated path from the volume root,
// following symlinks encountered at non-final components along the
// way. A symlink in the final component is returned as-is, not
// followed — callers that want its target call SymlinkTarget
// themselves. It returns KindNotFound if any component is missing,
// KindNotADirectory if a non-final component is not a directory, and
// KindSymlinkLoop if resolution exceeds 40 symlink hops.
func (v *Volume) ByPath(path string) (*FileEntry, error) {
	root, err := v.Root()
	if err != nil {
		return nil, err
	}
	hops := 0
	return resolvePath(root, path, &hops)
}

func resolvePath(from *FileEntry, path string, hops *int) (*FileEntry, error) {
	components := nonEmptyComponents(path)
	current := from

	for i, comp := range components {
		isFinal := i == len(components)-1

		if comp == ".." {
			return nil, newPathErr(KindInvalidArgument, "by-path", path, errDotDotUnsupported)
		}
		if !current.IsDir() {
			return nil, newPathErr(KindNotADirectory, "by-path", path, nil)
		}

		next, ok, err := current.lookupChild(comp)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newPathErr(KindNotFound, "by-path", path, nil)
		}

		if next.IsSymlink() && !isFinal {
			if *hops >= maxSymlinkHops {
				return nil, newPathErr(KindSymlinkLoop, "by-path", path, nil)
			}
			*hops++
			target, err := next.SymlinkTarget()
			if err != nil {
				return nil, err
			}
			var base *FileEntry
			if strings.HasPrefix(target, "/") {
				base, err = next.volume.Root()
				if err != nil {
					return nil, err
				}
			} else {
				base = current
			}
			resolved, err := resolvePath(base, target, hops)
			if err != nil {
				return nil, err
			}
			next = resolved
		}

		current = next
	}

	return current, nil
}

func nonEmptyComponents(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		out = append(out, p)
	}
	return out
}
