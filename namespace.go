package fat32

import "strings"

// splitPath splits a UTF-8 path on '/' and discards empty segments.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// resolvePath walks path from the root directory, returning the cluster
// of the directory that directly contains the final segment and the
// logical entry for that segment. An empty path resolves to the root
// directory itself, reported with parentCluster equal to rootCluster
// (the root has no parent, callers must special-case this).
func resolvePath(cio *clusterIO, rootCluster uint32, path string) (parentCluster uint32, entry LogicalEntry, err error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return rootCluster, LogicalEntry{Kind: KindDirectory, FirstCluster: rootCluster}, nil
	}

	cur := rootCluster
	parent := rootCluster
	var last LogicalEntry
	for i, seg := range segs {
		entries, derr := readDirectory(cio, cur)
		if derr != nil {
			return 0, LogicalEntry{}, derr
		}
		var found bool
		for _, e := range entries {
			if e.Name == seg {
				last = e
				found = true
				break
			}
		}
		if !found {
			return 0, LogicalEntry{}, newError(KindNotFound, "lookup", path, nil)
		}
		if i < len(segs)-1 {
			if last.Kind != KindDirectory {
				return 0, LogicalEntry{}, newError(KindNotADirectory, "lookup", path, nil)
			}
			parent = cur
			cur = last.FirstCluster
		} else {
			parent = cur
		}
	}
	return parent, last, nil
}

// resolveDirCluster resolves path to the first_cluster of the directory
// it names. An empty path resolves to the root.
func resolveDirCluster(cio *clusterIO, rootCluster uint32, path string) (uint32, error) {
	_, entry, err := resolvePath(cio, rootCluster, path)
	if err != nil {
		return 0, err
	}
	if entry.Kind != KindDirectory {
		return 0, newError(KindNotADirectory, "lookup", path, nil)
	}
	return entry.FirstCluster, nil
}
