package fat32

import "io"

// loadChain materializes an entire cluster chain into a contiguous buffer,
// the first step of decoding a directory.
func loadChain(cio *clusterIO, start uint32) ([]byte, error) {
	if start < firstDataClus {
		return nil, newError(KindIOError, "read_directory", "", errInvalidCluster)
	}
	n, err := cio.fat.chainLength(start)
	if err != nil {
		return nil, err
	}
	cs := int(cio.g.clusterSize)
	buf := make([]byte, n*cs)
	clust := start
	for i := 0; i < n; i++ {
		off := cio.g.clusterByteOffset(clust)
		if _, err := cio.med.Seek(off, io.SeekStart); err != nil {
			return nil, newError(KindIOError, "read_directory", "", err)
		}
		if _, err := io.ReadFull(cio.med, buf[i*cs:(i+1)*cs]); err != nil {
			return nil, newError(KindIOError, "read_directory", "", err)
		}
		if i < n-1 {
			clust = cio.fat.next(clust)
		}
	}
	return buf, nil
}

// readDirectory decodes the logical entries of the directory rooted at
// start.
func readDirectory(cio *clusterIO, start uint32) ([]LogicalEntry, error) {
	buf, err := loadChain(cio, start)
	if err != nil {
		return nil, err
	}
	return decodeDirectory(buf)
}

// findFreeRun locates the smallest starting record index within buf that
// has `needed` contiguous free records, where a record is free if it is a
// tombstone (0xE5) or at/after the first end-of-directory (0x00) record —
// per the directory invariant that end-of-directory is followed only by
// zeroed records. Returns ok=false if no such run exists in buf's current
// capacity; the caller must then extend the chain and retry.
func findFreeRun(buf []byte, needed int) (start int, ok bool) {
	capacity := len(buf) / direntSize
	term := -1
	for i := 0; i < capacity; i++ {
		if buf[i*direntSize] == direntFree {
			term = i
			break
		}
	}

	runStart, runLen := -1, 0
	for i := 0; i < capacity; i++ {
		free := (term >= 0 && i >= term) || buf[i*direntSize] == direntTombstone
		if !free {
			runStart, runLen = -1, 0
			continue
		}
		if runStart < 0 {
			runStart = i
		}
		runLen++
		if runLen >= needed {
			return runStart, true
		}
	}
	return 0, false
}

// createEntry writes an LFN+SFN group for name into the directory rooted
// at dirCluster, extending the chain if no run of free records is large
// enough.
func createEntry(cio *clusterIO, dirCluster uint32, name string, kind EntryKind, firstCluster, size uint32) error {
	if len(name) > maxNameBytes {
		return newError(KindNameTooLong, "create", name, nil)
	}
	for {
		buf, err := loadChain(cio, dirCluster)
		if err != nil {
			return err
		}
		sfn11, err := deriveSFN(name, collectShortNames(buf))
		if err != nil {
			return err
		}
		group := encodeEntry(name, kind, size, firstCluster, sfn11)
		needed := len(group) / direntSize

		start, ok := findFreeRun(buf, needed)
		if !ok {
			if _, err := cio.fat.extendChain(dirCluster, cio.g); err != nil {
				return err
			}
			continue
		}

		byteOff := int64(start * direntSize)
		if _, _, err := cio.writeChain(dirCluster, 0, byteOff, group, len(group)); err != nil {
			return err
		}
		return nil
	}
}

// DirCursor iterates the logical entries of a directory one at a time,
// modeled on the teacher's Dir/OpenDir pair rather than handing back the
// whole decoded slice at once.
type DirCursor struct {
	entries []LogicalEntry
	pos     int
}

// OpenDir decodes the directory rooted at cluster and returns a cursor
// positioned before its first entry. The full chain is still decoded in
// one pass up front (decodeDirectory's LFN accumulator needs to see
// records in order); OpenDir only changes how the result is consumed.
func OpenDir(cio *clusterIO, cluster uint32) (*DirCursor, error) {
	entries, err := readDirectory(cio, cluster)
	if err != nil {
		return nil, err
	}
	return &DirCursor{entries: entries}, nil
}

// Next returns the next logical entry and true, or a zero value and false
// once the cursor is exhausted.
func (d *DirCursor) Next() (LogicalEntry, bool) {
	if d.pos >= len(d.entries) {
		return LogicalEntry{}, false
	}
	e := d.entries[d.pos]
	d.pos++
	return e, true
}

// locateSFNOffset returns the chain-relative byte offset of name's SFN
// record within the directory rooted at dirCluster, used to rewrite
// file_size in place after a write.
func locateSFNOffset(cio *clusterIO, dirCluster uint32, name string) (int64, error) {
	buf, err := loadChain(cio, dirCluster)
	if err != nil {
		return 0, err
	}
	entries, err := decodeDirectory(buf)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.Name == name {
			return int64(e.SFNOffset), nil
		}
	}
	return 0, newError(KindNotFound, "locate", name, nil)
}
