package fat32

import "io"

// clusterIO translates (cluster, byte-offset, length) triples to byte
// ranges in the medium, walking chains via the FAT table and allocating
// new clusters on write as needed.
type clusterIO struct {
	med Medium
	g   geometry
	fat *fatTable
}

// readChain reads up to length bytes starting byteOffset bytes into the
// chain rooted at start, into dst (which must have capacity >= length).
// Returns the number of bytes actually read, which is less than length if
// end-of-chain is reached first.
func (c *clusterIO) readChain(start uint32, byteOffset int64, length int, dst []byte) (int, error) {
	if start < firstDataClus {
		return 0, newError(KindIOError, "read_chain", "", errInvalidCluster)
	}
	if length <= 0 {
		return 0, nil
	}

	clusterSize := int64(c.g.clusterSize)
	skip := byteOffset / clusterSize
	intra := byteOffset % clusterSize

	clust := start
	for i := int64(0); i < skip; i++ {
		v := c.fat.next(clust)
		if c.fat.isEnd(v) {
			return 0, nil // Offset is past the end of the chain.
		}
		clust = v
	}

	var total int
	remaining := length
	for remaining > 0 {
		n := int(clusterSize - intra)
		if n > remaining {
			n = remaining
		}
		off := c.g.clusterByteOffset(clust) + intra
		if _, err := c.med.Seek(off, io.SeekStart); err != nil {
			return total, newError(KindIOError, "read_chain", "", err)
		}
		read, err := io.ReadFull(c.med, dst[total:total+n])
		total += read
		remaining -= read
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return total, nil // Short/partial read at EOF of the medium; report what we got.
		}
		if err != nil {
			return total, newError(KindIOError, "read_chain", "", err)
		}
		if read < n {
			return total, nil
		}

		intra = 0
		v := c.fat.next(clust)
		if c.fat.isEnd(v) {
			return total, nil
		}
		clust = v
	}
	return total, nil
}

// writeChain writes up to length bytes from src starting byteOffset bytes
// into the chain rooted at start. On reaching end-of-chain with bytes
// remaining, it allocates and links a new cluster via the FAT table. It
// returns the bytes actually written and the file's new size, which is
// max(fileSize, byteOffset+bytesWritten). If allocation fails mid-write,
// it returns the bytes written so far and the size that reflects only
// those bytes.
func (c *clusterIO) writeChain(start uint32, fileSize int64, byteOffset int64, src []byte, length int) (int, int64, error) {
	if start < firstDataClus {
		return 0, fileSize, newError(KindIOError, "write_chain", "", errInvalidCluster)
	}
	if length <= 0 {
		return 0, fileSize, nil
	}

	clusterSize := int64(c.g.clusterSize)
	skip := byteOffset / clusterSize
	intra := byteOffset % clusterSize

	clust := start
	for i := int64(0); i < skip; i++ {
		v := c.fat.next(clust)
		if c.fat.isEnd(v) {
			nc, err := c.fat.extendChain(clust, c.g)
			if err != nil {
				return 0, fileSize, err
			}
			v = nc
		}
		clust = v
	}

	var total int
	remaining := length
	for remaining > 0 {
		n := int(clusterSize - intra)
		if n > remaining {
			n = remaining
		}
		off := c.g.clusterByteOffset(clust) + intra
		if _, err := c.med.Seek(off, io.SeekStart); err != nil {
			newSize := maxInt64(fileSize, byteOffset+int64(total))
			return total, newSize, newError(KindIOError, "write_chain", "", err)
		}
		written, err := c.med.Write(src[total : total+n])
		total += written
		remaining -= written
		if err != nil || written < n {
			newSize := maxInt64(fileSize, byteOffset+int64(total))
			return total, newSize, newError(KindIOError, "write_chain", "", err)
		}

		intra = 0
		if remaining == 0 {
			break
		}
		v := c.fat.next(clust)
		if c.fat.isEnd(v) {
			nc, err := c.fat.extendChain(clust, c.g)
			if err != nil {
				// Partial write: report what succeeded before allocation failed.
				newSize := maxInt64(fileSize, byteOffset+int64(total))
				return total, newSize, err
			}
			v = nc
		}
		clust = v
	}

	newSize := maxInt64(fileSize, byteOffset+int64(total))
	return total, newSize, nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
