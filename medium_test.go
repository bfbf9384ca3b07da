package fat32

import (
	"encoding/binary"
	"io"

	"github.com/xaionaro-go/bytesextra"
)

// memMedium adapts bytesextra's in-memory ReadWriteSeeker to Medium by
// adding a no-op Close: images built by buildImage are fixed-size, so tests never
// need the medium to grow past what buildImage preallocated.
type memMedium struct {
	io.ReadWriteSeeker
}

func (memMedium) Close() error { return nil }

func newMemMedium(image []byte) Medium {
	return memMedium{bytesextra.NewReadWriteSeeker(image)}
}

// buildImage assembles a minimal valid FAT32 image: a 512-byte BPB sector,
// a single one-sector (128-entry) FAT, and a data region of exactly
// dataClusters clusters starting at cluster 2 (the root directory, left
// zeroed so it decodes as an empty directory). FAT entries beyond the
// addressable data region are marked non-free so findFree never wanders
// past the end of the backing slice.
func buildImage(dataClusters uint32) []byte {
	const (
		bytesPerSector    = 512
		sectorsPerCluster = 1
		reservedSectors   = 1
		numFATs           = 1
		fatSizeInSectors  = 1 // 512 bytes = 128 32-bit entries
		rootCluster       = 2
	)

	hdr := make([]byte, bytesPerSector)
	binary.LittleEndian.PutUint16(hdr[bpbBytesPerSector:], bytesPerSector)
	hdr[bpbSectorsPerCluster] = sectorsPerCluster
	binary.LittleEndian.PutUint16(hdr[bpbReservedSectors:], reservedSectors)
	hdr[bpbNumFATs] = numFATs
	binary.LittleEndian.PutUint32(hdr[bpbFATSizeInSectors32:], fatSizeInSectors)
	binary.LittleEndian.PutUint32(hdr[bpbRootCluster32:], rootCluster)

	const totalEntries = fatSizeInSectors * bytesPerSector / 4
	fatRegion := make([]byte, fatSizeInSectors*bytesPerSector)
	lastValid := firstDataClus + dataClusters - 1
	for i := uint32(0); i < totalEntries; i++ {
		var v uint32
		switch {
		case i == rootCluster:
			v = fatEOCThresh // root starts as a single-cluster chain
		case i > rootCluster && i <= lastValid:
			v = fatEntryFree
		case i >= firstDataClus:
			v = 1 // reserved/unbacked: never handed out by findFree
		}
		binary.LittleEndian.PutUint32(fatRegion[i*4:], v)
	}

	dataRegion := make([]byte, dataClusters*bytesPerSector*sectorsPerCluster)

	image := make([]byte, 0, len(hdr)+len(fatRegion)+len(dataRegion))
	image = append(image, hdr...)
	image = append(image, fatRegion...)
	image = append(image, dataRegion...)
	return image
}
