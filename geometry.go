package fat32

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	errZeroGeometryField = errors.New("bytes_per_sector, sectors_per_cluster, or fat_size_in_sectors is zero")
	errBadSectorSize     = errors.New("bytes_per_sector is not a power of two in [128, 4096]")
	errBadRootCluster    = errors.New("root_directory_first_cluster is less than 2")
	errMediumTooShort    = errors.New("medium is shorter than the FAT region it should contain")
)

// BPB byte offsets, bit-exact with the on-disk FAT32 boot sector.
const (
	bpbBytesPerSector     = 11 // WORD
	bpbSectorsPerCluster  = 13 // BYTE
	bpbReservedSectors    = 14 // WORD
	bpbNumFATs            = 16 // BYTE
	bpbFATSizeInSectors32 = 36 // DWORD (FAT32 only)
	bpbRootCluster32      = 44 // DWORD (FAT32 only)

	bpbSectorSize = 512 // bytes read from the medium to parse the BPB
)

// geometry holds the BPB fields and everything derived from them. It is
// parsed once at mount and is immutable for the session.
type geometry struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	fatCopies         uint8
	fatSizeInSectors  uint32
	rootDirCluster    uint32

	clusterSize    uint32
	fatByteOffset  int64
	fatByteSize    int64
	dataRegionBase int64
}

// readGeometry parses the BPB from the first bpbSectorSize bytes of med and
// derives the byte offsets the rest of the driver needs. It loads nothing past
// the boot sector; the caller is responsible for loading the FAT itself.
func readGeometry(med Medium) (geometry, error) {
	var hdr [bpbSectorSize]byte
	if _, err := med.Seek(0, io.SeekStart); err != nil {
		return geometry{}, newError(KindIOError, "mount", "", err)
	}
	if _, err := io.ReadFull(med, hdr[:]); err != nil {
		return geometry{}, newError(KindBadImage, "mount", "", err)
	}

	g := geometry{
		bytesPerSector:    binary.LittleEndian.Uint16(hdr[bpbBytesPerSector:]),
		sectorsPerCluster: hdr[bpbSectorsPerCluster],
		reservedSectors:   binary.LittleEndian.Uint16(hdr[bpbReservedSectors:]),
		fatCopies:         hdr[bpbNumFATs],
		fatSizeInSectors:  binary.LittleEndian.Uint32(hdr[bpbFATSizeInSectors32:]),
		rootDirCluster:    binary.LittleEndian.Uint32(hdr[bpbRootCluster32:]),
	}

	if g.bytesPerSector == 0 || g.sectorsPerCluster == 0 || g.fatSizeInSectors == 0 {
		return geometry{}, newError(KindBadImage, "mount", "", errZeroGeometryField)
	}
	if g.bytesPerSector&(g.bytesPerSector-1) != 0 || g.bytesPerSector < 128 || g.bytesPerSector > 4096 {
		return geometry{}, newError(KindBadImage, "mount", "", errBadSectorSize)
	}
	if g.rootDirCluster < 2 {
		return geometry{}, newError(KindBadImage, "mount", "", errBadRootCluster)
	}

	g.clusterSize = uint32(g.bytesPerSector) * uint32(g.sectorsPerCluster)
	g.fatByteOffset = int64(g.reservedSectors) * int64(g.bytesPerSector)
	g.fatByteSize = int64(g.fatSizeInSectors) * int64(g.bytesPerSector)
	// The "-2" accounts for cluster numbering starting at 2.
	reservedAndFATSectors := int64(g.reservedSectors) + int64(g.fatCopies)*int64(g.fatSizeInSectors) - 2
	g.dataRegionBase = reservedAndFATSectors * int64(g.clusterSize)

	return g, nil
}

// clusterByteOffset returns the byte offset of cluster n within the medium.
func (g geometry) clusterByteOffset(n uint32) int64 {
	return g.dataRegionBase + int64(n)*int64(g.clusterSize)
}
