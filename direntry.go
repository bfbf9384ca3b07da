package fat32

import "encoding/binary"

// Directory record layout, bit-exact with the on-disk format.
const (
	direntSize = 32

	sfnName            = 0  // [8]byte
	sfnExt             = 8  // [3]byte
	sfnAttr            = 11 // byte
	sfnReserved        = 12 // byte
	sfnCreateTenths    = 13 // byte
	sfnCreateTime      = 14 // WORD
	sfnCreateDate      = 16 // WORD
	sfnLastAccessDate  = 18 // WORD
	sfnHighCluster     = 20 // WORD
	sfnModTime         = 22 // WORD
	sfnModDate         = 24 // WORD
	sfnLowCluster      = 26 // WORD
	sfnFileSize        = 28 // DWORD

	lfnSeq       = 0  // byte
	lfnName1     = 1  // [5]uint16 (10 bytes)
	lfnAttr      = 11 // byte, always 0x0F
	lfnType      = 12 // byte, always 0
	lfnChecksum  = 13 // byte
	lfnName2     = 14 // [6]uint16 (12 bytes)
	lfnCluster   = 26 // WORD, always 0
	lfnName3     = 28 // [2]uint16 (4 bytes)
)

// Attribute bitmask.
const (
	attrReadOnly = 0x01
	attrHidden   = 0x02
	attrSystem   = 0x04
	attrVolumeID = 0x08
	attrDir      = 0x10
	attrArchive  = 0x20
	attrLFN      = 0x0F

	lfnLastFlag = 0x40 // mskLLEF in the teacher's FatFs-derived naming.

	direntFree      = 0x00 // first name byte: end-of-directory
	direntTombstone = 0xE5 // first name byte: free slot
)

// sfnChecksum computes the 1-byte rotate-and-sum checksum over the 11 SFN
// name bytes, binding an LFN group to its SFN.
func sfnChecksum(sfn11 []byte) byte {
	var sum byte
	for i := 0; i < 11; i++ {
		sum = ((sum >> 1) | (sum << 7)) + sfn11[i]
	}
	return sum
}

// isLFNRecord reports whether the 32-byte record rec is an LFN record.
func isLFNRecord(rec []byte) bool {
	return rec[sfnAttr] == attrLFN
}

// recordKind classifies the first byte of a directory record.
type recordKind uint8

const (
	recordNormal recordKind = iota
	recordEnd               // 0x00: end-of-directory
	recordFree              // 0xE5: tombstone
)

func classifyRecord(rec []byte) recordKind {
	switch rec[sfnName] {
	case direntFree:
		return recordEnd
	case direntTombstone:
		return recordFree
	default:
		return recordNormal
	}
}

// sfnFirstCluster returns the first cluster encoded in an SFN record's
// high/low cluster words.
func sfnFirstCluster(rec []byte) uint32 {
	hi := binary.LittleEndian.Uint16(rec[sfnHighCluster:])
	lo := binary.LittleEndian.Uint16(rec[sfnLowCluster:])
	return uint32(hi)<<16 | uint32(lo)
}

func setSFNFirstCluster(rec []byte, cluster uint32) {
	binary.LittleEndian.PutUint16(rec[sfnHighCluster:], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(rec[sfnLowCluster:], uint16(cluster))
}

func sfnSize(rec []byte) uint32 {
	return binary.LittleEndian.Uint32(rec[sfnFileSize:])
}

func setSFNSize(rec []byte, size uint32) {
	binary.LittleEndian.PutUint32(rec[sfnFileSize:], size)
}

// lfnOrdinal returns the sequence number (low 5 bits) and whether the
// LAST flag (0x40) is set.
func lfnOrdinal(rec []byte) (seq uint8, last bool) {
	ord := rec[lfnSeq]
	return ord & 0x1F, ord&lfnLastFlag != 0
}

// lfnChunks returns the three raw UTF-16LE chunks (5, 6, 2 code units) of
// an LFN record, concatenated into a single 26-byte slice.
func lfnChunks(rec []byte, dst []byte) {
	_ = dst[25]
	copy(dst[0:10], rec[lfnName1:lfnName1+10])
	copy(dst[10:22], rec[lfnName2:lfnName2+12])
	copy(dst[22:26], rec[lfnName3:lfnName3+4])
}

func setLFNChunks(rec []byte, src []byte) {
	_ = src[25]
	copy(rec[lfnName1:lfnName1+10], src[0:10])
	copy(rec[lfnName2:lfnName2+12], src[10:22])
	copy(rec[lfnName3:lfnName3+4], src[22:26])
}
