package fat32

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/noxer/bytewriter"
	"github.com/soypat/fat32/internal/utf16x"
)

// EntryKind distinguishes files from directories in a LogicalEntry.
type EntryKind uint8

const (
	KindFile EntryKind = iota
	KindDirectory
)

// LogicalEntry is the in-memory representation of a decoded directory
// record (or LFN+SFN group).
type LogicalEntry struct {
	Name         string
	Kind         EntryKind
	Size         uint32
	FirstCluster uint32

	// SFNOffset is the byte offset of this entry's SFN record within the
	// buffer decodeDirectory scanned. Used to rewrite file_size in place
	// after a write.
	SFNOffset int

	// ModTime is read from the SFN record's modification time/date fields.
	// It is never written by this package: create and write never stamp
	// timestamps.
	ModDate uint16
	ModTime uint16
}

const maxNameBytes = 255

// decodeDirectory scans buf (the fully materialized contents of a
// directory's cluster chain) in record-index order and returns the
// logical entries it finds, following the LFN accumulator state machine
// in decodeDirectory and the lfnAccumulator below.
func decodeDirectory(buf []byte) ([]LogicalEntry, error) {
	var entries []LogicalEntry
	var acc lfnAccumulator

	for off := 0; off+direntSize <= len(buf); off += direntSize {
		rec := buf[off : off+direntSize]
		switch classifyRecord(rec) {
		case recordEnd:
			return entries, nil
		case recordFree:
			acc.reset()
			continue
		}

		if isLFNRecord(rec) {
			acc.add(rec)
			continue
		}

		name, ok := acc.resolve(rec)
		if !ok {
			name = shortNameOf(rec)
		}
		entries = append(entries, LogicalEntry{
			Name:         name,
			Kind:         kindOf(rec),
			Size:         sfnSize(rec),
			FirstCluster: sfnFirstCluster(rec),
			SFNOffset:    off,
			ModTime:      binary.LittleEndian.Uint16(rec[sfnModTime:]),
			ModDate:      binary.LittleEndian.Uint16(rec[sfnModDate:]),
		})
		acc.reset()
	}
	return entries, nil
}

func kindOf(sfnRec []byte) EntryKind {
	if sfnRec[sfnAttr]&attrDir != 0 {
		return KindDirectory
	}
	return KindFile
}

// shortNameOf formats the trimmed 8.3 short name "NAME.EXT", omitting the
// dot when the extension is blank.
func shortNameOf(sfnRec []byte) string {
	name := strings.TrimRight(string(sfnRec[sfnName:sfnName+8]), " ")
	ext := strings.TrimRight(string(sfnRec[sfnExt:sfnExt+3]), " ")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// lfnAccumulator implements the decode-time LFN gathering state machine:
// Idle, Gathering(checksum, pieces).
type lfnAccumulator struct {
	active   bool
	checksum byte
	maxSeq   uint8
	units    [20 * 13]uint16
	present  [21]bool
}

func (a *lfnAccumulator) reset() { *a = lfnAccumulator{} }

func (a *lfnAccumulator) add(rec []byte) {
	seq, _ := lfnOrdinal(rec)
	sum := rec[lfnChecksum]
	if seq == 0 || seq > 20 {
		a.reset()
		return
	}
	if a.active && sum != a.checksum {
		// Gathering + LFN record with mismatched checksum: discard and
		// restart at the new checksum.
		a.reset()
	}
	a.active = true
	a.checksum = sum
	if seq > a.maxSeq {
		a.maxSeq = seq
	}
	a.present[seq] = true

	var raw [26]byte
	lfnChunks(rec, raw[:])
	base := (int(seq) - 1) * 13
	for i := 0; i < 13; i++ {
		a.units[base+i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
}

// resolve consumes the accumulator against an SFN record's checksum. It
// returns the decoded long name and true if the accumulator is non-empty
// and its checksum matches; otherwise false (caller falls back to the
// 8.3 short name).
func (a *lfnAccumulator) resolve(sfnRec []byte) (string, bool) {
	if !a.active {
		return "", false
	}
	sum := sfnChecksum(sfnRec[0:11])
	if sum != a.checksum {
		return "", false
	}
	for seq := uint8(1); seq <= a.maxSeq; seq++ {
		if !a.present[seq] {
			return "", false
		}
	}

	utf16buf := make([]byte, 0, int(a.maxSeq)*13*2)
	for i := 0; i < int(a.maxSeq)*13; i++ {
		u := a.units[i]
		if u == 0 {
			break // Honour the 0x0000 terminator within the logical name.
		}
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], u)
		utf16buf = append(utf16buf, b[:]...)
	}
	utf8buf := make([]byte, len(utf16buf)*3/2+4)
	n, err := utf16x.ToUTF8(utf8buf, utf16buf, binary.LittleEndian)
	if err != nil {
		return "", false
	}
	return string(utf8buf[:n]), true
}

// lfnChunkCount returns ceil((len_utf16+1) / 13), the number of LFN
// records needed to store name including its null terminator.
func lfnChunkCount(utf16Units int) int {
	slots := utf16Units + 1
	return (slots + 12) / 13
}

// encodeEntry produces the on-disk byte group for a logical entry: LFN
// records in descending sequence order (highest sequence, hence lowest
// byte offset, first) followed by the SFN record.
func encodeEntry(name string, kind EntryKind, size, firstCluster uint32, sfn11 [11]byte) []byte {
	utf16buf := make([]byte, (maxNameBytes+1)*2)
	n, _ := utf16x.FromUTF8(utf16buf, []byte(name), binary.LittleEndian)
	units := n / 2

	nchunks := lfnChunkCount(units)
	sum := sfnChecksum(sfn11[:])

	group := make([]byte, (nchunks+1)*direntSize)
	// Physical order: LFN seq nchunks .. 1, then SFN.
	for i := 0; i < nchunks; i++ {
		seq := uint8(nchunks - i)
		rec := group[i*direntSize : (i+1)*direntSize]
		ord := seq
		if i == 0 {
			ord |= lfnLastFlag
		}
		rec[lfnSeq] = ord
		rec[lfnAttr] = attrLFN
		rec[lfnType] = 0
		rec[lfnChecksum] = sum

		var chunk [26]byte
		w := bytewriter.New(chunk[:])
		base := int(seq-1) * 13
		for k := 0; k < 13; k++ {
			idx := base + k
			var u uint16
			switch {
			case idx < units:
				u = binary.LittleEndian.Uint16(utf16buf[idx*2:])
			case idx == units:
				u = 0 // null terminator
			default:
				u = 0xFFFF // padding after terminator
			}
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], u)
			w.Write(b[:])
		}
		setLFNChunks(rec, chunk[:])
	}

	sfnRec := group[nchunks*direntSize : (nchunks+1)*direntSize]
	copy(sfnRec[sfnName:sfnName+11], sfn11[:])
	attr := byte(attrArchive)
	if kind == KindDirectory {
		attr = attrDir
	}
	sfnRec[sfnAttr] = attr
	setSFNFirstCluster(sfnRec, firstCluster)
	setSFNSize(sfnRec, size)

	return group
}

// sfnAllowedPunctuation lists the non-alphanumeric bytes FAT permits in an
// 8.3 name, per the classic FAT "OK" character table.
const sfnAllowedPunctuation = "!#$%&'()-@^_`{}~"

func sfnCharOK(c byte) bool {
	if c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
		return true
	}
	return strings.IndexByte(sfnAllowedPunctuation, c) >= 0
}

// lfnToSFNBase derives the uppercased, stripped, 6-character-truncated
// base used before a numeric-tail suffix is appended.
func lfnToSFNBase(name string) (base string, ext string) {
	stem, extension := splitExt(name)
	base = cleanSFNComponent(stem, 8)
	ext = cleanSFNComponent(extension, 3)
	if len(base) > 6 {
		base = base[:6]
	}
	return base, ext
}

func splitExt(name string) (stem, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

func cleanSFNComponent(s string, maxLen int) string {
	s = strings.ToUpper(s)
	var b strings.Builder
	for i := 0; i < len(s) && b.Len() < maxLen; i++ {
		c := s[i]
		if c == ' ' {
			continue
		}
		if sfnCharOK(c) {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// pad8dot3 packs base and ext into the 11-byte SFN field, space-padded.
func pad8dot3(base, ext string) [11]byte {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[0:8], base)
	copy(out[8:11], ext)
	return out
}

// collectShortNames scans the raw directory buffer for every live SFN
// record's 11-byte name field, the actual on-disk short names deriveSFN
// must not collide with. Unlike LogicalEntry.Name (which is the long name
// when an LFN is present), these are the real encoded short forms.
func collectShortNames(buf []byte) [][11]byte {
	var out [][11]byte
	for off := 0; off+direntSize <= len(buf); off += direntSize {
		rec := buf[off : off+direntSize]
		switch classifyRecord(rec) {
		case recordEnd:
			return out
		case recordFree:
			continue
		}
		if isLFNRecord(rec) {
			continue
		}
		var sfn11 [11]byte
		copy(sfn11[:], rec[sfnName:sfnName+11])
		out = append(out, sfn11)
	}
	return out
}

// deriveSFN synthesizes a collision-free 8.3 short name for name within a
// directory whose live short-name records are existingShort. It implements
// the numeric-tail suffixing (~1, ~2, ...) that FatFs calls gen_numname.
func deriveSFN(name string, existingShort [][11]byte) ([11]byte, error) {
	base, ext := lfnToSFNBase(name)
	if base == "" {
		base = "NONAME"
	}

	used := make(map[[11]byte]bool, len(existingShort))
	for _, sfn11 := range existingShort {
		used[sfn11] = true
	}

	for n := 1; n <= 999999; n++ {
		tail := "~" + strconv.Itoa(n)
		truncated := base
		maxBase := 8 - len(tail)
		if maxBase < 1 {
			return [11]byte{}, newError(KindNameTooLong, "create", name, errSFNExhausted)
		}
		if len(truncated) > maxBase {
			truncated = truncated[:maxBase]
		}
		candidate := pad8dot3(truncated+tail, ext)
		if !used[candidate] {
			return candidate, nil
		}
	}
	return [11]byte{}, newError(KindNameTooLong, "create", name, errSFNExhausted)
}
