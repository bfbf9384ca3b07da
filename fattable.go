package fat32

import (
	"encoding/binary"
	"io"
	"log/slog"

	"github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"
)

// End-of-chain and sentinel thresholds for 32-bit FAT entries.
const (
	fatEntryMask  uint32 = 0x0FFF_FFFF
	fatEOCThresh  uint32 = 0x0FFF_FFF8
	fatEntryFree  uint32 = 0
	firstDataClus uint32 = 2
)

// fatTable is the cached, in-memory array of 32-bit cluster entries. It is
// authoritative for the session: the medium is never consulted for FAT
// bytes again after mount, matching the single-writer model this driver assumes.
type fatTable struct {
	med    Medium
	log    *slog.Logger
	offset int64 // fatByteOffset
	size   int64 // fatByteSize, in bytes
	dirty  bool

	entries []uint32 // one entry per cluster, indices 0 and 1 unused
	free    bitmap.Bitmap
	nfree   uint32
}

func loadFATTable(med Medium, g geometry, log *slog.Logger) (*fatTable, error) {
	end, err := med.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, newError(KindIOError, "mount", "", err)
	}
	if end < g.fatByteOffset+g.fatByteSize {
		return nil, newError(KindBadImage, "mount", "", errMediumTooShort)
	}

	raw := make([]byte, g.fatByteSize)
	if _, err := med.Seek(g.fatByteOffset, io.SeekStart); err != nil {
		return nil, newError(KindIOError, "mount", "", err)
	}
	if _, err := io.ReadFull(med, raw); err != nil {
		return nil, newError(KindBadImage, "mount", "", err)
	}

	n := len(raw) / 4
	t := &fatTable{
		med:     med,
		log:     log,
		offset:  g.fatByteOffset,
		size:    g.fatByteSize,
		entries: make([]uint32, n),
		free:    bitmap.New(n),
	}
	for i := range t.entries {
		t.entries[i] = binary.LittleEndian.Uint32(raw[i*4:]) & fatEntryMask
	}
	for i := firstDataClus; i < uint32(n); i++ {
		if t.entries[i] == fatEntryFree {
			t.free.Set(int(i), true)
			t.nfree++
		}
	}
	return t, nil
}

// next returns FAT[c]. c must satisfy 2 <= c < len(entries).
func (t *fatTable) next(c uint32) uint32 {
	return t.entries[c]
}

// isEnd reports whether v marks end-of-chain (or any other non-link
// sentinel, which read traversal treats identically).
func (t *fatTable) isEnd(v uint32) bool {
	// Valid links are 2..0x0FFFFFF6; 0, 1, 0x0FFFFFF7 and EOC values are not.
	return v < firstDataClus || v > 0x0FFF_FFF6
}

// chainLength counts entries from start inclusive until isEnd holds.
// Detects cycles with a visited bitmap, since a chain can never legally
// exceed the number of clusters in the table.
func (t *fatTable) chainLength(start uint32) (int, error) {
	if start < firstDataClus || int(start) >= len(t.entries) {
		return 0, newError(KindIOError, "chain_length", "", errInvalidCluster)
	}
	seen := bitmap.New(len(t.entries))
	n := 0
	c := start
	for {
		if seen.Get(int(c)) {
			return n, newError(KindCycleDetected, "chain_length", "", errChainCycle)
		}
		seen.Set(int(c), true)
		n++
		v := t.next(c)
		if t.isEnd(v) {
			return n, nil
		}
		c = v
	}
}

// lastInChain returns Cn, the final cluster of the chain rooted at start.
// Undefined if start < 2; callers must not rely on any
// particular value in that case, though this implementation returns start.
func (t *fatTable) lastInChain(start uint32) uint32 {
	if start < firstDataClus {
		return start
	}
	c := start
	seen := bitmap.New(len(t.entries))
	for {
		if seen.Get(int(c)) {
			return c // Cycle; give up where we are rather than loop forever.
		}
		seen.Set(int(c), true)
		v := t.next(c)
		if t.isEnd(v) {
			return c
		}
		c = v
	}
}

// findFree returns the smallest free cluster index >= 2, or false if none
// is free.
func (t *fatTable) findFree() (uint32, bool) {
	if t.nfree == 0 {
		return 0, false
	}
	for i := firstDataClus; i < uint32(len(t.entries)); i++ {
		if t.free.Get(int(i)) {
			return i, true
		}
	}
	return 0, false
}

// freeCount returns the number of free clusters, tracked incrementally by
// setEntry rather than recomputed by scanning the bitmap.
func (t *fatTable) freeCount() uint32 {
	return t.nfree
}

func (t *fatTable) setEntry(c, v uint32) {
	old := t.entries[c]
	t.entries[c] = v & fatEntryMask
	wasFree := old == fatEntryFree
	isFree := t.entries[c] == fatEntryFree
	if wasFree && !isFree {
		t.free.Set(int(c), false)
		t.nfree--
	} else if !wasFree && isFree {
		t.free.Set(int(c), true)
		t.nfree++
	}
	t.dirty = true
}

// allocateAfter finds a free cluster f, links FAT[c] = f, sets FAT[f] = EOC,
// zeroes f's data region on the medium, and returns f. With c == 0 nothing
// is linked: f starts a new single-cluster chain.
func (t *fatTable) allocateAfter(c uint32, g geometry) (uint32, error) {
	f, ok := t.findFree()
	if !ok {
		return 0, newError(KindNoSpace, "allocate_after", "", errNoFreeCluster)
	}
	if err := t.zeroClusterData(f, g); err != nil {
		return 0, err
	}
	t.setEntry(f, fatEOCThresh)
	if c != 0 {
		t.setEntry(c, f)
	}
	t.log.Info("fat: allocated cluster", slog.Uint64("cluster", uint64(f)), slog.Uint64("after", uint64(c)))
	return f, nil
}

// extendChain is equivalent to allocateAfter(lastInChain(start)).
func (t *fatTable) extendChain(start uint32, g geometry) (uint32, error) {
	last := t.lastInChain(start)
	return t.allocateAfter(last, g)
}

func (t *fatTable) zeroClusterData(c uint32, g geometry) error {
	zeros := make([]byte, g.clusterSize)
	if _, err := t.med.Seek(g.clusterByteOffset(c), io.SeekStart); err != nil {
		return newError(KindIOError, "allocate_after", "", err)
	}
	if _, err := t.med.Write(zeros); err != nil {
		return newError(KindIOError, "allocate_after", "", err)
	}
	return nil
}

// flush writes the FAT cache back to fatByteOffset. Mirroring to a second
// FAT copy is not implemented — see DESIGN.md.
func (t *fatTable) flush() error {
	if !t.dirty {
		return nil
	}
	raw := make([]byte, t.size)
	for i, e := range t.entries {
		binary.LittleEndian.PutUint32(raw[i*4:], e)
	}

	var errs *multierror.Error
	const chunk = 64 * 1024
	for off := 0; off < len(raw); off += chunk {
		end := off + chunk
		if end > len(raw) {
			end = len(raw)
		}
		if _, err := t.med.Seek(t.offset+int64(off), io.SeekStart); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if _, err := t.med.Write(raw[off:end]); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return newError(KindIOError, "flush", "", err)
	}
	t.dirty = false
	return nil
}
