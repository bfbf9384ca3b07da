package fat32

import (
	"encoding/binary"
	"log/slog"

	"github.com/hashicorp/go-multierror"
)

// MountOptions configures Mount. The zero value is valid: logging goes to
// slog.Default().
type MountOptions struct {
	Logger *slog.Logger
}

// FS is a mounted FAT32 volume: the medium plus the cached FAT table and
// derived geometry. It owns the medium for the duration of the session
// and is NOT safe for concurrent use by multiple goroutines — one mount
// handle serves one caller at a time.
type FS struct {
	med Medium
	g   geometry
	fat *fatTable
	cio *clusterIO
	log *slog.Logger
}

// Mount reads the BPB from med and loads the FAT into memory, returning a
// ready-to-use handle. It fails with a KindBadImage *Error if the BPB is
// malformed or the medium is shorter than the FAT region requires.
func Mount(med Medium, opts MountOptions) (*FS, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Debug("fat32: mount")

	g, err := readGeometry(med)
	if err != nil {
		return nil, err
	}
	fat, err := loadFATTable(med, g, log)
	if err != nil {
		return nil, err
	}
	fs := &FS{
		med: med,
		g:   g,
		fat: fat,
		cio: &clusterIO{med: med, g: g, fat: fat},
		log: log,
	}
	log.Info("fat32: mounted",
		slog.Uint64("cluster_size", uint64(g.clusterSize)),
		slog.Uint64("root_cluster", uint64(g.rootDirCluster)),
		slog.Uint64("free_clusters", uint64(fat.freeCount())),
	)
	return fs, nil
}

// Unmount flushes the FAT cache and closes the underlying medium.
// Skipping Unmount loses any FAT updates since the last explicit flush;
// Unmount always attempts both steps and aggregates whichever of them
// fail.
func Unmount(fs *FS) error {
	fs.log.Debug("fat32: unmount")
	var errs *multierror.Error
	if err := fs.fat.flush(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := fs.med.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// List returns the logical entries of the directory named by path. An
// empty path lists the root directory.
func (fs *FS) List(path string) ([]LogicalEntry, error) {
	cluster, err := resolveDirCluster(fs.cio, fs.g.rootDirCluster, path)
	if err != nil {
		return nil, err
	}
	cursor, err := OpenDir(fs.cio, cluster)
	if err != nil {
		return nil, err
	}
	var entries []LogicalEntry
	for {
		e, ok := cursor.Next()
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	fs.log.Debug("fat32: list", slog.String("path", path), slog.Int("count", len(entries)))
	return entries, nil
}

// Lookup resolves path to its first cluster, size, and kind.
func (fs *FS) Lookup(path string) (firstCluster uint32, size uint32, kind EntryKind, err error) {
	_, entry, err := resolvePath(fs.cio, fs.g.rootDirCluster, path)
	if err != nil {
		return 0, 0, 0, err
	}
	return entry.FirstCluster, entry.Size, entry.Kind, nil
}

// Create allocates a fresh cluster under dirPath named name. For
// kind == KindDirectory, "." and ".." SFN records are written into the
// new cluster first.
func (fs *FS) Create(dirPath, name string, kind EntryKind) (uint32, error) {
	dirCluster, err := resolveDirCluster(fs.cio, fs.g.rootDirCluster, dirPath)
	if err != nil {
		return 0, err
	}

	newCluster, err := fs.fat.allocateAfter(0, fs.g)
	if err != nil {
		return 0, err
	}

	if kind == KindDirectory {
		parentForDotDot := dirCluster
		if dirCluster == fs.g.rootDirCluster {
			parentForDotDot = 0
		}
		dotGroup := make([]byte, direntSize*2)
		writeDotRecord(dotGroup[0:direntSize], ".", newCluster)
		writeDotRecord(dotGroup[direntSize:2*direntSize], "..", parentForDotDot)
		if _, _, err := fs.cio.writeChain(newCluster, 0, 0, dotGroup, len(dotGroup)); err != nil {
			return 0, err
		}
	}

	if err := createEntry(fs.cio, dirCluster, name, kind, newCluster, 0); err != nil {
		return 0, err
	}
	if err := fs.fat.flush(); err != nil {
		return 0, err
	}
	fs.log.Info("fat32: create", slog.String("name", name), slog.Uint64("cluster", uint64(newCluster)))
	return newCluster, nil
}

// writeDotRecord fills a 32-byte SFN record for "." or "..".
func writeDotRecord(rec []byte, dots string, cluster uint32) {
	for i := range rec {
		rec[i] = 0
	}
	name := dots + "       " // pad with spaces to 8 bytes total below
	copy(rec[sfnName:sfnName+8], []byte(name))
	for i := sfnName + len(dots); i < sfnName+8; i++ {
		rec[i] = ' '
	}
	for i := sfnExt; i < sfnExt+3; i++ {
		rec[i] = ' '
	}
	rec[sfnAttr] = attrDir
	setSFNFirstCluster(rec, cluster)
	setSFNSize(rec, 0)
}

// Read reads up to length bytes at offset from the file named by path,
// clamped to the file's size.
func (fs *FS) Read(path string, offset int64, length int) ([]byte, error) {
	_, entry, err := resolvePath(fs.cio, fs.g.rootDirCluster, path)
	if err != nil {
		return nil, err
	}
	if entry.Kind == KindDirectory {
		return nil, newError(KindIsADirectory, "read", path, nil)
	}
	if offset >= int64(entry.Size) || length <= 0 {
		return nil, nil
	}
	remaining := int64(entry.Size) - offset
	if int64(length) > remaining {
		length = int(remaining)
	}
	dst := make([]byte, length)
	n, err := fs.cio.readChain(entry.FirstCluster, offset, length, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// Write writes data at offset into the file named by path, extending it
// and its cluster chain as needed, then rewrites the SFN's file_size
// field and flushes the FAT.
func (fs *FS) Write(path string, offset int64, data []byte) (int, error) {
	parentCluster, entry, err := resolvePath(fs.cio, fs.g.rootDirCluster, path)
	if err != nil {
		return 0, err
	}
	if entry.Kind == KindDirectory {
		return 0, newError(KindIsADirectory, "write", path, nil)
	}

	n, newSize, werr := fs.cio.writeChain(entry.FirstCluster, int64(entry.Size), offset, data, len(data))
	if newSize != int64(entry.Size) {
		if ferr := rewriteFileSize(fs.cio, parentCluster, entry.Name, uint32(newSize)); ferr != nil {
			if werr == nil {
				werr = ferr
			}
		}
	}
	if werr != nil {
		return n, werr
	}
	if err := fs.fat.flush(); err != nil {
		return n, err
	}
	fs.log.Debug("fat32: write", slog.String("path", path), slog.Int("bytes", n))
	return n, nil
}

// rewriteFileSize overwrites the file_size field of name's SFN record in
// place after a write extends a file.
func rewriteFileSize(cio *clusterIO, dirCluster uint32, name string, size uint32) error {
	sfnOff, err := locateSFNOffset(cio, dirCluster, name)
	if err != nil {
		return err
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], size)
	_, _, err = cio.writeChain(dirCluster, 0, sfnOff+sfnFileSize, buf[:], 4)
	return err
}
