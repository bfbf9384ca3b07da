package fat32

import "io"

// Medium is the seekable, read/write byte-addressable backing store the
// core driver operates on. Any *os.File already satisfies it; callers
// supply everything above this layer (transport, caching, logging sinks).
type Medium interface {
	io.ReadWriteSeeker
	io.Closer
}
