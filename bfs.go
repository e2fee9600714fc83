package bfs // import "github.com/keks/bfs"

import (
	"io"
)

// Basic Types

// ReadWriterAt is both a ReaderAt and a WriterAt.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// FD is a file descriptor handed out to callers of the File API.
type FD int32

// Inum identifies a file (its inode).
type Inum int32

// LBN is the index of a block within one file.
type LBN int64

// PBN is the index of a block on the device.
type PBN int64

// Unallocated is returned by Blocks.BlockNumber for blocks that were never written.
const Unallocated PBN = -1

// Whence selects the origin of a seek.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

func (w Whence) String() string {
	switch w {
	case SeekSet:
		return "set"
	case SeekCur:
		return "cur"
	case SeekEnd:
		return "end"
	}
	return "invalid"
}

// Directory Layer

type Directory interface {
	// Lookup returns the inode of an existing file or ErrFileNotFound.
	Lookup(name string) (Inum, error)
	// Create creates the file, truncating it if it already exists.
	Create(name string) (Inum, error)
}

// Open File Layer

// OpenFiles maps descriptors to inodes and owns the per-file cursor.
// There is at most one open entry per inode.
type OpenFiles interface {
	FD(Inum) (FD, error)
	Inum(FD) (Inum, error)
	Release(Inum) error

	Cursor(Inum) (int64, error)
	SetCursor(Inum, int64) error
}

// Block Layer

// Blocks gives block-granular access to the data of a file.
type Blocks interface {
	BlockSize() int

	// BlockNumber returns Unallocated if lbn has no block yet.
	BlockNumber(Inum, LBN) (PBN, error)
	Allocate(Inum, LBN) (PBN, error)

	// ReadBlock fills buf with block lbn of the file. Unallocated blocks read as zeros.
	ReadBlock(Inum, LBN, []byte) error
	WriteBlock(PBN, []byte) error
}

// Inode Layer

type Inodes interface {
	Size(Inum) (int64, error)
	SetSize(Inum, int64) error
}

// Store is everything the stream translator needs from the layers below it.
type Store interface {
	Directory
	OpenFiles
	Blocks
	Inodes
}
