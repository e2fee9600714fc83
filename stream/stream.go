// Package stream translates byte-stream file access (open, read, write, seek)
// into the block-granular operations of a bfs.Store.
//
// A Translator is not safe for concurrent use on the same descriptor: the
// cursor is read at the start of a call and written at the end.
package stream

import (
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/keks/bfs"
)

// Options holds the optional Translator parameters.
type Options struct {
	// StrictSeek rejects every negative seek offset, even relative ones
	// that would leave the cursor non-negative.
	StrictSeek bool

	Logger *zap.Logger
}

func (src *Options) copyWithDefaults() *Options {
	opts := Options{}
	if src != nil {
		opts = *src
	}
	if opts.Logger == nil {
		opts.Logger = bfs.Logger()
	}
	return &opts
}

// Translator implements the file API on top of a Store.
type Translator struct {
	store  bfs.Store
	strict bool
	log    *zap.Logger
}

// New returns a Translator backed by store.
func New(store bfs.Store, opts *Options) *Translator {
	opts = opts.copyWithDefaults()
	return &Translator{
		store:  store,
		strict: opts.StrictSeek,
		log:    opts.Logger,
	}
}

// Open opens an existing file with the cursor at 0.
func (t *Translator) Open(name string) (bfs.FD, error) {
	inum, err := t.store.Lookup(name)
	if err != nil {
		return 0, err
	}
	return t.store.FD(inum)
}

// Create creates name, truncating it if it exists, and opens it.
func (t *Translator) Create(name string) (bfs.FD, error) {
	inum, err := t.store.Create(name)
	if err != nil {
		return 0, err
	}
	return t.store.FD(inum)
}

// Close releases fd. Closing an fd that is not open is an error.
func (t *Translator) Close(fd bfs.FD) error {
	inum, err := t.store.Inum(fd)
	if err != nil {
		return err
	}
	return t.store.Release(inum)
}

// Tell returns the cursor of fd.
func (t *Translator) Tell(fd bfs.FD) (int64, error) {
	inum, err := t.store.Inum(fd)
	if err != nil {
		return 0, err
	}
	return t.store.Cursor(inum)
}

// Size returns the recorded size of the file open on fd.
func (t *Translator) Size(fd bfs.FD) (int64, error) {
	inum, err := t.store.Inum(fd)
	if err != nil {
		return 0, err
	}
	return t.store.Size(inum)
}

// Seek moves the cursor of fd and returns its new value. Seeking past the
// end raises the recorded size to the new cursor; no blocks are allocated.
func (t *Translator) Seek(fd bfs.FD, offset int64, whence bfs.Whence) (int64, error) {
	inum, err := t.store.Inum(fd)
	if err != nil {
		return 0, err
	}
	size, err := t.store.Size(inum)
	if err != nil {
		return 0, err
	}

	var base int64
	switch whence {
	case bfs.SeekSet:
	case bfs.SeekCur:
		base, err = t.store.Cursor(inum)
		if err != nil {
			return 0, err
		}
	case bfs.SeekEnd:
		base = size
	default:
		return 0, fmt.Errorf("seek fd=%d whence=%d: %w", fd, int(whence), bfs.ErrInvalidWhence)
	}

	if t.strict && offset < 0 {
		return 0, fmt.Errorf("seek fd=%d offset=%d: %w", fd, offset, bfs.ErrInvalidOffset)
	}
	if offset > 0 && base > math.MaxInt64-offset {
		return 0, fmt.Errorf("seek fd=%d offset=%d whence=%s: overflow: %w", fd, offset, whence, bfs.ErrInvalidOffset)
	}

	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("seek fd=%d offset=%d whence=%s: cursor would be %d: %w", fd, offset, whence, pos, bfs.ErrInvalidOffset)
	}

	if pos > size {
		if err := t.store.SetSize(inum, pos); err != nil {
			return 0, err
		}
	}
	if err := t.store.SetCursor(inum, pos); err != nil {
		return 0, err
	}
	return pos, nil
}

// Read reads up to len(p) bytes at the cursor of fd and advances the cursor
// by the number of bytes read. Reads stop at the recorded file size; a read
// that starts at or past it returns io.EOF.
func (t *Translator) Read(fd bfs.FD, p []byte) (int, error) {
	inum, err := t.store.Inum(fd)
	if err != nil {
		return 0, err
	}
	start, err := t.store.Cursor(inum)
	if err != nil {
		return 0, err
	}
	size, err := t.store.Size(inum)
	if err != nil {
		return 0, err
	}

	if len(p) == 0 {
		return 0, nil
	}
	if start >= size {
		return 0, io.EOF
	}

	n := len(p)
	if rem := size - start; int64(n) > rem {
		n = int(rem)
	}

	bs := t.store.BlockSize()
	staging := make([]byte, bs)

	err = eachSpan(start, n, bs, func(s span) error {
		if err := t.store.ReadBlock(inum, s.lbn, staging); err != nil {
			return fmt.Errorf("read fd=%d lbn=%d: %w", fd, s.lbn, err)
		}
		copy(p[s.pos:s.pos+s.len()], staging[s.lo:s.hi])
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := t.store.SetCursor(inum, start+int64(n)); err != nil {
		return 0, err
	}
	return n, nil
}

// Write writes p at the cursor of fd, allocating blocks as needed, and
// advances the cursor by len(p).
//
// If allocation fails part way, Write returns the number of bytes that were
// persisted in earlier blocks together with the error. Those blocks are not
// rolled back, and neither the cursor nor the recorded size move.
func (t *Translator) Write(fd bfs.FD, p []byte) (int, error) {
	inum, err := t.store.Inum(fd)
	if err != nil {
		return 0, err
	}
	start, err := t.store.Cursor(inum)
	if err != nil {
		return 0, err
	}
	size, err := t.store.Size(inum)
	if err != nil {
		return 0, err
	}

	if len(p) == 0 {
		return 0, nil
	}

	bs := t.store.BlockSize()
	staging := make([]byte, bs)
	written := 0

	err = eachSpan(start, len(p), bs, func(s span) error {
		pbn, err := t.store.BlockNumber(inum, s.lbn)
		if err != nil {
			return err
		}

		switch {
		case pbn == bfs.Unallocated:
			pbn, err = t.store.Allocate(inum, s.lbn)
			if err != nil {
				return err
			}
			clear(staging)
		case !s.whole(bs):
			// keep the bytes of the block outside [lo, hi)
			if err := t.store.ReadBlock(inum, s.lbn, staging); err != nil {
				return err
			}
		}

		copy(staging[s.lo:s.hi], p[s.pos:])
		if err := t.store.WriteBlock(pbn, staging); err != nil {
			return err
		}

		written += s.len()
		return nil
	})
	if err != nil {
		if written > 0 {
			t.log.Warn("write failed part way, persisted blocks are kept",
				zap.Int32("fd", int32(fd)),
				zap.Int64("offset", start),
				zap.Int("requested", len(p)),
				zap.Int("persisted", written),
				zap.Error(err))
		}
		return written, fmt.Errorf("write fd=%d offset=%d: %w", fd, start, err)
	}

	end := start + int64(len(p))
	if end > size {
		if err := t.store.SetSize(inum, end); err != nil {
			return written, err
		}
	}
	if err := t.store.SetCursor(inum, end); err != nil {
		return written, err
	}
	return written, nil
}
