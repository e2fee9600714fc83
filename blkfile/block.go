package blkfile

import (
	"errors"
	"io"

	"github.com/keks/bfs"
)

// block is a window of size bytes at off in lower. Accesses that cross the
// window end are cut short and report io.EOF.
type block struct {
	off  int64
	size int

	lower bfs.ReadWriterAt
}

var _ bfs.ReadWriterAt = (*block)(nil)

func (blk *block) ReadAt(dst []byte, off int64) (int, error) {
	if off < 0 || off >= int64(blk.size) {
		return 0, io.EOF
	}

	max := blk.size - int(off)
	var retEOF bool
	if max < len(dst) {
		dst = dst[:max]
		retEOF = true
	}

	n, err := blk.lower.ReadAt(dst, off+blk.off)
	if errors.Is(err, io.EOF) {
		// the image may be shorter than the device; the missing tail reads as zeros
		clear(dst[n:])
		n, err = len(dst), nil
	}
	if err != nil {
		return n, err
	}

	// return EOF if the caller wanted to read beyond the end of the block
	if retEOF {
		return n, io.EOF
	}

	return n, nil
}

func (blk *block) WriteAt(data []byte, off int64) (int, error) {
	if off < 0 || off >= int64(blk.size) {
		return 0, io.EOF
	}

	max := blk.size - int(off)
	var retEOF bool
	if max < len(data) {
		data = data[:max]
		retEOF = true
	}

	n, err := blk.lower.WriteAt(data, off+blk.off)
	if err != nil {
		// NOTE: this is only expected if the lower layer has failures,
		//       like e.g. running out of disk space.
		return n, err
	}

	if retEOF {
		return n, io.EOF
	}

	return n, nil
}
