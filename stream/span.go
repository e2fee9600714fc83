package stream

import "github.com/keks/bfs"

// span is the part of one block covered by a transfer: bytes [lo, hi) of
// block lbn correspond to bytes [pos, pos+hi-lo) of the caller's buffer.
type span struct {
	lbn    bfs.LBN
	lo, hi int
	pos    int
}

func (s span) len() int { return s.hi - s.lo }

// whole reports whether the span covers the entire block.
func (s span) whole(blksize int) bool { return s.lo == 0 && s.hi == blksize }

// eachSpan calls fn for every block touched by n bytes starting at byte
// offset start, in order, and stops at the first error.
func eachSpan(start int64, n int, blksize int, fn func(span) error) error {
	bs := int64(blksize)
	lbn := bfs.LBN(start / bs)
	lo := int(start % bs)

	for pos := 0; pos < n; lbn++ {
		hi := blksize
		if rem := n - pos; lo+rem < hi {
			hi = lo + rem
		}

		s := span{lbn: lbn, lo: lo, hi: hi, pos: pos}
		if err := fn(s); err != nil {
			return err
		}

		pos += s.len()
		lo = 0
	}
	return nil
}
