package volume

import (
	"math/bits"

	"github.com/keks/bfs"
)

// freemap has one bit per device block; a set bit means the block is in use.
type freemap struct {
	bits []byte
	n    int
}

func newFreemap(n int) freemap {
	return freemap{bits: make([]byte, (n+7)/8), n: n}
}

func (fm freemap) used(pbn bfs.PBN) bool {
	return fm.bits[pbn/8]&(1<<(pbn%8)) != 0
}

func (fm freemap) set(pbn bfs.PBN) {
	fm.bits[pbn/8] |= 1 << (pbn % 8)
}

func (fm freemap) clear(pbn bfs.PBN) {
	fm.bits[pbn/8] &^= 1 << (pbn % 8)
}

// first returns the lowest free block.
func (fm freemap) first() (bfs.PBN, bool) {
	for i, b := range fm.bits {
		if b == 0xff {
			continue
		}
		pbn := bfs.PBN(i*8 + bits.TrailingZeros8(^b))
		if int(pbn) >= fm.n {
			break
		}
		return pbn, true
	}
	return 0, false
}

func (fm freemap) free() int {
	used := 0
	for _, b := range fm.bits {
		used += bits.OnesCount8(b)
	}
	// padding bits past n are never set
	return fm.n - used
}

func (v *Volume) writeFreemap() error {
	per := v.bs * 8
	for i := 0; i < blocksFor(v.free.n, per); i++ {
		if err := v.writeFreemapBlock(i); err != nil {
			return err
		}
	}
	return nil
}

// writeFreemapBlock persists the i-th block of the bitmap.
func (v *Volume) writeFreemapBlock(i int) error {
	buf := make([]byte, v.bs)
	copy(buf, v.free.bits[i*v.bs:])
	return v.disk.WriteBlock(bfs.PBN(v.sb.FreeStart)+bfs.PBN(i), buf)
}

func (v *Volume) readFreemap(buf []byte) error {
	for i := 0; i < blocksFor(v.free.n, v.bs*8); i++ {
		if err := v.disk.ReadBlock(bfs.PBN(v.sb.FreeStart)+bfs.PBN(i), buf); err != nil {
			return err
		}
		copy(v.free.bits[i*v.bs:], buf)
	}

	// stray bits in the padding would make free() lie
	for pbn := v.free.n; pbn < len(v.free.bits)*8; pbn++ {
		v.free.clear(bfs.PBN(pbn))
	}

	for pbn := 0; pbn < int(v.sb.DataStart); pbn++ {
		if !v.free.used(bfs.PBN(pbn)) {
			return errCorruptf("metadata block %d marked free", pbn)
		}
	}
	return nil
}

// allocBlock takes the lowest free block, zeroes it on disk and marks it used.
func (v *Volume) allocBlock() (bfs.PBN, error) {
	pbn, ok := v.free.first()
	if !ok {
		return 0, bfs.ErrAllocationFailed
	}

	if err := v.disk.WriteBlock(pbn, make([]byte, v.bs)); err != nil {
		return 0, err
	}

	v.free.set(pbn)
	if err := v.writeFreemapBlock(int(pbn) / (v.bs * 8)); err != nil {
		v.free.clear(pbn)
		return 0, err
	}

	return pbn, nil
}

func (v *Volume) freeBlock(pbn bfs.PBN) error {
	if pbn < bfs.PBN(v.sb.DataStart) || int(pbn) >= v.free.n {
		return errCorruptf("freeing block %d outside the data area", pbn)
	}

	v.free.clear(pbn)
	return v.writeFreemapBlock(int(pbn) / (v.bs * 8))
}
