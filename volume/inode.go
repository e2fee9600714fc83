package volume

import (
	"encoding/binary"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/keks/bfs"
)

const (
	inodeSize  = 32
	numDirect  = 5
	ptrSize    = 4
	maxRawSize = math.MaxUint32
)

// inode records the size of a file and where its blocks live. A zero block
// pointer means unallocated; block 0 is the device header and never holds data.
type inode struct {
	Size     uint32
	Direct   [numDirect]uint32
	Indirect uint32
}

func (ino *inode) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], ino.Size)
	for i, p := range ino.Direct {
		binary.LittleEndian.PutUint32(buf[4+i*ptrSize:], p)
	}
	binary.LittleEndian.PutUint32(buf[4+numDirect*ptrSize:], ino.Indirect)
	clear(buf[8+numDirect*ptrSize : inodeSize])
}

func (ino *inode) decode(buf []byte) {
	ino.Size = binary.LittleEndian.Uint32(buf[0:])
	for i := range ino.Direct {
		ino.Direct[i] = binary.LittleEndian.Uint32(buf[4+i*ptrSize:])
	}
	ino.Indirect = binary.LittleEndian.Uint32(buf[4+numDirect*ptrSize:])
}

func errCorruptf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{bfs.ErrCorrupt}, args...)...)
}

// MaxFileBlocks returns how many blocks a single file can hold.
func (v *Volume) MaxFileBlocks() int {
	return numDirect + v.bs/ptrSize
}

func (v *Volume) inodeLoc(inum bfs.Inum) (bfs.PBN, int) {
	per := v.bs / inodeSize
	return bfs.PBN(v.sb.InodeStart) + bfs.PBN(int(inum)/per), (int(inum) % per) * inodeSize
}

// writeInode persists the block holding inum.
func (v *Volume) writeInode(inum bfs.Inum) error {
	pbn, _ := v.inodeLoc(inum)
	per := v.bs / inodeSize
	first := (int(inum) / per) * per

	buf := make([]byte, v.bs)
	for i := first; i < first+per && i < len(v.inodes); i++ {
		v.inodes[i].encode(buf[(i-first)*inodeSize:])
	}
	return v.disk.WriteBlock(pbn, buf)
}

func (v *Volume) writeAllInodes() error {
	per := v.bs / inodeSize
	for inum := 0; inum < len(v.inodes); inum += per {
		if err := v.writeInode(bfs.Inum(inum)); err != nil {
			return err
		}
	}
	return nil
}

func (v *Volume) readAllInodes(buf []byte) error {
	per := v.bs / inodeSize
	for inum := 0; inum < len(v.inodes); inum += per {
		pbn, _ := v.inodeLoc(bfs.Inum(inum))
		if err := v.disk.ReadBlock(pbn, buf); err != nil {
			return err
		}
		for i := inum; i < inum+per && i < len(v.inodes); i++ {
			v.inodes[i].decode(buf[(i-inum)*inodeSize:])
		}
	}
	return nil
}

// inode returns the inode of a file that exists in the directory.
func (v *Volume) inode(inum bfs.Inum) (*inode, error) {
	if inum < 0 || int(inum) >= len(v.inodes) || v.names[inum] == "" {
		return nil, fmt.Errorf("volume: inum %d: %w", inum, bfs.ErrInvalidDescriptor)
	}
	return &v.inodes[inum], nil
}

func (v *Volume) readPointers(pbn bfs.PBN) ([]byte, error) {
	buf := make([]byte, v.bs)
	if err := v.disk.ReadBlock(pbn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (v *Volume) blockNumber(ino *inode, lbn bfs.LBN) (bfs.PBN, error) {
	if lbn < 0 || lbn >= bfs.LBN(v.MaxFileBlocks()) {
		return bfs.Unallocated, nil
	}

	var p uint32
	if lbn < numDirect {
		p = ino.Direct[lbn]
	} else {
		if ino.Indirect == 0 {
			return bfs.Unallocated, nil
		}
		ptrs, err := v.readPointers(bfs.PBN(ino.Indirect))
		if err != nil {
			return 0, err
		}
		p = binary.LittleEndian.Uint32(ptrs[(lbn-numDirect)*ptrSize:])
	}

	if p == 0 {
		return bfs.Unallocated, nil
	}
	return bfs.PBN(p), nil
}

// BlockNumber implements bfs.Blocks.
func (v *Volume) BlockNumber(inum bfs.Inum, lbn bfs.LBN) (bfs.PBN, error) {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return 0, err
	}
	ino, err := v.inode(inum)
	if err != nil {
		return 0, err
	}
	return v.blockNumber(ino, lbn)
}

// Allocate implements bfs.Blocks. Allocating a block that already exists
// returns it unchanged.
func (v *Volume) Allocate(inum bfs.Inum, lbn bfs.LBN) (bfs.PBN, error) {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return 0, err
	}
	ino, err := v.inode(inum)
	if err != nil {
		return 0, err
	}

	if lbn < 0 || lbn >= bfs.LBN(v.MaxFileBlocks()) {
		return 0, fmt.Errorf("volume: allocate inum=%d lbn=%d: file can hold %d blocks: %w",
			inum, lbn, v.MaxFileBlocks(), bfs.ErrAllocationFailed)
	}

	pbn, err := v.blockNumber(ino, lbn)
	if err != nil || pbn != bfs.Unallocated {
		return pbn, err
	}

	need := 1
	if lbn >= numDirect && ino.Indirect == 0 {
		need++
	}
	if v.free.free() < need {
		return 0, fmt.Errorf("volume: allocate inum=%d lbn=%d: no free blocks: %w", inum, lbn, bfs.ErrAllocationFailed)
	}

	if lbn >= numDirect && ino.Indirect == 0 {
		ind, err := v.allocBlock()
		if err != nil {
			return 0, err
		}
		ino.Indirect = uint32(ind)
		if err := v.writeInode(inum); err != nil {
			return 0, err
		}
	}

	pbn, err = v.allocBlock()
	if err != nil {
		return 0, err
	}

	if lbn < numDirect {
		ino.Direct[lbn] = uint32(pbn)
		err = v.writeInode(inum)
	} else {
		var ptrs []byte
		ptrs, err = v.readPointers(bfs.PBN(ino.Indirect))
		if err == nil {
			binary.LittleEndian.PutUint32(ptrs[(lbn-numDirect)*ptrSize:], uint32(pbn))
			err = v.disk.WriteBlock(bfs.PBN(ino.Indirect), ptrs)
		}
	}
	if err != nil {
		return 0, err
	}

	v.log.Debug("allocated block",
		zap.Int32("inum", int32(inum)),
		zap.Int64("lbn", int64(lbn)),
		zap.Int64("pbn", int64(pbn)))

	return pbn, nil
}

// truncate frees every block of inum and sets its size to zero.
func (v *Volume) truncate(inum bfs.Inum) error {
	ino := &v.inodes[inum]

	for i, p := range ino.Direct {
		if p == 0 {
			continue
		}
		if err := v.freeBlock(bfs.PBN(p)); err != nil {
			return err
		}
		ino.Direct[i] = 0
	}

	if ino.Indirect != 0 {
		ptrs, err := v.readPointers(bfs.PBN(ino.Indirect))
		if err != nil {
			return err
		}
		for i := 0; i < v.bs/ptrSize; i++ {
			if p := binary.LittleEndian.Uint32(ptrs[i*ptrSize:]); p != 0 {
				if err := v.freeBlock(bfs.PBN(p)); err != nil {
					return err
				}
			}
		}
		if err := v.freeBlock(bfs.PBN(ino.Indirect)); err != nil {
			return err
		}
		ino.Indirect = 0
	}

	if ino.Size != 0 {
		v.log.Debug("truncated file", zap.Int32("inum", int32(inum)), zap.Uint32("size", ino.Size))
	}
	ino.Size = 0
	return v.writeInode(inum)
}

// ReadBlock implements bfs.Blocks.
func (v *Volume) ReadBlock(inum bfs.Inum, lbn bfs.LBN, buf []byte) error {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return err
	}
	ino, err := v.inode(inum)
	if err != nil {
		return err
	}
	if len(buf) != v.bs {
		return fmt.Errorf("volume: read inum=%d lbn=%d: got %d byte buffer, need %d", inum, lbn, len(buf), v.bs)
	}

	pbn, err := v.blockNumber(ino, lbn)
	if err != nil {
		return err
	}
	if pbn == bfs.Unallocated {
		clear(buf)
		return nil
	}
	return v.disk.ReadBlock(pbn, buf)
}

// WriteBlock implements bfs.Blocks. Only allocated data blocks may be written.
func (v *Volume) WriteBlock(pbn bfs.PBN, buf []byte) error {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return err
	}
	if pbn < bfs.PBN(v.sb.DataStart) || int(pbn) >= v.free.n || !v.free.used(pbn) {
		return fmt.Errorf("volume: write block %d: not an allocated data block", pbn)
	}
	return v.disk.WriteBlock(pbn, buf)
}

// Size implements bfs.Inodes.
func (v *Volume) Size(inum bfs.Inum) (int64, error) {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return 0, err
	}
	ino, err := v.inode(inum)
	if err != nil {
		return 0, err
	}
	return int64(ino.Size), nil
}

// SetSize implements bfs.Inodes.
func (v *Volume) SetSize(inum bfs.Inum, size int64) error {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return err
	}
	ino, err := v.inode(inum)
	if err != nil {
		return err
	}
	if size < 0 || size > maxRawSize {
		return fmt.Errorf("volume: set size inum=%d to %d: %w", inum, size, bfs.ErrInvalidOffset)
	}

	ino.Size = uint32(size)
	return v.writeInode(inum)
}
