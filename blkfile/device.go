package blkfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/keks/bfs"
)

// HeaderSize is the size of the device header at the start of block 0.
const HeaderSize = 12

var magic = [4]byte{'B', 'F', 'S', 1}

var (
	ErrBadMagic   = errors.New("blkfile: not a bfs device")
	ErrBadBuffer  = errors.New("blkfile: buffer is not one block long")
	ErrBlockRange = errors.New("blkfile: block number out of range")
	ErrBlockSize  = errors.New("blkfile: unsupported block size")
)

// MinBlockSize is the smallest block size a device can be formatted with.
const MinBlockSize = 64

// Device does fixed-size block I/O on top of a ReadWriterAt.
// Block 0 holds the device header and cannot be read or written through
// ReadBlock and WriteBlock.
type Device struct {
	lower bfs.ReadWriterAt

	blksize int
	count   int64
}

type header struct {
	Magic     [4]byte
	BlockSize uint32
	Count     uint32
}

// New formats lower as a device of count blocks of blksize bytes each.
func New(lower bfs.ReadWriterAt, blksize int, count int64) (*Device, error) {
	if blksize < MinBlockSize {
		return nil, fmt.Errorf("%w: %d", ErrBlockSize, blksize)
	}
	if count < 2 || count > int64(^uint32(0)) {
		return nil, fmt.Errorf("%w: device needs 2 to %d blocks, got %d", ErrBlockRange, ^uint32(0), count)
	}

	dev := &Device{
		lower:   lower,
		blksize: blksize,
		count:   count,
	}

	return dev, dev.writeHeader()
}

// Open reads the header of an existing device.
func Open(lower bfs.ReadWriterAt) (*Device, error) {
	dev := &Device{lower: lower}
	return dev, dev.parse()
}

func (dev *Device) writeHeader() error {
	var buf bytes.Buffer
	hdr := header{
		Magic:     magic,
		BlockSize: uint32(dev.blksize),
		Count:     uint32(dev.count),
	}

	// binary.Write into a bytes.Buffer does not fail for fixed-size structs
	_ = binary.Write(&buf, binary.LittleEndian, hdr)

	meta := make([]byte, dev.blksize)
	copy(meta, buf.Bytes())

	_, err := dev.lower.WriteAt(meta, 0)
	return err
}

func (dev *Device) parse() error {
	var hdr header
	err := binary.Read(readerFromReaderAt(dev.lower, 0), binary.LittleEndian, &hdr)
	if err != nil {
		return fmt.Errorf("blkfile: read header: %w", err)
	}

	if hdr.Magic != magic {
		return ErrBadMagic
	}
	if hdr.BlockSize < MinBlockSize {
		return fmt.Errorf("%w: %d", ErrBlockSize, hdr.BlockSize)
	}

	dev.blksize = int(hdr.BlockSize)
	dev.count = int64(hdr.Count)

	return nil
}

// BlockSize returns the size of a block in bytes.
func (dev *Device) BlockSize() int { return dev.blksize }

// Count returns the number of blocks of the device, including the header block.
func (dev *Device) Count() int64 { return dev.count }

func (dev *Device) check(pbn bfs.PBN, buf []byte) error {
	if pbn < 1 || int64(pbn) >= dev.count {
		return fmt.Errorf("%w: %d not in [1, %d)", ErrBlockRange, pbn, dev.count)
	}
	if buf != nil && len(buf) != dev.blksize {
		return fmt.Errorf("%w: got %d bytes, need %d", ErrBadBuffer, len(buf), dev.blksize)
	}

	return nil
}

// Block returns the region of block pbn.
func (dev *Device) Block(pbn bfs.PBN) (bfs.ReadWriterAt, error) {
	if err := dev.check(pbn, nil); err != nil {
		return nil, err
	}

	return &block{
		off:   int64(pbn) * int64(dev.blksize),
		size:  dev.blksize,
		lower: dev.lower,
	}, nil
}

// ReadBlock reads block pbn into buf, which must be exactly one block long.
func (dev *Device) ReadBlock(pbn bfs.PBN, buf []byte) error {
	blk, err := dev.Block(pbn)
	if err != nil {
		return err
	}
	if err := dev.check(pbn, buf); err != nil {
		return err
	}

	_, err = blk.ReadAt(buf, 0)
	if err != nil {
		return fmt.Errorf("blkfile: read block %d: %w", pbn, err)
	}

	return nil
}

// WriteBlock writes buf, which must be exactly one block long, to block pbn.
func (dev *Device) WriteBlock(pbn bfs.PBN, buf []byte) error {
	blk, err := dev.Block(pbn)
	if err != nil {
		return err
	}
	if err := dev.check(pbn, buf); err != nil {
		return err
	}

	_, err = blk.WriteAt(buf, 0)
	if err != nil {
		return fmt.Errorf("blkfile: write block %d: %w", pbn, err)
	}

	return nil
}
