// Package volume implements bfs.Store on top of a blkfile.Disk: a superblock,
// a fixed inode table, a flat directory, a free-block bitmap and the table of
// open files.
//
// Layout, in device blocks:
//
//	0               device header (blkfile)
//	1               superblock
//	inodeStart...   inode table, 32 bytes per inode
//	dirStart...     directory, one 16 byte entry per inode
//	freeStart...    free-block bitmap, one bit per device block
//	dataStart...    file data and indirect blocks
package volume

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/keks/bfs"
	"github.com/keks/bfs/blkfile"
)

const superPBN bfs.PBN = 1

// Options holds the parameters used to format or mount a volume.
type Options struct {
	// FileSystem holds the disk image. Defaults to the OS file system rooted
	// at the working directory.
	FileSystem billy.Filesystem

	// Path of the disk image inside FileSystem. Defaults to "bfs.disk".
	Path string

	// BlockSize, NumBlocks and NumInodes are only used by Format; Mount reads
	// them from the image.
	BlockSize int
	NumBlocks int
	NumInodes int

	Logger *zap.Logger
}

func (src *Options) copyWithDefaults() *Options {
	opts := Options{}
	if src != nil {
		opts = *src
	}
	if opts.FileSystem == nil {
		opts.FileSystem = osfs.New(".")
	}
	if opts.Path == "" {
		opts.Path = "bfs.disk"
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = 512
	}
	if opts.NumBlocks == 0 {
		opts.NumBlocks = 1024
	}
	if opts.NumInodes == 0 {
		opts.NumInodes = 64
	}
	if opts.Logger == nil {
		opts.Logger = bfs.Logger()
	}
	return &opts
}

type superblock struct {
	NumInodes  uint32
	InodeStart uint32
	DirStart   uint32
	FreeStart  uint32
	DataStart  uint32
}

func (sb *superblock) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], sb.NumInodes)
	binary.LittleEndian.PutUint32(buf[4:], sb.InodeStart)
	binary.LittleEndian.PutUint32(buf[8:], sb.DirStart)
	binary.LittleEndian.PutUint32(buf[12:], sb.FreeStart)
	binary.LittleEndian.PutUint32(buf[16:], sb.DataStart)
}

func (sb *superblock) decode(buf []byte) {
	sb.NumInodes = binary.LittleEndian.Uint32(buf[0:])
	sb.InodeStart = binary.LittleEndian.Uint32(buf[4:])
	sb.DirStart = binary.LittleEndian.Uint32(buf[8:])
	sb.FreeStart = binary.LittleEndian.Uint32(buf[12:])
	sb.DataStart = binary.LittleEndian.Uint32(buf[16:])
}

func blocksFor(n, perBlock int) int {
	return (n + perBlock - 1) / perBlock
}

// layout computes the superblock for a fresh volume.
func layout(blksize, numBlocks, numInodes int) (superblock, error) {
	var sb superblock
	if blksize < blkfile.MinBlockSize || blksize%inodeSize != 0 {
		return sb, fmt.Errorf("volume: block size %d: %w", blksize, blkfile.ErrBlockSize)
	}
	if numInodes < 1 {
		return sb, fmt.Errorf("volume: need at least one inode, got %d", numInodes)
	}

	inodeBlocks := blocksFor(numInodes, blksize/inodeSize)
	dirBlocks := blocksFor(numInodes, blksize/direntSize)
	freeBlocks := blocksFor(numBlocks, blksize*8)

	sb.NumInodes = uint32(numInodes)
	sb.InodeStart = uint32(superPBN) + 1
	sb.DirStart = sb.InodeStart + uint32(inodeBlocks)
	sb.FreeStart = sb.DirStart + uint32(dirBlocks)
	sb.DataStart = sb.FreeStart + uint32(freeBlocks)

	if int(sb.DataStart) >= numBlocks {
		return sb, fmt.Errorf("volume: %d blocks cannot hold metadata for %d inodes", numBlocks, numInodes)
	}

	return sb, nil
}

// Volume is a mounted bfs disk. It implements bfs.Store.
//
// All metadata is kept in memory and written through to the disk whenever it
// changes.
type Volume struct {
	l sync.Mutex

	disk *blkfile.Disk
	bs   int
	log  *zap.Logger

	sb     superblock
	inodes []inode
	names  []string
	free   freemap
	open   *openFiles
}

var _ bfs.Store = (*Volume)(nil)

// Format creates a new, empty file system image and mounts it.
func Format(opts *Options) (*Volume, error) {
	opts = opts.copyWithDefaults()

	sb, err := layout(opts.BlockSize, opts.NumBlocks, opts.NumInodes)
	if err != nil {
		return nil, err
	}

	disk, err := blkfile.Format(opts.FileSystem, opts.Path, opts.BlockSize, int64(opts.NumBlocks))
	if err != nil {
		return nil, err
	}

	v := &Volume{
		disk:   disk,
		bs:     opts.BlockSize,
		log:    opts.Logger,
		sb:     sb,
		inodes: make([]inode, sb.NumInodes),
		names:  make([]string, sb.NumInodes),
		free:   newFreemap(opts.NumBlocks),
		open:   newOpenFiles(),
	}

	// header, superblock and every metadata block are never handed out
	for pbn := 0; pbn < int(sb.DataStart); pbn++ {
		v.free.set(bfs.PBN(pbn))
	}

	err = multierr.Combine(
		v.writeSuper(),
		v.writeAllInodes(),
		v.writeAllDirents(),
		v.writeFreemap(),
	)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("volume: format %q: %w", opts.Path, err), disk.Close())
	}

	v.log.Debug("formatted volume",
		zap.String("path", opts.Path),
		zap.Int("block_size", opts.BlockSize),
		zap.Int("blocks", opts.NumBlocks),
		zap.Int("inodes", opts.NumInodes),
		zap.Uint32("data_start", sb.DataStart))

	return v, nil
}

// Mount opens an existing file system image.
func Mount(opts *Options) (*Volume, error) {
	opts = opts.copyWithDefaults()

	disk, err := blkfile.OpenDisk(opts.FileSystem, opts.Path)
	if err != nil {
		return nil, err
	}

	v := &Volume{
		disk: disk,
		bs:   disk.BlockSize(),
		log:  opts.Logger,
		open: newOpenFiles(),
	}

	if err := v.load(); err != nil {
		return nil, multierr.Append(fmt.Errorf("volume: mount %q: %w", opts.Path, err), disk.Close())
	}

	v.log.Debug("mounted volume",
		zap.String("path", opts.Path),
		zap.Int("block_size", disk.BlockSize()),
		zap.Int64("blocks", disk.Count()),
		zap.Uint32("inodes", v.sb.NumInodes))

	return v, nil
}

func (v *Volume) load() error {
	bs := v.disk.BlockSize()
	buf := make([]byte, bs)

	if err := v.disk.ReadBlock(superPBN, buf); err != nil {
		return err
	}
	v.sb.decode(buf)

	want, err := layout(bs, int(v.disk.Count()), int(v.sb.NumInodes))
	if err != nil || want != v.sb {
		return fmt.Errorf("%w: superblock %+v does not match device", bfs.ErrCorrupt, v.sb)
	}

	v.inodes = make([]inode, v.sb.NumInodes)
	v.names = make([]string, v.sb.NumInodes)
	v.free = newFreemap(int(v.disk.Count()))

	return multierr.Combine(
		v.readAllInodes(buf),
		v.readAllDirents(buf),
		v.readFreemap(buf),
	)
}

func (v *Volume) writeSuper() error {
	buf := make([]byte, v.disk.BlockSize())
	v.sb.encode(buf)
	return v.disk.WriteBlock(superPBN, buf)
}

// Unmount flushes and closes the disk image. Open descriptors are dropped.
func (v *Volume) Unmount() error {
	v.l.Lock()
	defer v.l.Unlock()

	if v.disk == nil {
		return fmt.Errorf("volume: unmount: %w", os.ErrClosed)
	}

	if n := v.open.len(); n > 0 {
		v.log.Debug("unmounting with open files", zap.Int("open", n))
	}

	err := multierr.Append(v.disk.Sync(), v.disk.Close())
	v.disk = nil
	v.open = newOpenFiles()
	return err
}

// ErrUnmounted is returned by every operation on a volume after Unmount.
var ErrUnmounted = errors.New("volume: not mounted")

func (v *Volume) mounted() error {
	if v.disk == nil {
		return ErrUnmounted
	}
	return nil
}

// BlockSize implements bfs.Blocks.
func (v *Volume) BlockSize() int {
	return v.bs
}

// FreeBlocks returns the number of unallocated data blocks.
func (v *Volume) FreeBlocks() int {
	v.l.Lock()
	defer v.l.Unlock()

	return v.free.free()
}
