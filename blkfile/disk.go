package blkfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	"go.uber.org/multierr"

	"github.com/keks/bfs"
)

// Disk is a Device stored in a file of a billy.Filesystem.
type Disk struct {
	*Device

	name string
	file billy.File
}

// Format creates or truncates the image name in fsys and formats it as a
// device of count blocks.
func Format(fsys billy.Filesystem, name string, blksize int, count int64) (*Disk, error) {
	f, err := fsys.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create %q: %v", bfs.ErrDiskUnavailable, name, err)
	}

	dev, err := New(fileReadWriterAt{f}, blksize, count)
	if err == nil {
		err = f.Truncate(int64(blksize) * count)
	}
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("blkfile: format %q: %w", name, err), f.Close())
	}

	return &Disk{Device: dev, name: name, file: f}, nil
}

// OpenDisk opens an existing image.
func OpenDisk(fsys billy.Filesystem, name string) (*Disk, error) {
	f, err := fsys.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", bfs.ErrDiskUnavailable, name, err)
	}

	dev, err := Open(fileReadWriterAt{f})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("blkfile: open %q: %w", name, err), f.Close())
	}

	return &Disk{Device: dev, name: name, file: f}, nil
}

// Name returns the image name inside its filesystem.
func (d *Disk) Name() string { return d.name }

// Sync flushes the image if the backing file supports it.
func (d *Disk) Sync() error {
	if s, ok := d.file.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return fmt.Errorf("blkfile: sync %q: %w", d.name, err)
		}
	}
	return nil
}

// Close closes the image.
func (d *Disk) Close() error {
	if d.file == nil {
		return os.ErrClosed
	}

	err := d.file.Close()
	d.file = nil
	if err != nil {
		return fmt.Errorf("blkfile: close %q: %w", d.name, err)
	}
	return nil
}

// fileReadWriterAt adds WriteAt to billy files that only offer Seek and Write.
type fileReadWriterAt struct {
	billy.File
}

func (f fileReadWriterAt) WriteAt(data []byte, off int64) (int, error) {
	if wa, ok := f.File.(io.WriterAt); ok {
		return wa.WriteAt(data, off)
	}

	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return f.Write(data)
}

func (f fileReadWriterAt) ReadAt(buf []byte, off int64) (int, error) {
	n, err := f.File.ReadAt(buf, off)
	if errors.Is(err, io.EOF) {
		return n, io.EOF
	}
	return n, err
}
