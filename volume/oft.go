package volume

import (
	"fmt"

	"github.com/keks/bfs"
)

type openFile struct {
	cursor int64
	refs   int
}

// openFiles is the open-file table of one mounted volume. File descriptors
// are inum+1, so fd 0 is never valid.
type openFiles struct {
	entries map[bfs.Inum]*openFile
}

func newOpenFiles() *openFiles {
	return &openFiles{entries: map[bfs.Inum]*openFile{}}
}

func (t *openFiles) len() int { return len(t.entries) }

func (t *openFiles) isOpen(inum bfs.Inum) bool {
	_, ok := t.entries[inum]
	return ok
}

func (t *openFiles) get(inum bfs.Inum) (*openFile, error) {
	ent, ok := t.entries[inum]
	if !ok {
		return nil, fmt.Errorf("volume: inum %d not open: %w", inum, bfs.ErrInvalidDescriptor)
	}
	return ent, nil
}

// FD implements bfs.OpenFiles. Binding an inode that is already open returns
// the same descriptor with the cursor rewound; every FD needs a Release.
func (v *Volume) FD(inum bfs.Inum) (bfs.FD, error) {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return 0, err
	}
	if _, err := v.inode(inum); err != nil {
		return 0, err
	}

	ent, ok := v.open.entries[inum]
	if !ok {
		ent = &openFile{}
		v.open.entries[inum] = ent
	}
	ent.refs++
	ent.cursor = 0

	return bfs.FD(inum + 1), nil
}

// Inum implements bfs.OpenFiles.
func (v *Volume) Inum(fd bfs.FD) (bfs.Inum, error) {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return 0, err
	}

	inum := bfs.Inum(fd - 1)
	if !v.open.isOpen(inum) {
		return 0, fmt.Errorf("volume: fd %d: %w", fd, bfs.ErrInvalidDescriptor)
	}
	return inum, nil
}

// Release implements bfs.OpenFiles.
func (v *Volume) Release(inum bfs.Inum) error {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return err
	}

	ent, err := v.open.get(inum)
	if err != nil {
		return err
	}
	ent.refs--
	if ent.refs == 0 {
		delete(v.open.entries, inum)
	}
	return nil
}

// Cursor implements bfs.OpenFiles.
func (v *Volume) Cursor(inum bfs.Inum) (int64, error) {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return 0, err
	}

	ent, err := v.open.get(inum)
	if err != nil {
		return 0, err
	}
	return ent.cursor, nil
}

// SetCursor implements bfs.OpenFiles.
func (v *Volume) SetCursor(inum bfs.Inum, off int64) error {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return err
	}
	if off < 0 {
		return fmt.Errorf("volume: cursor %d: %w", off, bfs.ErrInvalidOffset)
	}

	ent, err := v.open.get(inum)
	if err != nil {
		return err
	}
	ent.cursor = off
	return nil
}
