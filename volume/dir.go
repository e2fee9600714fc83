package volume

import (
	"bytes"
	"fmt"

	"github.com/keks/bfs"
)

const (
	direntSize = 16

	// MaxNameLen is the longest file name the directory can hold.
	MaxNameLen = direntSize - 1
)

func checkName(name string) error {
	if name == "" || len(name) > MaxNameLen || bytes.IndexByte([]byte(name), 0) >= 0 {
		return fmt.Errorf("volume: %q: %w", name, bfs.ErrInvalidName)
	}
	return nil
}

func (v *Volume) direntLoc(inum bfs.Inum) bfs.PBN {
	return bfs.PBN(v.sb.DirStart) + bfs.PBN(int(inum)/(v.bs/direntSize))
}

// writeDirent persists the directory block holding the entry of inum.
func (v *Volume) writeDirent(inum bfs.Inum) error {
	per := v.bs / direntSize
	first := (int(inum) / per) * per

	buf := make([]byte, v.bs)
	for i := first; i < first+per && i < len(v.names); i++ {
		copy(buf[(i-first)*direntSize:], v.names[i])
	}
	return v.disk.WriteBlock(v.direntLoc(inum), buf)
}

func (v *Volume) writeAllDirents() error {
	for inum := 0; inum < len(v.names); inum += v.bs / direntSize {
		if err := v.writeDirent(bfs.Inum(inum)); err != nil {
			return err
		}
	}
	return nil
}

func (v *Volume) readAllDirents(buf []byte) error {
	per := v.bs / direntSize
	for inum := 0; inum < len(v.names); inum += per {
		if err := v.disk.ReadBlock(v.direntLoc(bfs.Inum(inum)), buf); err != nil {
			return err
		}
		for i := inum; i < inum+per && i < len(v.names); i++ {
			ent := buf[(i-inum)*direntSize : (i-inum+1)*direntSize]
			if n := bytes.IndexByte(ent, 0); n >= 0 {
				ent = ent[:n]
			}
			v.names[i] = string(ent)
		}
	}
	return nil
}

func (v *Volume) lookup(name string) (bfs.Inum, bool) {
	for i, n := range v.names {
		if n == name {
			return bfs.Inum(i), true
		}
	}
	return 0, false
}

// Lookup implements bfs.Directory.
func (v *Volume) Lookup(name string) (bfs.Inum, error) {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return 0, err
	}
	if err := checkName(name); err != nil {
		return 0, err
	}

	inum, ok := v.lookup(name)
	if !ok {
		return 0, fmt.Errorf("volume: lookup %q: %w", name, bfs.ErrFileNotFound)
	}
	return inum, nil
}

// Create implements bfs.Directory. An existing file is truncated and keeps
// its inode.
func (v *Volume) Create(name string) (bfs.Inum, error) {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return 0, err
	}
	if err := checkName(name); err != nil {
		return 0, err
	}

	if inum, ok := v.lookup(name); ok {
		return inum, v.truncate(inum)
	}

	inum, ok := v.lookup("")
	if !ok {
		return 0, fmt.Errorf("volume: create %q: directory full: %w", name, bfs.ErrAllocationFailed)
	}

	v.names[inum] = name
	if err := v.writeDirent(inum); err != nil {
		v.names[inum] = ""
		return 0, err
	}

	// a fresh inode might still point at blocks if an earlier remove failed half way
	return inum, v.truncate(inum)
}

// Remove deletes a file that is not open and frees its blocks.
func (v *Volume) Remove(name string) error {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}

	inum, ok := v.lookup(name)
	if !ok {
		return fmt.Errorf("volume: remove %q: %w", name, bfs.ErrFileNotFound)
	}
	if v.open.isOpen(inum) {
		return fmt.Errorf("volume: remove %q: %w", name, bfs.ErrFileBusy)
	}

	if err := v.truncate(inum); err != nil {
		return err
	}

	v.names[inum] = ""
	return v.writeDirent(inum)
}

// List returns the names of all files in directory order.
func (v *Volume) List() ([]string, error) {
	v.l.Lock()
	defer v.l.Unlock()

	if err := v.mounted(); err != nil {
		return nil, err
	}

	var names []string
	for _, n := range v.names {
		if n != "" {
			names = append(names, n)
		}
	}
	return names, nil
}
