package stream

import (
	"fmt"

	"github.com/keks/bfs"
)

type memFile struct {
	name   string
	size   int64
	blocks map[bfs.LBN]bfs.PBN
}

type memOpen struct {
	cursor int64
	refs   int
}

// memStore is an in-memory bfs.Store that counts block traffic.
type memStore struct {
	blksize int

	files []*memFile
	open  map[bfs.Inum]*memOpen
	data  map[bfs.PBN][]byte
	next  bfs.PBN

	// limit is the number of blocks Allocate hands out; negative means unlimited
	limit int

	reads  []bfs.LBN
	writes []bfs.PBN
	allocs []bfs.LBN
}

var _ bfs.Store = (*memStore)(nil)

func newMemStore(blksize int) *memStore {
	return &memStore{
		blksize: blksize,
		open:    map[bfs.Inum]*memOpen{},
		data:    map[bfs.PBN][]byte{},
		next:    1,
		limit:   -1,
	}
}

func (s *memStore) resetCounters() {
	s.reads, s.writes, s.allocs = nil, nil, nil
}

// block returns the contents of lbn of the named file, or nil.
func (s *memStore) block(name string, lbn bfs.LBN) []byte {
	for _, f := range s.files {
		if f.name == name {
			if pbn, ok := f.blocks[lbn]; ok {
				return s.data[pbn]
			}
		}
	}
	return nil
}

func (s *memStore) file(inum bfs.Inum) (*memFile, error) {
	if inum < 0 || int(inum) >= len(s.files) {
		return nil, bfs.ErrInvalidDescriptor
	}
	return s.files[inum], nil
}

func (s *memStore) entry(inum bfs.Inum) (*memOpen, error) {
	ent, ok := s.open[inum]
	if !ok {
		return nil, bfs.ErrInvalidDescriptor
	}
	return ent, nil
}

func (s *memStore) Lookup(name string) (bfs.Inum, error) {
	for i, f := range s.files {
		if f.name == name {
			return bfs.Inum(i), nil
		}
	}
	return 0, fmt.Errorf("lookup %q: %w", name, bfs.ErrFileNotFound)
}

func (s *memStore) Create(name string) (bfs.Inum, error) {
	if inum, err := s.Lookup(name); err == nil {
		s.files[inum].size = 0
		s.files[inum].blocks = map[bfs.LBN]bfs.PBN{}
		return inum, nil
	}

	s.files = append(s.files, &memFile{name: name, blocks: map[bfs.LBN]bfs.PBN{}})
	return bfs.Inum(len(s.files) - 1), nil
}

func (s *memStore) FD(inum bfs.Inum) (bfs.FD, error) {
	if _, err := s.file(inum); err != nil {
		return 0, err
	}
	ent, ok := s.open[inum]
	if !ok {
		ent = &memOpen{}
		s.open[inum] = ent
	}
	ent.refs++
	ent.cursor = 0
	return bfs.FD(inum + 1), nil
}

func (s *memStore) Inum(fd bfs.FD) (bfs.Inum, error) {
	inum := bfs.Inum(fd - 1)
	if _, err := s.entry(inum); err != nil {
		return 0, err
	}
	return inum, nil
}

func (s *memStore) Release(inum bfs.Inum) error {
	ent, err := s.entry(inum)
	if err != nil {
		return err
	}
	ent.refs--
	if ent.refs == 0 {
		delete(s.open, inum)
	}
	return nil
}

func (s *memStore) Cursor(inum bfs.Inum) (int64, error) {
	ent, err := s.entry(inum)
	if err != nil {
		return 0, err
	}
	return ent.cursor, nil
}

func (s *memStore) SetCursor(inum bfs.Inum, off int64) error {
	ent, err := s.entry(inum)
	if err != nil {
		return err
	}
	if off < 0 {
		return bfs.ErrInvalidOffset
	}
	ent.cursor = off
	return nil
}

func (s *memStore) BlockSize() int { return s.blksize }

func (s *memStore) BlockNumber(inum bfs.Inum, lbn bfs.LBN) (bfs.PBN, error) {
	f, err := s.file(inum)
	if err != nil {
		return 0, err
	}
	if pbn, ok := f.blocks[lbn]; ok {
		return pbn, nil
	}
	return bfs.Unallocated, nil
}

func (s *memStore) Allocate(inum bfs.Inum, lbn bfs.LBN) (bfs.PBN, error) {
	f, err := s.file(inum)
	if err != nil {
		return 0, err
	}
	if s.limit == 0 {
		return 0, bfs.ErrAllocationFailed
	}
	if s.limit > 0 {
		s.limit--
	}

	pbn := s.next
	s.next++
	s.data[pbn] = make([]byte, s.blksize)
	f.blocks[lbn] = pbn
	s.allocs = append(s.allocs, lbn)
	return pbn, nil
}

func (s *memStore) ReadBlock(inum bfs.Inum, lbn bfs.LBN, buf []byte) error {
	if len(buf) != s.blksize {
		return fmt.Errorf("read buffer of %d bytes", len(buf))
	}
	pbn, err := s.BlockNumber(inum, lbn)
	if err != nil {
		return err
	}
	s.reads = append(s.reads, lbn)
	if pbn == bfs.Unallocated {
		clear(buf)
		return nil
	}
	copy(buf, s.data[pbn])
	return nil
}

func (s *memStore) WriteBlock(pbn bfs.PBN, buf []byte) error {
	if len(buf) != s.blksize {
		return fmt.Errorf("write buffer of %d bytes", len(buf))
	}
	dst, ok := s.data[pbn]
	if !ok {
		return fmt.Errorf("write to unallocated block %d", pbn)
	}
	copy(dst, buf)
	s.writes = append(s.writes, pbn)
	return nil
}

func (s *memStore) Size(inum bfs.Inum) (int64, error) {
	f, err := s.file(inum)
	if err != nil {
		return 0, err
	}
	return f.size, nil
}

func (s *memStore) SetSize(inum bfs.Inum, size int64) error {
	f, err := s.file(inum)
	if err != nil {
		return err
	}
	f.size = size
	return nil
}
