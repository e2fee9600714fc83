package stream

import (
	"io"

	"github.com/keks/bfs"
)

// File is a descriptor of a Translator with the io interfaces on top.
type File struct {
	t    *Translator
	fd   bfs.FD
	name string
}

var (
	_ io.ReadWriteSeeker = (*File)(nil)
	_ io.Closer          = (*File)(nil)
)

// OpenFile opens an existing file.
func (t *Translator) OpenFile(name string) (*File, error) {
	fd, err := t.Open(name)
	if err != nil {
		return nil, err
	}
	return &File{t: t, fd: fd, name: name}, nil
}

// CreateFile creates or truncates a file and opens it.
func (t *Translator) CreateFile(name string) (*File, error) {
	fd, err := t.Create(name)
	if err != nil {
		return nil, err
	}
	return &File{t: t, fd: fd, name: name}, nil
}

func (f *File) Name() string { return f.name }
func (f *File) FD() bfs.FD   { return f.fd }

func (f *File) Read(p []byte) (int, error)  { return f.t.Read(f.fd, p) }
func (f *File) Write(p []byte) (int, error) { return f.t.Write(f.fd, p) }

// Seek takes io.SeekStart, io.SeekCurrent or io.SeekEnd.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.t.Seek(f.fd, offset, bfs.Whence(whence))
}

func (f *File) Size() (int64, error) { return f.t.Size(f.fd) }
func (f *File) Tell() (int64, error) { return f.t.Tell(f.fd) }

func (f *File) Close() error { return f.t.Close(f.fd) }
