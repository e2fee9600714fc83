package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keks/bfs"
)

type op interface {
	Do(*testing.T, *Translator)
}

type createOp struct {
	name string
	fd   *bfs.FD

	expErr error
}

func (op createOp) Do(t *testing.T, tr *Translator) {
	fd, err := tr.Create(op.name)
	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
		return
	}
	require.NoError(t, err)
	*op.fd = fd
}

type openOp struct {
	name string
	fd   *bfs.FD

	expErr error
}

func (op openOp) Do(t *testing.T, tr *Translator) {
	fd, err := tr.Open(op.name)
	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
		return
	}
	require.NoError(t, err)
	*op.fd = fd
}

type closeOp struct {
	fd *bfs.FD

	expErr error
}

func (op closeOp) Do(t *testing.T, tr *Translator) {
	err := tr.Close(*op.fd)
	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
		return
	}
	require.NoError(t, err)
}

type writeOp struct {
	fd   *bfs.FD
	data []byte

	expN   int
	expErr error
}

func (op writeOp) Do(t *testing.T, tr *Translator) {
	n, err := tr.Write(*op.fd, op.data)
	t.Logf("writeOp, n: %d, err: %v", n, err)

	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
	} else {
		require.NoError(t, err)
	}
	require.Equal(t, op.expN, n)
}

type readOp struct {
	fd      *bfs.FD
	readlen int

	exp    []byte
	expErr error
}

func (op readOp) Do(t *testing.T, tr *Translator) {
	if op.readlen == 0 {
		op.readlen = len(op.exp)
	}

	buf := make([]byte, op.readlen)
	n, err := tr.Read(*op.fd, buf)
	t.Logf("readOp, n: %d, err: %v", n, err)

	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
	} else {
		require.NoError(t, err)
	}
	require.Equal(t, len(op.exp), n)
	require.True(t, bytes.Equal(op.exp, buf[:n]), "read %q, want %q", buf[:n], op.exp)
}

type seekOp struct {
	fd     *bfs.FD
	off    int64
	whence bfs.Whence

	expPos int64
	expErr error
}

func (op seekOp) Do(t *testing.T, tr *Translator) {
	before, _ := tr.Tell(*op.fd)

	pos, err := tr.Seek(*op.fd, op.off, op.whence)
	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)

		after, err := tr.Tell(*op.fd)
		require.NoError(t, err)
		require.Equal(t, before, after, "failed seek moved the cursor")
		return
	}
	require.NoError(t, err)
	require.Equal(t, op.expPos, pos)
}

type tellOp struct {
	fd  *bfs.FD
	exp int64

	expErr error
}

func (op tellOp) Do(t *testing.T, tr *Translator) {
	pos, err := tr.Tell(*op.fd)
	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
		return
	}
	require.NoError(t, err)
	require.Equal(t, op.exp, pos, "cursor")
}

type sizeOp struct {
	fd  *bfs.FD
	exp int64
}

func (op sizeOp) Do(t *testing.T, tr *Translator) {
	size, err := tr.Size(*op.fd)
	require.NoError(t, err)
	require.Equal(t, op.exp, size, "size")
}

// funcOp runs an arbitrary check between ops.
type funcOp func(*testing.T, *Translator)

func (op funcOp) Do(t *testing.T, tr *Translator) { op(t, tr) }
