package blkfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keks/bfs"
)

type op interface {
	Do(*testing.T, bfs.ReadWriterAt)
}

type devNewOp struct {
	dev     **Device
	blksize int
	count   int64

	expErr string
}

func (op devNewOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	dev, err := New(rwa, op.blksize, op.count)
	if op.expErr == "" {
		require.NoError(t, err)
	} else {
		require.EqualError(t, err, op.expErr)
		return
	}

	*op.dev = dev
}

type devOpenOp struct {
	dev **Device

	expBlksize int
	expCount   int64
	expErr     string
}

func (op devOpenOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	dev, err := Open(rwa)
	if op.expErr == "" {
		require.NoError(t, err)
	} else {
		require.EqualError(t, err, op.expErr)
		return
	}

	require.Equal(t, op.expBlksize, dev.BlockSize(), "block size")
	require.Equal(t, op.expCount, dev.Count(), "block count")
	*op.dev = dev
}

type devWriteOp struct {
	dev  **Device
	pbn  bfs.PBN
	data []byte

	expErr string
}

func (op devWriteOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	err := (*op.dev).WriteBlock(op.pbn, op.data)
	t.Logf("devWriteOp, pbn: %d, err: %v", op.pbn, err)

	if op.expErr == "" {
		require.NoError(t, err)
	} else {
		require.EqualError(t, err, op.expErr)
	}
}

type devReadOp struct {
	dev     **Device
	pbn     bfs.PBN
	readlen int

	exp    []byte
	expErr string
}

func (op devReadOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	if op.readlen == 0 {
		op.readlen = (*op.dev).BlockSize()
	}

	buf := make([]byte, op.readlen)
	err := (*op.dev).ReadBlock(op.pbn, buf)
	t.Logf("devReadOp, pbn: %d, err: %v", op.pbn, err)

	if op.expErr == "" {
		require.NoError(t, err)
	} else {
		require.EqualError(t, err, op.expErr)
		return
	}
	require.True(t, bytes.Equal(op.exp, buf), "block %d contents %q", op.pbn, buf)
}

type blkWriteOp struct {
	data []byte
	off  int64

	blkOff  int64
	blkSize int

	expN   int
	expErr string
}

func (op blkWriteOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	r := require.New(t)

	blk := &block{
		lower: rwa,
		off:   op.blkOff,
		size:  op.blkSize,
	}

	n, err := blk.WriteAt(op.data, op.off)
	t.Logf("writeOp, n: %d, err: %v", n, err)

	r.Equal(op.expN, n)
	if op.expErr == "" {
		r.NoError(err)
	} else {
		r.EqualError(err, op.expErr)
	}
}

type blkReadOp struct {
	off     int64
	readlen int

	blkOff  int64
	blkSize int

	exp    []byte
	expN   int
	expErr string
}

func (op blkReadOp) Do(t *testing.T, rwa bfs.ReadWriterAt) {
	r := require.New(t)
	if op.readlen == 0 {
		op.readlen = len(op.exp)
	}

	blk := &block{
		lower: rwa,
		off:   op.blkOff,
		size:  op.blkSize,
	}

	buf := make([]byte, op.readlen)
	n, err := blk.ReadAt(buf, op.off)
	t.Logf("readOp, n: %d, err: %v", n, err)

	if op.expErr == "" {
		r.NoError(err)
	} else {
		r.EqualError(err, op.expErr)
	}
	r.Equal(op.expN, n)
	t.Logf("buffer contents %q | 0x%x", buf[:op.expN], buf[:op.expN])
	r.True(bytes.Equal(buf[:op.expN], op.exp))
}
