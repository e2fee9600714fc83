// Command bfsctl formats bfs disk images and moves files in and out of them.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/keks/bfs"
	"github.com/keks/bfs/stream"
	"github.com/keks/bfs/volume"
)

const usage = `Usage: bfsctl [-disk path] [-v] <command> [args]

Commands:
  format [-blocks N] [-bs N] [-inodes N]   create an empty disk image
  ls                                       list files
  put NAME HOSTFILE                        copy a host file into the image
  cat NAME                                 write a file to stdout
  size NAME                                print the size of a file
  rm NAME                                  remove a file
`

func main() {
	var (
		disk    = flag.String("disk", "bfs.disk", "Path to the disk image")
		verbose = flag.Bool("v", false, "Debug logging")
	)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	log, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	bfs.SetLogger(log)

	abs, err := filepath.Abs(*disk)
	if err != nil {
		log.Fatal("resolve disk path", zap.String("disk", *disk), zap.Error(err))
	}
	opts := &volume.Options{
		FileSystem: osfs.New(filepath.Dir(abs)),
		Path:       filepath.Base(abs),
		Logger:     log,
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]

	var v *volume.Volume
	if cmd == "format" {
		v, err = format(opts, args)
	} else {
		v, err = volume.Mount(opts)
	}
	if err != nil {
		// a disk that cannot be formatted or mounted is a startup failure
		log.Fatal("cannot open disk", zap.String("disk", abs), zap.Error(err))
	}

	err = run(v, cmd, args, os.Stdout)
	err = multierr.Append(err, v.Unmount())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	return cfg.Build()
}

func format(opts *volume.Options, args []string) (*volume.Volume, error) {
	fl := flag.NewFlagSet("format", flag.ContinueOnError)
	fl.IntVar(&opts.NumBlocks, "blocks", 1024, "Number of blocks")
	fl.IntVar(&opts.BlockSize, "bs", 512, "Block size in bytes")
	fl.IntVar(&opts.NumInodes, "inodes", 64, "Maximum number of files")
	if err := fl.Parse(args); err != nil {
		return nil, err
	}
	return volume.Format(opts)
}

var errUsage = errors.New("bad arguments, see bfsctl -h")

func run(v *volume.Volume, cmd string, args []string, out io.Writer) error {
	tr := stream.New(v, nil)

	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s: %w", cmd, errUsage)
		}
		return nil
	}

	switch cmd {
	case "format":
		return nil

	case "ls":
		if err := need(0); err != nil {
			return err
		}
		names, err := v.List()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil

	case "put":
		if err := need(2); err != nil {
			return err
		}
		return put(tr, args[0], args[1])

	case "cat":
		if err := need(1); err != nil {
			return err
		}
		f, err := tr.OpenFile(args[0])
		if err != nil {
			return err
		}
		_, err = io.Copy(out, f)
		return multierr.Append(err, f.Close())

	case "size":
		if err := need(1); err != nil {
			return err
		}
		f, err := tr.OpenFile(args[0])
		if err != nil {
			return err
		}
		size, err := f.Size()
		if err == nil {
			fmt.Fprintln(out, size)
		}
		return multierr.Append(err, f.Close())

	case "rm":
		if err := need(1); err != nil {
			return err
		}
		return v.Remove(args[0])
	}

	return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
}

func put(tr *stream.Translator, name, hostfile string) error {
	src, err := os.Open(hostfile)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := tr.CreateFile(name)
	if err != nil {
		return err
	}

	_, err = io.Copy(dst, src)
	return multierr.Append(err, dst.Close())
}
