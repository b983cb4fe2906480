// Package main provides a command-line tool to inspect and edit keyed
// indices stored in a directory.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/bsm/blockidx"
)

const fieldWidth = 64

var fields = blockidx.FixedString(fieldWidth)

// Globals are shared by all commands.
type Globals struct {
	Dir           string `name:"dir" short:"d" default:"storage" help:"Storage directory" type:"path"`
	Multi         bool   `name:"multi" short:"m" help:"Allow multiple values per key"`
	BlockCapacity int    `name:"block-capacity" default:"100" help:"Elements per leaf block (used when creating indices)"`
	Verbose       bool   `name:"verbose" short:"v" help:"Verbose output"`
}

// CLI defines the command-line interface using Kong
var CLI struct {
	Globals

	Put    PutCmd    `cmd:"" help:"Store a value under a key"`
	Get    GetCmd    `cmd:"" help:"Print the values of a key"`
	Del    DelCmd    `cmd:"" help:"Remove a key or a single value"`
	Scan   ScanCmd   `cmd:"" help:"Print all pairs within a key range"`
	Export ExportCmd `cmd:"" help:"Write an index snapshot to a file"`
	Import ImportCmd `cmd:"" help:"Restore an index from a snapshot file"`
}

func (g *Globals) logger() *slog.Logger {
	level := slog.LevelWarn
	if g.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (g *Globals) mode() blockidx.Mode {
	if g.Multi {
		return blockidx.Multi
	}
	return blockidx.Unique
}

// withIndex opens the named index, runs fn and closes everything.
func (g *Globals) withIndex(name string, fn func(*blockidx.KeyedIndex[string, string]) error) (err error) {
	cat, err := blockidx.NewCatalog(g.Dir, &blockidx.Options{
		BlockCapacity: g.BlockCapacity,
		Logger:        g.logger(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if e := cat.Close(); err == nil {
			err = e
		}
	}()

	x, err := blockidx.OpenKeyed(cat, name, g.mode(), fields, fields)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", name, err)
	}
	return fn(x)
}

// --------------------------------------------------------------------

// PutCmd stores a key/value pair.
type PutCmd struct {
	Name  string `arg:"" help:"Index name"`
	Key   string `arg:"" help:"Key"`
	Value string `arg:"" help:"Value"`
}

func (c *PutCmd) Run(g *Globals) error {
	return g.withIndex(c.Name, func(x *blockidx.KeyedIndex[string, string]) error {
		ok, err := x.Put(c.Key, c.Value)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%q already stored", c.Key)
		}
		return nil
	})
}

// GetCmd prints the values of a key.
type GetCmd struct {
	Name string `arg:"" help:"Index name"`
	Key  string `arg:"" help:"Key"`
}

func (c *GetCmd) Run(g *Globals) error {
	return g.withIndex(c.Name, func(x *blockidx.KeyedIndex[string, string]) error {
		return x.Iterate(c.Key, func(v string) error {
			fmt.Println(v)
			return nil
		}, func() {
			fmt.Fprintf(os.Stderr, "%q not found\n", c.Key)
		})
	})
}

// DelCmd removes a key or a single pair.
type DelCmd struct {
	Name  string `arg:"" help:"Index name"`
	Key   string `arg:"" help:"Key"`
	Value string `arg:"" optional:"" help:"Value (required for multi indices)"`
}

func (c *DelCmd) Run(g *Globals) error {
	return g.withIndex(c.Name, func(x *blockidx.KeyedIndex[string, string]) error {
		ok, err := x.RemoveValue(c.Key, c.Value)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%q not found", c.Key)
		}
		return nil
	})
}

// ScanCmd prints pairs in key order.
type ScanCmd struct {
	Name string `arg:"" help:"Index name"`
	From string `arg:"" optional:"" help:"First key (inclusive)"`
	To   string `arg:"" optional:"" help:"Last key (inclusive, default: all)"`
}

func (c *ScanCmd) Run(g *Globals) error {
	to := c.To
	if to == "" {
		to = fields.Max()
	}

	return g.withIndex(c.Name, func(x *blockidx.KeyedIndex[string, string]) error {
		iter := x.Set().Search(
			blockidx.Pair[string, string]{Key: c.From, Value: fields.Min()},
			blockidx.Pair[string, string]{Key: to, Value: fields.Max()},
		)
		for iter.Next() {
			p := iter.Value()
			fmt.Printf("%s\t%s\n", p.Key, p.Value)
		}
		return iter.Err()
	})
}

// ExportCmd writes a snapshot.
type ExportCmd struct {
	Name        string `arg:"" help:"Index name"`
	File        string `arg:"" help:"Snapshot file" type:"path"`
	Compression string `name:"compression" short:"c" default:"snappy" enum:"none,snappy,zstd,lz4" help:"Block compression"`
	BlockSize   int    `name:"block-size" default:"4096" help:"Minimum uncompressed block size in bytes"`
}

func (c *ExportCmd) Run(g *Globals) error {
	o := &blockidx.SnapshotOptions{BlockSize: c.BlockSize}
	switch c.Compression {
	case "none":
		o.Compression = blockidx.NoCompression
	case "zstd":
		o.Compression = blockidx.ZstdCompression
	case "lz4":
		o.Compression = blockidx.LZ4Compression
	default:
		o.Compression = blockidx.SnappyCompression
	}

	return g.withIndex(c.Name, func(x *blockidx.KeyedIndex[string, string]) error {
		f, err := os.Create(c.File)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := x.Snapshot(f, o); err != nil {
			return fmt.Errorf("failed to export %q: %w", c.Name, err)
		}
		return f.Close()
	})
}

// ImportCmd restores a snapshot.
type ImportCmd struct {
	File string `arg:"" help:"Snapshot file" type:"existingfile"`
	Name string `arg:"" help:"Index name"`
}

func (c *ImportCmd) Run(g *Globals) error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	return g.withIndex(c.Name, func(x *blockidx.KeyedIndex[string, string]) error {
		r, err := blockidx.NewSnapshotReader(f, fi.Size(), x.Set().Codec())
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", c.File, err)
		}

		n, err := x.Restore(r)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d of %d pairs into %q\n", n, r.Len(), c.Name)
		return nil
	})
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("blockidx"),
		kong.Description("Inspect and edit block indices"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}
