package blockidx

import (
	"io"
	"log/slog"
	"os"
)

// Options define store and index specific options.
type Options struct {
	// BlockCapacity is the maximum number of elements held by a leaf block.
	// It is part of the file shape and must not change between opens.
	// Default: 100, minimum: 2.
	BlockCapacity int

	// IndexCapacity is the maximum number of leaf blocks of an index.
	// It is part of the file shape and must not change between opens.
	// Default: BlockCapacity.
	IndexCapacity int

	// Perm is the permission used when new files are created.
	// Default: 0644.
	Perm os.FileMode

	// Logger receives debug records for structural changes.
	// Default: discards all output.
	Logger *slog.Logger
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if oo.BlockCapacity < 1 {
		oo.BlockCapacity = 100
	} else if oo.BlockCapacity < 2 {
		oo.BlockCapacity = 2
	}
	if oo.IndexCapacity < 1 {
		oo.IndexCapacity = oo.BlockCapacity
	}
	if oo.Perm == 0 {
		oo.Perm = 0o644
	}
	if oo.Logger == nil {
		oo.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &oo
}
