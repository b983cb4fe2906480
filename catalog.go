package blockidx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Catalog owns a directory of named indices and logs and closes them all
// exactly once. Each name binds to its own file; no name may be open twice.
type Catalog struct {
	dir string
	o   *Options

	names   map[string]struct{}
	closers []namedCloser
}

type namedCloser struct {
	name string
	io.Closer
}

// NewCatalog creates dir if necessary and returns a catalog for it.
func NewCatalog(dir string, o *Options) (*Catalog, error) {
	o = o.norm()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return &Catalog{dir: dir, o: o, names: make(map[string]struct{})}, nil
}

// Path returns the file path bound to name.
func (c *Catalog) Path(name string) string {
	return filepath.Join(c.dir, name+".dat")
}

// OpenKeyed opens the keyed index bound to name.
func OpenKeyed[K, V any](c *Catalog, name string, mode Mode, k Codec[K], v Bounded[V]) (*KeyedIndex[K, V], error) {
	if err := c.reserve(name); err != nil {
		return nil, err
	}
	x, err := OpenKeyedIndex(c.Path(name), mode, k, v, c.o)
	return register(c, name, x, err)
}

// OpenSet opens the block index bound to name.
func OpenSet[T any](c *Catalog, name string, codec Codec[T]) (*BlockIndex[T], error) {
	if err := c.reserve(name); err != nil {
		return nil, err
	}
	x, err := OpenBlockIndex(c.Path(name), codec, c.o)
	return register(c, name, x, err)
}

// OpenLog opens the append log bound to name.
func OpenLog[T any](c *Catalog, name string, codec Codec[T]) (*AppendLog[T], error) {
	if err := c.reserve(name); err != nil {
		return nil, err
	}
	l, err := OpenAppendLog(c.Path(name), codec, c.o)
	return register(c, name, l, err)
}

// Close closes all opened indices and logs in reverse order.
func (c *Catalog) Close() error {
	if c.names == nil {
		return ErrClosed
	}

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.closers[i].name, err))
		}
	}
	c.closers = nil
	c.names = nil
	return errors.Join(errs...)
}

func (c *Catalog) reserve(name string) error {
	if c.names == nil {
		return ErrClosed
	}
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, ok := c.names[name]; ok {
		return fmt.Errorf("%w: %q", ErrAlreadyOpen, name)
	}
	c.names[name] = struct{}{}
	return nil
}

// validName accepts names which bind to a file directly inside the catalog
// directory.
func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

func register[T io.Closer](c *Catalog, name string, v T, err error) (T, error) {
	if err != nil {
		delete(c.names, name)
		var zero T
		return zero, err
	}
	c.closers = append(c.closers, namedCloser{name: name, Closer: v})
	c.o.Logger.Debug("catalog opened", "name", name)
	return v, nil
}
