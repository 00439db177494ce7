package pnnx

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// Archive is a read-only view of a .pnnx.bin zip container.
// It is safe for concurrent loads.
type Archive struct {
	zr      *zip.Reader
	closer  io.Closer
	entries map[string]*zip.File
}

// OpenArchive opens the archive at path. The caller must Close it.
func OpenArchive(path string) (*Archive, error) {
	//nolint:gosec // G304: archive path comes from the caller by design
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Op: "open", Key: path, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close() // Best effort close on error
		return nil, &LoadError{Op: "open", Key: path, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}

	a, err := NewArchive(f, info.Size())
	if err != nil {
		_ = f.Close() // Best effort close on error
		var le *LoadError
		if errors.As(err, &le) && le.Key == "" {
			le.Key = path
		}
		return nil, err
	}
	a.closer = f
	return a, nil
}

// NewArchive reads the zip central directory from r.
// Closing the returned Archive does not close r.
func NewArchive(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &LoadError{Op: "open", Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}

	a := &Archive{
		zr:      zr,
		entries: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if _, dup := a.entries[f.Name]; dup {
			return nil, &LoadError{Op: "open", Key: f.Name, Err: ErrDuplicateKey}
		}
		a.entries[f.Name] = f
	}
	return a, nil
}

// Keys returns all entry names in sorted order.
func (a *Archive) Keys() []string {
	keys := make([]string, 0, len(a.entries))
	for k := range a.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present.
func (a *Archive) Has(key string) bool {
	_, ok := a.entries[key]
	return ok
}

// Size returns the uncompressed size of key.
func (a *Archive) Size(key string) (int64, bool) {
	f, ok := a.entries[key]
	if !ok {
		return 0, false
	}
	//nolint:gosec // G115: entry sizes are bounded by the archive size
	return int64(f.UncompressedSize64), true
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Close releases the underlying file if the archive owns one.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

func (a *Archive) lookup(key string) (*zip.File, bool) {
	f, ok := a.entries[key]
	return f, ok
}
