package pnnx

import (
	"archive/zip"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/born-ml/pnnxgen/internal/tensor"
)

// ArchiveWriter writes a .pnnx.bin archive. Entries are stored uncompressed
// with sizes and checksum in the local header.
type ArchiveWriter struct {
	zw     *zip.Writer
	closer io.Closer
	keys   map[string]struct{}
}

// CreateArchive creates (or truncates) the archive file at path.
func CreateArchive(path string) (*ArchiveWriter, error) {
	//nolint:gosec // G304: output path comes from the caller by design
	f, err := os.Create(path)
	if err != nil {
		return nil, &LoadError{Op: "write", Key: path, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	w := NewArchiveWriter(f)
	w.closer = f
	return w, nil
}

// NewArchiveWriter writes an archive to w. Close does not close w.
func NewArchiveWriter(w io.Writer) *ArchiveWriter {
	return &ArchiveWriter{
		zw:   zip.NewWriter(w),
		keys: make(map[string]struct{}),
	}
}

// Add stores the raw little-endian bytes of t under key.
func (w *ArchiveWriter) Add(key string, t *tensor.RawTensor) error {
	return w.AddBytes(key, t.Data())
}

// AddBytes stores data under key.
func (w *ArchiveWriter) AddBytes(key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return &LoadError{Op: "write", Key: key, Err: err}
	}
	if _, dup := w.keys[key]; dup {
		return &LoadError{Op: "write", Key: key, Err: ErrDuplicateKey}
	}

	size := uint64(len(data))
	hdr := &zip.FileHeader{
		Name:               key,
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   size,
		UncompressedSize64: size,
	}
	fw, err := w.zw.CreateRaw(hdr)
	if err != nil {
		return &LoadError{Op: "write", Key: key, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	if _, err := fw.Write(data); err != nil {
		return &LoadError{Op: "write", Key: key, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	w.keys[key] = struct{}{}
	return nil
}

// Close writes the central directory and closes the file if CreateArchive
// opened it.
func (w *ArchiveWriter) Close() error {
	err := w.zw.Close()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
		w.closer = nil
	}
	if err != nil {
		return &LoadError{Op: "write", Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	return nil
}
