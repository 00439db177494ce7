package pnnx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/pnnxgen/internal/parallel"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

// LoadOption configures Load and LoadAll.
type LoadOption func(*loadOptions)

type loadOptions struct {
	scratchDir string
	parallel   parallel.Config
}

func newLoadOptions(opts []LoadOption) loadOptions {
	o := loadOptions{parallel: parallel.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithScratchDir stages each entry through a temporary file in dir before it
// is copied into the returned buffer. The file is removed before Load returns.
func WithScratchDir(dir string) LoadOption {
	return func(o *loadOptions) {
		o.scratchDir = dir
	}
}

// WithWorkers bounds the number of concurrent loads in LoadAll.
// n <= 1 loads sequentially.
func WithWorkers(n int) LoadOption {
	return func(o *loadOptions) {
		o.parallel = parallel.Config{Enabled: n > 1, NumWorkers: max(n, 1), MinChunkSize: 1}
	}
}

// Load reads the entry d.Key from a into a new tensor of shape d.Shape.
//
// The entry's uncompressed length must equal d.ByteSize() exactly; a length
// that is merely a multiple of the element size is still ErrShapeMismatch.
// The returned tensor owns its bytes: two loads of the same key never alias.
// Load does not close a.
func Load(a *Archive, d Descriptor, opts ...LoadOption) (*tensor.RawTensor, error) {
	o := newLoadOptions(opts)
	return load(a, d, o)
}

func load(a *Archive, d Descriptor, o loadOptions) (*tensor.RawTensor, error) {
	if err := d.Validate(); err != nil {
		return nil, &LoadError{Op: "load", Key: d.Key, Err: err}
	}

	f, ok := a.lookup(d.Key)
	if !ok {
		return nil, &LoadError{Op: "load", Key: d.Key, Err: ErrKeyNotFound}
	}

	want := d.ByteSize()
	//nolint:gosec // G115: Validate guarantees want is positive and in range
	if f.UncompressedSize64 != uint64(want) {
		return nil, &LoadError{Op: "load", Key: d.Key, Err: fmt.Errorf("%w: entry has %d bytes, %s needs %d",
			ErrShapeMismatch, f.UncompressedSize64, d, want)}
	}

	raw, err := tensor.NewRaw(d.Shape, d.DType, tensor.CPU)
	if err != nil {
		return nil, &LoadError{Op: "load", Key: d.Key, Err: fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)}
	}

	rc, err := f.Open()
	if err != nil {
		return nil, &LoadError{Op: "load", Key: d.Key, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	defer rc.Close()

	if o.scratchDir != "" {
		err = readViaScratch(raw.Data(), rc, o.scratchDir)
	} else {
		err = readExact(raw.Data(), rc)
	}
	if err != nil {
		return nil, &LoadError{Op: "load", Key: d.Key, Err: fmt.Errorf("%w: %w", ErrIO, err)}
	}
	return raw, nil
}

// readExact fills dst from r and then requires EOF, which also makes the zip
// reader verify the entry checksum.
func readExact(dst []byte, r io.Reader) error {
	if _, err := io.ReadFull(r, dst); err != nil {
		return fmt.Errorf("failed to read entry: %w", err)
	}
	var probe [1]byte
	n, err := r.Read(probe[:])
	if n != 0 {
		return errors.New("entry longer than declared")
	}
	if !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to verify entry: %w", err)
	}
	return nil
}

// readViaScratch copies the entry into a temporary file under dir and reads
// it back into dst.
func readViaScratch(dst []byte, r io.Reader, dir string) (err error) {
	tmp, err := os.CreateTemp(dir, "pnnx-*.bin")
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		if rmErr := os.Remove(tmp.Name()); rmErr != nil && err == nil {
			err = fmt.Errorf("failed to remove scratch file: %w", rmErr)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return fmt.Errorf("failed to stage entry: %w", err)
	}
	if n != int64(len(dst)) {
		return fmt.Errorf("staged %d bytes, want %d", n, len(dst))
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind scratch file: %w", err)
	}
	if _, err := io.ReadFull(tmp, dst); err != nil {
		return fmt.Errorf("failed to read scratch file: %w", err)
	}
	return nil
}

// LoadAll loads every descriptor with bounded parallelism.
// It returns either all buffers keyed by descriptor key or the first error;
// partial results are discarded.
func LoadAll(ctx context.Context, a *Archive, descs []Descriptor, opts ...LoadOption) (map[string]*tensor.RawTensor, error) {
	o := newLoadOptions(opts)

	seen := make(map[string]struct{}, len(descs))
	for _, d := range descs {
		if _, dup := seen[d.Key]; dup {
			return nil, &LoadError{Op: "load", Key: d.Key, Err: ErrDuplicateKey}
		}
		seen[d.Key] = struct{}{}
	}

	raws, err := parallel.Map(ctx, descs, o.parallel, func(ctx context.Context, d Descriptor) (*tensor.RawTensor, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return load(a, d, o)
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]*tensor.RawTensor, len(descs))
	for i, d := range descs {
		out[d.Key] = raws[i]
	}
	return out, nil
}
