package pnnx

import (
	"context"
	"fmt"
	"os"
)

// LoadGraph parses paramPath and fills every operator attribute from the
// archive at binPath. Attribute "@weight" of operator "conv1" is read from
// entry "conv1.weight" with the shape and dtype declared in the param file.
func LoadGraph(ctx context.Context, paramPath, binPath string, opts ...LoadOption) (*Graph, error) {
	//nolint:gosec // G304: param path comes from the caller by design
	f, err := os.Open(paramPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open param file: %w", err)
	}
	defer f.Close()

	g, err := ParseParam(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", paramPath, err)
	}

	descs, err := g.AttrDescriptors()
	if err != nil {
		return nil, err
	}
	if len(descs) == 0 {
		return g, nil
	}

	a, err := OpenArchive(binPath)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	raws, err := LoadAll(ctx, a, descs, opts...)
	if err != nil {
		return nil, err
	}

	for _, op := range g.Operators {
		for name, attr := range op.Attrs {
			attr.Data = raws[AttrKey(op.Name, name)].Data()
		}
	}
	return g, nil
}

// AttrDescriptors returns one descriptor per operator attribute, in
// operator order.
func (g *Graph) AttrDescriptors() ([]Descriptor, error) {
	var descs []Descriptor
	for _, op := range g.Operators {
		for _, name := range sortedKeys(op.Attrs) {
			a := op.Attrs[name]
			d, err := NewDescriptor(AttrKey(op.Name, name), a.Shape, a.DType)
			if err != nil {
				return nil, fmt.Errorf("operator %s: %w", op.Name, err)
			}
			descs = append(descs, d)
		}
	}
	return descs, nil
}

// SaveGraph writes g to paramPath and its attribute data to binPath.
func SaveGraph(g *Graph, paramPath, binPath string) (err error) {
	//nolint:gosec // G304: output path comes from the caller by design
	pf, err := os.Create(paramPath)
	if err != nil {
		return fmt.Errorf("failed to create param file: %w", err)
	}
	defer func() {
		if cerr := pf.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close param file: %w", cerr)
		}
	}()

	if err := WriteParam(pf, g); err != nil {
		return err
	}

	aw, err := CreateArchive(binPath)
	if err != nil {
		return err
	}
	for _, op := range g.Operators {
		for _, name := range sortedKeys(op.Attrs) {
			a := op.Attrs[name]
			if a.Data == nil {
				_ = aw.Close() // Best effort close on error
				return fmt.Errorf("operator %s: attribute %s has no data", op.Name, name)
			}
			if err := aw.AddBytes(AttrKey(op.Name, name), a.Data); err != nil {
				_ = aw.Close() // Best effort close on error
				return err
			}
		}
	}
	return aw.Close()
}
