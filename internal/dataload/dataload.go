// Package dataload reads numeric matrices from delimited text files so they
// can be fed to a graph as input.
package dataload

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/pnnxgen/internal/tensor"
)

var (
	// ErrEmptyPath is returned by LoadCSV for an empty path.
	ErrEmptyPath = errors.New("csv path is empty")

	// ErrBadCell is returned for a cell that is not a number.
	ErrBadCell = errors.New("csv cell is not a number")
)

// Matrix is a dense row-major float32 matrix.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// At returns the element at (row, col).
func (m *Matrix) At(row, col int) float32 {
	return m.Data[row*m.Cols+col]
}

// LoadCSV reads the file at path. The matrix is as wide as the widest row;
// shorter rows and empty cells are zero. Blank lines are skipped.
func LoadCSV(path string, sep rune) (*Matrix, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	//nolint:gosec // G304: input path comes from the caller by design
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	m, err := ReadCSV(f, sep)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ReadCSV is LoadCSV for an open reader.
func ReadCSV(r io.Reader, sep rune) (*Matrix, error) {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	m := &Matrix{Rows: len(records)}
	for _, rec := range records {
		m.Cols = max(m.Cols, len(rec))
	}
	m.Data = make([]float32, m.Rows*m.Cols)

	for i, rec := range records {
		for j, cell := range rec {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %d: %q", ErrBadCell, i, j, cell)
			}
			m.Data[i*m.Cols+j] = float32(v)
		}
	}
	return m, nil
}

// Raw returns the matrix data as a tensor of the given shape. A nil shape
// means (Rows, Cols).
func (m *Matrix) Raw(shape tensor.Shape) (*tensor.RawTensor, error) {
	if shape == nil {
		shape = tensor.Shape{m.Rows, m.Cols}
	}
	if shape.NumElements() != len(m.Data) {
		return nil, fmt.Errorf("cannot view %dx%d matrix as %s", m.Rows, m.Cols, shape)
	}
	return tensor.FromBytes(shape, tensor.Float32, tensor.Float32Bytes(m.Data))
}

// Tensor returns m reshaped to shape on backend b.
func Tensor[B tensor.Backend](m *Matrix, shape tensor.Shape, b B) (*tensor.Tensor[float32, B], error) {
	raw, err := m.Raw(shape)
	if err != nil {
		return nil, err
	}
	return tensor.New[float32, B](raw, b), nil
}
