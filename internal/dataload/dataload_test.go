package dataload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pnnxgen/internal/backend/cpu"
	"github.com/born-ml/pnnxgen/internal/tensor"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCSV(t *testing.T) {
	m, err := LoadCSV(writeFile(t, "1,2,3,4,5\n6,7,8,9,10\n11,12,13,14,15\n"), ',')
	require.NoError(t, err)
	assert.Equal(t, 3, m.Rows)
	assert.Equal(t, 5, m.Cols)
	for i, v := range m.Data {
		assert.Equal(t, float32(i+1), v)
	}
	assert.Equal(t, float32(8), m.At(1, 2))
}

func TestReadCSV_RaggedRows(t *testing.T) {
	m, err := ReadCSV(strings.NewReader("1;2\n3;4;5;6\n\n7\n"), ';')
	require.NoError(t, err)
	assert.Equal(t, 3, m.Rows)
	assert.Equal(t, 4, m.Cols)
	assert.Equal(t, []float32{
		1, 2, 0, 0,
		3, 4, 5, 6,
		7, 0, 0, 0,
	}, m.Data)
}

func TestReadCSV_EmptyCellsAndSpaces(t *testing.T) {
	m, err := ReadCSV(strings.NewReader(" 1.5, ,-2e-1\n"), ',')
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, 0, -0.2}, m.Data)
}

func TestLoadCSV_Errors(t *testing.T) {
	_, err := LoadCSV("", ',')
	require.ErrorIs(t, err, ErrEmptyPath)

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), ',')
	require.Error(t, err)

	_, err = LoadCSV(writeFile(t, "1,2\n3,x\n"), ',')
	require.ErrorIs(t, err, ErrBadCell)
	assert.Contains(t, err.Error(), "row 1 column 1")
}

func TestMatrix_Tensor(t *testing.T) {
	m, err := ReadCSV(strings.NewReader("1,2,3,4\n5,6,7,8\n"), ',')
	require.NoError(t, err)

	raw, err := m.Raw(nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4}, raw.Shape())

	x, err := Tensor(m, tensor.Shape{1, 2, 2, 2}, cpu.New())
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 2, 2}, x.Shape())
	assert.Equal(t, m.Data, x.Data())

	_, err = Tensor(m, tensor.Shape{1, 3, 4, 4}, cpu.New())
	require.Error(t, err)
}
