package pnnx

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/born-ml/pnnxgen/internal/tensor"
)

// WriteParam writes g in .pnnx.param text form. Parameters and attributes
// are emitted in key order so output is stable.
func WriteParam(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%d\n", Magic)
	fmt.Fprintf(bw, "%d %d\n", len(g.Operators), len(g.Operands))

	for _, op := range g.Operators {
		fmt.Fprintf(bw, "%-24s %-24s %d %d", op.Type, op.Name, len(op.Inputs), len(op.Outputs))
		for _, r := range op.Inputs {
			fmt.Fprintf(bw, " %s", r.Name)
		}
		for _, r := range op.Outputs {
			fmt.Fprintf(bw, " %s", r.Name)
		}

		for _, key := range sortedKeys(op.Params) {
			fmt.Fprintf(bw, " %s=%s", key, op.Params[key])
		}
		for _, key := range sortedKeys(op.Attrs) {
			a := op.Attrs[key]
			fmt.Fprintf(bw, " @%s=%s", key, formatShapeType(a.Shape, a.DType, true))
		}
		for i, name := range op.InputNames {
			if name != "" && i < len(op.Inputs) {
				fmt.Fprintf(bw, " $%s=%s", name, op.Inputs[i].Name)
			}
		}
		for _, r := range op.Inputs {
			fmt.Fprintf(bw, " #%s=%s", r.Name, formatShapeType(r.Shape, r.DType, r.Typed))
		}
		for _, r := range op.Outputs {
			fmt.Fprintf(bw, " #%s=%s", r.Name, formatShapeType(r.Shape, r.DType, r.Typed))
		}
		bw.WriteByte('\n')
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write param: %w", err)
	}
	return nil
}

// formatShapeType renders "(1,3,?,?)f32".
func formatShapeType(shape tensor.Shape, dtype tensor.DataType, typed bool) string {
	dims := make([]string, len(shape))
	for i, d := range shape {
		if d < 0 {
			dims[i] = "?"
		} else {
			dims[i] = strconv.Itoa(d)
		}
	}
	typ := "null"
	if typed {
		typ = dtype.PNNXName()
	}
	return "(" + strings.Join(dims, ",") + ")" + typ
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
