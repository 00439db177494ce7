package export

import (
	"fmt"

	"github.com/born-ml/pnnxgen/internal/pnnx"
	"github.com/born-ml/pnnxgen/internal/trace"
)

// PNNX converts tr into a pnnx graph and saves it as a param/bin pair.
func PNNX(tr *trace.Trace, paramPath, binPath string) error {
	g, err := PNNXGraph(tr)
	if err != nil {
		return err
	}
	if err := pnnx.SaveGraph(g, paramPath, binPath); err != nil {
		return fmt.Errorf("failed to save pnnx graph: %w", err)
	}
	return nil
}

// PNNXGraph converts tr into a pnnx graph. The graph input and output
// operands are renamed to InputName and OutputName; every weight becomes an
// attribute with its data attached.
func PNNXGraph(tr *trace.Trace) (*pnnx.Graph, error) {
	names, err := boundaryNames(tr)
	if err != nil {
		return nil, err
	}
	rename := func(s string) string {
		if n, ok := names[s]; ok {
			return n
		}
		return s
	}

	g := pnnx.NewGraph()
	for _, r := range tr.Operands {
		g.NewOperand(rename(r.Name), r.Shape, r.DType)
	}

	for _, n := range tr.Nodes {
		op := g.NewOperator(n.Type, n.Name)
		for k, v := range n.Params {
			op.Params[k] = v
		}
		for k, raw := range n.Attrs {
			op.Attrs[k] = pnnx.NewAttribute(raw)
		}
		for _, name := range n.Inputs {
			r := g.Operand(rename(name))
			if r == nil {
				return nil, fmt.Errorf("operator %s: operand %s not in trace", n.Name, name)
			}
			op.Connect(r)
		}
		for _, name := range n.Outputs {
			r := g.Operand(rename(name))
			if r == nil {
				return nil, fmt.Errorf("operator %s: operand %s not in trace", n.Name, name)
			}
			op.Produce(r)
		}
	}
	return g, nil
}
