package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/born-ml/pnnxgen/internal/onnx"
	"github.com/born-ml/pnnxgen/internal/pnnx"
)

// inspect prints the contents of an .onnx model, a .param graph or a
// pnnx.bin archive, chosen by file extension.
func (a *app) inspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("inspect needs exactly one file")
	}
	path := fs.Arg(0)

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	switch {
	case strings.HasSuffix(path, ".onnx"):
		return inspectONNX(tw, path)
	case strings.HasSuffix(path, ".param"):
		return inspectParam(tw, path)
	default:
		return inspectArchive(tw, path)
	}
}

func inspectArchive(tw *tabwriter.Writer, path string) error {
	ar, err := pnnx.OpenArchive(path)
	if err != nil {
		return err
	}
	defer ar.Close()

	fmt.Fprintln(tw, "KEY\tBYTES")
	for _, k := range ar.Keys() {
		size, _ := ar.Size(k)
		fmt.Fprintf(tw, "%s\t%d\n", k, size)
	}
	return nil
}

func inspectParam(tw *tabwriter.Writer, path string) error {
	//nolint:gosec // G304: path comes from the command line
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	g, err := pnnx.ParseParam(f)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "TYPE\tNAME\tINPUTS\tOUTPUTS\tATTRS")
	for _, op := range g.Operators {
		var attrs []string
		for k, at := range op.Attrs {
			attrs = append(attrs, fmt.Sprintf("%s%s", k, at.Shape))
		}
		sort.Strings(attrs)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", op.Type, op.Name,
			operandNames(op.Inputs), operandNames(op.Outputs), strings.Join(attrs, " "))
	}
	return nil
}

func operandNames(rs []*pnnx.Operand) string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Name
	}
	return strings.Join(names, ",")
}

func inspectONNX(tw *tabwriter.Writer, path string) error {
	m, err := onnx.ReadFile(path)
	if err != nil {
		return err
	}
	if m.Graph == nil {
		return fmt.Errorf("%s: model has no graph", path)
	}
	fmt.Fprintf(tw, "producer\t%s %s\n", m.ProducerName, m.ProducerVersion)
	fmt.Fprintf(tw, "ir_version\t%d\n", m.IRVersion)
	fmt.Fprintf(tw, "opset\t%d\n\n", m.Opset())

	fmt.Fprintln(tw, "OP\tNAME\tINPUTS\tOUTPUTS")
	for _, n := range m.Graph.Nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.OpType, n.Name,
			strings.Join(n.Inputs, ","), strings.Join(n.Outputs, ","))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "INITIALIZER\tSHAPE")
	for _, t := range m.Graph.Initializers {
		fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Shape())
	}
	return nil
}
