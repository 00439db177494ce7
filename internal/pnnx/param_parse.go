package pnnx

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/born-ml/pnnxgen/internal/tensor"
)

// ParseParam reads a .pnnx.param graph. Attribute data is left nil; use
// LoadGraph to fill it from the matching archive.
func ParseParam(r io.Reader) (*Graph, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	line := 0
	next := func() (string, bool) {
		for sc.Scan() {
			line++
			text := strings.TrimSpace(sc.Text())
			if text != "" {
				return text, true
			}
		}
		return "", false
	}

	magic, ok := next()
	if !ok {
		return nil, &ParseError{Line: line, Msg: "empty file"}
	}
	if magic != strconv.Itoa(Magic) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMagic, magic)
	}

	counts, ok := next()
	if !ok {
		return nil, &ParseError{Line: line, Msg: "missing operator/operand counts"}
	}
	var opCount, operandCount int
	if _, err := fmt.Sscanf(counts, "%d %d", &opCount, &operandCount); err != nil {
		return nil, &ParseError{Line: line, Msg: fmt.Sprintf("invalid counts %q", counts)}
	}
	countsLine := line

	g := NewGraph()
	operands := make(map[string]*Operand)
	operand := func(name string) *Operand {
		if r, ok := operands[name]; ok {
			return r
		}
		r := &Operand{Name: name}
		operands[name] = r
		g.Operands = append(g.Operands, r)
		return r
	}

	for {
		text, ok := next()
		if !ok {
			break
		}
		if err := parseOperatorLine(g, text, operand); err != nil {
			return nil, &ParseError{Line: line, Msg: err.Error()}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read param: %w", err)
	}

	if len(g.Operators) != opCount {
		return nil, &ParseError{Line: countsLine, Msg: fmt.Sprintf("declared %d operators, found %d", opCount, len(g.Operators))}
	}
	if len(g.Operands) != operandCount {
		return nil, &ParseError{Line: countsLine, Msg: fmt.Sprintf("declared %d operands, found %d", operandCount, len(g.Operands))}
	}
	return g, nil
}

func parseOperatorLine(g *Graph, text string, operand func(string) *Operand) error {
	fields := strings.Fields(text)
	if len(fields) < 4 {
		return fmt.Errorf("expected at least 4 fields, got %d", len(fields))
	}

	op := g.NewOperator(fields[0], fields[1])
	nin, err := strconv.Atoi(fields[2])
	if err != nil || nin < 0 {
		return fmt.Errorf("operator %s: invalid input count %q", op.Name, fields[2])
	}
	nout, err := strconv.Atoi(fields[3])
	if err != nil || nout < 0 {
		return fmt.Errorf("operator %s: invalid output count %q", op.Name, fields[3])
	}
	rest := fields[4:]
	if len(rest) < nin+nout {
		return fmt.Errorf("operator %s: expected %d operand names, got %d", op.Name, nin+nout, len(rest))
	}

	for _, name := range rest[:nin] {
		op.Connect(operand(name))
	}
	for _, name := range rest[nin : nin+nout] {
		r := operand(name)
		if r.Producer != nil {
			return fmt.Errorf("operator %s: operand %s already produced by %s", op.Name, name, r.Producer.Name)
		}
		op.Produce(r)
	}

	for _, kv := range rest[nin+nout:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("operator %s: malformed pair %q", op.Name, kv)
		}

		switch key[0] {
		case '@':
			shape, dtype, typed, err := parseShapeType(value)
			if err != nil {
				return fmt.Errorf("operator %s: attribute %s: %w", op.Name, key[1:], err)
			}
			if !typed {
				return fmt.Errorf("operator %s: attribute %s has no type", op.Name, key[1:])
			}
			op.Attrs[key[1:]] = &Attribute{DType: dtype, Shape: shape}
		case '#':
			r := findOperand(op, key[1:])
			if r == nil {
				return fmt.Errorf("operator %s: shape for unknown operand %s", op.Name, key[1:])
			}
			shape, dtype, typed, err := parseShapeType(value)
			if err != nil {
				return fmt.Errorf("operator %s: operand %s: %w", op.Name, key[1:], err)
			}
			r.Shape, r.DType, r.Typed = shape, dtype, typed
		case '$':
			idx := indexOfInput(op, value)
			if idx < 0 {
				return fmt.Errorf("operator %s: input name %s refers to unknown operand %s", op.Name, key[1:], value)
			}
			if op.InputNames == nil {
				op.InputNames = make([]string, len(op.Inputs))
			}
			op.InputNames[idx] = key[1:]
		default:
			op.Params[key] = ParseParameter(value)
		}
	}
	return nil
}

// parseShapeType parses "(1,3,4,4)f32". A "null" type yields typed=false.
func parseShapeType(s string) (tensor.Shape, tensor.DataType, bool, error) {
	end := strings.IndexByte(s, ')')
	if end < 0 {
		return nil, 0, false, fmt.Errorf("malformed shape %q", s)
	}
	shape, err := tensor.ParseShape(s[:end+1])
	if err != nil {
		return nil, 0, false, err
	}
	typ := s[end+1:]
	if typ == "" || typ == "null" {
		return shape, 0, false, nil
	}
	dtype, err := tensor.ParseDataType(typ)
	if err != nil {
		return nil, 0, false, fmt.Errorf("%w: %w", ErrUnsupportedDType, err)
	}
	return shape, dtype, true, nil
}

func findOperand(op *Operator, name string) *Operand {
	for _, r := range op.Inputs {
		if r.Name == name {
			return r
		}
	}
	for _, r := range op.Outputs {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func indexOfInput(op *Operator, name string) int {
	for i, r := range op.Inputs {
		if r.Name == name {
			return i
		}
	}
	return -1
}
