package runtime

import (
	"fmt"
	"strconv"

	"github.com/born-ml/pnnxgen/internal/tensor"
)

// ExprKind is the kind of an expression node.
type ExprKind int

// Expression node kinds.
const (
	ExprInput ExprKind = iota // @N
	ExprAdd
	ExprMul
)

func (k ExprKind) String() string {
	switch k {
	case ExprInput:
		return "input"
	case ExprAdd:
		return "add"
	case ExprMul:
		return "mul"
	default:
		return "ExprKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ExprNode is a node of a parsed expression. Input nodes carry Index,
// binary nodes carry Left and Right.
type ExprNode struct {
	Kind        ExprKind
	Index       int
	Left, Right *ExprNode
}

func (n *ExprNode) String() string {
	if n.Kind == ExprInput {
		return "@" + strconv.Itoa(n.Index)
	}
	return fmt.Sprintf("%s(%s,%s)", n.Kind, n.Left, n.Right)
}

type tokenKind int

const (
	tokAdd tokenKind = iota
	tokMul
	tokLParen
	tokRParen
	tokComma
	tokInput
	tokEOF
)

type token struct {
	kind  tokenKind
	pos   int
	index int // for tokInput
}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, pos: i})
			i++
		case c == '@':
			j := i + 1
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			if j == i+1 {
				return nil, &ExprError{Pos: i, Msg: "expected operand index after '@'"}
			}
			idx, err := strconv.Atoi(s[i+1 : j])
			if err != nil {
				return nil, &ExprError{Pos: i, Msg: "operand index out of range"}
			}
			toks = append(toks, token{kind: tokInput, pos: i, index: idx})
			i = j
		case hasWord(s, i, "add"):
			toks = append(toks, token{kind: tokAdd, pos: i})
			i += 3
		case hasWord(s, i, "mul"):
			toks = append(toks, token{kind: tokMul, pos: i})
			i += 3
		default:
			return nil, &ExprError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(s)}), nil
}

func hasWord(s string, i int, w string) bool {
	return len(s)-i >= len(w) && s[i:i+len(w)] == w
}

type exprParser struct {
	toks []token
	pos  int
}

func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) expect(kind tokenKind, what string) error {
	if t := p.next(); t.kind != kind {
		return &ExprError{Pos: t.pos, Msg: "expected " + what}
	}
	return nil
}

// node := @N | (add|mul) '(' node ',' node ')'
func (p *exprParser) node() (*ExprNode, error) {
	t := p.next()
	switch t.kind {
	case tokInput:
		return &ExprNode{Kind: ExprInput, Index: t.index}, nil
	case tokAdd, tokMul:
		kind := ExprAdd
		if t.kind == tokMul {
			kind = ExprMul
		}
		if err := p.expect(tokLParen, "'('"); err != nil {
			return nil, err
		}
		left, err := p.node()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokComma, "','"); err != nil {
			return nil, err
		}
		right, err := p.node()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return &ExprNode{Kind: kind, Left: left, Right: right}, nil
	case tokEOF:
		return nil, &ExprError{Pos: t.pos, Msg: "unexpected end of expression"}
	default:
		return nil, &ExprError{Pos: t.pos, Msg: "expected operand or function"}
	}
}

// ParseExpression parses a pnnx expression such as "add(@0,mul(@1,@2))".
// Syntax errors are returned as *ExprError.
func ParseExpression(s string) (*ExprNode, error) {
	toks, err := tokenize(s)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks}
	root, err := p.node()
	if err != nil {
		return nil, err
	}
	if t := p.next(); t.kind != tokEOF {
		return nil, &ExprError{Pos: t.pos, Msg: "unexpected trailing input"}
	}
	return root, nil
}

// ReversePolish returns the nodes of root in post order, operands before
// the function applied to them.
func ReversePolish(root *ExprNode) []*ExprNode {
	var out []*ExprNode
	var walk func(n *ExprNode)
	walk = func(n *ExprNode) {
		if n == nil {
			return
		}
		walk(n.Left)
		walk(n.Right)
		out = append(out, n)
	}
	walk(root)
	return out
}

// maxIndex returns the largest @N referenced by rpn, or -1.
func maxIndex(rpn []*ExprNode) int {
	m := -1
	for _, n := range rpn {
		if n.Kind == ExprInput && n.Index > m {
			m = n.Index
		}
	}
	return m
}

// expressionLayer evaluates an expression over its inputs.
type expressionLayer[B tensor.Backend] struct {
	expr    string
	rpn     []*ExprNode
	backend B
}

func newExpressionLayer[B tensor.Backend](expr string, backend B) (*expressionLayer[B], error) {
	root, err := ParseExpression(expr)
	if err != nil {
		return nil, err
	}
	return &expressionLayer[B]{expr: expr, rpn: ReversePolish(root), backend: backend}, nil
}

func (l *expressionLayer[B]) Forward(inputs []*tensor.Tensor[float32, B]) (out *tensor.Tensor[float32, B], err error) {
	if m := maxIndex(l.rpn); m >= len(inputs) {
		return nil, fmt.Errorf("%w: %q references @%d, got %d inputs", ErrArity, l.expr, m, len(inputs))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %q: %v", ErrLayerFailed, l.expr, r)
		}
	}()

	stack := make([]*tensor.RawTensor, 0, len(l.rpn))
	for _, n := range l.rpn {
		if n.Kind == ExprInput {
			stack = append(stack, inputs[n.Index].Raw())
			continue
		}
		if len(stack) < 2 {
			return nil, fmt.Errorf("%w: %q: stack underflow", ErrInvalidExpression, l.expr)
		}
		a, b := stack[len(stack)-2], stack[len(stack)-1]
		stack = stack[:len(stack)-2]
		if n.Kind == ExprAdd {
			stack = append(stack, l.backend.Add(a, b))
		} else {
			stack = append(stack, l.backend.Mul(a, b))
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: %q: %d values left on stack", ErrInvalidExpression, l.expr, len(stack))
	}
	return tensor.New[float32, B](stack[0], l.backend), nil
}
