package runtime

import (
	"errors"
	"fmt"
)

// Runtime errors.
var (
	ErrEmptyPath          = errors.New("param or bin path is empty")
	ErrEmptyGraph         = errors.New("graph has no operators")
	ErrNotBuilt           = errors.New("graph is not built")
	ErrOperatorNotFound   = errors.New("operator not found")
	ErrUnknownLayer       = errors.New("no layer registered for operator type")
	ErrUnsupportedOperand = errors.New("unsupported operand")
	ErrInvalidParam       = errors.New("invalid operator parameter")
	ErrMissingAttr        = errors.New("missing operator attribute")
	ErrArity              = errors.New("wrong number of layer inputs")
	ErrInputShape         = errors.New("input shape does not match graph input")
	ErrOutputShape        = errors.New("layer output does not match declared operand")
	ErrLayerFailed        = errors.New("layer forward failed")
	ErrOutputNotReached   = errors.New("output operator was never reached")
	ErrInvalidExpression  = errors.New("invalid expression")
)

// ExprError reports a syntax error in a pnnx expression.
type ExprError struct {
	Pos int // Byte offset into the expression
	Msg string
}

// Error implements the error interface.
func (e *ExprError) Error() string {
	return fmt.Sprintf("expression: position %d: %s", e.Pos, e.Msg)
}

// Unwrap returns ErrInvalidExpression.
func (e *ExprError) Unwrap() error {
	return ErrInvalidExpression
}
