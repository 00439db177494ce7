package export

import "errors"

var (
	// ErrUnsupported is returned for an operator or parameter combination
	// the target format cannot express.
	ErrUnsupported = errors.New("unsupported by export format")

	// ErrEmptyTrace is returned for a trace without input or output nodes.
	ErrEmptyTrace = errors.New("trace has no input or output")

	// ErrVerify is returned when the reloaded pnnx graph disagrees with the
	// model it was exported from.
	ErrVerify = errors.New("exported graph output differs from model")
)
