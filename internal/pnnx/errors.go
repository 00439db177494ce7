package pnnx

import (
	"errors"
	"fmt"
)

// Loader and format errors.
var (
	ErrKeyNotFound       = errors.New("key not found in archive")
	ErrShapeMismatch     = errors.New("entry size does not match descriptor")
	ErrIO                = errors.New("archive i/o error")
	ErrUnsupportedDType  = errors.New("unsupported data type")
	ErrInvalidKey        = errors.New("invalid key")
	ErrInvalidDescriptor = errors.New("invalid descriptor")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrInvalidMagic      = errors.New("invalid magic number")
	ErrSyntax            = errors.New("param syntax error")
)

// LoadError reports a failed archive operation for a single key.
type LoadError struct {
	Op  string // "open", "load", "write"
	Key string // Entry key, or file path for "open"
	Err error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("pnnx %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("pnnx %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// ParseError reports a malformed line in a .pnnx.param file.
type ParseError struct {
	Line int
	Msg  string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("param line %d: %s", e.Line, e.Msg)
}

// Unwrap makes every ParseError match ErrSyntax.
func (e *ParseError) Unwrap() error {
	return ErrSyntax
}
