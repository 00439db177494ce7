package pnnx

import (
	"fmt"
	"strings"
)

// MaxKeyLen bounds archive entry names.
const MaxKeyLen = 4096

// ValidateKey checks an archive entry name for traversal and malformed input.
// Keys are flat names such as "conv1.weight"; nested module names may use
// dots ("features.0.weight").
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	case len(key) > MaxKeyLen:
		return fmt.Errorf("%w: length %d > max %d", ErrInvalidKey, len(key), MaxKeyLen)
	case strings.ContainsRune(key, 0):
		return fmt.Errorf("%w: %q contains null byte", ErrInvalidKey, key)
	case strings.HasPrefix(key, "/") || strings.HasPrefix(key, "\\"):
		return fmt.Errorf("%w: %q is an absolute path", ErrInvalidKey, key)
	case len(key) >= 2 && key[1] == ':':
		return fmt.Errorf("%w: %q has a drive letter", ErrInvalidKey, key)
	}

	for _, seg := range strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return fmt.Errorf("%w: %q contains '..' (path traversal)", ErrInvalidKey, key)
		}
	}
	return nil
}
