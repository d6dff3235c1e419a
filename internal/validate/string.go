// Package validate provides centralized input validation utilities for the
// Eventide API: query text constraints, coordinate ranges, and radius bounds.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrStringTooShort = errors.New("string is too short")
	ErrStringTooLong  = errors.New("string is too long")
	ErrEmpty          = errors.New("string is empty")
)

// StringConstraints bounds a string input. Lengths are in runes so
// multibyte query text validates by what the user typed; zero means
// unbounded on that side.
type StringConstraints struct {
	MinLength  int
	MaxLength  int
	AllowEmpty bool
	TrimSpace  bool
}

// String checks s against c and returns it, trimmed when c.TrimSpace is
// set. Emptiness is decided after trimming.
func String(s string, c StringConstraints) (string, error) {
	if c.TrimSpace {
		s = strings.TrimSpace(s)
	}
	if s == "" {
		if c.AllowEmpty {
			return s, nil
		}
		return "", ErrEmpty
	}

	n := utf8.RuneCountInString(s)
	switch {
	case c.MinLength > 0 && n < c.MinLength:
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, n, c.MinLength)
	case c.MaxLength > 0 && n > c.MaxLength:
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, n, c.MaxLength)
	}
	return s, nil
}
