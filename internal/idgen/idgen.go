// Package idgen assigns and validates opaque record ids.
package idgen

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// New mints a 128-bit random identifier rendered as a 32-character hex
// string (a v4 UUID with its separating dashes stripped).
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Validate reports whether a caller-supplied id is acceptable: non-empty,
// no surrounding whitespace, and composed entirely of printable characters.
func Validate(id string) error {
	if id == "" {
		return errEmpty
	}
	if strings.TrimSpace(id) != id {
		return errWhitespace
	}
	for _, r := range id {
		if !unicode.IsPrint(r) {
			return errUnprintable
		}
	}
	return nil
}

type idError string

func (e idError) Error() string { return string(e) }

const (
	errEmpty       = idError("id must not be empty")
	errWhitespace  = idError("id must not have surrounding whitespace")
	errUnprintable = idError("id must contain only printable characters")
)
