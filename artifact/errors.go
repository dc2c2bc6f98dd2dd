package artifact

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an artifact for the given session / id pair
	// does not exist in the underlying store.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidID is returned for empty ids or ids that would escape the
	// session scope.
	ErrInvalidID = errors.New("invalid artifact id")
)

// ValidateID rejects ids that are empty, absolute or contain ".." elements.
// Nested ids such as "reports/final.md" are allowed.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.HasPrefix(id, "/") || strings.HasPrefix(id, "\\") {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidID, id)
	}
	for _, part := range strings.FieldsFunc(id, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return fmt.Errorf("%w: %q escapes its session", ErrInvalidID, id)
		}
	}
	return nil
}
