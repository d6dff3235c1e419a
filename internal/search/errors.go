package search

import (
	"errors"
	"fmt"
)

// ErrAllBranchesFailed is returned when every requested entity-type fetch
// fails. Callers surface it as service-unavailable with an empty result
// set rather than a hard error, so presentation layers can render an
// empty state.
var ErrAllBranchesFailed = errors.New("all search branches failed")

// ValidationError reports a rejected request parameter. It is the only
// search error surfaced to callers with an explanatory message; fetch,
// cache, and analytics failures all degrade silently to partial results.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
