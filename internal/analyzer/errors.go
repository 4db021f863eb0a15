package analyzer

import "errors"

var (
	// ErrDuplicateURL is returned when a URL with the same canonical name exists.
	ErrDuplicateURL = errors.New("url already exists")
	// ErrURLNotFound is returned when a URL id does not reference a stored URL.
	ErrURLNotFound = errors.New("url not found")
)

// ValidationError reports why a submitted URL was rejected.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid url: " + e.Reason
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
