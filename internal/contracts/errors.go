package contracts

import "errors"

// ValidationError marks malformed input or an impossible request detected at
// a boundary: bad split parameters, unusable training sets, rejected import
// records. Data gaps inside the pipeline never raise it; they become missing
// values instead.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// NewValidationError builds a ValidationError scoped to one input field.
func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrNotFound is returned by repositories when a requested record does not
// exist.
var ErrNotFound = errors.New("record not found")
