package device

import "errors"

// Domain errors for the device package. Check with errors.Is.
var (
	// ErrInvalidFormat is returned when command input or a record fails
	// validation. The concrete error is a *FormatError whose message is
	// shown to the user verbatim.
	ErrInvalidFormat = errors.New("device: invalid format")

	// ErrRecordExists is returned by Insert when the id is already present.
	ErrRecordExists = errors.New("device: id already exists")

	// ErrRecordNotFound is returned by Remove when no record has the id.
	ErrRecordNotFound = errors.New("device: id not found")
)

// FormatError carries a user-facing validation message.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string {
	return e.Msg
}

// Unwrap lets errors.Is match ErrInvalidFormat.
func (e *FormatError) Unwrap() error {
	return ErrInvalidFormat
}

func formatErrorf(msg string) error {
	return &FormatError{Msg: msg}
}
