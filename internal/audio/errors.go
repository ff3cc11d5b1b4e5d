package audio

import "fmt"

// UnsupportedFormatError reports an upload whose container or codec cannot
// be decoded. Err carries the underlying decoder failure, if any.
type UnsupportedFormatError struct {
	Format string
	Err    error
}

func (e *UnsupportedFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported audio format %q: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("unsupported audio format %q", e.Format)
}

func (e *UnsupportedFormatError) Unwrap() error {
	return e.Err
}

func unsupported(format string, err error) error {
	return &UnsupportedFormatError{Format: format, Err: err}
}
