package service

import (
	"errors"
	"fmt"
)

// Import failure kinds. Every error returned by Importer matches exactly one of
// the first five through errors.Is.
var (
	ErrInvalidSource = errors.New("invalid URL")
	ErrFetch         = errors.New("failed to fetch playlist")
	ErrDecoding      = errors.New("playlist file is corrupt")
	ErrStore         = errors.New("failed to save playlist")
	ErrCancelled     = errors.New("import cancelled")

	// ErrPlaylistBusy is returned when a playlist is locked by a running import.
	ErrPlaylistBusy = errors.New("playlist is being imported")

	// ErrInvalidQuery is returned for unknown sort fields.
	ErrInvalidQuery = errors.New("invalid query")
)

// ImportError carries the failure kind, the step that failed, and the cause.
type ImportError struct {
	Kind error  // one of the Err* kinds above
	Op   string // e.g. "fetch", "InsertChannels"
	Err  error
}

func (e *ImportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

func (e *ImportError) Is(target error) bool { return target == e.Kind }

// Message is the user-facing text: the kind prefix followed by the cause.
func (e *ImportError) Message() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func importErr(kind error, op string, err error) *ImportError {
	return &ImportError{Kind: kind, Op: op, Err: err}
}

// ErrorMessage returns the user-facing text for any error returned by this package.
func ErrorMessage(err error) string {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Message()
	}
	return err.Error()
}

// resultLabel names the failure kind for metrics and logs.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidSource):
		return "invalid_source"
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrDecoding):
		return "decoding"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	default:
		return "store"
	}
}
