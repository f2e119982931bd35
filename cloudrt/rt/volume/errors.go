package volume

import (
	"errors"
	"fmt"
)

// Decode error kinds. Match with errors.Is.
var (
	ErrIO          = errors.New("volume: read failed")
	ErrParse       = errors.New("volume: malformed container")
	ErrMetadata    = errors.New("volume: missing or invalid grid bounds")
	ErrCorruptGrid = errors.New("volume: voxel outside declared bounds")
)

// DecodeError carries the failing grid alongside one of the kinds above.
type DecodeError struct {
	Kind error
	Grid string
	Err  error
}

func (e *DecodeError) Error() string {
	msg := e.Kind.Error()
	if e.Grid != "" {
		msg = fmt.Sprintf("%s (grid %q)", msg, e.Grid)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DecodeError) Is(target error) bool {
	return target == e.Kind
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newDecodeError(kind error, grid string, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: kind, Grid: grid, Err: fmt.Errorf(format, args...)}
}
