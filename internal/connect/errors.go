package connect

import (
	"errors"
	"fmt"
)

// ErrArgument marks caller mistakes: unknown request types, missing or unknown fields.
var ErrArgument = errors.New("connect: invalid argument")

// ArgumentError describes which input was rejected and why.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrArgument, e.Reason)
	}
	return fmt.Sprintf("%v: %s %s", ErrArgument, e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrArgument) match every ArgumentError.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrArgument
}
