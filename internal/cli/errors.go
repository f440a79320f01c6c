package cli

import (
	"errors"
	"fmt"

	"github.com/brilliant-build/bbuild/internal/berrors"
)

// Exit codes, per spec §6: "0 success; nonzero on any build failure,
// invalid command, or I/O error."
const (
	ExitSuccess        = 0
	ExitBuildFailure   = 1
	ExitInvalidCommand = 2
	ExitIOError        = 3
	ExitInternalError  = 4
)

// InvocationError is returned by flag/argument parsing, mirroring the
// teacher's cli/input.go *InvocationError: a message plus the exit code it
// maps to, Unwrap-free since it is a leaf (the CLI boundary, not a core
// error kind).
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidCommand, Message: fmt.Sprintf(format, args...)}
}

// classifyErr maps a core error kind (berrors) to the exit code mandated
// by spec §6: "0 success; nonzero on any build failure, invalid command, or
// I/O error."
func classifyErr(err error) int {
	switch {
	case errors.Is(err, berrors.ErrTaskFailure), errors.Is(err, berrors.ErrCycleDetected):
		return ExitBuildFailure
	case errors.Is(err, berrors.ErrInvalidCommand):
		return ExitInvalidCommand
	case errors.Is(err, berrors.ErrBuildDescription), errors.Is(err, berrors.ErrIO), errors.Is(err, berrors.ErrInvalidEdge):
		return ExitIOError
	default:
		return ExitInternalError
	}
}
