package process

import (
	"fmt"
	"strings"
)

// Kind is the failure taxonomy surfaced by Run.
type Kind string

const (
	// KindSpawn: the executable is missing or cannot be executed.
	KindSpawn Kind = "spawn_failure"
	// KindExit: the process exited with a non-zero status.
	KindExit Kind = "non_zero_exit"
	// KindTimeout: the wall-clock budget ran out and the group was killed.
	KindTimeout Kind = "timeout"
	// KindSignal: the process was terminated by a signal it did not get from us.
	KindSignal Kind = "killed"
)

func (k Kind) describe() string {
	switch k {
	case KindSpawn:
		return "process could not be started"
	case KindExit:
		return "process exited with a non-zero status"
	case KindTimeout:
		return "process exceeded its time limit"
	case KindSignal:
		return "process was terminated by a signal"
	default:
		return "process failed"
	}
}

// Error is returned by Supervisor.Run for every outcome other than exit status 0.
type Error struct {
	Kind    Kind
	Command string
	Result  *Result
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Command, e.Kind.describe())
	}
	return fmt.Sprintf("%s: %s: %v", e.Command, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Diagnostic returns the most useful text to show a user.
//
// For a timeout the timeout message comes first (a program stuck in a loop
// may well have printed something to stderr, but that is not why it failed),
// followed by whatever stderr it produced. Every other kind follows the
// ordered chain: captured stderr, then the error message, then the raw
// error value, then a generic description of the kind.
func (e *Error) Diagnostic() string {
	var stderr string
	if e.Result != nil {
		stderr = e.Result.Stderr
	}

	if e.Kind == KindTimeout {
		msg := FirstNonEmpty(errMessage(e.Err), e.Kind.describe())
		if strings.TrimSpace(stderr) == "" {
			return msg
		}
		return msg + "\n" + stderr
	}

	return FirstNonEmpty(stderr, errMessage(e.Err), rawError(e.Err), e.Kind.describe())
}

// FirstNonEmpty returns the first candidate that is not blank.
// Whitespace-only candidates are skipped but the winner is returned unmodified.
func FirstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func rawError(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%#v", err)
}
