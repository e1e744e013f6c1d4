package dispatch

import (
	"fmt"
	"strings"
)

// ClosedError reports an operation attempted after the dispatcher was
// closed.
type ClosedError struct {
	// Op is the operation that was attempted.
	Op string
}

func (e *ClosedError) Error() string {
	return e.Op + ": dispatcher is closed"
}

// ExecError reports a transport-level failure during command execution. A
// non-zero remote exit status is a normal result, never an ExecError.
type ExecError struct {
	// Command is the command line that was being executed.
	Command string

	// Err is the underlying error.
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("execute %q: %v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// SessionError reports transfer sub-session lifecycle misuse, such as
// opening it against a session that is not established.
type SessionError struct {
	// Op is the operation that was attempted.
	Op string

	// Err is the underlying error.
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("transfer session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// RemoteFSError reports a failed file-management primitive on the remote
// host.
type RemoteFSError struct {
	// Op is the primitive that failed (mkdir, remove, rmdir, ...).
	Op string

	// Path is the remote path the primitive was applied to.
	Path string

	// Err is the underlying error.
	Err error
}

func (e *RemoteFSError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RemoteFSError) Unwrap() error {
	return e.Err
}

// FileFailure records one failed path within a copy operation.
type FileFailure struct {
	// Path is the local source path that failed.
	Path string

	// Err is the reason it failed.
	Err error
}

// TransferError reports a failed copy operation. Per-file failures are
// aggregated rather than aborting on the first one; paths under a remote
// directory that could not be created are listed as skipped. Err is set
// instead when the operation failed as a whole, before any file was
// attempted.
type TransferError struct {
	// Err is an operation-level failure (source missing, channel open
	// failure), nil when per-file failures are reported.
	Err error

	// Failures lists every path that failed, with its reason.
	Failures []FileFailure

	// Skipped lists paths not attempted because an ancestor directory
	// could not be created remotely.
	Skipped []string
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("copy: %v", e.Err)
	}

	paths := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		paths[i] = f.Path
	}

	msg := fmt.Sprintf("copy failed for %d path(s): %s", len(paths), strings.Join(paths, ", "))
	if len(e.Skipped) > 0 {
		msg += fmt.Sprintf(" (%d skipped)", len(e.Skipped))
	}
	return msg
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
