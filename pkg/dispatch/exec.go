package dispatch

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// ExecResult is the outcome of one remote command execution. A non-zero
// ExitStatus is a normal result, not an error.
type ExecResult struct {
	// Stdout is the command's collected standard output.
	Stdout string

	// Stderr is the command's collected standard error.
	Stderr string

	// ExitStatus is the remote exit status.
	ExitStatus int

	// Duration is the total execution time.
	Duration time.Duration
}

// Execute runs a single command on the remote host over its own channel
// and blocks until the remote process exits. It fails with an *ExecError
// only for transport-level failures: the channel could not open, the
// connection dropped mid-execution, or the context was cancelled.
func (d *Dispatcher) Execute(ctx context.Context, command string) (ExecResult, error) {
	session, err := d.entry("execute")
	if err != nil {
		return ExecResult{}, err
	}

	channel, err := session.OpenExec()
	if err != nil {
		return ExecResult{}, &ExecError{Command: command, Err: err}
	}
	defer channel.Close()

	startTime := time.Now()
	log.Debug().Str("command", command).Stringer("channel", channel.ID()).Msg("executing command")

	var stdoutBuf, stderrBuf bytes.Buffer
	raw := channel.Session()
	raw.Stdout = &stdoutBuf
	raw.Stderr = &stderrBuf

	done := make(chan error, 1)
	go func() {
		done <- raw.Run(command)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		// Cancel by closing the channel out-of-band; Run observes the
		// resulting I/O failure and returns.
		_ = channel.Close()
		<-done
		return ExecResult{}, &ExecError{Command: command, Err: ctx.Err()}
	case runErr = <-done:
	}

	result := ExecResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(startTime),
	}

	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitStatus = exitErr.ExitStatus()
		} else {
			return result, &ExecError{Command: command, Err: runErr}
		}
	}

	log.Debug().
		Str("command", command).
		Int("exit_status", result.ExitStatus).
		Dur("duration", result.Duration).
		Msg("command completed")

	return result, nil
}
