// Package transport owns the single authenticated SSH connection to a
// remote host. A Session moves through an explicit lifecycle (unconnected,
// authenticating, established, closed, failed) and hands out channels for
// command execution and file transfer. Only state transitions and channel
// registration are serialized; data transfer over an open channel is not.
package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// State is the session lifecycle state.
type State string

const (
	// StateUnconnected is the initial state before Establish.
	StateUnconnected State = "unconnected"

	// StateAuthenticating is the transient state during dial and handshake.
	StateAuthenticating State = "authenticating"

	// StateEstablished means the session is live and channels may be opened.
	StateEstablished State = "established"

	// StateClosed is the terminal state after Teardown.
	StateClosed State = "closed"

	// StateFailed is the terminal state after a failed Establish. The
	// failure reason is available via Err.
	StateFailed State = "failed"
)

// Session is the single authenticated connection to one remote host. It
// performs exactly one dial and one authentication handshake in its
// lifetime; it never reconnects silently. A failed Establish is terminal
// and any retry policy belongs to the caller.
type Session struct {
	config *Config

	mu       sync.Mutex
	state    State
	failure  error
	client   *ssh.Client
	channels map[uuid.UUID]io.Closer
}

// NewSession creates an unconnected session for the given config.
func NewSession(config *Config) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Session{
		config:   config,
		state:    StateUnconnected,
		channels: make(map[uuid.UUID]io.Closer),
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the failure reason when the session is failed, nil otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// LiveChannels returns the number of currently registered channels.
func (s *Session) LiveChannels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

// Establish dials the remote host and authenticates. It may be called at
// most once: any call on a session that already left the unconnected state
// fails with a *StateError. A network failure yields a *ConnectError, a
// rejected credential an *AuthError; both leave the session failed.
func (s *Session) Establish(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUnconnected {
		state := s.state
		s.mu.Unlock()
		return &StateError{Op: "establish", State: state}
	}
	s.state = StateAuthenticating
	s.mu.Unlock()

	clientConfig, err := s.config.clientConfig()
	if err != nil {
		return s.fail(&ConnectError{Addr: s.config.Address(), Err: err})
	}

	address := s.config.Address()
	log.Debug().Str("address", address).Str("user", s.config.Credential.Username).Msg("establishing session")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)

	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		// The dial may still produce a connection after cancellation;
		// close it instead of leaking it.
		go func() {
			select {
			case client := <-connChan:
				client.Close()
			case <-errChan:
			}
		}()
		return s.fail(&ConnectError{Addr: address, Err: ctx.Err()})
	case err := <-errChan:
		if isAuthFailure(err) {
			return s.fail(&AuthError{User: s.config.Credential.Username, Err: err})
		}
		return s.fail(&ConnectError{Addr: address, Err: err})
	case client := <-connChan:
		s.mu.Lock()
		if s.state != StateAuthenticating {
			// A teardown raced the handshake; the closed state is
			// terminal, so release the connection instead of
			// transitioning.
			state := s.state
			s.mu.Unlock()
			_ = client.Close()
			return &StateError{Op: "establish", State: state}
		}
		s.client = client
		s.state = StateEstablished
		s.mu.Unlock()

		log.Info().Str("address", address).Str("user", s.config.Credential.Username).Msg("session established")
		return nil
	}
}

// fail transitions the session to the failed state and returns err.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.state = StateFailed
	s.failure = err
	s.mu.Unlock()

	log.Debug().Err(err).Str("address", s.config.Address()).Msg("session establishment failed")
	return err
}

// Teardown closes all live channels best-effort, then the underlying
// connection, and moves the session to the closed state. Per-channel close
// failures are downgraded to a single warning. It is idempotent; calls
// after the first are no-ops.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	channels := s.channels
	client := s.client
	s.channels = make(map[uuid.UUID]io.Closer)
	s.client = nil
	s.state = StateClosed
	s.mu.Unlock()

	var failed []string
	for id, closer := range channels {
		if err := closeWithTimeout(closer, s.config.ChannelCloseTimeout); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", id, err))
		}
	}
	if len(failed) > 0 {
		log.Warn().
			Strs("channels", failed).
			Msg("some channels did not close cleanly during teardown")
	}

	if client != nil {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Str("address", s.config.Address()).Msg("error closing connection")
		}
	}

	log.Debug().Str("address", s.config.Address()).Msg("session closed")
}

// checkEstablished returns the live client, or a *StateError without any
// network round-trip when the session is not established.
func (s *Session) checkEstablished(op string) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEstablished {
		return nil, &StateError{Op: op, State: s.state}
	}
	return s.client, nil
}

// register adds an open channel to the live set. The state is re-checked
// because a teardown may have raced the blocking channel open.
func (s *Session) register(op string, id uuid.UUID, closer io.Closer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEstablished {
		return &StateError{Op: op, State: s.state}
	}
	s.channels[id] = closer
	return nil
}

// deregister removes a channel from the live set. Channels already removed
// by a teardown are ignored.
func (s *Session) deregister(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, id)
}

// closeWithTimeout closes c, giving up after the timeout. A close that
// times out leaks the underlying handle rather than blocking teardown.
func closeWithTimeout(c io.Closer, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- c.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("close timed out after %s", timeout)
	}
}

// isAuthFailure reports whether a handshake error was an authentication
// rejection. x/crypto/ssh does not expose a typed error for this.
func isAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "unable to authenticate") ||
		strings.Contains(err.Error(), "no supported methods remain")
}
