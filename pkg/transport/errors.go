package transport

import "fmt"

// ConnectError reports a network or handshake failure while establishing
// the session.
type ConnectError struct {
	// Addr is the dial address.
	Addr string

	// Err is the underlying error.
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// AuthError reports a rejected credential during the handshake.
type AuthError struct {
	// User is the login name the credential was presented for.
	User string

	// Err is the underlying error.
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authenticate as %s: %v", e.User, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// StateError reports an operation attempted in the wrong session lifecycle
// state. It is returned without any network round-trip.
type StateError struct {
	// Op is the operation that was attempted.
	Op string

	// State is the session state at the time.
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: invalid session state %q", e.Op, e.State)
}
