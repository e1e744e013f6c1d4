package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rdispatch/rdispatch/pkg/auth"
	"github.com/rdispatch/rdispatch/pkg/transport"
)

// Options are the optional parameters for New. The zero value asks for the
// local user's identity and default key discovery on port 22.
type Options struct {
	// Port is the SSH port (default: 22).
	Port int

	// Username is the remote login name. Defaults to the invoking local
	// user's identity.
	Username string

	// Password selects password authentication when non-empty.
	Password string

	// KeyPath selects private key authentication when non-empty.
	KeyPath string

	// Passphrase decrypts an encrypted private key.
	Passphrase string

	// KnownHostsPath overrides the known_hosts file used for host key
	// verification.
	KnownHostsPath string

	// InsecureIgnoreHostKey disables host key verification.
	InsecureIgnoreHostKey bool

	// ConnectTimeout bounds the dial and handshake.
	ConnectTimeout time.Duration
}

// Dispatcher is the facade for copy, exec and transfer-session operations
// against one remote host. It owns exactly one authenticated transport
// session; every operation multiplexes over it on its own channel.
// Concurrent Copy and Execute calls are safe.
type Dispatcher struct {
	session *transport.Session

	mu       sync.Mutex
	transfer *TransferSession
	closed   bool
}

// New resolves a credential, establishes the transport session and returns
// a ready dispatcher. It never returns a half-initialized dispatcher: a
// credential failure (*auth.CredentialError) or an establishment failure
// (*transport.ConnectError, *transport.AuthError) yields a nil dispatcher.
func New(ctx context.Context, host string, opts Options) (*Dispatcher, error) {
	cred, err := auth.Resolve(auth.ResolveOptions{
		Username:   opts.Username,
		Password:   opts.Password,
		KeyPath:    opts.KeyPath,
		Passphrase: opts.Passphrase,
	})
	if err != nil {
		return nil, err
	}

	config := transport.DefaultConfig(host, cred)
	if opts.Port > 0 {
		config.Port = opts.Port
	}
	if opts.KnownHostsPath != "" {
		config.KnownHostsPath = opts.KnownHostsPath
	}
	if opts.ConnectTimeout > 0 {
		config.ConnectTimeout = opts.ConnectTimeout
	}
	config.InsecureIgnoreHostKey = opts.InsecureIgnoreHostKey

	session, err := transport.NewSession(config)
	if err != nil {
		return nil, err
	}

	if err := session.Establish(ctx); err != nil {
		return nil, err
	}

	return &Dispatcher{session: session}, nil
}

// entry guards an operation entry point, returning the live transport
// session or a *ClosedError.
func (d *Dispatcher) entry(op string) (*transport.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, &ClosedError{Op: op}
	}
	return d.session, nil
}

// Close tears down any open transfer session, then the transport session,
// and marks the dispatcher closed. It is idempotent; every operation entry
// point fails with a *ClosedError afterwards.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	transfer := d.transfer
	d.transfer = nil
	d.mu.Unlock()

	if transfer != nil {
		if err := transfer.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing transfer session")
		}
	}

	d.session.Teardown()
	return nil
}
