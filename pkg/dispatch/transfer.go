package dispatch

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"

	"github.com/rdispatch/rdispatch/pkg/transport"
)

// TransferSession is the stateful file-management sub-session. It wraps
// one long-lived file channel and stays open until Close or dispatcher
// teardown. At most one exists per dispatcher.
type TransferSession struct {
	channel *transport.FileChannel

	mu     sync.Mutex
	closed bool
}

// Connect opens the transfer sub-session, or returns the one already open:
// calling Connect while a live transfer session exists reuses it. It fails
// with a *SessionError when the transport session is not established.
func (d *Dispatcher) Connect() (*TransferSession, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, &ClosedError{Op: "connect"}
	}
	if d.transfer != nil && !d.transfer.isClosed() {
		existing := d.transfer
		d.mu.Unlock()
		return existing, nil
	}
	session := d.session
	d.mu.Unlock()

	channel, err := session.OpenFile()
	if err != nil {
		return nil, &SessionError{Op: "connect", Err: err}
	}

	transfer := &TransferSession{channel: channel}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		_ = channel.Close()
		return nil, &ClosedError{Op: "connect"}
	}
	if d.transfer != nil && !d.transfer.isClosed() {
		// Lost the race against a concurrent Connect; keep theirs.
		_ = channel.Close()
		return d.transfer, nil
	}
	d.transfer = transfer

	log.Debug().Stringer("channel", channel.ID()).Msg("transfer session opened")
	return transfer, nil
}

// client returns the underlying sftp client, or a *SessionError when the
// sub-session has been closed.
func (t *TransferSession) client(op string) (*sftp.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, &SessionError{Op: op, Err: errors.New("session is closed")}
	}
	return t.channel.Client(), nil
}

func (t *TransferSession) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close releases the dedicated channel. Idempotent.
func (t *TransferSession) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	return t.channel.Close()
}

// Mkdir creates a single remote directory. Creating a path that already
// exists as a directory succeeds (idempotent); a path that exists as
// anything else, a missing parent, or a permission failure yields a
// *RemoteFSError.
func (t *TransferSession) Mkdir(path string) error {
	client, err := t.client("mkdir")
	if err != nil {
		return err
	}

	if info, err := client.Stat(path); err == nil {
		if info.IsDir() {
			return nil
		}
		return &RemoteFSError{Op: "mkdir", Path: path, Err: fmt.Errorf("path exists and is not a directory")}
	}

	if err := client.Mkdir(path); err != nil {
		return &RemoteFSError{Op: "mkdir", Path: path, Err: err}
	}
	return nil
}

// Remove removes a single remote file. Removing a directory or a missing
// path fails with a *RemoteFSError.
func (t *TransferSession) Remove(path string) error {
	client, err := t.client("remove")
	if err != nil {
		return err
	}

	info, err := client.Stat(path)
	if err != nil {
		return &RemoteFSError{Op: "remove", Path: path, Err: err}
	}
	if info.IsDir() {
		return &RemoteFSError{Op: "remove", Path: path, Err: fmt.Errorf("path is a directory")}
	}

	if err := client.Remove(path); err != nil {
		return &RemoteFSError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// Rmdir removes a single empty remote directory. Non-empty or missing
// directories fail with a *RemoteFSError.
func (t *TransferSession) Rmdir(path string) error {
	client, err := t.client("rmdir")
	if err != nil {
		return err
	}

	info, err := client.Stat(path)
	if err != nil {
		return &RemoteFSError{Op: "rmdir", Path: path, Err: err}
	}
	if !info.IsDir() {
		return &RemoteFSError{Op: "rmdir", Path: path, Err: fmt.Errorf("path is not a directory")}
	}

	if err := client.RemoveDirectory(path); err != nil {
		return &RemoteFSError{Op: "rmdir", Path: path, Err: err}
	}
	return nil
}

// Stat returns information about a remote path.
func (t *TransferSession) Stat(path string) (os.FileInfo, error) {
	client, err := t.client("stat")
	if err != nil {
		return nil, err
	}

	info, err := client.Stat(path)
	if err != nil {
		return nil, &RemoteFSError{Op: "stat", Path: path, Err: err}
	}
	return info, nil
}

// Exists reports whether a remote path exists.
func (t *TransferSession) Exists(path string) (bool, error) {
	client, err := t.client("exists")
	if err != nil {
		return false, err
	}

	if _, err := client.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &RemoteFSError{Op: "exists", Path: path, Err: err}
	}
	return true, nil
}

// IsDir reports whether a remote path exists and is a directory.
func (t *TransferSession) IsDir(path string) (bool, error) {
	client, err := t.client("isdir")
	if err != nil {
		return false, err
	}

	info, err := client.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &RemoteFSError{Op: "isdir", Path: path, Err: err}
	}
	return info.IsDir(), nil
}

// List returns the entries of a remote directory.
func (t *TransferSession) List(path string) ([]os.FileInfo, error) {
	client, err := t.client("list")
	if err != nil {
		return nil, err
	}

	entries, err := client.ReadDir(path)
	if err != nil {
		return nil, &RemoteFSError{Op: "list", Path: path, Err: err}
	}
	return entries, nil
}
