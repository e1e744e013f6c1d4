package transport

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// ExecChannel is a channel dedicated to one remote command execution. It
// belongs to the session that opened it and must be closed by its operation
// on every exit path.
type ExecChannel struct {
	id    uuid.UUID
	owner *Session
	sess  *ssh.Session

	closeOnce sync.Once
	closeErr  error
}

// OpenExec opens a new exec channel. It fails immediately with a
// *StateError when the session is not established; a failure to open the
// channel on a live connection is returned as-is for the operation layer
// to classify.
func (s *Session) OpenExec() (*ExecChannel, error) {
	client, err := s.checkEstablished("open-exec")
	if err != nil {
		return nil, err
	}

	raw, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open exec channel: %w", err)
	}

	ch := &ExecChannel{id: uuid.New(), owner: s, sess: raw}
	if err := s.register("open-exec", ch.id, raw); err != nil {
		_ = raw.Close()
		return nil, err
	}

	log.Debug().Stringer("channel", ch.id).Msg("exec channel opened")
	return ch, nil
}

// ID returns the channel's identifier, used in logs and teardown warnings.
func (c *ExecChannel) ID() uuid.UUID {
	return c.id
}

// Session exposes the underlying ssh session for the executing operation.
func (c *ExecChannel) Session() *ssh.Session {
	return c.sess
}

// Close releases the channel and deregisters it from the owning session.
// It is idempotent and safe to call out-of-band to cancel an in-flight
// operation.
func (c *ExecChannel) Close() error {
	c.closeOnce.Do(func() {
		c.owner.deregister(c.id)
		c.closeErr = c.sess.Close()
		log.Debug().Stringer("channel", c.id).Msg("exec channel closed")
	})
	return c.closeErr
}

// FileChannel is a channel running the SFTP subsystem, used by copy
// operations and the long-lived transfer session.
type FileChannel struct {
	id    uuid.UUID
	owner *Session
	sftp  *sftp.Client

	closeOnce sync.Once
	closeErr  error
}

// OpenFile opens a new file transfer channel. The same state rules as
// OpenExec apply.
func (s *Session) OpenFile() (*FileChannel, error) {
	client, err := s.checkEstablished("open-file")
	if err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("open file channel: %w", err)
	}

	ch := &FileChannel{id: uuid.New(), owner: s, sftp: sftpClient}
	if err := s.register("open-file", ch.id, sftpClient); err != nil {
		_ = sftpClient.Close()
		return nil, err
	}

	log.Debug().Stringer("channel", ch.id).Msg("file channel opened")
	return ch, nil
}

// ID returns the channel's identifier.
func (c *FileChannel) ID() uuid.UUID {
	return c.id
}

// Client exposes the underlying sftp client for the operation using the
// channel.
func (c *FileChannel) Client() *sftp.Client {
	return c.sftp
}

// Close releases the channel and deregisters it from the owning session.
// Idempotent.
func (c *FileChannel) Close() error {
	c.closeOnce.Do(func() {
		c.owner.deregister(c.id)
		c.closeErr = c.sftp.Close()
		log.Debug().Stringer("channel", c.id).Msg("file channel closed")
	})
	return c.closeErr
}
