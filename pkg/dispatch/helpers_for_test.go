package dispatch

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// testSSHServer provides a minimal SSH server for testing. It accepts the
// testuser/testpass credential, serves a small set of canned exec commands
// and runs a real SFTP subsystem against the local filesystem.
type testSSHServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	addr     string
	done     chan struct{}
}

func newTestSSHServer(t *testing.T) *testSSHServer {
	t.Helper()

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	hostKey, err := ssh.NewSignerFromKey(privKey)
	if err != nil {
		t.Fatalf("failed to create host signer: %v", err)
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "testuser" && string(pass) == "testpass" {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials")
		},
	}
	config.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	server := &testSSHServer{
		listener: listener,
		config:   config,
		addr:     listener.Addr().String(),
		done:     make(chan struct{}),
	}

	go server.serve()
	t.Cleanup(server.close)

	return server
}

func (s *testSSHServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}
		go s.handleConnection(conn)
	}
}

func (s *testSSHServer) handleConnection(netConn net.Conn) {
	defer netConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}

		go s.handleChannel(channel, requests)
	}
}

func (s *testSSHServer) handleChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "exec":
			command := string(req.Payload[4:]) // Skip the length prefix
			if req.WantReply {
				req.Reply(true, nil)
			}
			s.runCommand(channel, requests, command)
			return

		case "subsystem":
			if string(req.Payload[4:]) == "sftp" {
				if req.WantReply {
					req.Reply(true, nil)
				}
				if srv, err := sftp.NewServer(channel); err == nil {
					srv.Serve()
				}
				return
			}
			if req.WantReply {
				req.Reply(false, nil)
			}

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// runCommand emulates a tiny shell understood by the exec tests.
func (s *testSSHServer) runCommand(channel ssh.Channel, requests <-chan *ssh.Request, command string) {
	name, arg := command, ""
	if i := strings.IndexByte(command, ' '); i >= 0 {
		name, arg = command[:i], command[i+1:]
	}

	exitStatus := func(code byte) {
		channel.SendRequest("exit-status", false, []byte{0, 0, 0, code})
	}

	switch name {
	case "true":
		exitStatus(0)
	case "false":
		exitStatus(1)
	case "echo":
		channel.Write([]byte(arg + "\n"))
		exitStatus(0)
	case "echo-stderr":
		channel.Stderr().Write([]byte(arg + "\n"))
		exitStatus(0)
	case "sleep":
		// Block until the client closes the channel; no exit status is
		// ever sent. Reading stdin alone is not enough: the client sends
		// EOF immediately when it has no stdin, so wait for the request
		// stream to close, which happens only when the channel closes.
		io.Copy(io.Discard, channel)
		for range requests {
		}
	default:
		channel.Stderr().Write([]byte(name + ": command not found\n"))
		exitStatus(127)
	}
}

func (s *testSSHServer) close() {
	close(s.done)
	s.listener.Close()
}

// port returns the port the test server listens on.
func (s *testSSHServer) port(t *testing.T) int {
	t.Helper()

	_, portStr, err := net.SplitHostPort(s.addr)
	if err != nil {
		t.Fatalf("failed to parse address %q: %v", s.addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("failed to parse port %q: %v", portStr, err)
	}
	return port
}

// newTestDispatcher starts a test server and returns a dispatcher connected
// to it. Both are torn down with the test.
func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()

	server := newTestSSHServer(t)

	d, err := New(context.Background(), "127.0.0.1", Options{
		Port:                  server.port(t),
		Username:              "testuser",
		Password:              "testpass",
		InsecureIgnoreHostKey: true,
		ConnectTimeout:        5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	return d
}
