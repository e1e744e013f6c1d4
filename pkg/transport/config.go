package transport

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/rdispatch/rdispatch/pkg/auth"
)

// Config holds the immutable identity of the remote host plus the
// credential and timeouts used to establish the session.
type Config struct {
	// Host is the remote hostname or IP address.
	Host string

	// Port is the SSH port (default: 22).
	Port int

	// Credential is the resolved authentication credential.
	Credential auth.Credential

	// KnownHostsPath is the path to the known_hosts file used for host key
	// verification. Empty means the conventional ~/.ssh/known_hosts.
	KnownHostsPath string

	// InsecureIgnoreHostKey disables host key verification entirely.
	InsecureIgnoreHostKey bool

	// ConnectTimeout bounds the dial and handshake.
	ConnectTimeout time.Duration

	// ChannelCloseTimeout bounds each best-effort channel close during
	// teardown.
	ChannelCloseTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults for the given host
// and credential.
func DefaultConfig(host string, cred auth.Credential) *Config {
	return &Config{
		Host:                host,
		Port:                22,
		Credential:          cred,
		ConnectTimeout:      30 * time.Second,
		ChannelCloseTimeout: 5 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.Credential.Username == "" {
		return fmt.Errorf("credential username is required")
	}

	switch c.Credential.Method {
	case auth.MethodPassword:
		if c.Credential.Password == "" {
			return fmt.Errorf("password credential has no password")
		}
	case auth.MethodPrivateKey:
		if c.Credential.Signer == nil {
			return fmt.Errorf("private key credential has no parsed key")
		}
	default:
		return fmt.Errorf("unsupported credential method: %s", c.Credential.Method)
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}

	if c.ChannelCloseTimeout <= 0 {
		return fmt.Errorf("channel close timeout must be positive")
	}

	return nil
}

// Address returns the formatted dial address (host:port).
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// clientConfig builds the ssh.ClientConfig for the handshake.
func (c *Config) clientConfig() (*ssh.ClientConfig, error) {
	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            c.Credential.Username,
		Auth:            c.Credential.AuthMethods(),
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectTimeout,
	}, nil
}

// hostKeyCallback selects the host key verification strategy. An explicit
// known_hosts path must parse; the conventional default is used when it
// exists, otherwise verification is skipped with a warning.
func (c *Config) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.InsecureIgnoreHostKey {
		log.Warn().Str("address", c.Address()).Msg("host key verification disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}

	if c.KnownHostsPath != "" {
		callback, err := knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts %s: %w", c.KnownHostsPath, err)
		}
		return callback, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		defaultPath := filepath.Join(home, ".ssh", "known_hosts")
		if _, err := os.Stat(defaultPath); err == nil {
			callback, err := knownhosts.New(defaultPath)
			if err == nil {
				return callback, nil
			}
			log.Warn().Err(err).Str("path", defaultPath).Msg("could not parse known_hosts")
		}
	}

	log.Warn().Str("address", c.Address()).Msg("no known_hosts file found, host key verification disabled")
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		return nil
	}, nil
}
