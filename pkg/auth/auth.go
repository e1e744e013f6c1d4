// Package auth resolves the credential used to authenticate a transport
// session. Resolution is an explicit, ordered fallback chain: an explicit
// password wins, then an explicit private key path, then default key
// discovery under the user's ~/.ssh directory. Resolution only reads local
// key material; it never touches the network.
package auth

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Method identifies which credential variant is active.
type Method string

const (
	// MethodPassword authenticates with a username/password pair.
	MethodPassword Method = "password"

	// MethodPrivateKey authenticates with a parsed private key.
	MethodPrivateKey Method = "private-key"
)

// defaultKeyNames are the key files probed during default discovery, in
// priority order.
var defaultKeyNames = []string{"id_rsa", "id_ed25519", "id_ecdsa", "id_dsa"}

// Credential is a resolved authentication credential. Exactly one variant
// is active, selected by Method; Username is always set.
type Credential struct {
	// Username is the login name on the remote host.
	Username string

	// Method selects the active variant.
	Method Method

	// Password is set for MethodPassword.
	Password string

	// Signer is the parsed private key for MethodPrivateKey.
	Signer ssh.Signer

	// KeyPath is the file the key was loaded from, for diagnostics.
	KeyPath string
}

// AuthMethods returns the ssh auth methods the transport should offer.
func (c Credential) AuthMethods() []ssh.AuthMethod {
	switch c.Method {
	case MethodPassword:
		// Keyboard-interactive answers the common "Password:" prompt on
		// servers that disable plain password auth.
		return []ssh.AuthMethod{
			ssh.Password(c.Password),
			ssh.KeyboardInteractive(
				func(user, instruction string, questions []string, echos []bool) ([]string, error) {
					answers := make([]string, len(questions))
					for i := range answers {
						answers[i] = c.Password
					}
					return answers, nil
				},
			),
		}
	case MethodPrivateKey:
		return []ssh.AuthMethod{ssh.PublicKeys(c.Signer)}
	}
	return nil
}

// ResolveOptions are the caller-supplied authentication parameters. All
// fields are optional; see Resolve for the fallback order.
type ResolveOptions struct {
	// Username is the remote login name. Defaults to the invoking local
	// user's identity.
	Username string

	// Password selects password authentication when non-empty.
	Password string

	// KeyPath selects private key authentication when non-empty. A leading
	// ~ is expanded to the user's home directory.
	KeyPath string

	// Passphrase decrypts an encrypted private key.
	Passphrase string
}

// Resolve produces a single credential from the given options.
//
// If Password is set, a password credential is returned. Otherwise, if
// KeyPath is set, the key is loaded and parsed. If neither is set, the
// conventional key files under ~/.ssh are probed in priority order and the
// first one found is used. Every failure is a *CredentialError.
func Resolve(opts ResolveOptions) (Credential, error) {
	username := opts.Username
	if username == "" {
		var err error
		username, err = localUsername()
		if err != nil {
			return Credential{}, &CredentialError{Reason: "cannot determine local username", Err: err}
		}
	}

	if opts.Password != "" {
		return Credential{
			Username: username,
			Method:   MethodPassword,
			Password: opts.Password,
		}, nil
	}

	keyPath := opts.KeyPath
	if keyPath != "" {
		keyPath = expandPath(keyPath)
		if _, err := os.Stat(keyPath); err != nil {
			return Credential{}, &CredentialError{
				Reason: fmt.Sprintf("private key file not found: %s", keyPath),
				Err:    err,
			}
		}
	} else {
		discovered, err := discoverDefaultKey()
		if err != nil {
			return Credential{}, err
		}
		keyPath = discovered
		log.Debug().Str("key", keyPath).Msg("using discovered default key")
	}

	signer, err := loadPrivateKey(keyPath, opts.Passphrase)
	if err != nil {
		return Credential{}, err
	}

	return Credential{
		Username: username,
		Method:   MethodPrivateKey,
		Signer:   signer,
		KeyPath:  keyPath,
	}, nil
}

// discoverDefaultKey probes the conventional ~/.ssh key files and returns
// the first one that exists.
func discoverDefaultKey() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", &CredentialError{Reason: "cannot determine home directory", Err: err}
	}

	for _, name := range defaultKeyNames {
		keyPath := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(keyPath); err == nil {
			return keyPath, nil
		}
	}

	return "", &CredentialError{
		Reason: "no password or key given and no default key found under " + filepath.Join(home, ".ssh"),
	}
}

// loadPrivateKey reads and parses a private key file.
func loadPrivateKey(keyPath, passphrase string) (ssh.Signer, error) {
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, &CredentialError{
			Reason: fmt.Sprintf("cannot read private key %s", keyPath),
			Err:    err,
		}
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyBytes)
	}
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, &CredentialError{
				Reason: fmt.Sprintf("private key %s is passphrase-protected and no passphrase was supplied", keyPath),
				Err:    err,
			}
		}
		return nil, &CredentialError{
			Reason: fmt.Sprintf("invalid private key file %s", keyPath),
			Err:    err,
		}
	}

	return signer, nil
}

// localUsername returns the invoking user's login name.
func localUsername() (string, error) {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username, nil
	}
	if name := os.Getenv("LOGNAME"); name != "" {
		return name, nil
	}
	if name := os.Getenv("USER"); name != "" {
		return name, nil
	}
	return "", errors.New("no local user identity available")
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}
