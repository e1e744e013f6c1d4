// Package hostcfg loads the optional host alias file used by the CLI, so
// frequently used hosts can be addressed by a short name instead of
// repeating connection flags.
package hostcfg

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Host is one named connection target.
type Host struct {
	// Host is the hostname or IP address.
	Host string `yaml:"host"`

	// Port is the SSH port; 0 means the default.
	Port int `yaml:"port,omitempty"`

	// User is the remote login name.
	User string `yaml:"user,omitempty"`

	// Key is the path to a private key file.
	Key string `yaml:"key,omitempty"`
}

// File is the parsed host alias file.
type File struct {
	Hosts map[string]Host `yaml:"hosts"`
}

// DefaultPath returns the conventional location of the alias file.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "rdispatch", "hosts.yaml")
}

// Load parses the alias file at path. A missing file is not an error; it
// yields an empty File.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{Hosts: map[string]Host{}}, nil
		}
		return nil, fmt.Errorf("cannot read hosts file %s: %w", path, err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("cannot parse hosts file %s: %w", path, err)
	}
	if file.Hosts == nil {
		file.Hosts = map[string]Host{}
	}

	for name, host := range file.Hosts {
		if host.Host == "" {
			return nil, fmt.Errorf("hosts file %s: alias %q has no host", path, name)
		}
	}

	return &file, nil
}

// Lookup resolves an alias. The second return value reports whether the
// alias was defined.
func (f *File) Lookup(name string) (Host, bool) {
	host, ok := f.Hosts[name]
	return host, ok
}
