package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rdispatch/rdispatch/pkg/dispatch"
	"github.com/rdispatch/rdispatch/pkg/hostcfg"
)

var (
	// Global connection flags
	hostFlag       string
	portFlag       int
	userFlag       string
	passwordFlag   string
	keyFlag        string
	passphraseFlag string
	knownHostsFlag string
	insecureFlag   bool
	timeoutFlag    time.Duration
	hostsFileFlag  string
	logLevelFlag   string
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit string) error {
	rootCmd := newRootCommand(version, commit)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rdispatch",
		Short: "Secure copy and command execution on a remote host",
		Long: `rdispatch establishes one authenticated SSH session to a remote host and
multiplexes copy, exec and file-management operations over it.

Authentication falls back in order: explicit password, explicit key file,
then the conventional keys under ~/.ssh.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, err := zerolog.ParseLevel(logLevelFlag)
			if err != nil {
				level = zerolog.InfoLevel
			}
			zerolog.SetGlobalLevel(level)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&hostFlag, "host", "H", "", "remote host, IP or alias from the hosts file")
	flags.IntVarP(&portFlag, "port", "P", 0, "SSH port (default 22)")
	flags.StringVarP(&userFlag, "user", "u", "", "remote username (default: local user)")
	flags.StringVar(&passwordFlag, "password", "", "password for password authentication")
	flags.StringVarP(&keyFlag, "key", "i", "", "private key file")
	flags.StringVar(&passphraseFlag, "passphrase", "", "passphrase for an encrypted private key")
	flags.StringVar(&knownHostsFlag, "known-hosts", "", "known_hosts file for host key verification")
	flags.BoolVar(&insecureFlag, "insecure", false, "skip host key verification")
	flags.DurationVar(&timeoutFlag, "timeout", 30*time.Second, "connection timeout")
	flags.StringVar(&hostsFileFlag, "hosts-file", "", "host alias file (default ~/.config/rdispatch/hosts.yaml)")
	flags.StringVar(&logLevelFlag, "log-level", "info", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newExecCommand())
	rootCmd.AddCommand(newCopyCommand())
	rootCmd.AddCommand(newMkdirCommand())
	rootCmd.AddCommand(newRmCommand())
	rootCmd.AddCommand(newRmdirCommand())
	rootCmd.AddCommand(newLsCommand())

	return rootCmd
}

// newDispatcher builds a dispatcher from the persistent flags, resolving
// host aliases from the hosts file first.
func newDispatcher(ctx context.Context) (*dispatch.Dispatcher, error) {
	host := hostFlag
	if host == "" {
		return nil, fmt.Errorf("a remote host is required (--host)")
	}

	opts := dispatch.Options{
		Port:                  portFlag,
		Username:              userFlag,
		Password:              passwordFlag,
		KeyPath:               keyFlag,
		Passphrase:            passphraseFlag,
		KnownHostsPath:        knownHostsFlag,
		InsecureIgnoreHostKey: insecureFlag,
		ConnectTimeout:        timeoutFlag,
	}

	hostsPath := hostsFileFlag
	if hostsPath == "" {
		hostsPath = hostcfg.DefaultPath()
	}
	if hostsPath != "" {
		file, err := hostcfg.Load(hostsPath)
		if err != nil {
			return nil, err
		}
		if alias, ok := file.Lookup(host); ok {
			host = alias.Host
			if opts.Port == 0 {
				opts.Port = alias.Port
			}
			if opts.Username == "" {
				opts.Username = alias.User
			}
			if opts.KeyPath == "" {
				opts.KeyPath = alias.Key
			}
		}
	}

	return dispatch.New(ctx, host, opts)
}
