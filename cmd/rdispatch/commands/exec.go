package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newExecCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command>...",
		Short: "Execute a command on the remote host",
		Long: `Execute a single command on the remote host and print its output.

The process exits with the remote command's exit status.`,
		Example: `  # Check disk usage
  rdispatch exec -H build1 -u deploy df -h

  # Quote shell constructs so they run remotely
  rdispatch exec -H build1 "ls /var/log | wc -l"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")

			d, err := newDispatcher(cmd.Context())
			if err != nil {
				return err
			}

			result, err := d.Execute(cmd.Context(), command)
			if err != nil {
				_ = d.Close()
				return err
			}
			if err := d.Close(); err != nil {
				return err
			}

			fmt.Fprint(os.Stdout, result.Stdout)
			fmt.Fprint(os.Stderr, result.Stderr)

			if result.ExitStatus != 0 {
				os.Exit(result.ExitStatus)
			}
			return nil
		},
	}
}
