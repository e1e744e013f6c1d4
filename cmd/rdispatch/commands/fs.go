package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rdispatch/rdispatch/pkg/dispatch"
)

// withTransferSession runs fn against a connected transfer session,
// closing the dispatcher afterwards.
func withTransferSession(cmd *cobra.Command, fn func(ts *dispatch.TransferSession) error) error {
	d, err := newDispatcher(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	ts, err := d.Connect()
	if err != nil {
		return err
	}
	return fn(ts)
}

func newMkdirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory on the remote host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTransferSession(cmd, func(ts *dispatch.TransferSession) error {
				return ts.Mkdir(args[0])
			})
		},
	}
}

func newRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a file on the remote host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTransferSession(cmd, func(ts *dispatch.TransferSession) error {
				return ts.Remove(args[0])
			})
		},
	}
}

func newRmdirCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <path>",
		Short: "Remove an empty directory on the remote host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTransferSession(cmd, func(ts *dispatch.TransferSession) error {
				return ts.Rmdir(args[0])
			})
		},
	}
}

func newLsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <path>",
		Short: "List a directory on the remote host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTransferSession(cmd, func(ts *dispatch.TransferSession) error {
				entries, err := ts.List(args[0])
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
				for _, entry := range entries {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
						entry.Mode(), entry.Size(),
						entry.ModTime().Format("Jan _2 15:04"), entry.Name())
				}
				return w.Flush()
			})
		},
	}
}
