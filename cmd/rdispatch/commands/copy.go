package commands

import (
	"github.com/spf13/cobra"
)

func newCopyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <source> <dest>",
		Short: "Copy a local file, directory or glob pattern to the remote host",
		Long: `Copy local files to the remote host over the established session.

A directory source is copied recursively; remote directories are created as
needed and existing files are overwritten. If the source names no existing
path it is treated as a glob pattern and every match is copied under dest.
Per-file failures do not abort the copy; they are reported together at the
end.`,
		Example: `  # Copy a file
  rdispatch copy -H build1 ./app.tar.gz /tmp/app.tar.gz

  # Copy a tree
  rdispatch copy -H build1 ./dist /opt/app/releases

  # Copy everything matching a pattern
  rdispatch copy -H build1 './logs/*.gz' /var/backups/logs`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDispatcher(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			return d.Copy(cmd.Context(), args[0], args[1])
		},
	}
}
