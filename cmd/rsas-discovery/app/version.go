package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rsas-protocol/rsas-go/pkg/version"
)

func newVersionCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			return checkFormat(format)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			if format != formatTable {
				return writeStructured(cmd.OutOrStdout(), format, info)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "Output format: table, json or yaml.")
	return cmd
}
