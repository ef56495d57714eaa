package tracecmd

import (
	"github.com/spf13/cobra"
)

// NewCommand returns the trace command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect captured device exchanges (--trace.file)",
	}
	cmd.AddCommand(newViewCommand(), newStatsCommand())
	return cmd
}

func newViewCommand() *cobra.Command {
	var flags FilterFlags
	cmd := &cobra.Command{
		Use:   "view <file>",
		Short: "Print the events of a trace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.Filter()
			if err != nil {
				return err
			}
			return RunView(args[0], filter, cmd.OutOrStdout())
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&flags.Session, "session", "", "Only events of this session ID.")
	fs.StringVar(&flags.Device, "device", "", "Only events of this device ESN.")
	fs.StringVar(&flags.Target, "target", "", "Only events for this port path or host:port.")
	fs.StringVar(&flags.Layer, "layer", "", "Only events of this layer: transport, protocol or activation.")
	fs.StringVar(&flags.Direction, "direction", "", "Only events in this direction: in or out.")
	fs.StringVar(&flags.Category, "category", "", "Only events of this category: data, state or error.")
	fs.StringVar(&flags.Since, "since", "", "Only events at or after this RFC 3339 time.")
	fs.StringVar(&flags.Until, "until", "", "Only events before this RFC 3339 time.")
	return cmd
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file>",
		Short: "Summarize a trace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunStats(args[0], cmd.OutOrStdout())
		},
	}
}
