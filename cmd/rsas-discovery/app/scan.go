package app

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/rsas-protocol/rsas-go/cmd/rsas-discovery/app/options"
	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/service"
)

// defaultWait is how long one-shot commands listen for mDNS announcements.
const defaultWait = 3 * time.Second

func newScanCommand(opts *options.Options) *cobra.Command {
	var (
		format string
		wait   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List reachable modules once",
		Long: `Scan USB serial ports and/or browse mDNS, then print the modules found.

In network or both mode the command listens for announcements for --wait
before listing.`,
		Args: cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			return checkFormat(format)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := startRuntime(cmd.Context(), opts, wait)
			if err != nil {
				return err
			}
			defer rt.close()

			devices, err := rt.engine.ListDevices(cmd.Context())
			if err != nil {
				return err
			}
			return printDevices(cmd.OutOrStdout(), format, devices)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "Output format: table, json or yaml.")
	cmd.Flags().DurationVar(&wait, "wait", defaultWait, "How long to collect mDNS announcements (network and both modes).")
	return cmd
}

// startRuntime builds and starts a runtime for a one-shot command, then lets
// network discovery populate the registry for wait.
func startRuntime(ctx context.Context, opts *options.Options, wait time.Duration) (*runtime, error) {
	rt, err := newRuntime(opts, false)
	if err != nil {
		return nil, err
	}
	if err := rt.start(ctx); err != nil {
		rt.close()
		return nil, err
	}
	if rt.engine.Mode() != service.ModeSerial && wait > 0 {
		log.Debug("waiting for mDNS announcements", "wait", wait)
		select {
		case <-ctx.Done():
			rt.close()
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return rt, nil
}
