package app

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rsas-protocol/rsas-go/cmd/rsas-discovery/app/options"
	"github.com/rsas-protocol/rsas-go/pkg/activation"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// targetFlags selects a module by serial port or by ESN.
type targetFlags struct {
	port   string
	device string
}

func (t *targetFlags) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.port, "port", "", "Serial port of the module, e.g. /dev/ttyUSB0 or COM3.")
	cmd.Flags().StringVar(&t.device, "device", "", "ESN of a discovered module.")
	cmd.MarkFlagsMutuallyExclusive("port", "device")
	cmd.MarkFlagsOneRequired("port", "device")
}

func (t *targetFlags) ref() transport.Ref {
	if t.port != "" {
		return transport.SerialRef(t.port)
	}
	return transport.Ref{}
}

// wait is only needed when an ESN must be resolved through mDNS.
func (t *targetFlags) wait(d time.Duration) time.Duration {
	if t.device == "" {
		return 0
	}
	return d
}

func newActivateCommand(opts *options.Options) *cobra.Command {
	var (
		target targetFlags
		req    activation.Request
		format string
		wait   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Write activation data to a module",
		Example: `  rsas-discovery activate --port /dev/ttyUSB0 --operator OP-1 --aircraft AC-7
  rsas-discovery activate --discovery.mode network --device 24A160F1 --operator OP-1 --aircraft AC-7`,
		Args: cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			return checkFormat(format)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := startRuntime(cmd.Context(), opts, target.wait(wait))
			if err != nil {
				return err
			}
			defer rt.close()

			req.Target = target.ref()
			req.DeviceID = target.device
			res, err := rt.engine.Activate(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), format, res)
		},
	}
	target.addFlags(cmd)
	fs := cmd.Flags()
	fs.StringVar(&req.OperatorID, "operator", "", "Operator ID to store.")
	fs.StringVar(&req.AircraftID, "aircraft", "", "Aircraft ID to store.")
	fs.StringVar(&req.ESN, "esn", "", "Serial number to store (optional).")
	fs.StringVar(&req.RIDID, "rid", "", "Remote ID to store; generated when empty.")
	fs.StringVarP(&format, "output", "o", formatTable, "Output format: table, json or yaml.")
	fs.DurationVar(&wait, "wait", defaultWait, "How long to collect mDNS announcements before resolving --device.")
	_ = cmd.MarkFlagRequired("operator")
	_ = cmd.MarkFlagRequired("aircraft")
	return cmd
}

func newFieldsCommand(opts *options.Options) *cobra.Command {
	var (
		target targetFlags
		format string
		wait   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "Read back the identifiers a module has stored",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			return checkFormat(format)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := startRuntime(cmd.Context(), opts, target.wait(wait))
			if err != nil {
				return err
			}
			defer rt.close()

			ref := target.ref()
			if ref.IsZero() {
				d, err := rt.engine.Resolve(cmd.Context(), target.device)
				if err != nil {
					return err
				}
				ref = d.Ref
			}
			fields, err := rt.engine.ReadStoredFields(cmd.Context(), ref)
			if err != nil {
				return err
			}
			return printFields(cmd.OutOrStdout(), format, fields)
		},
	}
	target.addFlags(cmd)
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "Output format: table, json or yaml.")
	cmd.Flags().DurationVar(&wait, "wait", defaultWait, "How long to collect mDNS announcements before resolving --device.")
	return cmd
}
