package app

import (
	"github.com/spf13/cobra"

	"github.com/rsas-protocol/rsas-go/cmd/rsas-discovery/app/interactive"
	"github.com/rsas-protocol/rsas-go/cmd/rsas-discovery/app/options"
)

func newShellCommand(opts *options.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run discovery with an interactive prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(opts, true)
			if err != nil {
				return err
			}
			defer rt.close()
			if err := rt.start(cmd.Context()); err != nil {
				return err
			}

			sh, err := interactive.New(rt.engine)
			if err != nil {
				return err
			}
			sh.Run(cmd.Context())
			return nil
		},
	}
}
