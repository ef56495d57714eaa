package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/rsas-protocol/rsas-go/cmd/rsas-discovery/app/api"
	"github.com/rsas-protocol/rsas-go/cmd/rsas-discovery/app/options"
	"github.com/rsas-protocol/rsas-go/pkg/log"
)

func newServeCommand(opts *options.Options, v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run discovery and serve the HTTP API",
		Long: `Run the engine and serve its operations over HTTP:

  GET  /devices       list discovered modules
  POST /activate      write activation data to a module
  GET  /device-info   read back the stored identifiers
  GET  /health        liveness and device count
  GET  /metrics       Prometheus metrics (unless disabled)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, v)
		},
	}
}

func runServe(ctx context.Context, opts *options.Options, v *viper.Viper) error {
	rt, err := newRuntime(opts, true)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.start(ctx); err != nil {
		return err
	}
	watchConfig(v, rt.engine.Sweeper())

	var gatherer prometheus.Gatherer
	if opts.Server.EnableMetrics {
		gatherer = rt.metrics.Registry
	}
	srv := &http.Server{
		Addr:         opts.Server.Addr,
		Handler:      api.NewRouter(rt.engine, gatherer, log.WithName("api")),
		ReadTimeout:  opts.Server.ReadTimeout,
		WriteTimeout: opts.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("serving HTTP API", "addr", opts.Server.Addr, "mode", rt.engine.Mode())
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), opts.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down HTTP API")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
