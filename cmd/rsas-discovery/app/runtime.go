package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rsas-protocol/rsas-go/cmd/rsas-discovery/app/options"
	"github.com/rsas-protocol/rsas-go/pkg/discovery"
	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/metrics"
	"github.com/rsas-protocol/rsas-go/pkg/notify"
	"github.com/rsas-protocol/rsas-go/pkg/service"
	"github.com/rsas-protocol/rsas-go/pkg/trace"
)

const mqttDisconnectTimeout = 2 * time.Second

// runtime owns the engine and its observers for one command invocation.
type runtime struct {
	engine  *service.Engine
	metrics *metrics.Metrics

	traceFile *trace.FileLogger
	mqtt      *notify.MQTTClient
	notifier  *notify.PublishingNotifier
}

// newRuntime assembles the engine from opts. MQTT publishing is attached only
// when withNotify is set and mqtt.enabled is true; one-shot commands exit
// before a queued message would be delivered.
func newRuntime(opts *options.Options, withNotify bool) (*runtime, error) {
	cfg, err := opts.EngineConfig()
	if err != nil {
		return nil, err
	}

	rt := &runtime{metrics: metrics.New()}
	cfg.Metrics = rt.metrics
	cfg.Logger = log.WithName("engine")

	var tracers []trace.Logger
	if opts.Trace.File != "" {
		f, err := trace.NewFileLogger(opts.Trace.File)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		rt.traceFile = f
		tracers = append(tracers, f)
	}
	if opts.Trace.Log {
		tracers = append(tracers, trace.NewZapAdapter(log.WithName("trace")))
	}
	switch len(tracers) {
	case 0:
	case 1:
		cfg.Tracer = tracers[0]
	default:
		cfg.Tracer = trace.NewMultiLogger(tracers...)
	}

	if withNotify && opts.MQTT.Enabled {
		mcfg := opts.MQTT.ToClientConfig()
		mcfg.Logger = log.WithName("mqtt")
		client, err := notify.NewMQTTClient(mcfg)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.mqtt = client
		rt.notifier = notify.NewPublishingNotifier(notify.PublisherConfig{
			Publisher: client,
			Topics:    notify.Topics{Root: opts.MQTT.TopicRoot},
			QoS:       byte(opts.MQTT.QoS),
			Logger:    log.WithName("notify"),
		})
		cfg.Notifier = rt.notifier
	}

	if cfg.Mode.Network() {
		cfg.Browser = discovery.NewMDNSBrowser(opts.Discovery.ToBrowserConfig())
	}

	rt.engine, err = service.New(cfg)
	if err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

// start connects the notifier and starts background discovery.
func (rt *runtime) start(ctx context.Context) error {
	if rt.mqtt != nil {
		if err := rt.mqtt.Start(ctx); err != nil {
			return fmt.Errorf("start mqtt: %w", err)
		}
		rt.notifier.Start(ctx)
	}
	return rt.engine.Start(ctx)
}

// close stops everything start launched. It is safe on a partly built
// runtime.
func (rt *runtime) close() {
	if rt.engine != nil && rt.engine.State() == service.StateRunning {
		_ = rt.engine.Stop()
	}
	if rt.notifier != nil {
		rt.notifier.Stop()
	}
	if rt.mqtt != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mqttDisconnectTimeout)
		rt.mqtt.Disconnect(ctx)
		cancel()
	}
	if rt.traceFile != nil {
		if err := rt.traceFile.Close(); err != nil {
			log.Warn("close trace file", "error", err)
		}
	}
}
