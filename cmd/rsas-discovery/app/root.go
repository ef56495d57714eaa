// Package app implements the rsas-discovery commands.
package app

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rsas-protocol/rsas-go/cmd/rsas-discovery/app/options"
	"github.com/rsas-protocol/rsas-go/cmd/rsas-discovery/app/tracecmd"
	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/registry"
)

const (
	commandName = "rsas-discovery"
	envPrefix   = "RSAS"
	commandDesc = `rsas-discovery finds RSAS Remote ID modules attached over USB serial or
announced on the local network via mDNS, and writes operator, aircraft and
remote-ID identifiers to them.

Every flag may also be set in a YAML config file (--config) using the flag
name as a nested key, or as an environment variable such as
RSAS_DISCOVERY_MODE=network.`
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := options.NewOptions()
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:           commandName,
		Short:         "Discover and activate RSAS modules",
		Long:          commandDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd, v, cfgFile, opts)
		},
	}

	pfs := cmd.PersistentFlags()
	pfs.StringVarP(&cfgFile, "config", "c", "", "Read configuration from this file (YAML, JSON or TOML).")
	opts.AddFlags(pfs)

	cmd.AddCommand(
		newServeCommand(opts, v),
		newScanCommand(opts),
		newActivateCommand(opts),
		newFieldsCommand(opts),
		newShellCommand(opts),
		tracecmd.NewCommand(),
		newVersionCommand(),
	)
	return cmd
}

// loadConfig layers flags over environment over the config file into opts,
// then validates them and initializes logging.
func loadConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string, opts *options.Options) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	if err := v.Unmarshal(opts); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	log.Init(opts.Log)
	if f := v.ConfigFileUsed(); f != "" {
		log.Debug("using config file", "path", f)
	}
	return nil
}

// watchConfig applies the settings that can change without a restart: the
// log level and the network TTL. sweeper may be nil.
func watchConfig(v *viper.Viper, sweeper *registry.Sweeper) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		logger := log.WithName("config")
		logger.Info("config file changed", "path", e.Name, "op", e.Op.String())

		if level := v.GetString("log.level"); level != "" {
			if err := log.SetLevel(level); err != nil {
				logger.Warn("ignoring log level", "level", level, "error", err)
			}
		}
		if sweeper != nil {
			ttl := v.GetDuration("discovery.ttl")
			switch {
			case ttl <= 0 || ttl == sweeper.TTL():
			case ttl <= v.GetDuration("discovery.refresh-interval"):
				logger.Warn("ignoring network TTL not above the refresh interval", "ttl", ttl)
			default:
				sweeper.SetTTL(ttl)
				logger.Info("network TTL changed", "ttl", ttl)
			}
		}
	})
	v.WatchConfig()
}
