package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsas-protocol/rsas-go/cmd/rsas-discovery/app/options"
	"github.com/rsas-protocol/rsas-go/pkg/registry"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

func parsedCommand(t *testing.T, opts *options.Options, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	opts.AddFlags(cmd.Flags())
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfigLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rsas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
discovery:
  mode: network
  ttl: 45s
activation:
  response-window: 2s
log:
  level: warn
`), 0o600))
	t.Setenv("RSAS_ACTIVATION_RID_STRATEGY", "random")

	opts := options.NewOptions()
	cmd := parsedCommand(t, opts, "--discovery.ttl=50s")
	require.NoError(t, loadConfig(cmd, viper.New(), path, opts))

	assert.Equal(t, "network", opts.Discovery.Mode)
	assert.Equal(t, 50*time.Second, opts.Discovery.TTL, "flag wins over file")
	assert.Equal(t, 2*time.Second, opts.Activation.ResponseWindow)
	assert.Equal(t, "random", opts.Activation.RIDStrategy)
	assert.Equal(t, "warn", opts.Log.Level)
	assert.Equal(t, "127.0.0.1:8080", opts.Server.Addr, "defaults kept")
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	opts := options.NewOptions()
	cmd := parsedCommand(t, opts, "--discovery.mode=carrier-pigeon")
	err := loadConfig(cmd, viper.New(), "", opts)
	assert.ErrorContains(t, err, "carrier-pigeon")

	opts = options.NewOptions()
	err = loadConfig(parsedCommand(t, opts), viper.New(), filepath.Join(t.TempDir(), "missing.yaml"), opts)
	assert.ErrorContains(t, err, "read config")
}

func TestRootRejectsUnknownOutputFormat(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"scan", "-o", "xml"})

	err := cmd.Execute()
	assert.ErrorContains(t, err, `unknown output format "xml"`)
}

func TestActivateRequiresTarget(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"activate", "--operator", "OP1", "--aircraft", "AC1"})

	assert.Error(t, cmd.Execute())
}

func TestPrintDevices(t *testing.T) {
	devices := []registry.Device{{
		ID:       "24A160F1",
		Name:     registry.DisplayName("24A160F1"),
		Ref:      transport.NetworkRef("192.168.4.1", 80),
		Status:   "ready",
		LastSeen: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Metadata: map[string]string{"fw": "1.2", "model": "RSAS-1"},
	}}

	var out bytes.Buffer
	require.NoError(t, printDevices(&out, formatTable, devices))
	assert.Contains(t, out.String(), "NETWORK")
	assert.Contains(t, out.String(), "192.168.4.1:80")
	assert.Contains(t, out.String(), "fw=1.2 model=RSAS-1")

	out.Reset()
	require.NoError(t, printDevices(&out, formatYAML, devices))
	assert.Contains(t, out.String(), "transport: NETWORK")
	assert.Contains(t, out.String(), "target: 192.168.4.1:80")

	out.Reset()
	require.NoError(t, printDevices(&out, formatJSON, devices))
	assert.Contains(t, out.String(), `"id": "24A160F1"`)

	out.Reset()
	require.NoError(t, printDevices(&out, formatTable, nil))
	assert.Equal(t, "No devices found.\n", out.String())
}

func TestVersionCommand(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "-o", "json"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"go_version"`)
}
