package app

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"gopkg.in/yaml.v3"

	"github.com/rsas-protocol/rsas-go/pkg/activation"
	"github.com/rsas-protocol/rsas-go/pkg/protocol"
	"github.com/rsas-protocol/rsas-go/pkg/registry"
)

// Output formats accepted by -o.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func checkFormat(f string) error {
	switch f {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", f)
	}
}

// deviceRow is the printable form of a registry.Device.
type deviceRow struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Transport string            `json:"transport" yaml:"transport"`
	Target    string            `json:"target" yaml:"target"`
	Status    string            `json:"status" yaml:"status"`
	LastSeen  time.Time         `json:"last_seen" yaml:"last_seen"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func toRows(devices []registry.Device) []deviceRow {
	rows := make([]deviceRow, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, deviceRow{
			ID:        d.ID,
			Name:      d.Name,
			Transport: d.Kind().String(),
			Target:    d.Ref.String(),
			Status:    d.Status,
			LastSeen:  d.LastSeen,
			Metadata:  d.Metadata,
		})
	}
	return rows
}

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return checkFormat(format)
	}
}

func printDevices(w io.Writer, format string, devices []registry.Device) error {
	rows := toRows(devices)
	if format != formatTable {
		return writeStructured(w, format, rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No devices found.")
		return err
	}

	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("ID", "NAME", "TRANSPORT", "TARGET", "STATUS", "LAST SEEN", "METADATA")
	for _, r := range rows {
		table.AddRow(r.ID, r.Name, r.Transport, r.Target, r.Status, r.LastSeen.Format(time.TimeOnly), formatMetadata(r.Metadata))
	}
	_, err := fmt.Fprintln(w, table)
	return err
}

func formatMetadata(md map[string]string) string {
	if len(md) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+md[k])
	}
	return strings.Join(parts, " ")
}

func printResult(w io.Writer, format string, res activation.Result) error {
	if format != formatTable {
		return writeStructured(w, format, res)
	}
	table := uitable.New()
	table.Wrap = true
	table.AddRow("Accepted:", res.Accepted)
	table.AddRow("Looks successful:", res.LooksSuccessful)
	table.AddRow("RID:", res.RIDID)
	table.AddRow("Sent:", res.SentCommand)
	table.AddRow("Response:", orDash(res.RawResponse))
	_, err := fmt.Fprintln(w, table)
	return err
}

func printFields(w io.Writer, format string, f protocol.Fields) error {
	if format != formatTable {
		return writeStructured(w, format, f)
	}
	table := uitable.New()
	table.AddRow("Operator ID:", orDash(f.OperatorID))
	table.AddRow("Aircraft ID:", orDash(f.AircraftID))
	table.AddRow("Serial number:", orDash(f.SerialNumber))
	table.AddRow("RID:", orDash(f.RIDID))
	_, err := fmt.Fprintln(w, table)
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
