package tracecmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gosuri/uitable"

	"github.com/rsas-protocol/rsas-go/pkg/trace"
)

// maxDetail bounds the payload text shown per row.
const maxDetail = 80

// RunView prints the events of path matching filter, one row each.
func RunView(path string, filter trace.Filter, w io.Writer) error {
	reader, err := trace.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	table := uitable.New()
	table.AddRow("TIME", "SESSION", "DIR", "LAYER", "TYPE", "TARGET", "DETAIL")
	rows := 0
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		table.AddRow(
			event.Timestamp.UTC().Format("15:04:05.000000"),
			shortenID(event.SessionID),
			direction(event),
			event.Layer.String(),
			typeLabel(event),
			event.Target,
			detail(event),
		)
		rows++
	}

	if rows == 0 {
		_, err := fmt.Fprintln(w, "No matching events.")
		return err
	}
	_, err = fmt.Fprintln(w, table)
	return err
}

func shortenID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

// direction is only meaningful for data events.
func direction(e trace.Event) string {
	if e.Data == nil {
		return ""
	}
	return e.Direction.String()
}

func typeLabel(e trace.Event) string {
	switch {
	case e.Data != nil:
		if e.Data.Command != "" {
			return e.Data.Command
		}
		return "Data"
	case e.StateChange != nil:
		return e.StateChange.Entity.String()
	case e.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

func detail(e trace.Event) string {
	switch {
	case e.Data != nil:
		s := strconv.Quote(string(e.Data.Data))
		if e.Data.Truncated {
			s += fmt.Sprintf(" (truncated, %d bytes)", e.Data.Size)
		}
		return clip(s)
	case e.StateChange != nil:
		sc := e.StateChange
		var b strings.Builder
		if sc.OldState != "" {
			b.WriteString(sc.OldState)
			b.WriteString(" -> ")
		}
		b.WriteString(sc.NewState)
		if sc.Reason != "" {
			b.WriteString(" (")
			b.WriteString(sc.Reason)
			b.WriteString(")")
		}
		return clip(b.String())
	case e.Error != nil:
		if e.Error.Context != "" {
			return clip(e.Error.Context + ": " + e.Error.Message)
		}
		return clip(e.Error.Message)
	default:
		return ""
	}
}

func clip(s string) string {
	if len(s) <= maxDetail {
		return s
	}
	return s[:maxDetail-3] + "..."
}
