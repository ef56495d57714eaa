package tracecmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/gosuri/uitable"

	"github.com/rsas-protocol/rsas-go/pkg/trace"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents int
	ByLayer     map[trace.Layer]int
	ByCategory  map[trace.Category]int
	ByCommand   map[string]int
	Sessions    map[string]*SessionStats
	Errors      int
	Start, End  time.Time
}

// SessionStats summarizes one transport lease.
type SessionStats struct {
	Target    string
	DeviceID  string
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	BytesOut  int
	BytesIn   int
}

// Collect reads every event of path into Stats.
func Collect(path string) (*Stats, error) {
	reader, err := trace.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		ByLayer:    make(map[trace.Layer]int),
		ByCategory: make(map[trace.Category]int),
		ByCommand:  make(map[string]int),
		Sessions:   make(map[string]*SessionStats),
	}
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(e trace.Event) {
	s.TotalEvents++
	s.ByLayer[e.Layer]++
	s.ByCategory[e.Category]++

	if s.Start.IsZero() || e.Timestamp.Before(s.Start) {
		s.Start = e.Timestamp
	}
	if e.Timestamp.After(s.End) {
		s.End = e.Timestamp
	}
	if e.Error != nil {
		s.Errors++
	}
	if e.Data != nil && e.Direction == trace.DirectionOut && e.Data.Command != "" {
		s.ByCommand[e.Data.Command]++
	}

	if e.SessionID == "" {
		return
	}
	sess, ok := s.Sessions[e.SessionID]
	if !ok {
		sess = &SessionStats{Target: e.Target, FirstSeen: e.Timestamp, LastSeen: e.Timestamp}
		s.Sessions[e.SessionID] = sess
	}
	sess.Events++
	if e.Timestamp.After(sess.LastSeen) {
		sess.LastSeen = e.Timestamp
	}
	if sess.DeviceID == "" {
		sess.DeviceID = e.DeviceID
	}
	if e.Data != nil {
		if e.Direction == trace.DirectionOut {
			sess.BytesOut += e.Data.Size
		} else {
			sess.BytesIn += e.Data.Size
		}
	}
}

// RunStats prints the statistics of path.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, s *Stats) {
	fmt.Fprintln(w, "=== RSAS Trace Statistics ===")
	fmt.Fprintln(w)
	if s.TotalEvents == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	fmt.Fprintf(w, "Time Range: %s to %s (%s)\n",
		s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339), s.End.Sub(s.Start).Round(time.Millisecond))
	fmt.Fprintf(w, "Events:     %d\n", s.TotalEvents)
	fmt.Fprintf(w, "Errors:     %d\n", s.Errors)
	fmt.Fprintf(w, "Sessions:   %d\n", len(s.Sessions))
	fmt.Fprintln(w)

	counts := uitable.New()
	counts.AddRow("LAYER", "EVENTS")
	for _, l := range []trace.Layer{trace.LayerTransport, trace.LayerProtocol, trace.LayerActivation} {
		counts.AddRow(l.String(), s.ByLayer[l])
	}
	fmt.Fprintln(w, counts)
	fmt.Fprintln(w)

	if len(s.ByCommand) > 0 {
		cmds := uitable.New()
		cmds.AddRow("COMMAND", "SENT")
		names := make([]string, 0, len(s.ByCommand))
		for name := range s.ByCommand {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			cmds.AddRow(name, s.ByCommand[name])
		}
		fmt.Fprintln(w, cmds)
		fmt.Fprintln(w)
	}

	ids := make([]string, 0, len(s.Sessions))
	for id := range s.Sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.Sessions[ids[i]].FirstSeen.Before(s.Sessions[ids[j]].FirstSeen)
	})
	sessions := uitable.New()
	sessions.AddRow("SESSION", "TARGET", "DEVICE", "EVENTS", "OUT", "IN", "DURATION")
	for _, id := range ids {
		sess := s.Sessions[id]
		sessions.AddRow(shortenID(id), sess.Target, orDash(sess.DeviceID), sess.Events,
			sess.BytesOut, sess.BytesIn, sess.LastSeen.Sub(sess.FirstSeen).Round(time.Millisecond))
	}
	fmt.Fprintln(w, sessions)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
