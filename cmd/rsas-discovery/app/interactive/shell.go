// Package interactive provides the interactive shell of rsas-discovery.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/gosuri/uitable"

	"github.com/rsas-protocol/rsas-go/cmd/rsas-discovery/app/api"
	"github.com/rsas-protocol/rsas-go/pkg/activation"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// Shell runs engine operations typed at a prompt.
type Shell struct {
	engine api.Engine
	rl     *readline.Instance
	out    io.Writer
}

// New creates a shell reading from the terminal.
func New(engine api.Engine) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rsas> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("devices"),
			readline.PcItem("activate"),
			readline.PcItem("fields"),
			readline.PcItem("health"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{engine: engine, rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that does not disturb the prompt. Route log output
// through it while the shell runs.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context) {
	defer s.rl.Close()

	s.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			return
		}
		if s.Exec(ctx, line) {
			return
		}
	}
}

// Exec runs one command line. It reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "devices", "ls", "d":
		s.cmdDevices(ctx)
	case "activate", "a":
		s.cmdActivate(ctx, args)
	case "fields", "f":
		s.cmdFields(ctx, args)
	case "health", "h":
		s.cmdHealth(ctx)
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `Commands:
  devices                                    List reachable modules
  activate <target> <operator> <aircraft> [esn] [rid]
                                             Write activation data
  fields <target>                            Read back stored identifiers
  health                                     Show engine health
  help                                       Show this help
  quit                                       Exit

<target> is a serial port (/dev/ttyUSB0, COM3) or a module ESN.
`)
}

func (s *Shell) cmdDevices(ctx context.Context) {
	devices, err := s.engine.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	if len(devices) == 0 {
		fmt.Fprintln(s.out, "No devices found.")
		return
	}
	table := uitable.New()
	table.AddRow("ID", "NAME", "TRANSPORT", "TARGET", "STATUS", "LAST SEEN")
	for _, d := range devices {
		table.AddRow(d.ID, d.Name, d.Kind().String(), d.Ref.String(), d.Status, d.LastSeen.Format(time.TimeOnly))
	}
	fmt.Fprintln(s.out, table)
}

func (s *Shell) cmdActivate(ctx context.Context, args []string) {
	if len(args) < 3 || len(args) > 5 {
		fmt.Fprintln(s.out, "Usage: activate <target> <operator> <aircraft> [esn] [rid]")
		return
	}
	req := activation.Request{OperatorID: args[1], AircraftID: args[2]}
	req.Target, req.DeviceID = ParseTarget(args[0])
	if len(args) > 3 {
		req.ESN = args[3]
	}
	if len(args) > 4 {
		req.RIDID = args[4]
	}

	res, err := s.engine.Activate(ctx, req)
	if err != nil {
		fmt.Fprintf(s.out, "Activation failed: %v\n", err)
		return
	}
	verdict := "written"
	if res.LooksSuccessful {
		verdict = "written, module confirmed"
	}
	fmt.Fprintf(s.out, "Activation %s\n", verdict)
	fmt.Fprintf(s.out, "  RID:      %s\n", res.RIDID)
	fmt.Fprintf(s.out, "  Sent:     %s\n", res.SentCommand)
	if res.RawResponse != "" {
		fmt.Fprintf(s.out, "  Response: %s\n", res.RawResponse)
	}
}

func (s *Shell) cmdFields(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: fields <target>")
		return
	}
	ref, id := ParseTarget(args[0])
	if ref.IsZero() {
		d, err := s.engine.Resolve(ctx, id)
		if err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			return
		}
		ref = d.Ref
	}
	f, err := s.engine.ReadStoredFields(ctx, ref)
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "  Operator ID:   %s\n", f.OperatorID)
	fmt.Fprintf(s.out, "  Aircraft ID:   %s\n", f.AircraftID)
	fmt.Fprintf(s.out, "  Serial number: %s\n", f.SerialNumber)
	fmt.Fprintf(s.out, "  RID:           %s\n", f.RIDID)
}

func (s *Shell) cmdHealth(ctx context.Context) {
	h := s.engine.HealthSnapshot(ctx)
	fmt.Fprintf(s.out, "Running:    %v\n", h.Running)
	fmt.Fprintf(s.out, "Connection: %s\n", h.ConnectionType)
	fmt.Fprintf(s.out, "Devices:    %d\n", h.DeviceCount)
	if h.Diagnostic != "" {
		fmt.Fprintf(s.out, "Error:      %s\n", h.Diagnostic)
	}
}

// ParseTarget reads a serial port path or a device ESN. Exactly one of the
// results is set.
func ParseTarget(s string) (transport.Ref, string) {
	upper := strings.ToUpper(s)
	if strings.HasPrefix(s, "/") || (strings.HasPrefix(upper, "COM") && len(s) > 3 && isDigits(s[3:])) {
		return transport.SerialRef(s), ""
	}
	return transport.Ref{}, s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
