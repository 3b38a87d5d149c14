// Package interactive provides the interactive command-line interface
// for the virtual device and virtual DMS consoles.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/lamassuiot/lamassu-simulation-tools/pkg/console"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/enrollment"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
)

// reconnectTimeout bounds the dial started by the reconnect command.
const reconnectTimeout = 30 * time.Second

// Shell handles interactive mode for vconsole.
type Shell struct {
	c         *console.Console
	rl        *readline.Instance
	out       io.Writer
	now       func() time.Time
	setPrompt func(string)
}

// New creates a shell for c. The prompt follows the console role.
func New(c *console.Console) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptFor(c.Role(), "", ""),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{
		c:   c,
		rl:  rl,
		out: rl.Stdout(),
		now: time.Now,
		setPrompt: func(p string) {
			rl.SetPrompt(p)
			rl.Refresh()
		},
	}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	go s.watchReadiness(ctx)
	go s.until(ctx, s.followCountdown)
	if s.c.Role() == msglog.RoleDMS {
		go s.until(ctx, s.followEnrollment)
	}

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if quit := s.Execute(ctx, line); quit {
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the user asked to quit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "state", "conn":
		s.cmdState()
	case "messages", "m":
		s.cmdMessages(args)
	case "clear":
		s.c.ClearMessages()
		fmt.Fprintln(s.out, "Message log cleared")
	case "reconnect":
		s.cmdReconnect(ctx)
	case "quit", "exit", "q":
		return true
	default:
		var known bool
		if s.c.Role() == msglog.RoleDMS {
			known = s.execDMS(cmd, args)
		} else {
			known = s.execDevice(cmd, args)
		}
		if !known {
			fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
	return false
}

func (s *Shell) printHelp() {
	if s.c.Role() == msglog.RoleDMS {
		fmt.Fprintln(s.out, `
Virtual DMS Commands:
  Profile:
    config                       - Show the DMS profile
    refresh                      - Ask the backend for the profile
    register <user> <pass> <name> - Register the DMS
    ca [name]                    - List authorized CAs (or choose one)
    auto-enroll on|off           - Toggle automatic enrollment approval
    auto-transfer on|off         - Toggle automatic certificate transfer

  Enrollment:
    process                      - Show the enrollment in progress
    authorize                    - Approve the pending enrollment
    transfer                     - Approve the certificate transfer
    identities                   - List enrolled identities`)
	} else {
		fmt.Fprintln(s.out, `
Virtual Device Commands:
  Identity:
    status                       - Show device status
    slots                        - List certificate slots
    select <slot>                - Select the slot commands act on
    gen-id                       - Generate a new device identity
    add-slot                     - Add a certificate slot
    enroll                       - Issue the first certificate for the selected slot
    reenroll                     - Renew the certificate of the selected slot
    cert [slot]                  - Decode the certificate of a slot

  Cloud:
    mqtt [aws|azure]             - Connect or disconnect the cloud connector
    provider <aws|azure>         - Choose the cloud provider
    rate <seconds>               - Change the telemetry period
    mqtt-log                     - Show the cloud connector log`)
	}
	fmt.Fprintln(s.out, `
  General:
    state                        - Show connection state
    messages [n]                 - Show the newest messages
    clear                        - Clear the message log
    reconnect                    - Reconnect to the backend
    help                         - Show this help
    quit                         - Exit console`)
}

// report prints the outcome of a command.
func (s *Shell) report(err error, done string) {
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.out, done)
}

func (s *Shell) cmdState() {
	conn := s.c.Connection()
	fmt.Fprintln(s.out, "\nConnection")
	fmt.Fprintln(s.out, "-------------------------------------------")
	fmt.Fprintf(s.out, "  Role:           %s\n", s.c.Role())
	fmt.Fprintf(s.out, "  Endpoint:       %s\n", conn.Endpoint())
	fmt.Fprintf(s.out, "  State:          %s\n", conn.State())
	if id := conn.ConnectionID(); id != "" {
		fmt.Fprintf(s.out, "  Connection ID:  %s\n", id)
	}
	fmt.Fprintf(s.out, "  Queued:         %d\n", conn.Pending())
	fmt.Fprintln(s.out)
}

func (s *Shell) cmdMessages(args []string) {
	limit := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(s.out, "Invalid count: %s\n", args[0])
			return
		}
		limit = n
	}
	writeMessages(s.out, s.c.Messages().Entries(), limit)
}

func (s *Shell) cmdReconnect(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, reconnectTimeout)
	defer cancel()
	s.report(s.c.Reconnect(ctx), "Connected")
}

// watchReadiness prints connection transitions until ctx is done.
func (s *Shell) watchReadiness(ctx context.Context) {
	for st := range s.c.Connection().ObserveReadiness(ctx) {
		fmt.Fprintf(s.out, "[connection] %s\n", st)
	}
}

// until runs follow and cancels its subscription once ctx is done.
func (s *Shell) until(ctx context.Context, follow func() (cancel func())) {
	cancel := follow()
	<-ctx.Done()
	cancel()
}

// followCountdown keeps the prompt showing the expiration of the selected
// slot.
func (s *Shell) followCountdown() (cancel func()) {
	update := func(v string) {
		s.setPrompt(promptFor(s.c.Role(), s.c.SelectedSlot(), v))
	}
	cancel = s.c.Countdown().Subscribe(update)
	update(s.c.Countdown().Current())
	return cancel
}

// followEnrollment prints every step change of the enrollment process.
func (s *Shell) followEnrollment() (cancel func()) {
	var mu sync.Mutex
	last := s.c.Enrollment().Process().Step
	return s.c.Enrollment().Subscribe(func(p enrollment.Process, _ uint64) {
		mu.Lock()
		defer mu.Unlock()
		if p.Step == last {
			return
		}
		last = p.Step
		fmt.Fprintf(s.out, "[enrollment] %s", p.Step)
		if p.DeviceID != "" {
			fmt.Fprintf(s.out, " (device %s)", p.DeviceID)
		}
		fmt.Fprintln(s.out)
	})
}

// promptFor renders the prompt. A device prompt carries the relative part
// of the countdown, e.g. "device [default: in 2 days]> ".
func promptFor(role msglog.Role, slot, countdown string) string {
	if role == msglog.RoleDMS {
		return "dms> "
	}
	if countdown == "" {
		return "device> "
	}
	rel := countdown
	if _, inner, ok := strings.Cut(countdown, " ("); ok {
		rel = strings.TrimSuffix(inner, ")")
	}
	return fmt.Sprintf("device [%s: %s]> ", slot, rel)
}

// parseOnOff parses a toggle argument.
func parseOnOff(args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("expected on or off")
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", args[0])
	}
}
