package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/edgehub-go/devicesession/pkg/persistence"
	"github.com/edgehub-go/devicesession/pkg/session"
)

// shell is the interactive command loop for devicectl. It mirrors the
// device/controller command-dispatch pattern but drives readline instead
// of a bare bufio reader, so prompt redraw and log output never collide.
type shell struct {
	rl *readline.Instance

	mu       sync.Mutex
	ctrl     *session.Controller
	optStore *persistence.OptionBagStore
}

func newShell() *shell {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "device> ",
		HistoryFile:       "/tmp/devicectl_history",
		InterruptPrompt:   "^C",
		EOFPrompt:         "quit",
		HistorySearchFold: true,
	})
	if err != nil {
		// Fall back to a non-interactive sink; devicectl still runs
		// headless when a terminal isn't available (e.g. under a
		// service manager).
		return &shell{}
	}
	return &shell{rl: rl}
}

// stdout returns the writer log output should be redirected to while the
// shell owns the terminal, so standard library logging doesn't interleave
// with the readline prompt.
func (s *shell) stdout() io.Writer {
	if s.rl == nil {
		return io.Discard
	}
	return s.rl.Stdout()
}

func (s *shell) printf(format string, args ...any) {
	if s.rl == nil {
		return
	}
	fmt.Fprintf(s.rl.Stdout(), format+"\n", args...)
}

func (s *shell) bindController(ctrl *session.Controller, store *persistence.OptionBagStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl = ctrl
	s.optStore = store
}

func (s *shell) close() {
	if s.rl != nil {
		_ = s.rl.Close()
	}
}

func (s *shell) run(ctx context.Context, cancel context.CancelFunc) {
	if s.rl == nil {
		return
	}
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			cancel()
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()
		case "send":
			s.cmdSend(args)
		case "status":
			s.cmdStatus()
		case "options":
			s.cmdOptions()
		case "subscribe":
			s.cmdSubscribe()
		case "quit", "exit", "q":
			s.printf("Exiting...")
			cancel()
			return
		default:
			s.printf("Unknown command: %s (type 'help' for commands)", cmd)
		}
	}
}

func (s *shell) printHelp() {
	s.printf(`Commands:
  send <text>   - queue a telemetry event
  subscribe     - accept any pending C2D messages automatically
  status        - show aggregate/auth/messenger state
  options       - dump the captured option bag
  help          - show this help
  quit          - exit devicectl`)
}

func (s *shell) cmdSend(args []string) {
	s.mu.Lock()
	ctrl := s.ctrl
	s.mu.Unlock()
	if ctrl == nil {
		s.printf("not connected yet")
		return
	}
	if len(args) == 0 {
		s.printf("usage: send <text>")
		return
	}
	payload := []byte(strings.Join(args, " "))
	err := ctrl.SendEventAsync(payload, func(msg []byte, result session.SendResult, _ any) {
		s.printf("send complete: %s (%d bytes)", result, len(msg))
	}, nil)
	if err != nil {
		s.printf("send failed: %v", err)
		return
	}
	s.printf("queued %d bytes", len(payload))
}

func (s *shell) cmdStatus() {
	s.mu.Lock()
	ctrl := s.ctrl
	s.mu.Unlock()
	if ctrl == nil {
		s.printf("not connected yet")
		return
	}
	status, err := ctrl.GetSendStatus()
	if err != nil {
		s.printf("state: %s  send status: error (%v)", ctrl.State(), err)
		return
	}
	s.printf("state: %s  send status: %s", ctrl.State(), status)
}

func (s *shell) cmdOptions() {
	s.mu.Lock()
	ctrl := s.ctrl
	store := s.optStore
	s.mu.Unlock()
	if ctrl == nil {
		s.printf("not connected yet")
		return
	}
	bag, err := ctrl.RetrieveOptions()
	if err != nil {
		s.printf("failed to retrieve options: %v", err)
		return
	}
	if v, ok := bag.Child(session.OptionSavedDeviceMessengerOptions); ok {
		if timeout, ok := v.Leaf(session.OptionEventSendTimeoutSecs); ok {
			s.printf("event_send_timeout_secs = %v", timeout)
		}
	}
	if store != nil {
		if err := store.Save(bag); err != nil {
			s.printf("failed to persist options: %v", err)
		} else {
			s.printf("saved options snapshot")
		}
	}
}

func (s *shell) cmdSubscribe() {
	s.mu.Lock()
	ctrl := s.ctrl
	s.mu.Unlock()
	if ctrl == nil {
		s.printf("not connected yet")
		return
	}
	err := ctrl.SubscribeMessage(func(msg []byte, info *session.DispositionInfo, _ any) session.Verdict {
		s.printf("c2d message (%d bytes) from %s #%d: %s", len(msg), info.Source, info.MessageID, string(msg))
		return session.VerdictAccepted
	}, nil)
	if err != nil {
		s.printf("subscribe failed: %v", err)
		return
	}
	s.printf("subscribed, messages will be auto-accepted")
}
