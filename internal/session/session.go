// Package session drives one authenticated shell on the radio and runs an
// ordered AT command batch over it.
//
// Each command is closed by an "OK" line or aborted by a line containing
// "ERROR". A command that produces neither within the wait window fails the
// batch with TIMEOUT; it is never reported as success.
package session

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radio-control/linkctl/internal/adapter"
)

// Default timings.
const (
	DefaultCommandWait  = 15 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Sentinels in device output.
const (
	SuccessSentinel = "OK"
	ErrorSentinel   = "ERROR"
)

// State is the lifecycle state of a Session.
type State int

const (
	Disconnected State = iota
	Authenticating
	Active
	Executing
	Closed
	Aborted
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Authenticating:
		return "Authenticating"
	case Active:
		return "Active"
	case Executing:
		return "Executing"
	case Closed:
		return "Closed"
	case Aborted:
		return "Aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ProgressFunc is called after each command that completed with OK.
type ProgressFunc func(step, total int)

// Result is the outcome of a batch. Responses holds one entry per attempted
// command; FailedAt is -1 unless a command failed.
type Result struct {
	Success   bool
	Responses []string
	FailedAt  int
	Err       error
}

// Text joins the responses into a single line.
func (r Result) Text() string {
	parts := make([]string, 0, len(r.Responses))
	for _, resp := range r.Responses {
		resp = strings.ReplaceAll(strings.TrimSpace(resp), "\n", "; ")
		if resp != "" {
			parts = append(parts, resp)
		}
	}
	return strings.Join(parts, "; ")
}

// Options tunes a Session.
type Options struct {
	CommandWait  time.Duration
	PollInterval time.Duration
	SettleDelay  time.Duration
	Logger       *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.CommandWait <= 0 {
		o.CommandWait = DefaultCommandWait
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Session is a single shell on the radio. It is not safe for concurrent Run
// calls; use a Runner to serialize access to the device.
type Session struct {
	dialer adapter.Dialer
	opts   Options

	mu    sync.Mutex
	state State
	shell adapter.Shell

	outMu    sync.Mutex
	out      bytes.Buffer
	readErr  error
	readDone chan struct{}
}

// New creates a disconnected session.
func New(dialer adapter.Dialer, opts Options) *Session {
	return &Session{
		dialer: dialer,
		opts:   opts.withDefaults(),
		state:  Disconnected,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Open authenticates against address and waits for the shell to settle.
func (s *Session) Open(ctx context.Context, address, credential string) error {
	s.mu.Lock()
	if s.state != Disconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session cannot open from state %s", state)
	}
	s.state = Authenticating
	s.mu.Unlock()

	shell, err := s.dialer.Dial(ctx, address, credential)
	if err != nil {
		s.setState(Closed)
		s.opts.Logger.Info("session open failed", zap.String("address", address), zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.shell = shell
	s.readDone = make(chan struct{})
	s.state = Active
	s.mu.Unlock()

	go s.readLoop(shell, s.readDone)

	if s.opts.SettleDelay > 0 {
		timer := time.NewTimer(s.opts.SettleDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	s.opts.Logger.Debug("session open", zap.String("address", address))
	return nil
}

func (s *Session) readLoop(shell adapter.Shell, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := shell.Read(buf)
		if n > 0 {
			s.outMu.Lock()
			s.out.Write(buf[:n])
			s.outMu.Unlock()
		}
		if err != nil {
			s.outMu.Lock()
			s.readErr = err
			s.outMu.Unlock()
			return
		}
	}
}

// snapshot returns the accumulated output and the reader error, if any.
func (s *Session) snapshot() (string, error) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	return s.out.String(), s.readErr
}

func (s *Session) discard() {
	s.outMu.Lock()
	s.out.Reset()
	s.outMu.Unlock()
}

// Run executes commands in order and stops at the first failure.
func (s *Session) Run(commands []string, progress ProgressFunc) Result {
	result := Result{FailedAt: -1, Responses: make([]string, 0, len(commands))}

	s.mu.Lock()
	if s.state != Active {
		state := s.state
		s.mu.Unlock()
		result.Err = adapter.Errorf(adapter.ErrConnection, "session is %s", state)
		return result
	}
	shell := s.shell
	s.mu.Unlock()

	total := len(commands)
	for i, cmd := range commands {
		s.setState(Executing)
		start := time.Now()

		response, err := s.exec(shell, cmd)
		result.Responses = append(result.Responses, response)

		s.opts.Logger.Debug("command finished",
			zap.String("command", mnemonic(cmd)),
			zap.Int("step", i+1),
			zap.Int("total", total),
			zap.String("code", adapter.Code(err)),
			zap.Duration("latency", time.Since(start)))

		if err != nil {
			s.setState(Aborted)
			result.FailedAt = i
			result.Err = err
			return result
		}

		s.setState(Active)
		if progress != nil {
			progress(i+1, total)
		}
	}

	result.Success = true
	return result
}

// exec sends one command and polls for its sentinel.
func (s *Session) exec(shell adapter.Shell, cmd string) (string, error) {
	s.discard()

	if _, err := shell.Write([]byte(cmd + "\n")); err != nil {
		return err.Error(), adapter.Wrap(adapter.ErrConnection, err, mnemonic(cmd))
	}

	deadline := time.NewTimer(s.opts.CommandWait)
	defer deadline.Stop()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		output, readErr := s.snapshot()
		lines, outcome := scan(output, cmd)
		switch outcome {
		case outcomeOK:
			return strings.Join(lines, "\n"), nil
		case outcomeError:
			text := strings.Join(lines, "\n")
			return text, adapter.Wrap(adapter.ErrProtocol, fmt.Errorf("%s", lastLine(lines)), text)
		}
		if readErr != nil {
			text := strings.Join(lines, "\n")
			return text, adapter.Wrap(adapter.ErrConnection, readErr, text)
		}

		select {
		case <-ticker.C:
		case <-s.readDone:
			// Reader stopped; one more pass picks up its final bytes.
		case <-deadline.C:
			output, _ = s.snapshot()
			lines, outcome = scan(output, cmd)
			text := strings.Join(lines, "\n")
			switch outcome {
			case outcomeOK:
				return text, nil
			case outcomeError:
				return text, adapter.Wrap(adapter.ErrProtocol, fmt.Errorf("%s", lastLine(lines)), text)
			}
			return text, adapter.Wrap(adapter.ErrTimeout,
				fmt.Errorf("no response to %s within %s", mnemonic(cmd), s.opts.CommandWait), text)
		}
	}
}

type outcome int

const (
	outcomePending outcome = iota
	outcomeOK
	outcomeError
)

// scan walks the terminated lines of output. When the device echoed the
// command, the echo and anything before it (banner, prompt) are dropped.
func scan(output, cmd string) ([]string, outcome) {
	end := strings.LastIndexAny(output, "\r\n")
	if end < 0 {
		return nil, outcomePending
	}

	var lines []string
	for _, raw := range strings.FieldsFunc(output[:end], isLineBreak) {
		if line := strings.TrimSpace(raw); line != "" {
			lines = append(lines, line)
		}
	}
	for i, line := range lines {
		if strings.HasSuffix(line, cmd) {
			lines = lines[i+1:]
			break
		}
	}

	for i, line := range lines {
		if line == SuccessSentinel {
			return lines[:i+1], outcomeOK
		}
		if strings.Contains(line, ErrorSentinel) {
			return lines[:i+1], outcomeError
		}
	}
	return lines, outcomePending
}

func isLineBreak(r rune) bool {
	return r == '\r' || r == '\n'
}

func lastLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

// mnemonic strips the value part so secrets never reach the logs.
func mnemonic(cmd string) string {
	name, _, _ := strings.Cut(cmd, "=")
	return strings.TrimSpace(name)
}

// Close releases the shell. It is safe to call in any state and more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	shell := s.shell
	done := s.readDone
	s.shell = nil
	if s.state != Aborted {
		s.state = Closed
	}
	s.mu.Unlock()

	if shell == nil {
		return nil
	}
	err := shell.Close()
	if done != nil {
		<-done
	}
	return err
}
