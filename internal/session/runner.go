package session

import (
	"context"
	"errors"
	"sync"

	"github.com/radio-control/linkctl/internal/adapter"
)

// ErrBusy is returned when another batch holds the device.
var ErrBusy = adapter.Errorf(adapter.ErrConflict, "device session busy")

// Runner opens a session per batch and guarantees at most one open
// transport to the device at a time.
type Runner struct {
	dialer adapter.Dialer
	opts   Options
	busy   sync.Mutex
}

// NewRunner creates a runner over dialer.
func NewRunner(dialer adapter.Dialer, opts Options) *Runner {
	return &Runner{dialer: dialer, opts: opts.withDefaults()}
}

// Execute opens a session at address, runs commands and always closes the
// session. A call made while another is running fails with CONFLICT.
func (r *Runner) Execute(ctx context.Context, address, credential string, commands []string, progress ProgressFunc) Result {
	if !r.busy.TryLock() {
		return Result{FailedAt: -1, Responses: []string{}, Err: ErrBusy}
	}
	defer r.busy.Unlock()

	s := New(r.dialer, r.opts)
	defer s.Close()

	if err := s.Open(ctx, address, credential); err != nil {
		return Result{FailedAt: -1, Responses: []string{adapter.Cause(err)}, Err: err}
	}
	return s.Run(commands, progress)
}

// IsBusy reports whether err came from a busy runner.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}
