package dispatch

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radio-control/linkctl/internal/audit"
)

// Serve reads request lines from rw and writes one reply line for each. It
// returns when the link closes, logging the controller out. EOF is a clean
// close and yields nil.
func (d *Dispatcher) Serve(ctx context.Context, rw io.ReadWriter, source string) error {
	defer d.Logout()

	scanner := bufio.NewScanner(rw)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if ParseRequest(line).Raw == "" {
			continue
		}

		reqCtx := audit.WithSource(audit.WithCorrelationID(ctx, uuid.NewString()), source)
		reply := d.Handle(reqCtx, line)
		if _, err := io.WriteString(rw, reply+"\n"); err != nil {
			return err
		}
	}

	err := scanner.Err()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Opener opens the controller link.
type Opener func() (io.ReadWriteCloser, error)

// ServeLink serves links produced by open until ctx ends. A link that
// cannot be opened, or that closes, is retried after delay.
func (d *Dispatcher) ServeLink(ctx context.Context, open Opener, delay time.Duration, source string) error {
	for {
		link, err := open()
		if err != nil {
			d.logger.Debug("controller link unavailable", zap.String("source", source), zap.Error(err))
		} else {
			d.logger.Info("controller link opened", zap.String("source", source))
			stop := context.AfterFunc(ctx, func() { _ = link.Close() })
			err = d.Serve(ctx, link, source)
			stop()
			_ = link.Close()
			d.logger.Info("controller link closed", zap.String("source", source), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
