// Package pairing runs the first-time provisioning of a factory-reset radio
// in the background and keeps a pollable status record.
//
// The record doubles as the advisory lock: Start refuses while an attempt is
// InProgress. Terminal records from earlier attempts do not block.
package pairing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radio-control/linkctl/internal/adapter"
	"github.com/radio-control/linkctl/internal/endpoint"
	"github.com/radio-control/linkctl/internal/identity"
	"github.com/radio-control/linkctl/internal/radio"
	"github.com/radio-control/linkctl/internal/session"
)

// Executor runs a command batch against an address.
type Executor interface {
	Execute(ctx context.Context, address, credential string, commands []string, progress session.ProgressFunc) session.Result
}

// ResolverFactory builds a fresh resolver for each attempt.
type ResolverFactory func() *endpoint.Resolver

// IdentityStore persists the identity assigned while pairing.
type IdentityStore interface {
	Save(identity.ID) error
}

// Request carries the pairing parameters.
type Request struct {
	Identity     identity.ID
	NetworkID    string
	Credential   string
	TxPower      int
	FrequencyMHz int
}

// Validate checks the request before any device contact.
func (r Request) Validate(factoryCredential string) error {
	if err := r.Identity.Validate(); err != nil {
		return err
	}
	if err := radio.ValidateNetworkID(r.NetworkID); err != nil {
		return err
	}
	// The new credential becomes the link key, so the factory exemption
	// does not apply here.
	if err := radio.ValidateCredential(r.Credential, ""); err != nil {
		return err
	}
	if r.Credential == factoryCredential {
		return adapter.Errorf(adapter.ErrValidation, "credential must differ from the factory default")
	}
	if r.TxPower <= 0 {
		return adapter.Errorf(adapter.ErrValidation, "tx power must be positive, got %d", r.TxPower)
	}
	if r.FrequencyMHz <= 0 {
		return adapter.Errorf(adapter.ErrValidation, "frequency must be positive, got %d", r.FrequencyMHz)
	}
	return nil
}

// Options configures a Coordinator.
type Options struct {
	Prefix            string
	Netmask           string
	FactoryCredential string
	Distance          int
	Logger            *zap.Logger
}

// Coordinator starts pairing attempts and reports their status.
type Coordinator struct {
	executor    Executor
	newResolver ResolverFactory
	store       StatusStore
	identities  IdentityStore
	opts        Options
	logger      *zap.Logger

	wg sync.WaitGroup
}

// NewCoordinator creates a coordinator. identities may be nil.
func NewCoordinator(executor Executor, newResolver ResolverFactory, store StatusStore, identities IdentityStore, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		executor:    executor,
		newResolver: newResolver,
		store:       store,
		identities:  identities,
		opts:        opts,
		logger:      logger.Named("pairing"),
	}
}

// Handle tracks one attempt.
type Handle struct {
	// ID correlates the attempt in logs.
	ID string
	// Progress receives InProgress updates and finally the terminal status.
	// It is closed when the attempt ends. Updates are dropped if the reader
	// falls behind; the store always has the latest.
	Progress <-chan Status

	progress chan Status
	done     chan struct{}
	final    Status
}

// Wait blocks until the attempt ends and returns its terminal status.
func (h *Handle) Wait() Status {
	<-h.done
	return h.final
}

// Done is closed when the attempt ends.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) publish(st Status) {
	select {
	case h.progress <- st:
	default:
	}
}

// Start validates req, takes the status record and runs the pairing batch
// in the background. It returns without waiting for the device.
func (c *Coordinator) Start(req Request) (*Handle, error) {
	if err := req.Validate(c.opts.FactoryCredential); err != nil {
		return nil, err
	}

	link := radio.Link{
		Address: endpoint.ProvisionedAddress(c.opts.Prefix, req.Identity),
		Netmask: c.opts.Netmask,
	}
	batch := radio.PairingBatch(req.NetworkID, req.Credential, req.TxPower, req.FrequencyMHz, c.opts.Distance, link)

	if err := c.store.Begin(len(batch)); err != nil {
		return nil, err
	}

	if c.identities != nil {
		if err := c.identities.Save(req.Identity); err != nil {
			c.finish(nil, Status{Phase: Failed, Detail: adapter.Code(err) + ": " + adapter.Cause(err)})
			return nil, err
		}
	}

	progress := make(chan Status, len(batch)+2)
	h := &Handle{
		ID:       uuid.NewString(),
		Progress: progress,
		progress: progress,
		done:     make(chan struct{}),
	}
	h.publish(Status{Phase: InProgress, Total: len(batch)})

	c.wg.Add(1)
	go c.run(h, req, batch)
	return h, nil
}

func (c *Coordinator) run(h *Handle, req Request, batch []string) {
	defer c.wg.Done()
	logger := c.logger.With(zap.String("attempt", h.ID), zap.Int("identity", int(req.Identity)))
	start := time.Now()

	final := Status{Phase: Failed, Detail: "INTERNAL: pairing aborted"}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pairing panicked", zap.Any("panic", r))
			final = Status{Phase: Failed, Detail: fmt.Sprintf("INTERNAL: %v", r)}
		}
		c.finish(h, final)
		logger.Info("pairing finished",
			zap.Stringer("phase", final.Phase),
			zap.Duration("latency", time.Since(start)))
	}()

	resolver := c.newResolver()
	ep, err := resolver.Resolve(req.Identity)
	if err != nil {
		final = Status{Phase: Failed, Detail: adapter.Code(err) + ": " + adapter.Cause(err)}
		return
	}

	credential := req.Credential
	if ep.FactoryDefault {
		credential = c.opts.FactoryCredential
	}
	logger.Info("pairing started",
		zap.String("address", ep.Address),
		zap.Bool("factoryDefault", ep.FactoryDefault),
		zap.Int("commands", len(batch)))

	result := c.executor.Execute(context.Background(), ep.Address, credential, batch, func(step, total int) {
		st := Status{Phase: InProgress, Step: step, Total: total}
		if err := c.store.Update(st); err != nil {
			logger.Warn("failed to record pairing progress", zap.Error(err))
		}
		h.publish(st)
	})

	if result.Success {
		final = Status{Phase: Succeeded}
		return
	}
	final = Status{Phase: Failed, Detail: failureDetail(result, len(batch), req.Credential)}
}

// finish writes the terminal record and releases the handle.
func (c *Coordinator) finish(h *Handle, final Status) {
	if err := c.store.Update(final); err != nil {
		c.logger.Error("failed to record pairing outcome", zap.Error(err))
	}
	if h == nil {
		return
	}
	h.final = final
	h.publish(final)
	close(h.progress)
	close(h.done)
}

// failureDetail reports the code, the failing step and the captured output
// with the new credential masked.
func failureDetail(result session.Result, total int, credential string) string {
	text := result.Text()
	if text == "" {
		text = adapter.Cause(result.Err)
	}
	text = radio.Redact(text, credential)
	code := adapter.Code(result.Err)
	if result.FailedAt < 0 {
		return fmt.Sprintf("%s: %s", code, text)
	}
	return fmt.Sprintf("%s at step %d/%d: %s", code, result.FailedAt+1, total, text)
}

// Status returns the current record without blocking on a running attempt.
func (c *Coordinator) Status() (Status, error) {
	return c.store.Load()
}

// Wait blocks until every started attempt has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
