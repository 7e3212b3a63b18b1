// Package endpoint decides which address currently represents the radio.
//
// A factory-reset unit answers only at the factory address. Once paired it
// answers at <prefix>.<identity>. A Resolver probes the factory address once
// and caches its answer; build a new Resolver to force a fresh probe.
package endpoint

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radio-control/linkctl/internal/identity"
)

// DefaultProbeTimeout bounds a reachability probe.
const DefaultProbeTimeout = 200 * time.Millisecond

// Prober checks whether an address answers.
type Prober interface {
	Probe(ctx context.Context, address string) error
}

// Endpoint is the address the radio answers at.
type Endpoint struct {
	Address        string
	FactoryDefault bool
}

// ProvisionedAddress joins prefix and id.
func ProvisionedAddress(prefix string, id identity.ID) string {
	return prefix + "." + id.String()
}

// Options configures a Resolver.
type Options struct {
	FactoryAddress string
	Prefix         string
	ProbeTimeout   time.Duration
	Logger         *zap.Logger
}

// Resolver memoizes the factory probe and the resolved endpoints.
type Resolver struct {
	prober Prober
	opts   Options

	probeOnce sync.Once
	factory   bool

	mu       sync.Mutex
	resolved map[identity.ID]Endpoint
}

// NewResolver creates a resolver. Zero option fields take their defaults.
func NewResolver(prober Prober, opts Options) *Resolver {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Resolver{
		prober:   prober,
		opts:     opts,
		resolved: make(map[identity.ID]Endpoint),
	}
}

// IsFactoryDefault reports whether the factory address answers. Any probe
// error or timeout counts as not reachable.
func (r *Resolver) IsFactoryDefault() bool {
	r.probeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.ProbeTimeout)
		defer cancel()

		err := r.prober.Probe(ctx, r.opts.FactoryAddress)
		r.factory = err == nil
		r.opts.Logger.Debug("factory address probe",
			zap.String("address", r.opts.FactoryAddress),
			zap.Bool("reachable", r.factory),
			zap.Error(err))
	})
	return r.factory
}

// Factory returns the factory endpoint without probing.
func (r *Resolver) Factory() Endpoint {
	return Endpoint{Address: r.opts.FactoryAddress, FactoryDefault: true}
}

// Resolve returns the endpoint for id.
func (r *Resolver) Resolve(id identity.ID) (Endpoint, error) {
	if err := id.Validate(); err != nil {
		return Endpoint{}, err
	}

	r.mu.Lock()
	ep, ok := r.resolved[id]
	r.mu.Unlock()
	if ok {
		return ep, nil
	}

	if r.IsFactoryDefault() {
		ep = Endpoint{Address: r.opts.FactoryAddress, FactoryDefault: true}
	} else {
		ep = Endpoint{Address: ProvisionedAddress(r.opts.Prefix, id)}
	}

	r.mu.Lock()
	r.resolved[id] = ep
	r.mu.Unlock()
	return ep, nil
}
