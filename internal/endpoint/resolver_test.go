package endpoint

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/linkctl/internal/adapter"
	"github.com/radio-control/linkctl/internal/identity"
)

const factory = "192.168.168.1"

type countingProber struct {
	calls     atomic.Int32
	reachable bool
	block     bool
}

func (p *countingProber) Probe(ctx context.Context, address string) error {
	p.calls.Add(1)
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if p.reachable && address == factory {
		return nil
	}
	return errors.New("unreachable")
}

func newResolver(p Prober) *Resolver {
	return NewResolver(p, Options{FactoryAddress: factory, Prefix: "172.20.2", ProbeTimeout: 50 * time.Millisecond})
}

func TestResolveEveryIdentity(t *testing.T) {
	provisioned := newResolver(&countingProber{reachable: false})
	reset := newResolver(&countingProber{reachable: true})

	for i := identity.Min; i <= identity.Max; i++ {
		id := identity.ID(i)

		ep, err := provisioned.Resolve(id)
		require.NoError(t, err)
		assert.Equal(t, "172.20.2."+strconv.Itoa(i), ep.Address)
		assert.False(t, ep.FactoryDefault)

		ep, err = reset.Resolve(id)
		require.NoError(t, err)
		assert.Equal(t, factory, ep.Address)
		assert.True(t, ep.FactoryDefault)
	}
}

func TestProbeIsMemoized(t *testing.T) {
	p := &countingProber{reachable: true}
	r := newResolver(p)

	for i := 0; i < 5; i++ {
		assert.True(t, r.IsFactoryDefault())
		_, err := r.Resolve(7)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), p.calls.Load())

	// A new resolver probes again.
	p.reachable = false
	assert.False(t, newResolver(p).IsFactoryDefault())
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestProbeTimeoutFailsClosed(t *testing.T) {
	r := newResolver(&countingProber{block: true})

	start := time.Now()
	assert.False(t, r.IsFactoryDefault())
	assert.Less(t, time.Since(start), time.Second)

	ep, err := r.Resolve(9)
	require.NoError(t, err)
	assert.Equal(t, "172.20.2.9", ep.Address)
}

func TestResolveRejectsInvalidIdentity(t *testing.T) {
	r := newResolver(&countingProber{})
	_, err := r.Resolve(0)
	assert.ErrorIs(t, err, adapter.ErrValidation)
}

func TestTCPProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, TCPProber{Port: port}.Probe(ctx, "127.0.0.1"))
}

func TestNewProber(t *testing.T) {
	p, err := NewProber("tcp", 22, 0)
	require.NoError(t, err)
	assert.IsType(t, TCPProber{}, p)

	p, err = NewProber("icmp", 22, time.Second)
	require.NoError(t, err)
	assert.IsType(t, ICMPProber{}, p)

	_, err = NewProber("carrier-pigeon", 22, 0)
	assert.Error(t, err)
}
