package pairing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radio-control/linkctl/internal/adapter"
	"github.com/radio-control/linkctl/internal/adapter/simulated"
	"github.com/radio-control/linkctl/internal/endpoint"
	"github.com/radio-control/linkctl/internal/identity"
	"github.com/radio-control/linkctl/internal/session"
)

const prefix = "172.20.2"

type fixture struct {
	radio       *simulated.Radio
	dialer      *simulated.Dialer
	store       *FileStore
	identities  *identity.Store
	coordinator *Coordinator
}

func newFixture(t *testing.T, radio *simulated.Radio, executor Executor) *fixture {
	t.Helper()
	dir := t.TempDir()
	dialer := simulated.NewDialer(radio)
	if executor == nil {
		executor = session.NewRunner(dialer, session.Options{CommandWait: time.Second, PollInterval: 2 * time.Millisecond})
	}
	f := &fixture{
		radio:      radio,
		dialer:     dialer,
		store:      NewFileStore(filepath.Join(dir, "status.txt"), 0),
		identities: identity.NewStore(filepath.Join(dir, "monark_id.txt")),
	}
	f.coordinator = NewCoordinator(executor, f.newResolver, f.store, f.identities, Options{
		Prefix:            prefix,
		Netmask:           "255.255.0.0",
		FactoryCredential: simulated.FactoryPassword,
		Distance:          8047,
	})
	return f
}

func (f *fixture) newResolver() *endpoint.Resolver {
	return endpoint.NewResolver(f.dialer, endpoint.Options{FactoryAddress: simulated.FactoryAddress, Prefix: prefix})
}

var scenario = Request{
	Identity:     5,
	NetworkID:    "MONARK-123",
	Credential:   "longpassphrase1",
	TxPower:      15,
	FrequencyMHz: 2311,
}

func TestPairingScenarioSucceeds(t *testing.T) {
	f := newFixture(t, simulated.NewRadio(), nil)

	st, err := f.coordinator.Status()
	require.NoError(t, err)
	assert.Equal(t, NotStarted, st.Phase)

	h, err := f.coordinator.Start(scenario)
	require.NoError(t, err)
	require.NotEmpty(t, h.ID)

	var seen []Status
	for st := range h.Progress {
		seen = append(seen, st)
	}
	final := h.Wait()

	assert.Equal(t, Succeeded, final.Phase)
	require.Len(t, seen, 13)
	for i, st := range seen[:12] {
		assert.Equal(t, Status{Phase: InProgress, Step: i, Total: 11}, st)
	}
	assert.Equal(t, Succeeded, seen[12].Phase)

	st, err = f.coordinator.Status()
	require.NoError(t, err)
	assert.Equal(t, Succeeded, st.Phase)

	ep, err := f.newResolver().Resolve(5)
	require.NoError(t, err)
	assert.Equal(t, "172.20.2.5", ep.Address)
	assert.False(t, ep.FactoryDefault)

	committed := f.radio.Committed()
	assert.Equal(t, "longpassphrase1", committed.Password)
	assert.Equal(t, "MONARK-123", committed.NetworkID)
	assert.Equal(t, 15, committed.TxPowerDbm)
	assert.Equal(t, 2311, committed.FrequencyMhz)
	assert.Equal(t, 8047, committed.DistanceMeters)
	assert.False(t, committed.DHCPEnabled)

	id, found, err := f.identities.Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, identity.ID(5), id)
}

func TestPairingProvisionedUnitUsesCallerCredential(t *testing.T) {
	radio := simulated.NewProvisionedRadio("172.20.2.5", "longpassphrase1")
	f := newFixture(t, radio, nil)

	h, err := f.coordinator.Start(scenario)
	require.NoError(t, err)
	assert.Equal(t, Succeeded, h.Wait().Phase)
	assert.Equal(t, 1, f.dialer.Dials())
}

// blockingExecutor holds every batch until release is closed.
type blockingExecutor struct {
	started chan struct{}
	release chan struct{}
	result  session.Result
}

func (b *blockingExecutor) Execute(ctx context.Context, address, credential string, commands []string, progress session.ProgressFunc) session.Result {
	close(b.started)
	<-b.release
	return b.result
}

func TestPairingSecondStartConflicts(t *testing.T) {
	exec := &blockingExecutor{
		started: make(chan struct{}),
		release: make(chan struct{}),
		result:  session.Result{Success: true, FailedAt: -1},
	}
	f := newFixture(t, simulated.NewRadio(), exec)

	h, err := f.coordinator.Start(scenario)
	require.NoError(t, err)
	<-exec.started

	before, err := f.coordinator.Status()
	require.NoError(t, err)

	second := scenario
	second.Identity = 9
	_, err = f.coordinator.Start(second)
	require.Error(t, err)
	assert.ErrorIs(t, err, adapter.ErrConflict)

	after, err := f.coordinator.Status()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	id, _, err := f.identities.Load()
	require.NoError(t, err)
	assert.Equal(t, identity.ID(5), id, "a rejected start must not touch the identity")

	close(exec.release)
	assert.Equal(t, Succeeded, h.Wait().Phase)

	// The finished attempt no longer blocks.
	exec.started = make(chan struct{})
	h, err = f.coordinator.Start(second)
	require.NoError(t, err)
	h.Wait()
	f.coordinator.Wait()
}

func TestPairingFailureDetail(t *testing.T) {
	radio := simulated.NewRadio()
	radio.InjectFault("AT+MSPWD", simulated.FaultError)
	f := newFixture(t, radio, nil)

	h, err := f.coordinator.Start(scenario)
	require.NoError(t, err)
	final := h.Wait()

	assert.Equal(t, Failed, final.Phase)
	assert.Contains(t, final.Detail, "PROTOCOL at step 8/11")
	assert.Contains(t, final.Detail, "ERROR")
	assert.NotContains(t, final.Detail, scenario.Credential)

	st, err := f.coordinator.Status()
	require.NoError(t, err)
	assert.Equal(t, Failed, st.Phase)
	assert.Equal(t, final.Detail, st.Detail)

	assert.Equal(t, simulated.FactoryAddress, radio.Address(), "nothing was committed")
}

func TestPairingConnectionFailure(t *testing.T) {
	// Unit answers at neither address.
	radio := simulated.NewProvisionedRadio("10.9.9.9", "longpassphrase1")
	f := newFixture(t, radio, nil)

	h, err := f.coordinator.Start(scenario)
	require.NoError(t, err)
	final := h.Wait()

	assert.Equal(t, Failed, final.Phase)
	assert.Contains(t, final.Detail, "CONNECTION")
	assert.NotContains(t, final.Detail, "at step")
}

type panickingExecutor struct{}

func (panickingExecutor) Execute(context.Context, string, string, []string, session.ProgressFunc) session.Result {
	panic("boom")
}

func TestPairingPanicIsSupervised(t *testing.T) {
	f := newFixture(t, simulated.NewRadio(), panickingExecutor{})

	h, err := f.coordinator.Start(scenario)
	require.NoError(t, err)
	final := h.Wait()

	assert.Equal(t, Failed, final.Phase)
	assert.Contains(t, final.Detail, "INTERNAL: boom")

	st, err := f.coordinator.Status()
	require.NoError(t, err)
	assert.Equal(t, Failed, st.Phase)
}

func TestPairingValidation(t *testing.T) {
	f := newFixture(t, simulated.NewRadio(), nil)

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"identity zero", func(r *Request) { r.Identity = 0 }},
		{"identity too large", func(r *Request) { r.Identity = 256 }},
		{"short credential", func(r *Request) { r.Credential = "short" }},
		{"factory credential", func(r *Request) { r.Credential = "admin" }},
		{"missing network id", func(r *Request) { r.NetworkID = "" }},
		{"network id with comma", func(r *Request) { r.NetworkID = "A,B" }},
		{"no power", func(r *Request) { r.TxPower = 0 }},
		{"no frequency", func(r *Request) { r.FrequencyMHz = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := scenario
			tt.mutate(&req)
			_, err := f.coordinator.Start(req)
			assert.ErrorIs(t, err, adapter.ErrValidation)
		})
	}

	st, err := f.coordinator.Status()
	require.NoError(t, err)
	assert.Equal(t, NotStarted, st.Phase, "rejected requests never create a record")
	assert.Equal(t, 0, f.dialer.Dials())
}
