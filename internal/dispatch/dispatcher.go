// Package dispatch serves the line protocol spoken by the ground controller.
//
// Each request line yields exactly one reply line. PAIR, PAIR_STATUS and
// LOGIN are always accepted; every other verb requires a prior successful
// LOGIN and is either translated into a command batch or forwarded to the
// radio unchanged.
package dispatch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radio-control/linkctl/internal/adapter"
	"github.com/radio-control/linkctl/internal/endpoint"
	"github.com/radio-control/linkctl/internal/identity"
	"github.com/radio-control/linkctl/internal/pairing"
	"github.com/radio-control/linkctl/internal/radio"
	"github.com/radio-control/linkctl/internal/session"
)

// Fixed replies.
const (
	ReplyOK             = "OK"
	ReplyLoginFailed    = "Failed to login."
	ReplyLoginRequired  = "Please login first."
	ReplyPairingStarted = "Pairing has started..."
	ReplyPairingBusy    = "Pairing is already in progress. Please wait."
	ReplyDeviceBusy     = "Device is busy. Please wait."
)

// Pairing starts background pairing attempts and reports their status.
type Pairing interface {
	Start(req pairing.Request) (*pairing.Handle, error)
	Status() (pairing.Status, error)
}

// IdentityStore reads and writes the unit identity.
type IdentityStore interface {
	Load() (identity.ID, bool, error)
	Save(identity.ID) error
}

// CredentialSink receives the credential after a successful change.
type CredentialSink interface {
	Save(credential string) error
}

// Auditor records one entry per handled request.
type Auditor interface {
	LogAction(ctx context.Context, action string, identity int, outcome string, err error, latency time.Duration)
}

// Options configures a Dispatcher.
type Options struct {
	Prefix            string
	Netmask           string
	FactoryCredential string
	Credentials       CredentialSink
	Audit             Auditor
	Logger            *zap.Logger
}

// Dispatcher holds the login state of one controller link.
type Dispatcher struct {
	executor    pairing.Executor
	newResolver pairing.ResolverFactory
	pairing     Pairing
	identities  IdentityStore
	opts        Options
	logger      *zap.Logger

	mu         sync.Mutex
	loggedIn   bool
	credential string
}

// New creates a logged-out dispatcher.
func New(executor pairing.Executor, newResolver pairing.ResolverFactory, p Pairing, identities IdentityStore, opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		executor:    executor,
		newResolver: newResolver,
		pairing:     p,
		identities:  identities,
		opts:        opts,
		logger:      opts.Logger,
	}
}

// LoggedIn reports the login state.
func (d *Dispatcher) LoggedIn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loggedIn
}

// Logout drops the login state and the held credential.
func (d *Dispatcher) Logout() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loggedIn {
		d.logger.Info("controller logged out")
	}
	d.loggedIn = false
	d.credential = ""
}

// Handle processes one request line and returns its reply.
func (d *Dispatcher) Handle(ctx context.Context, line string) string {
	req := ParseRequest(line)
	start := time.Now()

	reply, err := d.route(ctx, req)

	outcome := "OK"
	switch {
	case reply == ReplyLoginRequired:
		outcome = "REJECTED"
	case err != nil:
		outcome = "FAILURE"
	}
	if d.opts.Audit != nil {
		d.opts.Audit.LogAction(ctx, radio.Mnemonic(req.Verb), d.currentIdentity(), outcome, err, time.Since(start))
	}
	d.logger.Debug("request handled",
		zap.String("verb", radio.Mnemonic(req.Verb)),
		zap.String("outcome", outcome),
		zap.Duration("latency", time.Since(start)),
		zap.Error(err))
	return reply
}

func (d *Dispatcher) route(ctx context.Context, req Request) (string, error) {
	switch req.Verb {
	case "":
		err := adapter.Errorf(adapter.ErrValidation, "empty request")
		return failure(err), err
	case VerbLogin:
		return d.login(ctx, req)
	case VerbPair:
		return d.pair(req)
	case VerbPairStatus:
		st, err := d.pairing.Status()
		if err != nil {
			return failure(err), err
		}
		return st.String(), nil
	}

	credential, ok := d.session()
	if !ok {
		return ReplyLoginRequired, nil
	}

	switch req.Verb {
	case VerbInfo:
		return d.info(ctx, credential)
	case VerbIdentity:
		return d.changeIdentity(ctx, credential, req)
	case VerbUpdate:
		return d.update(ctx, credential, req)
	case VerbChangePassword:
		return d.changePassword(ctx, credential, req)
	default:
		return d.forward(ctx, credential, req)
	}
}

func (d *Dispatcher) login(ctx context.Context, req Request) (string, error) {
	credential := req.Value
	if err := radio.ValidateCredential(credential, d.opts.FactoryCredential); err != nil {
		d.Logout()
		return ReplyLoginFailed, err
	}

	ep, _, err := d.target()
	if err != nil {
		d.Logout()
		return ReplyLoginFailed, err
	}

	result := d.executor.Execute(ctx, ep.Address, credential, []string{radio.CmdProbe}, nil)
	if session.IsBusy(result.Err) {
		return ReplyDeviceBusy, result.Err
	}
	if !result.Success {
		d.Logout()
		return ReplyLoginFailed, result.Err
	}

	d.mu.Lock()
	d.loggedIn = true
	d.credential = credential
	d.mu.Unlock()
	d.logger.Info("controller logged in", zap.String("address", ep.Address))
	return ReplyOK, nil
}

func (d *Dispatcher) pair(req Request) (string, error) {
	pr, err := parsePairRequest(req.Values())
	if err != nil {
		// A running attempt takes precedence over a malformed request.
		if st, serr := d.pairing.Status(); serr == nil && st.Phase == pairing.InProgress {
			return ReplyPairingBusy, adapter.Wrap(adapter.ErrConflict, err, st)
		}
		return failure(err), err
	}

	h, err := d.pairing.Start(pr)
	if errors.Is(err, adapter.ErrConflict) {
		return ReplyPairingBusy, err
	}
	if err != nil {
		return failure(err), err
	}

	d.logger.Info("pairing started", zap.String("attempt", h.ID), zap.Stringer("identity", pr.Identity))
	return ReplyPairingStarted, nil
}

func parsePairRequest(values []string) (pairing.Request, error) {
	if len(values) != 5 {
		return pairing.Request{}, adapter.Errorf(adapter.ErrValidation,
			"PAIR takes network_id,credential,tx_power,frequency,identity; got %d values", len(values))
	}
	tx, err := strconv.Atoi(values[2])
	if err != nil {
		return pairing.Request{}, adapter.Errorf(adapter.ErrValidation, "tx power %q is not a number", values[2])
	}
	freq, err := strconv.Atoi(values[3])
	if err != nil {
		return pairing.Request{}, adapter.Errorf(adapter.ErrValidation, "frequency %q is not a number", values[3])
	}
	id, err := identity.Parse(values[4])
	if err != nil {
		return pairing.Request{}, err
	}
	return pairing.Request{
		Identity:     id,
		NetworkID:    values[0],
		Credential:   values[1],
		TxPower:      tx,
		FrequencyMHz: freq,
	}, nil
}

func (d *Dispatcher) info(ctx context.Context, credential string) (string, error) {
	result, id, err := d.Exec(ctx, credential, radio.InfoBatch())
	if err != nil {
		return failure(err), err
	}
	if !result.Success {
		return d.failed(result, credential)
	}
	info, err := radio.ParseInfo(result.Responses)
	if err != nil {
		return failure(err), err
	}
	return radio.FormatInfo(info, int(id)), nil
}

func (d *Dispatcher) changeIdentity(ctx context.Context, credential string, req Request) (string, error) {
	id, err := identity.Parse(req.Value)
	if err != nil {
		return failure(err), err
	}
	link := radio.Link{Address: endpoint.ProvisionedAddress(d.opts.Prefix, id), Netmask: d.opts.Netmask}
	result, _, err := d.Exec(ctx, credential, radio.AddressBatch(link))
	if err != nil {
		return failure(err), err
	}
	if !result.Success {
		return d.failed(result, credential)
	}
	if err := d.identities.Save(id); err != nil {
		return failure(err), err
	}
	return ReplyOK, nil
}

func (d *Dispatcher) update(ctx context.Context, credential string, req Request) (string, error) {
	u, err := parseUpdate(req.Values())
	if err != nil {
		return failure(err), err
	}
	result, _, err := d.Exec(ctx, credential, radio.UpdateBatch(u))
	if err != nil {
		return failure(err), err
	}
	if !result.Success {
		return d.failed(result, credential)
	}
	return d.info(ctx, credential)
}

func parseUpdate(values []string) (radio.Update, error) {
	if len(values) == 0 || len(values) > 3 {
		return radio.Update{}, adapter.Errorf(adapter.ErrValidation, "UPDATE takes tx_power,frequency,network_id")
	}
	for len(values) < 3 {
		values = append(values, "")
	}

	var u radio.Update
	var err error
	if values[0] != "" {
		if u.TxPower, err = strconv.Atoi(values[0]); err != nil || u.TxPower <= 0 {
			return radio.Update{}, adapter.Errorf(adapter.ErrValidation, "invalid tx power %q", values[0])
		}
	}
	if values[1] != "" {
		if u.Frequency, err = strconv.Atoi(values[1]); err != nil || u.Frequency <= 0 {
			return radio.Update{}, adapter.Errorf(adapter.ErrValidation, "invalid frequency %q", values[1])
		}
	}
	if values[2] != "" {
		if err := radio.ValidateNetworkID(values[2]); err != nil {
			return radio.Update{}, err
		}
		u.NetworkID = values[2]
	}
	if u.Empty() {
		return radio.Update{}, adapter.Errorf(adapter.ErrValidation, "UPDATE carries no values")
	}
	return u, nil
}

func (d *Dispatcher) changePassword(ctx context.Context, credential string, req Request) (string, error) {
	values := req.Values()
	if len(values) != 2 || values[0] != values[1] {
		err := adapter.Errorf(adapter.ErrValidation, "AT+MSPWD takes the new credential twice")
		return failure(err), err
	}
	next := values[0]
	if err := radio.ValidateCredential(next, ""); err != nil {
		return failure(err), err
	}

	// The link key follows the login password, as with update_encryption_key.
	result, _, err := d.Exec(ctx, credential, radio.CredentialBatch(next))
	if err != nil {
		return failure(err), err
	}
	if !result.Success {
		return d.failed(result, credential, next)
	}

	d.mu.Lock()
	d.credential = next
	d.mu.Unlock()
	if d.opts.Credentials != nil {
		if err := d.opts.Credentials.Save(next); err != nil {
			d.logger.Warn("failed to persist changed credential", zap.Error(err))
		}
	}
	return ReplyOK, nil
}

func (d *Dispatcher) forward(ctx context.Context, credential string, req Request) (string, error) {
	result, _, err := d.Exec(ctx, credential, []string{req.Raw})
	if err != nil {
		return failure(err), err
	}
	if !result.Success {
		return d.failed(result, credential)
	}
	return result.Text(), nil
}

// Exec runs batch at the current endpoint with credential, regardless of
// the login state. It also returns the stored identity, zero when unset.
func (d *Dispatcher) Exec(ctx context.Context, credential string, batch []string) (session.Result, identity.ID, error) {
	ep, id, err := d.target()
	if err != nil {
		return session.Result{}, 0, err
	}
	return d.executor.Execute(ctx, ep.Address, credential, batch, nil), id, nil
}

// FactoryDefault reports whether the unit answers at the factory address.
func (d *Dispatcher) FactoryDefault() bool {
	return d.newResolver().IsFactoryDefault()
}

// failed renders a failed batch. Secrets are masked in the device output.
func (d *Dispatcher) failed(result session.Result, secrets ...string) (string, error) {
	if session.IsBusy(result.Err) {
		return ReplyDeviceBusy, result.Err
	}
	text := result.Text()
	if text == "" {
		text = adapter.Cause(result.Err)
	}
	for _, s := range secrets {
		text = radio.Redact(text, s)
	}
	return pairing.FailurePrefix + text, result.Err
}

func failure(err error) string {
	return pairing.FailurePrefix + adapter.Code(err) + ": " + adapter.Cause(err)
}

func (d *Dispatcher) session() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.credential, d.loggedIn
}

// target resolves the current endpoint with a fresh probe, so a unit that
// was reset or re-addressed between requests is found. A unit with no
// stored identity is reachable only while it is factory default.
func (d *Dispatcher) target() (endpoint.Endpoint, identity.ID, error) {
	r := d.newResolver()
	id, found, err := d.identities.Load()
	if err != nil {
		return endpoint.Endpoint{}, 0, err
	}
	if !found {
		if r.IsFactoryDefault() {
			return r.Factory(), 0, nil
		}
		return endpoint.Endpoint{}, 0, adapter.Errorf(adapter.ErrValidation, "unit identity is not set")
	}
	ep, err := r.Resolve(id)
	return ep, id, err
}

func (d *Dispatcher) currentIdentity() int {
	id, found, err := d.identities.Load()
	if err != nil || !found {
		return 0
	}
	return int(id)
}
