package commands

import (
	"errors"

	"go.uber.org/zap"

	"github.com/radio-control/linkctl/internal/adapter"
	"github.com/radio-control/linkctl/internal/audit"
	"github.com/radio-control/linkctl/internal/config"
	"github.com/radio-control/linkctl/internal/credential"
	"github.com/radio-control/linkctl/internal/dispatch"
	"github.com/radio-control/linkctl/internal/endpoint"
	"github.com/radio-control/linkctl/internal/identity"
	"github.com/radio-control/linkctl/internal/pairing"
	"github.com/radio-control/linkctl/internal/session"
)

// linkApp holds the components shared by every subcommand.
type linkApp struct {
	cfg         *config.Config
	logger      *zap.Logger
	audit       *audit.Logger
	identities  *identity.Store
	credentials *credential.Store
	coordinator *pairing.Coordinator
	dispatcher  *dispatch.Dispatcher
}

func newApp(cfg *config.Config, logger *zap.Logger) (*linkApp, error) {
	app := &linkApp{
		cfg:        cfg,
		logger:     logger,
		identities: identity.NewStore(cfg.Paths.Identity),
	}

	prober, err := endpoint.NewProber(cfg.Device.ProbeMethod, cfg.Device.SSHPort, cfg.Timing.ProbeTimeout())
	if err != nil {
		return nil, err
	}
	newResolver := func() *endpoint.Resolver {
		return endpoint.NewResolver(prober, endpoint.Options{
			FactoryAddress: cfg.Device.FactoryAddress,
			Prefix:         cfg.Device.AddressPrefix,
			ProbeTimeout:   cfg.Timing.ProbeTimeout(),
			Logger:         logger,
		})
	}

	dialer := adapter.NewSSHDialer(cfg.Device.User, cfg.Device.SSHPort, cfg.Timing.DialTimeout())
	runner := session.NewRunner(dialer, session.Options{
		CommandWait:  cfg.Timing.CommandWait(),
		PollInterval: cfg.Timing.PollInterval(),
		SettleDelay:  cfg.Timing.SettleDelay(),
		Logger:       logger,
	})

	store := pairing.NewFileStore(cfg.Paths.PairStatus, cfg.Timing.PairStale())
	store.SetLogger(logger)
	app.coordinator = pairing.NewCoordinator(runner, newResolver, store, app.identities, pairing.Options{
		Prefix:            cfg.Device.AddressPrefix,
		Netmask:           cfg.Device.Netmask,
		FactoryCredential: cfg.Device.FactoryCredential,
		Distance:          cfg.Device.DistanceMeters,
		Logger:            logger,
	})

	opts := dispatch.Options{
		Prefix:            cfg.Device.AddressPrefix,
		Netmask:           cfg.Device.Netmask,
		FactoryCredential: cfg.Device.FactoryCredential,
		Logger:            logger,
	}

	if creds, err := credential.NewStoreFromKeyFile(cfg.Paths.Credential, cfg.Paths.CredentialKey, credential.DefaultParams); err != nil {
		logger.Warn("credential store unavailable", zap.Error(err))
	} else {
		app.credentials = creds
		opts.Credentials = creds
	}

	if cfg.Paths.AuditDir != "" {
		if al, err := audit.NewLogger(cfg.Paths.AuditDir); err != nil {
			logger.Warn("audit log unavailable", zap.Error(err))
		} else {
			app.audit = al
			opts.Audit = al
		}
	}

	app.dispatcher = dispatch.New(runner, newResolver, app.coordinator, app.identities, opts)
	return app, nil
}

// credential returns the explicit credential, falling back to the stored one.
func (a *linkApp) credential(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if a.credentials == nil {
		return "", adapter.Errorf(adapter.ErrValidation, "--encryption_key is required (no credential store)")
	}
	c, err := a.credentials.Load()
	if errors.Is(err, credential.ErrNotFound) {
		return "", adapter.Errorf(adapter.ErrValidation, "--encryption_key is required (nothing stored yet)")
	}
	return c, err
}

// remember stores c for later runs. Failures are logged only.
func (a *linkApp) remember(c string) {
	if a.credentials == nil {
		return
	}
	if err := a.credentials.Save(c); err != nil {
		a.logger.Warn("failed to store credential", zap.Error(err))
	}
}

func (a *linkApp) close() {
	a.coordinator.Wait()
	if a.audit != nil {
		_ = a.audit.Close()
	}
	_ = a.logger.Sync()
}
