// Command radiosim serves a simulated Microhard radio over SSH for bench
// work without hardware.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radio-control/linkctl/internal/adapter/simulated"
	"github.com/radio-control/linkctl/internal/config"
	"github.com/radio-control/linkctl/internal/endpoint"
	"github.com/radio-control/linkctl/internal/identity"
	"github.com/radio-control/linkctl/internal/logging"
)

var (
	configPath string
	listen     string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:          "radiosim",
		Short:        "Serve a simulated link radio over SSH",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "config file")
	root.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Verbose(cfg.Log, verbose))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sim := cfg.Simulator
	radio := simulated.NewRadio()
	if sim.Provisioned {
		id := identity.ID(sim.Identity)
		if err := id.Validate(); err != nil {
			return fmt.Errorf("invalid simulator identity: %w", err)
		}
		radio = simulated.NewProvisionedRadio(endpoint.ProvisionedAddress(cfg.Device.AddressPrefix, id), sim.Credential)
	}

	srv, err := simulated.NewServer(radio, cfg.Device.User, sim.AllowedCIDRs, logger)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %w", err)
	}

	addr := sim.ListenAddress
	if listen != "" {
		addr = listen
	}
	if err := srv.Listen(addr); err != nil {
		return err
	}
	logger.Info("simulated radio ready",
		zap.Stringer("address", srv.Addr()),
		zap.String("lanAddress", radio.Address()),
		zap.Bool("provisioned", sim.Provisioned))

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	case err := <-serveErr:
		logger.Error("simulator stopped", zap.Error(err))
	}

	if err := srv.Close(); err != nil {
		logger.Warn("simulator close error", zap.Error(err))
	}
	logger.Info("simulator stopped", zap.Int("commands", len(radio.Received())))
	return nil
}
