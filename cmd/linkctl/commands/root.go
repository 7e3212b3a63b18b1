// Package commands implements the linkctl command line.
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/radio-control/linkctl/internal/config"
	"github.com/radio-control/linkctl/internal/logging"
)

var (
	configPath string
	verbose    bool
	app        *linkApp

	networkID        string
	encryptionKey    string
	newEncryptionKey string
	txPower          int
	frequency        int
	monarkID         int
)

// Execute runs the root command until it finishes or a signal arrives.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, newRootCmd())
}

func execute(ctx context.Context, root *cobra.Command) error {
	defer func() {
		if app != nil {
			app.close()
			app = nil
		}
	}()
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "linkctl",
		Short:        "Provision and control the Microhard link radio",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Verbose(cfg.Log, verbose))
			if err != nil {
				return err
			}
			app, err = newApp(cfg, logger)
			return err
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $"+config.EnvConfig+" or "+config.DefaultFile+")")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		pairCmd(),
		pairStatusCmd(),
		infoCmd(),
		updateCmd(),
		updateEncryptionKeyCmd(),
		isFactoryCmd(),
		serveCmd(),
		consoleCmd(),
	)
	return root
}
