package commands

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radio-control/linkctl/internal/serial"
)

// serve: answer the ground controller on the serial line until stopped.
func serveCmd() *cobra.Command {
	var device string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve controller requests on the serial line",
		RunE: func(cmd *cobra.Command, args []string) error {
			if device == "" {
				device = app.cfg.Serial.Device
			}
			app.logger.Info("serving controller link",
				zap.String("device", device),
				zap.Int("baud", app.cfg.Serial.Baud))

			open := func() (io.ReadWriteCloser, error) {
				return serial.Open(device, app.cfg.Serial.Baud)
			}
			err := app.dispatcher.ServeLink(cmd.Context(), open, app.cfg.Serial.ReconnectDelay(), "serial")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "serial device (default from config)")
	return cmd
}
