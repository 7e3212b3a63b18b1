package commands

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radio-control/linkctl/internal/adapter"
	"github.com/radio-control/linkctl/internal/dispatch"
	"github.com/radio-control/linkctl/internal/identity"
	"github.com/radio-control/linkctl/internal/pairing"
)

// pair: provision the radio and wait for the outcome.
func pairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Pair the radio with a network and assign the unit identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := pairing.Request{
				Identity:     identity.ID(monarkID),
				NetworkID:    networkID,
				Credential:   encryptionKey,
				TxPower:      txPower,
				FrequencyMHz: frequency,
			}
			h, err := app.coordinator.Start(req)
			if errors.Is(err, adapter.ErrConflict) {
				return printReport(cmd.OutOrStdout(), false, dispatch.ReplyPairingBusy)
			}
			if err != nil {
				return err
			}

			for st := range h.Progress {
				app.logger.Debug("pairing progress", zap.String("status", st.String()))
			}
			final := h.Wait()
			if final.Phase == pairing.Succeeded {
				app.remember(encryptionKey)
			}
			return printReport(cmd.OutOrStdout(), final.Phase == pairing.Succeeded, final.String())
		},
	}
	cmd.Flags().StringVar(&networkID, "network_id", "", "network id shared by both ends of the link")
	cmd.Flags().StringVar(&encryptionKey, "encryption_key", "", "link encryption key, also the new login password")
	cmd.Flags().IntVar(&txPower, "tx_power", 0, "transmit power in dBm")
	cmd.Flags().IntVar(&frequency, "frequency", 0, "center frequency in MHz")
	cmd.Flags().IntVar(&monarkID, "monark_id", 0, "unit identity (1-255)")
	for _, name := range []string{"network_id", "encryption_key", "tx_power", "frequency", "monark_id"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func pairStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair_status",
		Short: "Show the state of the last pairing attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.coordinator.Status()
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), st.Phase != pairing.Failed, st.String())
		},
	}
}
