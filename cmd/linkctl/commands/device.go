package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/radio-control/linkctl/internal/adapter"
	"github.com/radio-control/linkctl/internal/dispatch"
	"github.com/radio-control/linkctl/internal/radio"
)

func infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print transmit power, frequency and unit identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.credential(encryptionKey)
			if err != nil {
				return err
			}
			return printInfo(cmd, c)
		},
	}
	cmd.Flags().StringVar(&encryptionKey, "encryption_key", "", "login password (default: stored)")
	return cmd
}

// printInfo reports "<tx_power>,<frequency>,<identity>".
func printInfo(cmd *cobra.Command, credential string) error {
	result, id, err := app.dispatcher.Exec(cmd.Context(), credential, radio.InfoBatch())
	if err != nil {
		return err
	}
	if !result.Success {
		return printResult(cmd.OutOrStdout(), result, "", credential)
	}
	info, err := radio.ParseInfo(result.Responses)
	if err != nil {
		return printReport(cmd.OutOrStdout(), false, adapter.Code(err)+": "+adapter.Cause(err))
	}
	return printReport(cmd.OutOrStdout(), true, radio.FormatInfo(info, int(id)))
}

func updateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change transmit power, frequency or network id",
		RunE: func(cmd *cobra.Command, args []string) error {
			u := radio.Update{TxPower: txPower, Frequency: frequency, NetworkID: networkID}
			if u.Empty() {
				return adapter.Errorf(adapter.ErrValidation, "nothing to update; set --tx_power, --frequency or --network_id")
			}
			if u.TxPower < 0 || u.Frequency < 0 {
				return adapter.Errorf(adapter.ErrValidation, "tx power and frequency must be positive")
			}
			if u.NetworkID != "" {
				if err := radio.ValidateNetworkID(u.NetworkID); err != nil {
					return err
				}
			}
			c, err := app.credential(encryptionKey)
			if err != nil {
				return err
			}
			result, _, err := app.dispatcher.Exec(cmd.Context(), c, radio.UpdateBatch(u))
			if err != nil {
				return err
			}
			if !result.Success {
				return printResult(cmd.OutOrStdout(), result, "", c)
			}
			return printInfo(cmd, c)
		},
	}
	cmd.Flags().IntVar(&txPower, "tx_power", 0, "transmit power in dBm")
	cmd.Flags().IntVar(&frequency, "frequency", 0, "center frequency in MHz")
	cmd.Flags().StringVar(&networkID, "network_id", "", "network id")
	cmd.Flags().StringVar(&encryptionKey, "encryption_key", "", "login password (default: stored)")
	return cmd
}

func updateEncryptionKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update_encryption_key",
		Short: "Replace the link encryption key and login password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := radio.ValidateCredential(newEncryptionKey, ""); err != nil {
				return err
			}
			c, err := app.credential(encryptionKey)
			if err != nil {
				return err
			}
			result, _, err := app.dispatcher.Exec(cmd.Context(), c, radio.CredentialBatch(newEncryptionKey))
			if err != nil {
				return err
			}
			if result.Success {
				app.remember(newEncryptionKey)
			}
			return printResult(cmd.OutOrStdout(), result, dispatch.ReplyOK, c, newEncryptionKey)
		},
	}
	cmd.Flags().StringVar(&encryptionKey, "encryption_key", "", "current key (default: stored)")
	cmd.Flags().StringVar(&newEncryptionKey, "new_encryption_key", "", "new key")
	_ = cmd.MarkFlagRequired("new_encryption_key")
	return cmd
}

func isFactoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "is_factory",
		Short: "Report whether the radio answers at its factory address",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printReport(cmd.OutOrStdout(), true, strconv.FormatBool(app.dispatcher.FactoryDefault()))
		},
	}
}
