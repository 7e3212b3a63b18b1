package commands

import (
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/radio-control/linkctl/internal/audit"
)

// console: speak the controller protocol interactively.
func consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive controller session (LOGIN=..., INFO, PAIR=..., ...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "linkctl> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()
			defer app.dispatcher.Logout()

			ctx := cmd.Context()
			for ctx.Err() == nil {
				line, err := rl.Readline()
				if err == readline.ErrInterrupt {
					continue
				}
				if err != nil {
					return nil
				}

				input := strings.TrimSpace(line)
				switch strings.ToLower(input) {
				case "":
					continue
				case "exit", "quit":
					return nil
				}

				reqCtx := audit.WithSource(audit.WithCorrelationID(ctx, uuid.NewString()), "console")
				fmt.Fprintln(rl.Stdout(), app.dispatcher.Handle(reqCtx, input))
			}
			return nil
		},
	}
}
