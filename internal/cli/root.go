// Package cli wires the negotiator commands: one-shot rounds, the mailbox
// watch loop, and read-only views over persisted deal history.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "negotiator",
		Short: "Negotiator is a supplier-negotiation copilot for WTG + LTSA deals",
	}

	root.AddCommand(newRoundCommand(logger))
	root.AddCommand(newWatchCommand(logger))
	root.AddCommand(newHistoryCommand(logger))
	root.AddCommand(newLatestCommand(logger))
	root.AddCommand(newVersionCommand())

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
