package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/owpa/negotiator/internal/config"
	"github.com/owpa/negotiator/internal/statestore"
	"github.com/owpa/negotiator/internal/store"
)

func newHistoryCommand(logger *slog.Logger) *cobra.Command {
	_ = logger
	var (
		dealID   string
		limit    int
		jsonMode bool
		audit    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the persisted rounds for a deal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if dealID == "" {
				dealID = cfg.DefaultDealID
			}

			if audit {
				db, err := store.New(cfg.DBPath)
				if err != nil {
					return fmt.Errorf("open audit store: %w", err)
				}
				defer db.Close()
				if err := db.AutoMigrate(cmd.Context()); err != nil {
					return err
				}
				rows, err := db.ListRoundAudits(cmd.Context(), dealID, limit)
				if err != nil {
					return err
				}
				if jsonMode {
					return printJSON(cmd, rows)
				}
				if len(rows) == 0 {
					cmd.Printf("No audited rounds for deal %s\n", dealID)
					return nil
				}
				for _, row := range rows {
					uplift := "-"
					if row.UpliftPct != nil {
						uplift = fmt.Sprintf("%.1f%%", *row.UpliftPct)
					}
					cmd.Printf("round %d  %s  intent=%s uplift=%s source=%s\n",
						row.RoundNumber,
						row.CreatedAt.UTC().Format(time.RFC3339),
						row.Intent,
						uplift,
						row.Source,
					)
				}
				return nil
			}

			states, err := statestore.New(cfg.StateStorePath).History(dealID)
			if err != nil {
				return err
			}
			if limit > 0 && len(states) > limit {
				states = states[len(states)-limit:]
			}
			if jsonMode {
				return printJSON(cmd, states)
			}
			if len(states) == 0 {
				cmd.Printf("No persisted rounds for deal %s\n", dealID)
				return nil
			}
			for _, state := range states {
				intent := "-"
				if state.SupplierAsk != nil {
					intent = string(state.SupplierAsk.Intent)
				}
				cmd.Printf("round %d  %s  supplier=%s intent=%s\n",
					state.RoundNumber,
					state.LastUpdatedAt.UTC().Format(time.RFC3339),
					state.SupplierName,
					intent,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dealID, "deal", "", "deal id (defaults to configured deal)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rounds to show (0 means all)")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "emit rounds as JSON")
	cmd.Flags().BoolVar(&audit, "audit", false, "read from the sqlite audit store instead of the state log")

	return cmd
}

func newLatestCommand(logger *slog.Logger) *cobra.Command {
	_ = logger
	var dealID string

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the latest persisted state for a deal as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if dealID == "" {
				dealID = cfg.DefaultDealID
			}

			state, err := statestore.New(cfg.StateStorePath).LoadLatest(dealID)
			if err != nil {
				if errors.Is(err, statestore.ErrDealNotFound) {
					return fmt.Errorf("no persisted state for deal %s", dealID)
				}
				return err
			}
			return printJSON(cmd, state)
		},
	}

	cmd.Flags().StringVar(&dealID, "deal", "", "deal id (defaults to configured deal)")
	return cmd
}
