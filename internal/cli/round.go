package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/owpa/negotiator/internal/config"
	"github.com/owpa/negotiator/internal/outbound/smtp"
	"github.com/owpa/negotiator/internal/statestore"
	"github.com/owpa/negotiator/internal/store"
)

func newRoundCommand(logger *slog.Logger) *cobra.Command {
	var (
		emailFile    string
		subject      string
		dealID       string
		supplierName string
		sendTo       string
		jsonMode     bool
	)

	cmd := &cobra.Command{
		Use:   "round",
		Short: "Process one supplier email and produce coach notes plus a reply draft",
		Long:  "Reads the supplier email from --email-file (or stdin), runs a negotiation round against the deal's latest persisted state, and prints the updated state, coach notes, and reply draft.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if dealID == "" {
				dealID = cfg.DefaultDealID
			}

			emailText, err := readEmail(cmd, emailFile)
			if err != nil {
				return err
			}
			if strings.TrimSpace(emailText) == "" {
				return fmt.Errorf("supplier email text is empty")
			}

			states := statestore.New(cfg.StateStorePath)
			stateIn, err := initialState(cfg, states, dealID, supplierName)
			if err != nil {
				return err
			}

			stateOut, notes, draft, err := newPipeline(cfg, states, logger).Run(cmd.Context(), emailText, subject, stateIn)
			if err != nil {
				return err
			}

			db, err := store.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open audit store: %w", err)
			}
			defer db.Close()
			if err := db.AutoMigrate(cmd.Context()); err != nil {
				return err
			}
			if err := recordAudit(cmd.Context(), db, stateOut, notes, "cli"); err != nil {
				logger.Error("round audit write failed", "error", err, "deal_id", stateOut.DealID)
			}

			if jsonMode {
				return printJSON(cmd, map[string]any{
					"state":       stateOut,
					"coach_notes": notes,
					"email_draft": draft,
				})
			}

			cmd.Printf("Deal %s round %d (%s)\n\n", stateOut.DealID, stateOut.RoundNumber, stateOut.SupplierName)
			printCoachNotes(cmd, notes)
			cmd.Println()
			printDraft(cmd, draft)

			if sendTo != "" {
				sender := smtp.New(smtp.Config{
					Host:     cfg.SMTPHost,
					Port:     cfg.SMTPPort,
					Username: cfg.SMTPUsername,
					Password: cfg.SMTPPassword,
					From:     cfg.SMTPFrom,
				})
				if err := sender.Send(cmd.Context(), sendTo, draft.Subject, draft.Body); err != nil {
					return fmt.Errorf("send draft: %w", err)
				}
				cmd.Printf("\nDraft sent to %s\n", sendTo)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&emailFile, "email-file", "", "path to the supplier email text (stdin when omitted)")
	cmd.Flags().StringVar(&subject, "subject", "", "supplier email subject line")
	cmd.Flags().StringVar(&dealID, "deal", "", "deal id to continue (defaults to configured deal)")
	cmd.Flags().StringVar(&supplierName, "supplier", "", "supplier name for a fresh deal")
	cmd.Flags().StringVar(&sendTo, "send-to", "", "send the reply draft to this address over SMTP")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "emit state, notes, and draft as JSON")

	return cmd
}

func readEmail(cmd *cobra.Command, path string) (string, error) {
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read email file: %w", err)
		}
		return string(data), nil
	}

	stdin := cmd.InOrStdin()
	if file, ok := stdin.(*os.File); ok {
		if info, err := file.Stat(); err == nil && (info.Mode()&os.ModeCharDevice) != 0 {
			return "", fmt.Errorf("no --email-file given and stdin is a terminal")
		}
	}
	data, err := io.ReadAll(io.LimitReader(stdin, 2<<20))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
