package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/owpa/negotiator/internal/config"
	"github.com/owpa/negotiator/internal/connectors"
	imapconnector "github.com/owpa/negotiator/internal/connectors/imap"
	"github.com/owpa/negotiator/internal/deal"
	"github.com/owpa/negotiator/internal/memory"
	"github.com/owpa/negotiator/internal/outbound/smtp"
	"github.com/owpa/negotiator/internal/pipeline"
	"github.com/owpa/negotiator/internal/playbook"
	"github.com/owpa/negotiator/internal/statestore"
	"github.com/owpa/negotiator/internal/store"
	"github.com/owpa/negotiator/internal/watcher"
)

func newWatchCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll the configured mailbox and run a round per unread supplier email",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()

			db, err := store.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open audit store: %w", err)
			}
			defer db.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := db.AutoMigrate(ctx); err != nil {
				return err
			}

			states := statestore.New(cfg.StateStorePath)
			rounds := &auditingRounds{
				pipeline: newPipeline(cfg, states, logger),
				store:    db,
				logger:   logger,
			}

			var sender imapconnector.Sender
			if cfg.AutoSend && cfg.SMTPHost != "" {
				sender = smtp.New(smtp.Config{
					Host:     cfg.SMTPHost,
					Port:     cfg.SMTPPort,
					Username: cfg.SMTPUsername,
					Password: cfg.SMTPPassword,
					From:     cfg.SMTPFrom,
				})
			}

			connector := imapconnector.New(
				imapconnector.Config{
					Host:                cfg.IMAPHost,
					Port:                cfg.IMAPPort,
					Username:            cfg.IMAPUsername,
					Password:            cfg.IMAPPassword,
					Mailbox:             cfg.IMAPMailbox,
					TLSSkipVerify:       cfg.IMAPTLSSkipVerify,
					DefaultDealID:       cfg.DefaultDealID,
					DefaultSupplierName: cfg.DefaultSupplierName,
					AutoSend:            cfg.AutoSend,
				},
				db,
				rounds,
				states,
				sender,
				pollSchedule(cfg.PollCron, logger),
				logger,
			)

			fixtures, err := watcher.New(cfg.DataDir, logger, func(_ context.Context, path string) {
				// Rounds re-read fixtures anyway; this only surfaces a
				// broken edit before the next round trips over it.
				if _, loadErr := memory.LoadFixture(cfg.SuppliersPath); loadErr != nil {
					logger.Error("suppliers fixture invalid after change", "path", path, "error", loadErr)
					return
				}
				if _, loadErr := playbook.Load(cfg.PlaybookPath); loadErr != nil {
					logger.Error("playbook fixture invalid after change", "path", path, "error", loadErr)
					return
				}
				logger.Info("fixtures updated, next round uses new values", "path", path)
			})
			if err != nil {
				return err
			}

			services := []connectors.Connector{connector, fixtures}
			group, groupCtx := errgroup.WithContext(ctx)
			for _, service := range services {
				service := service
				group.Go(func() error {
					logger.Info("service starting", "service", service.Name())
					return service.Start(groupCtx)
				})
			}
			return group.Wait()
		},
	}
}

// pollSchedule turns the configured cron expression into a next-run
// function; an invalid expression falls back to a five minute interval.
func pollSchedule(expression string, logger *slog.Logger) func(time.Time) time.Time {
	schedule, err := cron.ParseStandard(expression)
	if err != nil {
		logger.Error("invalid poll cron, using 5m interval", "cron", expression, "error", err)
		return func(from time.Time) time.Time { return from.Add(5 * time.Minute) }
	}
	return schedule.Next
}

// auditingRounds runs the pipeline and records the sqlite audit row for
// rounds triggered from the mailbox.
type auditingRounds struct {
	pipeline *pipeline.Pipeline
	store    *store.Store
	logger   *slog.Logger
}

func (a *auditingRounds) Run(ctx context.Context, emailText, emailSubject string, stateIn deal.State) (deal.State, deal.CoachNotes, deal.EmailDraft, error) {
	stateOut, notes, draft, err := a.pipeline.Run(ctx, emailText, emailSubject, stateIn)
	if err != nil {
		return stateOut, notes, draft, err
	}

	if auditErr := recordAudit(ctx, a.store, stateOut, notes, "imap"); auditErr != nil {
		a.logger.Error("round audit write failed", "error", auditErr, "deal_id", stateOut.DealID)
	}
	return stateOut, notes, draft, nil
}
