// Package pipeline runs one negotiation round: a fixed sequence of eight
// stages over a mutable round context. Stages execute strictly in order with
// no branching; the first stage error aborts the round and the context is
// discarded, so there is no partial output and nothing to roll back.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/owpa/negotiator/internal/classify"
	"github.com/owpa/negotiator/internal/compose"
	"github.com/owpa/negotiator/internal/deal"
	"github.com/owpa/negotiator/internal/extract"
	"github.com/owpa/negotiator/internal/memory"
	"github.com/owpa/negotiator/internal/playbook"
	"github.com/owpa/negotiator/internal/predict"
)

// StateAppender persists the finished snapshot; satisfied by
// statestore.Store.
type StateAppender interface {
	Append(state deal.State) error
}

// RoundContext is the mutable state a round threads through the stages.
// Each field is populated by exactly one stage and never read before it.
// CandidateTrades is a first-class field: trade options flow to the coach
// and draft stages in typed form, not through the state metadata map.
type RoundContext struct {
	RunID        string
	EmailText    string
	EmailSubject string

	State    *deal.State
	Supplier memory.Supplier
	Playbook playbook.Playbook

	CandidateTrades []deal.TradeOption

	Notes deal.CoachNotes
	Draft deal.EmailDraft
}

// Config wires the pipeline's collaborators. Everything is injected at
// construction; stages never reach for configuration themselves.
type Config struct {
	Classifier classify.Classifier
	Extractor  extract.Extractor

	// Fixture loaders run fresh each round inside the load-memory stage;
	// their results are read-only for the rest of that round.
	LoadSuppliers func() ([]memory.Supplier, error)
	LoadPlaybook  func() (playbook.Playbook, error)

	States StateAppender

	Logger *slog.Logger
	Now    func() time.Time
}

type stage struct {
	name string
	run  func(ctx context.Context, rc *RoundContext) error
}

type Pipeline struct {
	cfg    Config
	stages []stage
	logger *slog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	p := &Pipeline{cfg: cfg, logger: cfg.Logger}
	p.stages = []stage{
		{"ingest", p.ingest},
		{"classify", p.classify},
		{"extract", p.extract},
		{"load_memory", p.loadMemory},
		{"predict_trade", p.predictTrade},
		{"coach", p.coach},
		{"draft_email", p.draftEmail},
		{"persist_state", p.persistState},
	}
	return p
}

// Run processes one supplier email against the given negotiation state and
// returns the updated state, coaching notes, and reply draft. The input
// state is not mutated; the round works on a copy.
func (p *Pipeline) Run(ctx context.Context, emailText, emailSubject string, stateIn deal.State) (deal.State, deal.CoachNotes, deal.EmailDraft, error) {
	rc := &RoundContext{
		RunID:        uuid.NewString(),
		EmailText:    emailText,
		EmailSubject: emailSubject,
		State:        cloneState(stateIn),
	}

	p.logger.Info("round started", "run_id", rc.RunID, "deal_id", rc.State.DealID, "supplier", rc.State.SupplierName)
	for _, st := range p.stages {
		if err := st.run(ctx, rc); err != nil {
			p.logger.Error("round aborted", "run_id", rc.RunID, "stage", st.name, "error", err)
			return deal.State{}, deal.CoachNotes{}, deal.EmailDraft{}, fmt.Errorf("stage %s: %w", st.name, err)
		}
		p.logger.Debug("stage complete", "run_id", rc.RunID, "stage", st.name)
	}
	p.logger.Info("round complete", "run_id", rc.RunID, "deal_id", rc.State.DealID, "round", rc.State.RoundNumber)

	return *rc.State, rc.Notes, rc.Draft, nil
}

func (p *Pipeline) ingest(_ context.Context, rc *RoundContext) error {
	now := p.cfg.Now().UTC()

	if subject := strings.TrimSpace(rc.EmailSubject); subject != "" {
		rc.State.LastEmailSubject = subject
	}
	rc.State.LastEmailReceivedAt = &now
	// Kept internal for traceability; never included in outbound drafts.
	rc.State.SetMeta("last_email_text", strings.TrimSpace(rc.EmailText))
	rc.State.LastUpdatedAt = now
	return nil
}

func (p *Pipeline) classify(ctx context.Context, rc *RoundContext) error {
	result, err := p.cfg.Classifier.Classify(ctx, rc.EmailText)
	if err != nil {
		return err
	}

	ask := rc.State.SupplierAsk
	if ask == nil {
		ask = &deal.Ask{}
	}
	ask.Intent = result.Intent
	if result.Reason != "" {
		ask.Reason = result.Reason
	}
	// Snippets stay untouched here; the extract stage attaches evidence.
	rc.State.SupplierAsk = ask
	return nil
}

func (p *Pipeline) extract(ctx context.Context, rc *RoundContext) error {
	facts, err := p.cfg.Extractor.Extract(ctx, rc.EmailText)
	if err != nil {
		return err
	}

	ask := rc.State.SupplierAsk
	if ask == nil {
		ask = &deal.Ask{Intent: deal.IntentOther}
	}
	if facts.HeadlinePct != nil {
		ask.HeadlinePct = &deal.Percentage{Value: *facts.HeadlinePct}
	}
	if facts.Deadline != nil {
		ask.Deadline = facts.Deadline
	}
	// The list facts describe this email only; an empty result clears
	// whatever a previous round recorded.
	ask.RequestedTrades = facts.RequestedTrades
	ask.RawSnippets = facts.RawSnippets
	rc.State.SupplierAsk = ask
	return nil
}

func (p *Pipeline) loadMemory(_ context.Context, rc *RoundContext) error {
	suppliers, err := p.cfg.LoadSuppliers()
	if err != nil {
		return err
	}
	pb, err := p.cfg.LoadPlaybook()
	if err != nil {
		return err
	}

	supplierID, _ := rc.State.Metadata["supplier_id"].(string)
	supplier, err := memory.NewIndex(suppliers).Lookup(supplierID, rc.State.SupplierName)
	if err != nil {
		return err
	}

	rc.Supplier = supplier
	rc.Playbook = pb
	rc.State.SetMeta("supplier_id", supplier.SupplierID)
	return nil
}

func (p *Pipeline) predictTrade(_ context.Context, rc *RoundContext) error {
	if rc.State.SupplierAsk == nil {
		rc.State.SetMeta("prediction_note", "No supplier ask available.")
		return nil
	}
	rc.CandidateTrades = predict.Rank(rc.Supplier, rc.State.SupplierAsk)
	rc.State.SetMeta("trade_options_count", len(rc.CandidateTrades))
	return nil
}

func (p *Pipeline) coach(_ context.Context, rc *RoundContext) error {
	rc.Notes = compose.Notes(rc.State, rc.Supplier, rc.Playbook, rc.CandidateTrades)
	return nil
}

func (p *Pipeline) draftEmail(_ context.Context, rc *RoundContext) error {
	rc.Draft = compose.Draft(rc.State, rc.CandidateTrades)
	return nil
}

func (p *Pipeline) persistState(_ context.Context, rc *RoundContext) error {
	rc.State.RoundNumber++
	rc.State.LastUpdatedAt = p.cfg.Now().UTC()
	return p.cfg.States.Append(*rc.State)
}

// cloneState deep-copies the pieces a round mutates so the caller's input
// stays untouched on failure.
func cloneState(in deal.State) *deal.State {
	out := in
	if in.SupplierAsk != nil {
		ask := *in.SupplierAsk
		ask.RequestedTrades = append([]string(nil), in.SupplierAsk.RequestedTrades...)
		ask.RawSnippets = append([]string(nil), in.SupplierAsk.RawSnippets...)
		out.SupplierAsk = &ask
	}
	out.OpenIssues = append([]deal.OpenIssue(nil), in.OpenIssues...)
	out.Concessions = append([]deal.ConcessionEntry(nil), in.Concessions...)
	if in.Metadata != nil {
		out.Metadata = make(map[string]any, len(in.Metadata))
		for key, value := range in.Metadata {
			out.Metadata[key] = value
		}
	}
	return &out
}
