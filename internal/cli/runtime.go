package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/owpa/negotiator/internal/classify"
	"github.com/owpa/negotiator/internal/config"
	"github.com/owpa/negotiator/internal/deal"
	"github.com/owpa/negotiator/internal/extract"
	"github.com/owpa/negotiator/internal/llm/openai"
	"github.com/owpa/negotiator/internal/memory"
	"github.com/owpa/negotiator/internal/pipeline"
	"github.com/owpa/negotiator/internal/playbook"
	"github.com/owpa/negotiator/internal/statestore"
	"github.com/owpa/negotiator/internal/store"
)

// newPipeline assembles the round pipeline from config: rule-based stages by
// default, the LLM backend for classify/extract when enabled.
func newPipeline(cfg config.Config, states *statestore.Store, logger *slog.Logger) *pipeline.Pipeline {
	var classifier classify.Classifier = classify.Rules{}
	var extractor extract.Extractor = extract.Rules{}
	if cfg.UseLLM {
		client := openai.New(openai.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: time.Duration(cfg.LLMTimeoutSec) * time.Second,
		}, logger)
		classifier = classify.LLM{Client: client}
		extractor = extract.LLM{Client: client}
	}

	return pipeline.New(pipeline.Config{
		Classifier: classifier,
		Extractor:  extractor,
		LoadSuppliers: func() ([]memory.Supplier, error) {
			return memory.LoadFixture(cfg.SuppliersPath)
		},
		LoadPlaybook: func() (playbook.Playbook, error) {
			return playbook.Load(cfg.PlaybookPath)
		},
		States: states,
		Logger: logger,
	})
}

// initialState resolves the pre-round state for a deal: continue from the
// latest persisted snapshot, else seed from the fixture file, else start a
// fresh round-zero state.
func initialState(cfg config.Config, states *statestore.Store, dealID, supplierName string) (deal.State, error) {
	state, err := states.LoadLatest(dealID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, statestore.ErrDealNotFound) {
		return deal.State{}, err
	}

	if seeded, ok := stateFromFixture(cfg.DealStatePath, dealID); ok {
		return seeded, nil
	}

	if supplierName == "" {
		supplierName = cfg.DefaultSupplierName
	}
	return deal.State{
		DealID:       dealID,
		Package:      deal.PackageWTGLTSA,
		SupplierName: supplierName,
	}, nil
}

func stateFromFixture(path, dealID string) (deal.State, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return deal.State{}, false
	}
	var state deal.State
	if err := json.Unmarshal(data, &state); err != nil {
		return deal.State{}, false
	}
	if state.DealID != dealID {
		return deal.State{}, false
	}
	return state, true
}

// recordAudit writes the round's sqlite audit row. Audit failures never undo
// a persisted round; callers only log them.
func recordAudit(ctx context.Context, st *store.Store, state deal.State, notes deal.CoachNotes, source string) error {
	input := store.CreateRoundAuditInput{
		DealID:      state.DealID,
		RoundNumber: state.RoundNumber,
		Source:      source,
	}
	if raw, ok := state.Metadata["supplier_id"]; ok {
		if id, ok := raw.(string); ok {
			input.SupplierID = id
		}
	}
	if state.SupplierAsk != nil {
		input.Intent = string(state.SupplierAsk.Intent)
		if state.SupplierAsk.HeadlinePct != nil {
			value := state.SupplierAsk.HeadlinePct.Value
			input.UpliftPct = &value
		}
	}
	if len(notes.TradeOptions) > 0 {
		input.TopTrade = notes.TradeOptions[0].WeOffer
	}
	_, err := st.CreateRoundAudit(ctx, input)
	return err
}

func printCoachNotes(cmd *cobra.Command, notes deal.CoachNotes) {
	cmd.Println("== Coach notes ==")
	for _, line := range notes.Summary {
		cmd.Printf("  %s\n", line)
	}
	if len(notes.ExtractedFacts) > 0 {
		cmd.Println("Extracted facts:")
		for _, line := range notes.ExtractedFacts {
			cmd.Printf("  - %s\n", line)
		}
	}
	if len(notes.RisksAndFlags) > 0 {
		cmd.Println("Risks and flags:")
		for _, line := range notes.RisksAndFlags {
			cmd.Printf("  - %s\n", line)
		}
	}
	cmd.Printf("Recommended next move: %s\n", notes.RecommendedNextMove)
	if len(notes.TradeOptions) > 0 {
		cmd.Println("Trade options:")
		for _, option := range notes.TradeOptions {
			cmd.Printf("  - offer %q for %q (acceptance %.2f)\n", option.WeOffer, option.WeRequest, option.PredictedAcceptance)
			for _, line := range option.Rationale {
				cmd.Printf("      %s\n", line)
			}
		}
	}
	if len(notes.QuestionsToAsk) > 0 {
		cmd.Println("Questions to ask:")
		for _, line := range notes.QuestionsToAsk {
			cmd.Printf("  - %s\n", line)
		}
	}
}

func printDraft(cmd *cobra.Command, draft deal.EmailDraft) {
	cmd.Println("== Draft reply ==")
	cmd.Printf("Subject: %s\n", draft.Subject)
	cmd.Printf("Tone: %s\n", draft.Tone)
	if len(draft.GlossaryTermsUsed) > 0 {
		cmd.Printf("Glossary terms: %s\n", strings.Join(draft.GlossaryTermsUsed, ", "))
	}
	if draft.MissingInfoDisclaimer != "" {
		cmd.Printf("Disclaimer: %s\n", draft.MissingInfoDisclaimer)
	}
	cmd.Println()
	cmd.Println(draft.Body)
}

func printJSON(cmd *cobra.Command, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	cmd.Println(string(payload))
	return nil
}
