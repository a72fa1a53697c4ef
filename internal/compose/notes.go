// Package compose assembles the two round outputs: internal coaching notes
// and the external reply draft. Everything here is deterministic templating;
// no randomness, no model calls.
package compose

import (
	"fmt"
	"strings"
	"time"

	"github.com/owpa/negotiator/internal/deal"
	"github.com/owpa/negotiator/internal/memory"
	"github.com/owpa/negotiator/internal/playbook"
)

const recommendedNextMove = "Propose a value-based counter with a bundled trade (give/get) and request supporting cost/indexation transparency if missing."

// The clarifying questions are fixed text, independent of input. A future
// version could derive them from the extracted facts.
var standardQuestions = []string{
	"Can you share a breakdown for the uplift drivers (materials/logistics/labor) and whether an indexation mechanism could replace part of the fixed uplift?",
	"Please confirm whether the deadline relates to manufacturing slot reservation and what flexibility exists on delivery window once the slot is secured.",
}

// Notes builds the internal coaching view for the specialist. The approval
// risk flag fires only when the extracted uplift strictly exceeds the
// playbook threshold; boundary equality does not flag.
func Notes(state *deal.State, supplier memory.Supplier, pb playbook.Playbook, tradeOptions []deal.TradeOption) deal.CoachNotes {
	ask := state.SupplierAsk

	summary := []string{
		fmt.Sprintf("Supplier: %s (WTG+LTSA: Wind Turbine Generator + Long-Term Service Agreement).", state.SupplierName),
	}
	var extracted, risks []string

	if ask != nil {
		summary = append(summary, fmt.Sprintf("Detected intent: %s.", ask.Intent.Human()))
		if ask.Reason != "" {
			summary = append(summary, fmt.Sprintf("Stated reason: %s.", ask.Reason))
		}

		if ask.HeadlinePct != nil {
			extracted = append(extracted, fmt.Sprintf("Requested uplift: %.1f%% (supported by email snippet evidence).", ask.HeadlinePct.Value))
		}
		if ask.Deadline != nil {
			extracted = append(extracted, fmt.Sprintf("Deadline signal: %s (if confirmed in text).", ask.Deadline.Format(time.RFC3339)))
		}
		if len(ask.RequestedTrades) > 0 {
			extracted = append(extracted, "Requested trades/terms: "+strings.Join(ask.RequestedTrades, "; "))
		}
		if len(ask.RawSnippets) > 0 {
			extracted = append(extracted, "Evidence snippets: "+strings.Join(firstN(ask.RawSnippets, 2), " | "))
		}

		threshold := pb.Thresholds.PriceUpliftApprovalPct
		if ask.HeadlinePct != nil && ask.HeadlinePct.Value > threshold {
			risks = append(risks, fmt.Sprintf("Approval flag: uplift > %v%% threshold -> internal approval likely required before committing.", threshold))
		}
	}

	if len(supplier.TypicalTactics) > 0 {
		summary = append(summary, "Supplier typical tactics: "+strings.Join(firstN(supplier.TypicalTactics, 2), "; ")+".")
	}

	return deal.CoachNotes{
		Summary:             summary,
		ExtractedFacts:      extracted,
		RisksAndFlags:       risks,
		RecommendedNextMove: recommendedNextMove,
		TradeOptions:        tradeOptions,
		QuestionsToAsk:      append([]string(nil), standardQuestions...),
	}
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
