// Package classify decides what the supplier's latest email is asking for.
package classify

import (
	"context"
	"strings"

	"github.com/owpa/negotiator/internal/deal"
	"github.com/owpa/negotiator/internal/llm"
)

// Result is the classified intent plus an optional stated reason.
type Result struct {
	Intent deal.Intent
	Reason string
}

// Classifier is implemented by both the rule-based and the LLM-backed path;
// the orchestrator selects one at construction.
type Classifier interface {
	Classify(ctx context.Context, emailText string) (Result, error)
}

// Rules is the keyword classifier. Rule order is significant: the first
// matching token set wins, so escalation language beats deadline language.
type Rules struct{}

var (
	escalationTokens   = []string{"increase", "uplift", "adjustment", "%", "escalation", "inflation"}
	deadlineTokens     = []string{"sign by", "deadline", "this week", "by friday", "slot", "capacity"}
	contractRiskTokens = []string{"redline", "liability", "warranty", "consequential", "indemnity"}
	infoRequestTokens  = []string{"please confirm", "could you provide", "we need"}
)

func (Rules) Classify(_ context.Context, emailText string) (Result, error) {
	text := strings.ToLower(emailText)

	if containsAny(text, escalationTokens) {
		return Result{Intent: deal.IntentPriceIncreaseRequest, Reason: "possible cost escalation / uplift request"}, nil
	}
	if containsAny(text, deadlineTokens) {
		return Result{Intent: deal.IntentSlotPressureDeadline, Reason: "possible manufacturing slot / deadline pressure"}, nil
	}
	if containsAny(text, contractRiskTokens) {
		return Result{Intent: deal.IntentContractRedline, Reason: "contract terms / risk allocation"}, nil
	}
	if containsAny(text, infoRequestTokens) {
		return Result{Intent: deal.IntentInfoRequest, Reason: "requesting information"}, nil
	}
	return Result{Intent: deal.IntentOther}, nil
}

func containsAny(text string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}

const llmSystem = `You classify supplier procurement emails for offshore wind WTG+LTSA.
Return only JSON. Do not invent facts.`

const llmSchema = `{
  "intent": "price_increase_request | counter_to_our_offer | slot_pressure_deadline | contract_redline | info_request | other",
  "reason": "string|null"
}`

// LLM delegates classification to the external backend. Unrecognized intent
// strings downgrade to "other" without failing the round; transport errors
// propagate.
type LLM struct {
	Client llm.Client
}

func (c LLM) Classify(ctx context.Context, emailText string) (Result, error) {
	data, err := c.Client.CompleteJSON(ctx, llmSystem, "Email:\n"+emailText+"\n\nClassify the intent.", llmSchema)
	if err != nil {
		return Result{}, err
	}

	result := Result{Intent: deal.IntentOther}
	if raw, ok := data["intent"].(string); ok {
		result.Intent = deal.ParseIntent(strings.TrimSpace(raw))
	}
	if reason, ok := data["reason"].(string); ok {
		result.Reason = reason
	}
	return result, nil
}
