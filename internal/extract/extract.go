// Package extract pulls grounded facts (percentages, deadlines, trade
// clauses, evidence snippets) out of supplier email text.
package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/owpa/negotiator/internal/llm"
)

const (
	snippetWindow  = 60
	maxSnippets    = 5
	maxSnippetLen  = 220
	deadlineHourUT = 17
)

// Facts is the extractor output schema, shared by the rule-based and the
// LLM-backed path. Absent fields stay nil/empty and are simply not applied
// to the ask.
type Facts struct {
	HeadlinePct     *float64
	RequestedTrades []string
	Deadline        *time.Time
	RawSnippets     []string
}

type Extractor interface {
	Extract(ctx context.Context, emailText string) (Facts, error)
}

// pctPattern matches an optional sign, 1-2 digits, optional decimals, then a
// percent sign, tolerating internal whitespace ("+ 9 %").
var pctPattern = regexp.MustCompile(`([+-]?\s*\d{1,2}(\.\d+)?)\s*%`)

// Rules is the regex/heuristic extractor. Now is swappable so the Friday
// deadline heuristic can be pinned in tests; it defaults to time.Now.
type Rules struct {
	Now func() time.Time
}

func (r Rules) Extract(_ context.Context, emailText string) (Facts, error) {
	facts := Facts{}
	lowered := strings.ToLower(emailText)

	if match := pctPattern.FindStringSubmatch(emailText); match != nil {
		raw := strings.ReplaceAll(match[1], " ", "")
		if value, err := strconv.ParseFloat(raw, 64); err == nil {
			facts.HeadlinePct = &value
		}
	}

	if strings.Contains(lowered, "ld") && strings.Contains(lowered, "cap") {
		facts.RequestedTrades = append(facts.RequestedTrades, "adjust delay LDs cap (LDs = Liquidated Damages)")
	}
	if strings.Contains(lowered, "payment") && strings.Contains(lowered, "milestone") {
		facts.RequestedTrades = append(facts.RequestedTrades, "change payment milestones / terms")
	}
	if strings.Contains(lowered, "warranty") {
		facts.RequestedTrades = append(facts.RequestedTrades, "warranty terms adjustment")
	}
	if strings.Contains(lowered, "index") || strings.Contains(lowered, "indexation") {
		facts.RequestedTrades = append(facts.RequestedTrades, "indexation mechanism (cap/floor)")
	}

	if facts.HeadlinePct != nil {
		if idx := strings.Index(emailText, "%"); idx >= 0 {
			start := idx - snippetWindow
			if start < 0 {
				start = 0
			}
			end := idx + snippetWindow
			if end > len(emailText) {
				end = len(emailText)
			}
			facts.RawSnippets = append(facts.RawSnippets, strings.TrimSpace(emailText[start:end]))
		}
	}

	if strings.Contains(lowered, "by friday") {
		deadline := nextFriday(r.now())
		facts.Deadline = &deadline
		facts.RawSnippets = append(facts.RawSnippets, "by Friday")
	}

	if len(facts.RawSnippets) > maxSnippets {
		facts.RawSnippets = facts.RawSnippets[:maxSnippets]
	}
	return facts, nil
}

func (r Rules) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// nextFriday resolves "by Friday" to the upcoming Friday 17:00 UTC. When
// today already is Friday the deadline rolls a full week ahead, never to
// today.
func nextFriday(now time.Time) time.Time {
	now = now.UTC()
	daysAhead := (int(time.Friday) - int(now.Weekday()) + 7) % 7
	if daysAhead == 0 {
		daysAhead = 7
	}
	target := now.AddDate(0, 0, daysAhead)
	return time.Date(target.Year(), target.Month(), target.Day(), deadlineHourUT, 0, 0, 0, time.UTC)
}

const llmSystem = `You extract structured facts from supplier emails for WTG+LTSA procurement.
Rules:
- NEVER invent numbers/dates.
- If you extract a number/date, include a short supporting snippet from the email.
Return ONLY JSON.`

const llmSchema = `{
  "headline_price_change_pct": number|null,
  "requested_trades": [string, ...],
  "deadline_iso": "ISO-8601 datetime string|null",
  "raw_snippets": [string, ...]
}`

// LLM delegates extraction to the external backend. Responses are applied
// field by field: absent, null, or malformed fields are skipped, never a
// hard failure.
type LLM struct {
	Client llm.Client
}

func (e LLM) Extract(ctx context.Context, emailText string) (Facts, error) {
	data, err := e.Client.CompleteJSON(ctx, llmSystem, "Email:\n"+emailText+"\n\nExtract key facts. If absent, use null/empty.", llmSchema)
	if err != nil {
		return Facts{}, err
	}

	facts := Facts{}
	if pct, ok := data["headline_price_change_pct"].(float64); ok {
		facts.HeadlinePct = &pct
	}
	if raw, ok := data["deadline_iso"].(string); ok && strings.TrimSpace(raw) != "" {
		if deadline, err := time.Parse(time.RFC3339, raw); err == nil {
			utc := deadline.UTC()
			facts.Deadline = &utc
		}
	}
	if raw, ok := data["requested_trades"].([]any); ok {
		for _, item := range raw {
			if trade, ok := item.(string); ok && strings.TrimSpace(trade) != "" {
				facts.RequestedTrades = append(facts.RequestedTrades, trade)
			}
		}
	}
	if raw, ok := data["raw_snippets"].([]any); ok {
		for _, item := range raw {
			snippet, ok := item.(string)
			if !ok || strings.TrimSpace(snippet) == "" {
				continue
			}
			if len(snippet) > maxSnippetLen {
				snippet = snippet[:maxSnippetLen]
			}
			facts.RawSnippets = append(facts.RawSnippets, snippet)
		}
	}
	return facts, nil
}
