package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedNow(weekday time.Weekday) func() time.Time {
	// 2025-06-02 is a Monday; walk forward to the requested weekday.
	base := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	for base.Weekday() != weekday {
		base = base.AddDate(0, 0, 1)
	}
	return func() time.Time { return base }
}

func TestRulesPercentage(t *testing.T) {
	cases := []struct {
		name  string
		email string
		want  float64
	}{
		{"signed plus", "We require a +9% adjustment.", 9.0},
		{"decimal with space", "An increase of 9.5 % applies.", 9.5},
		{"signed minus", "We could accept -3% on the service fee.", -3.0},
		{"sign then space", "Pricing moves by + 9 % next quarter.", 9.0},
	}

	rules := Rules{Now: fixedNow(time.Monday)}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			facts, err := rules.Extract(context.Background(), tc.email)
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if facts.HeadlinePct == nil {
				t.Fatal("expected a percentage")
			}
			if *facts.HeadlinePct != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, *facts.HeadlinePct)
			}
		})
	}
}

func TestRulesPercentageAbsent(t *testing.T) {
	facts, err := Rules{Now: fixedNow(time.Monday)}.Extract(context.Background(), "An increase of ninety percent.")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if facts.HeadlinePct != nil {
		t.Fatalf("expected nil percentage, got %v", *facts.HeadlinePct)
	}
	if len(facts.RawSnippets) != 0 {
		t.Fatalf("expected no snippets without a percentage, got %v", facts.RawSnippets)
	}
}

func TestRulesSnippetWindow(t *testing.T) {
	email := strings.Repeat("x", 200) + " uplift of 9% due to steel costs " + strings.Repeat("y", 200)
	facts, err := Rules{Now: fixedNow(time.Monday)}.Extract(context.Background(), email)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(facts.RawSnippets) != 1 {
		t.Fatalf("expected one snippet, got %v", facts.RawSnippets)
	}
	snippet := facts.RawSnippets[0]
	if !strings.Contains(snippet, "9%") {
		t.Fatalf("snippet should contain the percentage, got %q", snippet)
	}
	if len(snippet) > 2*60+1 {
		t.Fatalf("snippet exceeds the +-60 window: %d chars", len(snippet))
	}
}

func TestRulesTradeTriggers(t *testing.T) {
	email := "We need to revisit the LD cap, payment milestone schedule, warranty scope and the indexation clause."
	facts, err := Rules{Now: fixedNow(time.Monday)}.Extract(context.Background(), email)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(facts.RequestedTrades) != 4 {
		t.Fatalf("expected all four trade triggers, got %v", facts.RequestedTrades)
	}
}

func TestRulesTradeTriggersIndependent(t *testing.T) {
	facts, err := Rules{Now: fixedNow(time.Monday)}.Extract(context.Background(), "Only the warranty period concerns us.")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(facts.RequestedTrades) != 1 || !strings.Contains(facts.RequestedTrades[0], "warranty") {
		t.Fatalf("expected only the warranty trade, got %v", facts.RequestedTrades)
	}
}

func TestRulesFridayDeadlineMidweek(t *testing.T) {
	rules := Rules{Now: fixedNow(time.Tuesday)}
	facts, err := rules.Extract(context.Background(), "Please confirm by Friday.")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if facts.Deadline == nil {
		t.Fatal("expected a deadline")
	}
	deadline := *facts.Deadline
	if deadline.Weekday() != time.Friday {
		t.Fatalf("expected Friday, got %s", deadline.Weekday())
	}
	if deadline.Hour() != 17 || deadline.Minute() != 0 {
		t.Fatalf("expected 17:00 UTC, got %s", deadline.Format(time.RFC3339))
	}
	ahead := int(deadline.Sub(rules.Now().Truncate(24*time.Hour)).Hours() / 24)
	if ahead < 1 || ahead > 6 {
		t.Fatalf("expected 1-6 days ahead, got %d", ahead)
	}
	found := false
	for _, snippet := range facts.RawSnippets {
		if snippet == "by Friday" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected literal 'by Friday' snippet, got %v", facts.RawSnippets)
	}
}

func TestRulesFridayDeadlineOnFridayRollsAWeek(t *testing.T) {
	rules := Rules{Now: fixedNow(time.Friday)}
	facts, err := rules.Extract(context.Background(), "Sign by Friday, please.")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if facts.Deadline == nil {
		t.Fatal("expected a deadline")
	}
	now := rules.Now()
	expected := time.Date(now.Year(), now.Month(), now.Day()+7, 17, 0, 0, 0, time.UTC)
	if !facts.Deadline.Equal(expected) {
		t.Fatalf("expected %s (7 days ahead), got %s", expected.Format(time.RFC3339), facts.Deadline.Format(time.RFC3339))
	}
}

type fakeBackend struct {
	data map[string]any
	err  error
}

func (f fakeBackend) CompleteJSON(context.Context, string, string, string) (map[string]any, error) {
	return f.data, f.err
}

func TestLLMAppliesFieldsTolerantly(t *testing.T) {
	extractor := LLM{Client: fakeBackend{data: map[string]any{
		"headline_price_change_pct": 9.0,
		"requested_trades":          []any{"indexation mechanism (cap/floor)", "", 42},
		"deadline_iso":              "2025-06-06T17:00:00Z",
		"raw_snippets":              []any{"a 9% adjustment", strings.Repeat("s", 400)},
	}}}

	facts, err := extractor.Extract(context.Background(), "email")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if facts.HeadlinePct == nil || *facts.HeadlinePct != 9.0 {
		t.Fatalf("expected pct 9.0, got %v", facts.HeadlinePct)
	}
	if len(facts.RequestedTrades) != 1 {
		t.Fatalf("expected empty/non-string trades skipped, got %v", facts.RequestedTrades)
	}
	if facts.Deadline == nil || facts.Deadline.Hour() != 17 {
		t.Fatalf("unexpected deadline: %v", facts.Deadline)
	}
	if len(facts.RawSnippets) != 2 || len(facts.RawSnippets[1]) != 220 {
		t.Fatalf("expected snippet truncation to 220 chars, got %v", facts.RawSnippets)
	}
}

func TestLLMSkipsMalformedFields(t *testing.T) {
	extractor := LLM{Client: fakeBackend{data: map[string]any{
		"headline_price_change_pct": "nine",
		"deadline_iso":              "next friday-ish",
		"requested_trades":          "not a list",
	}}}

	facts, err := extractor.Extract(context.Background(), "email")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if facts.HeadlinePct != nil || facts.Deadline != nil || facts.RequestedTrades != nil {
		t.Fatalf("expected all malformed fields skipped, got %+v", facts)
	}
}

func TestLLMPropagatesBackendError(t *testing.T) {
	backendErr := errors.New("backend down")
	extractor := LLM{Client: fakeBackend{err: backendErr}}
	if _, err := extractor.Extract(context.Background(), "email"); !errors.Is(err, backendErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
}
