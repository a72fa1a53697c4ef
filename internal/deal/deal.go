// Package deal holds the negotiation-state model for one supplier thread.
// Field names on the wire match the JSONL state store format, so snapshots
// written by earlier rounds stay readable.
package deal

import "time"

// PackageType identifies the commercial scope of a deal.
type PackageType string

const PackageWTGLTSA PackageType = "WTG+LTSA"

// Intent is the classified purpose of the latest supplier email.
type Intent string

const (
	IntentPriceIncreaseRequest Intent = "price_increase_request"
	IntentCounterToOurOffer    Intent = "counter_to_our_offer"
	IntentSlotPressureDeadline Intent = "slot_pressure_deadline"
	IntentContractRedline      Intent = "contract_redline"
	IntentInfoRequest          Intent = "info_request"
	IntentOther                Intent = "other"
)

// ParseIntent maps a raw intent string onto a known variant. Anything
// unrecognized downgrades to IntentOther rather than failing the round.
func ParseIntent(raw string) Intent {
	switch Intent(raw) {
	case IntentPriceIncreaseRequest, IntentCounterToOurOffer, IntentSlotPressureDeadline,
		IntentContractRedline, IntentInfoRequest, IntentOther:
		return Intent(raw)
	}
	return IntentOther
}

// Human returns the intent with underscores replaced by spaces, for notes.
func (i Intent) Human() string {
	out := make([]byte, len(i))
	for idx := 0; idx < len(i); idx++ {
		if i[idx] == '_' {
			out[idx] = ' '
		} else {
			out[idx] = i[idx]
		}
	}
	return string(out)
}

// Percentage wraps a percent value, e.g. Value 9.0 means 9%.
type Percentage struct {
	Value float64 `json:"value"`
}

// Money is a stated absolute amount, e.g. +12M EUR.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// DateWindow is an optional schedule anchor (manufacturing slot, delivery).
type DateWindow struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
	Notes string     `json:"notes,omitempty"`
}

// Ask captures what the supplier is currently asking for, from the latest
// email. Numeric and date fields should be backed by at least one snippet in
// RawSnippets; the extractor keeps them together but does not enforce it.
type Ask struct {
	Intent          Intent      `json:"intent"`
	HeadlinePct     *Percentage `json:"headline_price_change_pct,omitempty"`
	HeadlineAmount  *Money      `json:"headline_price_change_amount,omitempty"`
	Reason          string      `json:"reason,omitempty"`
	Deadline        *time.Time  `json:"deadline,omitempty"`
	RequestedTrades []string    `json:"requested_trades,omitempty"`
	RawSnippets     []string    `json:"raw_snippets,omitempty"`
}

// OurPosition is the buyer-side envelope, supplied by the user when known.
type OurPosition struct {
	TargetPct       *Percentage `json:"target_price_change_pct,omitempty"`
	MaxPct          *Percentage `json:"max_price_change_pct,omitempty"`
	PreferredTrades []string    `json:"preferred_trades,omitempty"`
	Notes           string      `json:"notes,omitempty"`
}

// OpenIssue tracks one unresolved negotiation topic.
type OpenIssue struct {
	Topic  string `json:"topic"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ConcessionEntry is one line of the give/get ledger. A give should always be
// paired with a get.
type ConcessionEntry struct {
	Timestamp        time.Time `json:"timestamp"`
	WeGave           string    `json:"we_gave"`
	WeGot            string    `json:"we_got"`
	ValueNote        string    `json:"value_note,omitempty"`
	ApprovalRequired bool      `json:"approval_required"`
	Evidence         []string  `json:"evidence,omitempty"`
}

// State is the negotiation state for one deal thread. It is owned by a single
// pipeline run at a time and mutated in place by the stages; RoundNumber only
// ever increases, by exactly 1 per persisted round.
type State struct {
	DealID  string      `json:"deal_id"`
	Package PackageType `json:"package"`

	SupplierName string `json:"supplier_name"`
	RoundNumber  int    `json:"round_number"`

	LastEmailSubject    string     `json:"last_supplier_email_subject,omitempty"`
	LastEmailReceivedAt *time.Time `json:"last_supplier_email_received_at,omitempty"`
	SupplierAsk         *Ask       `json:"supplier_ask,omitempty"`

	OurPosition *OurPosition `json:"our_position,omitempty"`

	OpenIssues  []OpenIssue       `json:"open_issues,omitempty"`
	Concessions []ConcessionEntry `json:"concessions,omitempty"`

	ManufacturingSlotWindow *DateWindow `json:"manufacturing_slot_window,omitempty"`
	DeliveryWindow          *DateWindow `json:"delivery_window,omitempty"`

	LastUpdatedAt time.Time      `json:"last_updated_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// SetMeta writes a metadata key, allocating the map on first use.
func (s *State) SetMeta(key string, value any) {
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	s.Metadata[key] = value
}

// TradeOption is a proposed give/get bundle with a predicted acceptance
// likelihood in [0,1]. Options are recomputed every round and are not
// persisted as first-class records.
type TradeOption struct {
	WeOffer             string   `json:"we_offer"`
	WeRequest           string   `json:"we_request"`
	PredictedAcceptance float64  `json:"predicted_acceptance"`
	Rationale           []string `json:"rationale,omitempty"`
}

// CoachNotes is the internal view for the procurement specialist.
type CoachNotes struct {
	Summary             []string      `json:"summary"`
	ExtractedFacts      []string      `json:"extracted_facts"`
	RisksAndFlags       []string      `json:"risks_and_flags"`
	RecommendedNextMove string        `json:"recommended_next_move"`
	TradeOptions        []TradeOption `json:"trade_options"`
	QuestionsToAsk      []string      `json:"questions_to_ask_supplier"`
}

// EmailDraft is the external reply, ready to review and send.
type EmailDraft struct {
	Subject               string   `json:"subject"`
	Body                  string   `json:"body"`
	Tone                  string   `json:"tone"`
	GlossaryTermsUsed     []string `json:"glossary_terms_used"`
	MissingInfoDisclaimer string   `json:"missing_info_disclaimer,omitempty"`
}
