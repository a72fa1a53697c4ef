// Package memory holds counterpart profiles and the lookup index over them.
// Profiles are fixture-backed and read-only for the duration of a round.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var ErrSupplierNotFound = errors.New("supplier not found")

// AmbiguousError reports a substring lookup that matched more than one
// profile. Callers must surface it distinctly from not-found.
type AmbiguousError struct {
	Query   string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous supplier name %q: matches %s", e.Query, strings.Join(e.Matches, ", "))
}

// MovementPreferences are 0..1 weights for how likely the supplier is to move
// on each lever. Higher means easier to win concessions there.
type MovementPreferences struct {
	Price             float64 `json:"price"`
	PaymentTerms      float64 `json:"payment_terms"`
	WarrantyLiability float64 `json:"warranty_liability"`
	ScheduleSlots     float64 `json:"schedule_slots"`
	ServiceScope      float64 `json:"service_scope"`
}

// Episode is one historical negotiation outcome, the raw material for trade
// scoring.
type Episode struct {
	Context          string   `json:"context"`
	OpeningAskPct    *float64 `json:"supplier_opening_ask_pct,omitempty"`
	SettledPct       *float64 `json:"settled_pct,omitempty"`
	PrimaryTradeUsed string   `json:"primary_trade_used,omitempty"`
	Outcome          string   `json:"outcome,omitempty"`
	Notes            string   `json:"notes,omitempty"`
	Year             int      `json:"year,omitempty"`
}

// Supplier is everything remembered about one counterpart.
type Supplier struct {
	SupplierID string `json:"supplier_id"`
	Name       string `json:"name"`

	Style          string   `json:"style,omitempty"`
	TypicalTactics []string `json:"typical_tactics,omitempty"`

	MovementPreferences MovementPreferences `json:"movement_preferences"`

	SuccessfulTrades []string `json:"successful_trades,omitempty"`
	SensitivePoints  []string `json:"sensitive_points,omitempty"`

	Episodes []Episode `json:"episodes,omitempty"`

	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// Validate rejects profiles that would make lookup or scoring meaningless.
func (s Supplier) Validate() error {
	if strings.TrimSpace(s.SupplierID) == "" {
		return fmt.Errorf("supplier %q: empty supplier_id", s.Name)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("supplier %q: empty name", s.SupplierID)
	}
	prefs := map[string]float64{
		"price":              s.MovementPreferences.Price,
		"payment_terms":      s.MovementPreferences.PaymentTerms,
		"warranty_liability": s.MovementPreferences.WarrantyLiability,
		"schedule_slots":     s.MovementPreferences.ScheduleSlots,
		"service_scope":      s.MovementPreferences.ServiceScope,
	}
	for lever, weight := range prefs {
		if weight < 0 || weight > 1 {
			return fmt.Errorf("supplier %s: movement preference %s=%v outside [0,1]", s.SupplierID, lever, weight)
		}
	}
	return nil
}

// Index is a case-insensitive lookup over supplier profiles, keyed by both
// id and name.
type Index struct {
	byKey     map[string]Supplier
	suppliers []Supplier
}

// NewIndex builds the lookup table in one pass over the profiles.
func NewIndex(suppliers []Supplier) *Index {
	index := &Index{
		byKey:     make(map[string]Supplier, len(suppliers)*2),
		suppliers: suppliers,
	}
	for _, supplier := range suppliers {
		index.byKey[normalizeKey(supplier.SupplierID)] = supplier
		index.byKey[normalizeKey(supplier.Name)] = supplier
	}
	return index
}

// Lookup resolves a supplier by id or name. An exact id match wins, then an
// exact name match, then substring containment against every profile name.
// Zero substring matches is ErrSupplierNotFound; two or more is an
// *AmbiguousError listing the matching names.
func (i *Index) Lookup(supplierID, supplierName string) (Supplier, error) {
	if strings.TrimSpace(supplierID) == "" && strings.TrimSpace(supplierName) == "" {
		return Supplier{}, fmt.Errorf("%w: no id or name provided", ErrSupplierNotFound)
	}

	if key := normalizeKey(supplierID); key != "" {
		if supplier, ok := i.byKey[key]; ok {
			return supplier, nil
		}
	}

	key := normalizeKey(supplierName)
	if key == "" {
		return Supplier{}, fmt.Errorf("%w: id=%q", ErrSupplierNotFound, supplierID)
	}
	if supplier, ok := i.byKey[key]; ok {
		return supplier, nil
	}

	var matches []Supplier
	for _, supplier := range i.suppliers {
		if strings.Contains(normalizeKey(supplier.Name), key) {
			matches = append(matches, supplier)
		}
	}
	switch len(matches) {
	case 0:
		return Supplier{}, fmt.Errorf("%w: name=%q id=%q", ErrSupplierNotFound, supplierName, supplierID)
	case 1:
		return matches[0], nil
	}
	names := make([]string, 0, len(matches))
	for _, supplier := range matches {
		names = append(names, supplier.Name)
	}
	return Supplier{}, &AmbiguousError{Query: supplierName, Matches: names}
}

func normalizeKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

type suppliersFixture struct {
	Suppliers []Supplier `json:"suppliers"`
}

// LoadFixture reads a suppliers fixture file and validates every profile
// before any of them is used.
func LoadFixture(path string) ([]Supplier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suppliers fixture: %w", err)
	}
	var fixture suppliersFixture
	if err := json.Unmarshal(raw, &fixture); err != nil {
		return nil, fmt.Errorf("parse suppliers fixture %s: %w", path, err)
	}
	if fixture.Suppliers == nil {
		return nil, fmt.Errorf("invalid suppliers fixture %s: missing top-level suppliers list", path)
	}
	for _, supplier := range fixture.Suppliers {
		if err := supplier.Validate(); err != nil {
			return nil, fmt.Errorf("invalid suppliers fixture %s: %w", path, err)
		}
	}
	return fixture.Suppliers, nil
}
