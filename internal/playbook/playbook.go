// Package playbook loads policy configuration for the negotiation pipeline.
// Unknown keys in the playbook file are ignored so the fixture can grow
// without breaking older builds.
package playbook

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultPriceUpliftApprovalPct is the uplift threshold above which internal
// approval is flagged, used when the playbook does not override it.
const DefaultPriceUpliftApprovalPct = 5.0

type Thresholds struct {
	PriceUpliftApprovalPct float64 `json:"price_uplift_pct_requires_internal_approval"`
}

// Playbook is the typed view of the playbook fixture.
type Playbook struct {
	Name       string     `json:"name,omitempty"`
	Thresholds Thresholds `json:"policy_thresholds"`
}

// Default returns a playbook with all thresholds at their defaults.
func Default() Playbook {
	return Playbook{Thresholds: Thresholds{PriceUpliftApprovalPct: DefaultPriceUpliftApprovalPct}}
}

// Load reads a playbook file. Missing thresholds fall back to defaults.
func Load(path string) (Playbook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Playbook{}, fmt.Errorf("read playbook: %w", err)
	}
	playbook := Default()
	if err := json.Unmarshal(raw, &playbook); err != nil {
		return Playbook{}, fmt.Errorf("parse playbook %s: %w", path, err)
	}
	if playbook.Thresholds.PriceUpliftApprovalPct <= 0 {
		playbook.Thresholds.PriceUpliftApprovalPct = DefaultPriceUpliftApprovalPct
	}
	return playbook, nil
}
