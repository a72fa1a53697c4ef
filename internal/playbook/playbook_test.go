package playbook

import (
	"os"
	"path/filepath"
	"testing"
)

func writePlaybook(t *testing.T, payload string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playbook.json")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write playbook: %v", err)
	}
	return path
}

func TestLoadThreshold(t *testing.T) {
	path := writePlaybook(t, `{"policy_thresholds":{"price_uplift_pct_requires_internal_approval":7.5}}`)

	playbook, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if playbook.Thresholds.PriceUpliftApprovalPct != 7.5 {
		t.Fatalf("expected threshold 7.5, got %v", playbook.Thresholds.PriceUpliftApprovalPct)
	}
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	path := writePlaybook(t, `{"name":"wtg_ltsa","future_section":{"x":1},"policy_thresholds":{"price_uplift_pct_requires_internal_approval":4.0,"new_threshold":9}}`)

	playbook, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if playbook.Thresholds.PriceUpliftApprovalPct != 4.0 {
		t.Fatalf("expected threshold 4.0, got %v", playbook.Thresholds.PriceUpliftApprovalPct)
	}
}

func TestLoadDefaultsMissingThreshold(t *testing.T) {
	path := writePlaybook(t, `{"name":"wtg_ltsa"}`)

	playbook, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if playbook.Thresholds.PriceUpliftApprovalPct != DefaultPriceUpliftApprovalPct {
		t.Fatalf("expected default threshold, got %v", playbook.Thresholds.PriceUpliftApprovalPct)
	}
}
