package cli

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const suppliersFixture = `{
  "suppliers": [
    {
      "supplier_id": "SUP-001",
      "name": "Aeolus Wind Systems",
      "style": "firm but fair",
      "typical_tactics": ["deadline pressure", "indexation asks"],
      "movement_preferences": {
        "price": 0.3,
        "payment_terms": 0.7,
        "warranty_liability": 0.4,
        "schedule_slots": 0.5,
        "service_scope": 0.6
      }
    }
  ]
}`

const playbookFixture = `{
  "name": "WTG + LTSA playbook",
  "policy_thresholds": {
    "price_uplift_pct_requires_internal_approval": 5.0
  }
}`

func writeTestFixtures(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	fixturesDir := filepath.Join(dataDir, "fixtures")
	if err := os.MkdirAll(fixturesDir, 0o755); err != nil {
		t.Fatalf("mkdir fixtures: %v", err)
	}
	if err := os.WriteFile(filepath.Join(fixturesDir, "suppliers.json"), []byte(suppliersFixture), 0o644); err != nil {
		t.Fatalf("write suppliers fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(fixturesDir, "playbook_wtg_ltsa.json"), []byte(playbookFixture), 0o644); err != nil {
		t.Fatalf("write playbook fixture: %v", err)
	}
	return dataDir
}

func setTestEnv(t *testing.T, dataDir string) {
	t.Helper()
	outputs := t.TempDir()
	t.Setenv("NEGOTIATOR_DATA_DIR", dataDir)
	t.Setenv("NEGOTIATOR_STATE_STORE_PATH", filepath.Join(outputs, "state_store.jsonl"))
	t.Setenv("NEGOTIATOR_DB_PATH", filepath.Join(outputs, "negotiator.sqlite"))
	t.Setenv("NEGOTIATOR_DEAL_STATE_PATH", filepath.Join(dataDir, "fixtures", "sample_deal_state.json"))
	t.Setenv("NEGOTIATOR_USE_LLM", "false")
	t.Setenv("NEGOTIATOR_DEFAULT_SUPPLIER_NAME", "Aeolus Wind Systems")
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := NewRoot(logger)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRoundCommandProducesNotesAndDraft(t *testing.T) {
	dataDir := writeTestFixtures(t)
	setTestEnv(t, dataDir)

	emailPath := filepath.Join(t.TempDir(), "email.txt")
	email := "We require a 9% adjustment due to input cost escalation. Please confirm by Friday or we reassign the manufacturing slot."
	if err := os.WriteFile(emailPath, []byte(email), 0o644); err != nil {
		t.Fatalf("write email: %v", err)
	}

	output, err := runCommand(t,
		"round",
		"--email-file", emailPath,
		"--deal", "deal-001",
		"--subject", "Revised commercial terms",
	)
	if err != nil {
		t.Fatalf("round command failed: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Deal deal-001 round 1") {
		t.Fatalf("expected round header, got:\n%s", output)
	}
	if !strings.Contains(output, "== Coach notes ==") || !strings.Contains(output, "== Draft reply ==") {
		t.Fatalf("expected notes and draft sections, got:\n%s", output)
	}
	if !strings.Contains(output, "9.0%") {
		t.Fatalf("expected extracted uplift in output, got:\n%s", output)
	}
	if !strings.Contains(output, "Dear Aeolus Wind Systems team,") {
		t.Fatalf("expected draft salutation, got:\n%s", output)
	}
}

func TestRoundCommandEmptyEmailFails(t *testing.T) {
	dataDir := writeTestFixtures(t)
	setTestEnv(t, dataDir)

	emailPath := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(emailPath, []byte("   \n"), 0o644); err != nil {
		t.Fatalf("write email: %v", err)
	}

	output, err := runCommand(t, "round", "--email-file", emailPath)
	if err == nil {
		t.Fatalf("expected error for empty email, got:\n%s", output)
	}
}

func TestHistoryAndLatestAfterRounds(t *testing.T) {
	dataDir := writeTestFixtures(t)
	setTestEnv(t, dataDir)

	emailPath := filepath.Join(t.TempDir(), "email.txt")
	if err := os.WriteFile(emailPath, []byte("We require a 6% adjustment."), 0o644); err != nil {
		t.Fatalf("write email: %v", err)
	}

	for i := 0; i < 2; i++ {
		if output, err := runCommand(t, "round", "--email-file", emailPath, "--deal", "deal-001"); err != nil {
			t.Fatalf("round %d failed: %v\n%s", i+1, err, output)
		}
	}

	history, err := runCommand(t, "history", "--deal", "deal-001")
	if err != nil {
		t.Fatalf("history command failed: %v\n%s", err, history)
	}
	if !strings.Contains(history, "round 1") || !strings.Contains(history, "round 2") {
		t.Fatalf("expected two rounds in history, got:\n%s", history)
	}

	audit, err := runCommand(t, "history", "--deal", "deal-001", "--audit")
	if err != nil {
		t.Fatalf("audit history failed: %v\n%s", err, audit)
	}
	if !strings.Contains(audit, "source=cli") {
		t.Fatalf("expected cli-sourced audit rows, got:\n%s", audit)
	}

	latest, err := runCommand(t, "latest", "--deal", "deal-001")
	if err != nil {
		t.Fatalf("latest command failed: %v\n%s", err, latest)
	}
	if !strings.Contains(latest, `"round_number": 2`) {
		t.Fatalf("expected round 2 in latest state, got:\n%s", latest)
	}
}

func TestLatestUnknownDealFails(t *testing.T) {
	dataDir := writeTestFixtures(t)
	setTestEnv(t, dataDir)

	output, err := runCommand(t, "latest", "--deal", "deal-404")
	if err == nil {
		t.Fatalf("expected error for unknown deal, got:\n%s", output)
	}
}

func TestVersionCommand(t *testing.T) {
	output, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if strings.TrimSpace(output) != version {
		t.Fatalf("unexpected version output: %q", output)
	}
}
