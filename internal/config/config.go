// Package config resolves the process configuration from the environment in
// one place. Everything downstream receives values through this struct;
// nothing reads env vars ad hoc inside pipeline stages.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	DataDir        string
	SuppliersPath  string
	PlaybookPath   string
	StateStorePath string
	DBPath         string
	DealStatePath  string

	// UseLLM selects the external backend for both the classify and the
	// extract stage; off means the rule-based path.
	UseLLM        bool
	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	LLMTimeoutSec int

	IMAPHost          string
	IMAPPort          int
	IMAPUsername      string
	IMAPPassword      string
	IMAPMailbox       string
	IMAPTLSSkipVerify bool
	PollCron          string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	AutoSend     bool

	DefaultDealID       string
	DefaultSupplierName string
}

func FromEnv() Config {
	dataDir := stringOrDefault("NEGOTIATOR_DATA_DIR", "./data")

	return Config{
		DataDir:        dataDir,
		SuppliersPath:  stringOrDefault("NEGOTIATOR_SUPPLIERS_FIXTURE_PATH", filepath.Join(dataDir, "fixtures", "suppliers.json")),
		PlaybookPath:   stringOrDefault("NEGOTIATOR_PLAYBOOK_PATH", filepath.Join(dataDir, "fixtures", "playbook_wtg_ltsa.json")),
		StateStorePath: stringOrDefault("NEGOTIATOR_STATE_STORE_PATH", "./outputs/state_store.jsonl"),
		DBPath:         stringOrDefault("NEGOTIATOR_DB_PATH", "./outputs/negotiator.sqlite"),
		DealStatePath:  stringOrDefault("NEGOTIATOR_DEAL_STATE_PATH", filepath.Join(dataDir, "fixtures", "sample_deal_state.json")),

		UseLLM:        boolOrDefault("NEGOTIATOR_USE_LLM", false),
		LLMBaseURL:    stringOrDefault("NEGOTIATOR_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		LLMModel:      stringOrDefault("NEGOTIATOR_LLM_MODEL", "gpt-4.1-mini"),
		LLMTimeoutSec: intOrDefault("NEGOTIATOR_LLM_TIMEOUT_SECONDS", 60),

		IMAPHost:          strings.TrimSpace(os.Getenv("NEGOTIATOR_IMAP_HOST")),
		IMAPPort:          intOrDefault("NEGOTIATOR_IMAP_PORT", 993),
		IMAPUsername:      strings.TrimSpace(os.Getenv("NEGOTIATOR_IMAP_USERNAME")),
		IMAPPassword:      os.Getenv("NEGOTIATOR_IMAP_PASSWORD"),
		IMAPMailbox:       stringOrDefault("NEGOTIATOR_IMAP_MAILBOX", "INBOX"),
		IMAPTLSSkipVerify: boolOrDefault("NEGOTIATOR_IMAP_TLS_SKIP_VERIFY", false),
		PollCron:          stringOrDefault("NEGOTIATOR_POLL_CRON", "*/5 * * * *"),

		SMTPHost:     strings.TrimSpace(os.Getenv("NEGOTIATOR_SMTP_HOST")),
		SMTPPort:     intOrDefault("NEGOTIATOR_SMTP_PORT", 587),
		SMTPUsername: strings.TrimSpace(os.Getenv("NEGOTIATOR_SMTP_USERNAME")),
		SMTPPassword: os.Getenv("NEGOTIATOR_SMTP_PASSWORD"),
		SMTPFrom:     strings.TrimSpace(os.Getenv("NEGOTIATOR_SMTP_FROM")),
		AutoSend:     boolOrDefault("NEGOTIATOR_AUTO_SEND", false),

		DefaultDealID:       stringOrDefault("NEGOTIATOR_DEFAULT_DEAL_ID", "deal-001"),
		DefaultSupplierName: strings.TrimSpace(os.Getenv("NEGOTIATOR_DEFAULT_SUPPLIER_NAME")),
	}
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
