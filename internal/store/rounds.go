package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrRoundNotFound = errors.New("round not found")

// RoundAudit is one indexed row per persisted round. It duplicates a few
// headline fields from the JSONL snapshot so history queries never have to
// scan the log.
type RoundAudit struct {
	ID          string
	DealID      string
	RoundNumber int
	SupplierID  string
	Intent      string
	UpliftPct   *float64
	TopTrade    string
	Source      string
	CreatedAt   time.Time
}

type CreateRoundAuditInput struct {
	DealID      string
	RoundNumber int
	SupplierID  string
	Intent      string
	UpliftPct   *float64
	TopTrade    string
	Source      string
}

func (s *Store) CreateRoundAudit(ctx context.Context, input CreateRoundAuditInput) (RoundAudit, error) {
	dealID := strings.TrimSpace(input.DealID)
	if dealID == "" || input.RoundNumber < 1 {
		return RoundAudit{}, fmt.Errorf("deal id and positive round number are required")
	}
	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = "cli"
	}

	record := RoundAudit{
		ID:          "round_" + uuid.NewString(),
		DealID:      dealID,
		RoundNumber: input.RoundNumber,
		SupplierID:  strings.TrimSpace(input.SupplierID),
		Intent:      strings.TrimSpace(input.Intent),
		UpliftPct:   input.UpliftPct,
		TopTrade:    strings.TrimSpace(input.TopTrade),
		Source:      source,
		CreatedAt:   time.Now().UTC(),
	}

	var uplift any
	if record.UpliftPct != nil {
		uplift = *record.UpliftPct
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO rounds (id, deal_id, round_number, supplier_id, intent, uplift_pct, top_trade, source, created_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.DealID,
		record.RoundNumber,
		nullIfEmpty(record.SupplierID),
		record.Intent,
		uplift,
		nullIfEmpty(record.TopTrade),
		record.Source,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return RoundAudit{}, fmt.Errorf("insert round audit: %w", err)
	}
	return record, nil
}

// ListRoundAudits returns the audit rows for one deal, most recent round
// first. Limit <= 0 means no limit.
func (s *Store) ListRoundAudits(ctx context.Context, dealID string, limit int) ([]RoundAudit, error) {
	dealID = strings.TrimSpace(dealID)
	if dealID == "" {
		return nil, fmt.Errorf("deal id is required")
	}
	query := `SELECT id, deal_id, round_number, supplier_id, intent, uplift_pct, top_trade, source, created_at_unix
		 FROM rounds WHERE deal_id = ? ORDER BY round_number DESC`
	args := []any{dealID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list round audits: %w", err)
	}
	defer rows.Close()

	var records []RoundAudit
	for rows.Next() {
		record, err := scanRoundAudit(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// LatestRoundAudit returns the newest audit row for a deal.
func (s *Store) LatestRoundAudit(ctx context.Context, dealID string) (RoundAudit, error) {
	records, err := s.ListRoundAudits(ctx, dealID, 1)
	if err != nil {
		return RoundAudit{}, err
	}
	if len(records) == 0 {
		return RoundAudit{}, fmt.Errorf("%w: %s", ErrRoundNotFound, dealID)
	}
	return records[0], nil
}

type roundScanner interface {
	Scan(dest ...any) error
}

func scanRoundAudit(row roundScanner) (RoundAudit, error) {
	var (
		record     RoundAudit
		supplierID sql.NullString
		uplift     sql.NullFloat64
		topTrade   sql.NullString
		createdAt  int64
	)
	if err := row.Scan(&record.ID, &record.DealID, &record.RoundNumber, &supplierID, &record.Intent, &uplift, &topTrade, &record.Source, &createdAt); err != nil {
		return RoundAudit{}, fmt.Errorf("scan round audit: %w", err)
	}
	record.SupplierID = supplierID.String
	record.TopTrade = topTrade.String
	if uplift.Valid {
		record.UpliftPct = &uplift.Float64
	}
	record.CreatedAt = time.Unix(createdAt, 0).UTC()
	return record, nil
}
