package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MarkMailIngestionInput struct {
	AccountKey string
	UID        uint32
	MessageID  string
	DealID     string
}

// IsMailIngested reports whether a mailbox message was already processed,
// matching on uid or message-id so re-delivered messages stay deduplicated
// across UID resets.
func (s *Store) IsMailIngested(ctx context.Context, accountKey string, uid uint32, messageID string) (bool, error) {
	accountKey = normalizeAccountKey(accountKey)
	if accountKey == "" || uid == 0 {
		return false, fmt.Errorf("account key and uid are required")
	}
	query := `SELECT COUNT(*) FROM mail_ingestions WHERE account_key = ? AND (uid = ?`
	args := []any{accountKey, uid}
	messageID = strings.TrimSpace(messageID)
	if messageID != "" {
		query += ` OR message_id = ?`
		args = append(args, messageID)
	}
	query += `)`

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("lookup mail ingestion: %w", err)
	}
	return count > 0, nil
}

func (s *Store) MarkMailIngested(ctx context.Context, input MarkMailIngestionInput) error {
	accountKey := normalizeAccountKey(input.AccountKey)
	dealID := strings.TrimSpace(input.DealID)
	if accountKey == "" || input.UID == 0 || dealID == "" {
		return fmt.Errorf("missing mail ingestion fields")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO mail_ingestions (id, account_key, uid, message_id, deal_id, created_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		"ing_"+uuid.NewString(),
		accountKey,
		int64(input.UID),
		nullIfEmpty(strings.TrimSpace(input.MessageID)),
		dealID,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return nil
		}
		return fmt.Errorf("insert mail ingestion: %w", err)
	}
	return nil
}

func normalizeAccountKey(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}
