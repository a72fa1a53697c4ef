// Package statestore persists negotiation-state snapshots to an append-only
// JSONL log. Every round appends one full snapshot; nothing is ever updated
// in place, deleted, or compacted, so the file doubles as the audit trail.
//
// The store assumes a single writer. Concurrent invocations against the same
// log need an external serialization mechanism (file lock or single-writer
// process); that is a deployment constraint, not something this package
// coordinates.
package statestore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/owpa/negotiator/internal/deal"
)

var ErrDealNotFound = errors.New("deal not found in state store")

// Record is one log line: the deal identity plus the full serialized
// snapshot.
type Record struct {
	DealID string     `json:"deal_id"`
	State  deal.State `json:"state"`
}

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Append writes one snapshot as a single JSON line. The file is opened,
// written, and closed per call; no handle is held across rounds.
func (s *Store) Append(state deal.State) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state store dir: %w", err)
	}

	line, err := json.Marshal(Record{DealID: state.DealID, State: state})
	if err != nil {
		return fmt.Errorf("marshal state snapshot: %w", err)
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append state snapshot: %w", err)
	}
	return nil
}

// Records reads every snapshot in write order. A missing log file means an
// empty history, not an error. Blank lines are skipped; a malformed line is
// an error because the log is append-only and should never contain one.
func (s *Store) Records() ([]Record, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open state store: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("parse state store line: %w", err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan state store: %w", err)
	}
	return records, nil
}

// LoadLatest returns the most recent snapshot for the deal. It scans the
// whole log and keeps the last match, relying on append order: later lines
// override earlier ones for the same deal id.
func (s *Store) LoadLatest(dealID string) (deal.State, error) {
	records, err := s.Records()
	if err != nil {
		return deal.State{}, err
	}

	var latest *deal.State
	for i := range records {
		if records[i].DealID == dealID {
			latest = &records[i].State
		}
	}
	if latest == nil {
		return deal.State{}, fmt.Errorf("%w: %s", ErrDealNotFound, dealID)
	}
	return *latest, nil
}

// History returns every snapshot for one deal in write order.
func (s *Store) History(dealID string) ([]deal.State, error) {
	records, err := s.Records()
	if err != nil {
		return nil, err
	}
	var history []deal.State
	for _, record := range records {
		if record.DealID == dealID {
			history = append(history, record.State)
		}
	}
	return history, nil
}
