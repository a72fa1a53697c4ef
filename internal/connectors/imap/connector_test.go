package imap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/owpa/negotiator/internal/deal"
	"github.com/owpa/negotiator/internal/statestore"
	"github.com/owpa/negotiator/internal/store"
)

type fakeStore struct {
	ingestedUIDs map[uint32]bool
	lastMark     store.MarkMailIngestionInput
	markCount    int
}

func (f *fakeStore) IsMailIngested(ctx context.Context, accountKey string, uid uint32, messageID string) (bool, error) {
	if f.ingestedUIDs == nil {
		return false, nil
	}
	return f.ingestedUIDs[uid], nil
}

func (f *fakeStore) MarkMailIngested(ctx context.Context, input store.MarkMailIngestionInput) error {
	if f.ingestedUIDs == nil {
		f.ingestedUIDs = map[uint32]bool{}
	}
	f.ingestedUIDs[input.UID] = true
	f.lastMark = input
	f.markCount++
	return nil
}

type fakeRounds struct {
	lastEmail   string
	lastSubject string
	lastState   deal.State
	runCount    int
	err         error
}

func (f *fakeRounds) Run(ctx context.Context, emailText, emailSubject string, stateIn deal.State) (deal.State, deal.CoachNotes, deal.EmailDraft, error) {
	f.lastEmail = emailText
	f.lastSubject = emailSubject
	f.lastState = stateIn
	f.runCount++
	if f.err != nil {
		return deal.State{}, deal.CoachNotes{}, deal.EmailDraft{}, f.err
	}
	out := stateIn
	out.RoundNumber++
	return out, deal.CoachNotes{}, deal.EmailDraft{Subject: "Re: next steps", Body: "Dear team,"}, nil
}

type fakeStates struct {
	states map[string]deal.State
}

func (f *fakeStates) LoadLatest(dealID string) (deal.State, error) {
	state, ok := f.states[dealID]
	if !ok {
		return deal.State{}, statestore.ErrDealNotFound
	}
	return state, nil
}

func newTestConnector(st Store, rounds Rounds, states States) *Connector {
	return New(
		Config{
			Host:                "imap.example.com",
			Port:                993,
			Username:            "deals@example.com",
			Password:            "secret",
			Mailbox:             "INBOX",
			DefaultDealID:       "deal-001",
			DefaultSupplierName: "Aeolus Wind Systems",
		},
		st,
		rounds,
		states,
		nil,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestPollOnceRunsRoundAndMarksSeen(t *testing.T) {
	storeMock := &fakeStore{}
	roundsMock := &fakeRounds{}
	statesMock := &fakeStates{}
	connector := newTestConnector(storeMock, roundsMock, statesMock)

	var marked []uint32
	connector.fetchUnread = func(ctx context.Context) ([]Message, error) {
		return []Message{
			{
				UID:       42,
				MessageID: "<abc@example.com>",
				From:      "sales@aeolus.example",
				FromName:  "Aeolus Commercial",
				Subject:   "Revised commercial terms",
				Date:      time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC),
				Body:      "We require a 7% adjustment.",
			},
		}, nil
	}
	connector.markSeen = func(ctx context.Context, uids []uint32) error {
		marked = append(marked, uids...)
		return nil
	}

	if err := connector.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce failed: %v", err)
	}
	if roundsMock.runCount != 1 {
		t.Fatalf("expected one round, got %d", roundsMock.runCount)
	}
	if roundsMock.lastEmail != "We require a 7% adjustment." {
		t.Fatalf("unexpected email text: %s", roundsMock.lastEmail)
	}
	if roundsMock.lastState.DealID != "deal-001" {
		t.Fatalf("expected default deal id, got %s", roundsMock.lastState.DealID)
	}
	if len(marked) != 1 || marked[0] != 42 {
		t.Fatalf("expected UID 42 marked seen, got %+v", marked)
	}
	if storeMock.markCount != 1 {
		t.Fatalf("expected one dedupe record, got %d", storeMock.markCount)
	}
	if storeMock.lastMark.DealID != "deal-001" {
		t.Fatalf("unexpected dedupe deal id: %s", storeMock.lastMark.DealID)
	}
}

func TestPollOnceNoMessages(t *testing.T) {
	connector := newTestConnector(&fakeStore{}, &fakeRounds{}, &fakeStates{})
	connector.fetchUnread = func(ctx context.Context) ([]Message, error) {
		return nil, nil
	}
	markSeenCalled := false
	connector.markSeen = func(ctx context.Context, uids []uint32) error {
		markSeenCalled = true
		return nil
	}
	if err := connector.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce failed: %v", err)
	}
	if markSeenCalled {
		t.Fatal("expected markSeen not to be called")
	}
}

func TestPollOnceSkipsAlreadyIngested(t *testing.T) {
	storeMock := &fakeStore{ingestedUIDs: map[uint32]bool{42: true}}
	roundsMock := &fakeRounds{}
	connector := newTestConnector(storeMock, roundsMock, &fakeStates{})

	connector.fetchUnread = func(ctx context.Context) ([]Message, error) {
		return []Message{
			{UID: 42, MessageID: "<already@example.com>", Subject: "Already ingested", Body: "body"},
		}, nil
	}
	var marked []uint32
	connector.markSeen = func(ctx context.Context, uids []uint32) error {
		marked = append(marked, uids...)
		return nil
	}

	if err := connector.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce failed: %v", err)
	}
	if roundsMock.runCount != 0 {
		t.Fatalf("expected no round for duplicated message, got %d", roundsMock.runCount)
	}
	if len(marked) != 1 || marked[0] != 42 {
		t.Fatalf("expected duplicate uid marked seen, got %+v", marked)
	}
}

func TestPollOnceFailedRoundStaysUnseen(t *testing.T) {
	storeMock := &fakeStore{}
	roundsMock := &fakeRounds{err: errors.New("stage classify: backend down")}
	connector := newTestConnector(storeMock, roundsMock, &fakeStates{})

	connector.fetchUnread = func(ctx context.Context) ([]Message, error) {
		return []Message{
			{UID: 7, MessageID: "<fail@example.com>", Subject: "Escalation", Body: "9% uplift"},
		}, nil
	}
	markSeenCalled := false
	connector.markSeen = func(ctx context.Context, uids []uint32) error {
		markSeenCalled = true
		return nil
	}

	if err := connector.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce failed: %v", err)
	}
	if markSeenCalled {
		t.Fatal("expected failed message to stay unseen for retry")
	}
	if storeMock.markCount != 0 {
		t.Fatalf("expected no dedupe record after failed round, got %d", storeMock.markCount)
	}
}

func TestResolveStateSubjectTagWinsAndContinuesDeal(t *testing.T) {
	statesMock := &fakeStates{
		states: map[string]deal.State{
			"D-123": {DealID: "D-123", SupplierName: "NordBlade", RoundNumber: 3},
		},
	}
	connector := newTestConnector(&fakeStore{}, &fakeRounds{}, statesMock)

	state := connector.resolveState(Message{Subject: "Re: [deal:D-123] slot confirmation"})
	if state.DealID != "D-123" {
		t.Fatalf("expected tagged deal id, got %s", state.DealID)
	}
	if state.RoundNumber != 3 {
		t.Fatalf("expected persisted round number, got %d", state.RoundNumber)
	}
}

func TestResolveStateUnknownDealStartsFresh(t *testing.T) {
	connector := newTestConnector(&fakeStore{}, &fakeRounds{}, &fakeStates{})
	connector.cfg.DefaultSupplierName = ""

	state := connector.resolveState(Message{
		Subject:  "[deal:D-900] new thread",
		FromName: "Vestara Commercial",
	})
	if state.DealID != "D-900" {
		t.Fatalf("expected tagged deal id, got %s", state.DealID)
	}
	if state.RoundNumber != 0 {
		t.Fatalf("expected fresh round zero, got %d", state.RoundNumber)
	}
	if state.SupplierName != "Vestara Commercial" {
		t.Fatalf("expected sender name as supplier, got %s", state.SupplierName)
	}
	if state.Package != deal.PackageWTGLTSA {
		t.Fatalf("unexpected package: %s", state.Package)
	}
}

func TestDecodeMessageBodyMultipartPrefersPlain(t *testing.T) {
	raw := strings.Join([]string{
		"From: sales@aeolus.example",
		"To: deals@example.com",
		"Subject: Test",
		"MIME-Version: 1.0",
		"Content-Type: multipart/alternative; boundary=abc123",
		"",
		"--abc123",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"We require a 7% adjustment.",
		"--abc123",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>We require a <b>7%</b> adjustment.</p>",
		"--abc123--",
		"",
	}, "\r\n")

	body := decodeMessageBody([]byte(raw))
	if !strings.Contains(body, "We require a 7% adjustment.") {
		t.Fatalf("expected plain body, got %s", body)
	}
	if strings.Contains(body, "<p>") {
		t.Fatalf("expected html part ignored, got %s", body)
	}
}

func TestDecodeMessageBodyHTMLOnly(t *testing.T) {
	raw := strings.Join([]string{
		"From: sales@aeolus.example",
		"Subject: Test",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<html><body><p>Slot window is &quot;tight&quot;.</p></body></html>",
	}, "\r\n")

	body := decodeMessageBody([]byte(raw))
	if body != `Slot window is "tight".` {
		t.Fatalf("unexpected stripped body: %q", body)
	}
}
