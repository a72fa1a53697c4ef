// Package imap polls a mailbox for unread supplier emails and runs one
// negotiation round per message. Each message still flows through the same
// pipeline a manually-pasted email would; the connector only handles
// transport, deduplication, and deal resolution.
package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/owpa/negotiator/internal/deal"
	"github.com/owpa/negotiator/internal/statestore"
	"github.com/owpa/negotiator/internal/store"
)

// Store is the dedup ledger; satisfied by store.Store.
type Store interface {
	IsMailIngested(ctx context.Context, accountKey string, uid uint32, messageID string) (bool, error)
	MarkMailIngested(ctx context.Context, input store.MarkMailIngestionInput) error
}

// Rounds runs one pipeline round; satisfied by pipeline.Pipeline.
type Rounds interface {
	Run(ctx context.Context, emailText, emailSubject string, stateIn deal.State) (deal.State, deal.CoachNotes, deal.EmailDraft, error)
}

// States loads the latest persisted snapshot for a deal; satisfied by
// statestore.Store.
type States interface {
	LoadLatest(dealID string) (deal.State, error)
}

// Sender mails the reply draft when auto-send is enabled; nil means drafts
// are logged for review only.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Message struct {
	UID       uint32
	MessageID string
	From      string
	FromName  string
	Subject   string
	Date      time.Time
	Body      string
}

// dealTagPattern extracts a deal id from subject tags like "[deal:D-123]".
var dealTagPattern = regexp.MustCompile(`(?i)\[deal:([a-z0-9._-]+)\]`)

type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	Mailbox       string
	TLSSkipVerify bool

	DefaultDealID       string
	DefaultSupplierName string
	AutoSend            bool
}

type Connector struct {
	cfg    Config
	store  Store
	rounds Rounds
	states States
	sender Sender
	logger *slog.Logger

	// nextPoll resolves when the mailbox is polled again, usually from a
	// cron schedule. Swappable in tests, as are the IMAP round-trips.
	nextPoll    func(from time.Time) time.Time
	fetchUnread func(ctx context.Context) ([]Message, error)
	markSeen    func(ctx context.Context, uids []uint32) error
}

func New(cfg Config, st Store, rounds Rounds, states States, sender Sender, nextPoll func(time.Time) time.Time, logger *slog.Logger) *Connector {
	if cfg.Port < 1 {
		cfg.Port = 993
	}
	if strings.TrimSpace(cfg.Mailbox) == "" {
		cfg.Mailbox = "INBOX"
	}
	if nextPoll == nil {
		nextPoll = func(from time.Time) time.Time { return from.Add(5 * time.Minute) }
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connector{
		cfg:      cfg,
		store:    st,
		rounds:   rounds,
		states:   states,
		sender:   sender,
		logger:   logger,
		nextPoll: nextPoll,
	}
	c.fetchUnread = c.fetchUnreadFromIMAP
	c.markSeen = c.markSeenInIMAP
	return c
}

func (c *Connector) Name() string {
	return "imap"
}

func (c *Connector) Start(ctx context.Context) error {
	if c.cfg.Host == "" || c.cfg.Username == "" || c.cfg.Password == "" {
		c.logger.Info("connector disabled, imap credentials missing")
		<-ctx.Done()
		return nil
	}
	c.logger.Info("connector started", "mailbox", c.cfg.Mailbox, "host", c.cfg.Host)

	for {
		if ctx.Err() != nil {
			c.logger.Info("connector stopped")
			return nil
		}
		if err := c.PollOnce(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("imap poll failed", "error", err)
		}
		wait := time.Until(c.nextPoll(time.Now()))
		if wait < time.Second {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			c.logger.Info("connector stopped")
			return nil
		case <-time.After(wait):
		}
	}
}

// PollOnce fetches unread messages and runs one round per unseen message.
// A failed round leaves the message unseen and un-deduplicated so the next
// poll retries it.
func (c *Connector) PollOnce(ctx context.Context) error {
	incoming, err := c.fetchUnread(ctx)
	if err != nil {
		return err
	}
	if len(incoming) == 0 {
		return nil
	}

	processedUIDs := make([]uint32, 0, len(incoming))
	for _, msg := range incoming {
		alreadyIngested, lookupErr := c.store.IsMailIngested(ctx, c.accountKey(), msg.UID, msg.MessageID)
		if lookupErr != nil {
			c.logger.Error("mail dedupe lookup failed", "error", lookupErr, "uid", msg.UID)
			continue
		}
		if alreadyIngested {
			if msg.UID > 0 {
				processedUIDs = append(processedUIDs, msg.UID)
			}
			continue
		}

		dealID, runErr := c.processMessage(ctx, msg)
		if runErr != nil {
			c.logger.Error("round failed for message", "error", runErr, "uid", msg.UID, "subject", msg.Subject)
			continue
		}

		if markErr := c.store.MarkMailIngested(ctx, store.MarkMailIngestionInput{
			AccountKey: c.accountKey(),
			UID:        msg.UID,
			MessageID:  msg.MessageID,
			DealID:     dealID,
		}); markErr != nil {
			c.logger.Error("mail mark ingested failed", "error", markErr, "uid", msg.UID)
		}
		if msg.UID > 0 {
			processedUIDs = append(processedUIDs, msg.UID)
		}
	}

	if len(processedUIDs) > 0 {
		if err := c.markSeen(ctx, processedUIDs); err != nil {
			c.logger.Error("imap mark seen failed", "error", err)
		}
	}
	return nil
}

func (c *Connector) processMessage(ctx context.Context, msg Message) (string, error) {
	stateIn := c.resolveState(msg)

	stateOut, _, draft, err := c.rounds.Run(ctx, msg.Body, msg.Subject, stateIn)
	if err != nil {
		return "", err
	}
	c.logger.Info("round processed from mailbox",
		"deal_id", stateOut.DealID,
		"round", stateOut.RoundNumber,
		"uid", msg.UID,
		"intent", intentOf(stateOut),
	)

	if c.cfg.AutoSend && c.sender != nil && msg.From != "" {
		if err := c.sender.Send(ctx, msg.From, draft.Subject, draft.Body); err != nil {
			// Sending is best effort; the round already persisted.
			c.logger.Error("draft send failed", "error", err, "deal_id", stateOut.DealID)
		}
	}
	return stateOut.DealID, nil
}

// resolveState picks the negotiation thread for a message: a [deal:...]
// subject tag wins, then the configured default. A known deal continues from
// its latest snapshot; an unknown one starts a fresh round-zero state with
// the sender as the counterpart.
func (c *Connector) resolveState(msg Message) deal.State {
	dealID := c.cfg.DefaultDealID
	if match := dealTagPattern.FindStringSubmatch(msg.Subject); match != nil {
		dealID = match[1]
	}

	state, err := c.states.LoadLatest(dealID)
	if err == nil {
		return state
	}
	if !errors.Is(err, statestore.ErrDealNotFound) {
		c.logger.Error("state load failed, starting fresh", "error", err, "deal_id", dealID)
	}

	supplierName := c.cfg.DefaultSupplierName
	if supplierName == "" {
		supplierName = strings.TrimSpace(msg.FromName)
	}
	return deal.State{
		DealID:       dealID,
		Package:      deal.PackageWTGLTSA,
		SupplierName: supplierName,
	}
}

func intentOf(state deal.State) string {
	if state.SupplierAsk == nil {
		return ""
	}
	return string(state.SupplierAsk.Intent)
}

func (c *Connector) accountKey() string {
	return strings.TrimSpace(c.cfg.Username + ":" + c.cfg.Mailbox)
}

func (c *Connector) fetchUnreadFromIMAP(ctx context.Context) ([]Message, error) {
	clientInstance, err := c.openClient(ctx)
	if err != nil {
		return nil, err
	}
	defer clientInstance.Logout()
	return c.fetchUnreadWithClient(clientInstance)
}

func (c *Connector) markSeenInIMAP(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	clientInstance, err := c.openClient(ctx)
	if err != nil {
		return err
	}
	defer clientInstance.Logout()

	if _, err := clientInstance.Select(c.cfg.Mailbox, false); err != nil {
		return fmt.Errorf("imap select mailbox: %w", err)
	}
	set := new(imap.SeqSet)
	set.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := clientInstance.UidStore(set, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("imap mark seen: %w", err)
	}
	return nil
}

func (c *Connector) openClient(ctx context.Context) (*client.Client, error) {
	address := strings.TrimSpace(c.cfg.Host) + ":" + strconv.Itoa(c.cfg.Port)
	tlsConfig := &tls.Config{
		ServerName:         c.cfg.Host,
		InsecureSkipVerify: c.cfg.TLSSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	clientInstance, err := client.DialTLS(address, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("imap dial: %w", err)
	}
	select {
	case <-ctx.Done():
		clientInstance.Logout()
		return nil, ctx.Err()
	default:
	}
	if err := clientInstance.Login(c.cfg.Username, c.cfg.Password); err != nil {
		clientInstance.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return clientInstance, nil
}

func (c *Connector) fetchUnreadWithClient(clientInstance *client.Client) ([]Message, error) {
	if _, err := clientInstance.Select(c.cfg.Mailbox, false); err != nil {
		return nil, fmt.Errorf("imap select mailbox: %w", err)
	}
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := clientInstance.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search unread: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	set := new(imap.SeqSet)
	set.AddNum(uids...)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchEnvelope,
		imap.FetchRFC822Size,
		section.FetchItem(),
	}
	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- clientInstance.UidFetch(set, items, messages)
	}()

	results := make([]Message, 0, len(uids))
	for fetched := range messages {
		bodyReader := fetched.GetBody(section)
		if bodyReader == nil {
			continue
		}
		bodyBytes, readErr := ioReadAllLimited(bodyReader, 2<<20)
		if readErr != nil {
			continue
		}
		item := Message{
			UID:  fetched.Uid,
			Body: decodeMessageBody(bodyBytes),
		}
		if fetched.Envelope != nil {
			item.Subject = strings.TrimSpace(fetched.Envelope.Subject)
			item.Date = fetched.Envelope.Date
			item.MessageID = strings.TrimSpace(fetched.Envelope.MessageId)
			item.From, item.FromName = formatSender(fetched.Envelope.From)
		}
		results = append(results, item)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch unread: %w", err)
	}
	return results, nil
}

func decodeMessageBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(string(raw))
	}
	mediaType, params, _ := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	bodyBytes, err := ioReadAllLimited(parsed.Body, 2<<20)
	if err != nil {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(mediaType), "multipart/") {
		return parseMultipartBody(bodyBytes, params["boundary"])
	}
	decodedBytes, decodeErr := decodeTransferEncoding(bytes.NewReader(bodyBytes), parsed.Header.Get("Content-Transfer-Encoding"))
	if decodeErr == nil {
		bodyBytes = decodedBytes
	}
	if strings.EqualFold(mediaType, "text/html") {
		return stripHTML(string(bodyBytes))
	}
	return strings.TrimSpace(string(bodyBytes))
}

func parseMultipartBody(raw []byte, boundary string) string {
	if strings.TrimSpace(boundary) == "" {
		return strings.TrimSpace(string(raw))
	}
	reader := multipart.NewReader(bytes.NewReader(raw), boundary)
	var plainParts, htmlParts []string
	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		data, readErr := ioReadAllLimited(part, 2<<20)
		if readErr != nil {
			continue
		}
		decoded, decodeErr := decodeTransferEncoding(bytes.NewReader(data), part.Header.Get("Content-Transfer-Encoding"))
		if decodeErr == nil {
			data = decoded
		}
		mediaType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		switch strings.ToLower(strings.TrimSpace(mediaType)) {
		case "text/plain":
			if text := strings.TrimSpace(string(data)); text != "" {
				plainParts = append(plainParts, text)
			}
		case "text/html":
			if text := strings.TrimSpace(string(data)); text != "" {
				htmlParts = append(htmlParts, text)
			}
		}
	}
	if len(plainParts) > 0 {
		return strings.Join(plainParts, "\n\n")
	}
	if len(htmlParts) > 0 {
		return stripHTML(strings.Join(htmlParts, "\n\n"))
	}
	return strings.TrimSpace(string(raw))
}

func decodeTransferEncoding(reader io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		decoder := base64.NewDecoder(base64.StdEncoding, reader)
		return ioReadAllLimited(decoder, 2<<20)
	case "quoted-printable":
		decoder := quotedprintable.NewReader(reader)
		return ioReadAllLimited(decoder, 2<<20)
	default:
		return ioReadAllLimited(reader, 2<<20)
	}
}

func formatSender(items []*imap.Address) (address, name string) {
	for _, item := range items {
		if item == nil {
			continue
		}
		return strings.TrimSpace(item.MailboxName + "@" + item.HostName), strings.TrimSpace(item.PersonalName)
	}
	return "", ""
}

func ioReadAllLimited(reader io.Reader, maxBytes int64) ([]byte, error) {
	limited := &io.LimitedReader{R: reader, N: maxBytes + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("content exceeds max size")
	}
	return data, nil
}

var htmlTagPattern = regexp.MustCompile(`(?s)<[^>]*>`)

func stripHTML(input string) string {
	text := htmlTagPattern.ReplaceAllString(input, " ")
	text = html.UnescapeString(text)
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(text)
}
