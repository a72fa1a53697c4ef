// Package smtp delivers approved reply drafts over plain SMTP.
package smtp

import (
	"context"
	"fmt"
	"net/mail"
	gosmtp "net/smtp"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sendMailFunc func(addr string, auth gosmtp.Auth, from string, to []string, msg []byte) error

type Sender struct {
	cfg      Config
	sendMail sendMailFunc
}

func New(cfg Config) *Sender {
	if cfg.Port < 1 {
		cfg.Port = 587
	}
	return &Sender{
		cfg:      cfg,
		sendMail: gosmtp.SendMail,
	}
}

// Send mails one plain-text draft to a single recipient.
func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if s == nil {
		return fmt.Errorf("smtp sender not configured")
	}
	if s.sendMail == nil {
		s.sendMail = gosmtp.SendMail
	}
	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		return fmt.Errorf("smtp host is not configured")
	}

	toAddr, toDisplay, err := parseSingleAddress(to)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	fromHeader := strings.TrimSpace(s.cfg.From)
	if fromHeader == "" {
		return fmt.Errorf("smtp sender address is not configured")
	}
	fromAddr, fromDisplay, err := parseSingleAddress(fromHeader)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if strings.TrimSpace(subject) == "" {
		subject = "Commercial alignment and next steps"
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("smtp send requires a body")
	}

	headers := []string{
		"From: " + sanitizeHeader(fromDisplay),
		"To: " + sanitizeHeader(toDisplay),
		"Subject: " + sanitizeHeader(subject),
		"Date: " + time.Now().UTC().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + normalizeBody(body)

	var auth gosmtp.Auth
	if strings.TrimSpace(s.cfg.Username) != "" {
		if strings.TrimSpace(s.cfg.Password) == "" {
			return fmt.Errorf("smtp password is required when username is set")
		}
		auth = gosmtp.PlainAuth("", s.cfg.Username, s.cfg.Password, host)
	}
	serverAddress := host + ":" + strconv.Itoa(s.cfg.Port)
	return s.sendMail(serverAddress, auth, fromAddr, []string{toAddr}, []byte(message))
}

func parseSingleAddress(value string) (address string, display string, err error) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(value))
	if err != nil {
		return "", "", err
	}
	if parsed.Name != "" {
		return parsed.Address, parsed.String(), nil
	}
	return parsed.Address, parsed.Address, nil
}

func sanitizeHeader(value string) string {
	replacer := strings.NewReplacer("\r", " ", "\n", " ")
	return strings.TrimSpace(replacer.Replace(value))
}

func normalizeBody(value string) string {
	text := strings.ReplaceAll(value, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.ReplaceAll(text, "\n", "\r\n")
}
