package smtp

import (
	"context"
	"strings"
	"testing"

	gosmtp "net/smtp"
)

func TestSendBuildsMessage(t *testing.T) {
	sender := New(Config{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "deals@example.com",
		Password: "secret",
		From:     "Procurement Team <deals@example.com>",
	})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	sender.sendMail = func(addr string, auth gosmtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotFrom = from
		gotTo = to
		gotMsg = msg
		if auth == nil {
			t.Fatal("expected plain auth when username is set")
		}
		return nil
	}

	err := sender.Send(context.Background(), "sales@aeolus.example", "Re: WTG + LTSA commercial alignment and next steps", "Dear Aeolus team,\nThank you.")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("unexpected server address: %s", gotAddr)
	}
	if gotFrom != "deals@example.com" {
		t.Fatalf("unexpected envelope sender: %s", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "sales@aeolus.example" {
		t.Fatalf("unexpected recipients: %+v", gotTo)
	}
	message := string(gotMsg)
	if !strings.Contains(message, "Subject: Re: WTG + LTSA commercial alignment and next steps") {
		t.Fatalf("expected subject header, got %s", message)
	}
	if !strings.Contains(message, "From: \"Procurement Team\" <deals@example.com>") {
		t.Fatalf("expected display-name sender header, got %s", message)
	}
	if !strings.Contains(message, "Dear Aeolus team,\r\nThank you.") {
		t.Fatalf("expected CRLF-normalized body, got %q", message)
	}
}

func TestSendValidation(t *testing.T) {
	sender := New(Config{Host: "smtp.example.com", From: "deals@example.com"})
	sender.sendMail = func(addr string, auth gosmtp.Auth, from string, to []string, msg []byte) error {
		t.Fatal("sendMail should not be called")
		return nil
	}

	if err := sender.Send(context.Background(), "not-an-address", "subject", "body"); err == nil {
		t.Fatal("expected error for invalid recipient")
	}
	if err := sender.Send(context.Background(), "sales@aeolus.example", "subject", "   "); err == nil {
		t.Fatal("expected error for empty body")
	}

	missingHost := New(Config{From: "deals@example.com"})
	missingHost.sendMail = sender.sendMail
	if err := missingHost.Send(context.Background(), "sales@aeolus.example", "subject", "body"); err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestSendNoAuthWhenUsernameEmpty(t *testing.T) {
	sender := New(Config{Host: "smtp.example.com", From: "deals@example.com"})
	sender.sendMail = func(addr string, auth gosmtp.Auth, from string, to []string, msg []byte) error {
		if auth != nil {
			t.Fatal("expected nil auth without username")
		}
		return nil
	}
	if err := sender.Send(context.Background(), "sales@aeolus.example", "subject", "body"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
}
