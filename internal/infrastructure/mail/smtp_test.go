package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSMTPSender_SendEmail(t *testing.T) {
	s := NewSMTPSender(Config{Host: "smtp.example.com", Port: 587, From: "noreply@mobistudy.org"}, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2024, 4, 10, 8, 30, 0, 0, time.UTC) }

	var gotAddr string
	var gotTo []string
	var gotMsg string
	s.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	if err := s.SendEmail(context.Background(), "ada@example.com", "Study \"Sleep\": status update", "line one\nline two"); err != nil {
		t.Fatalf("SendEmail returned error: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("unexpected relay address %q", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "ada@example.com" {
		t.Fatalf("unexpected recipients %v", gotTo)
	}
	if !strings.Contains(gotMsg, "To: ada@example.com\r\n") || !strings.Contains(gotMsg, "line one\r\nline two") {
		t.Fatalf("unexpected message:\n%s", gotMsg)
	}
	if !strings.Contains(gotMsg, "Date: Wed, 10 Apr 2024 08:30:00 +0000\r\n") {
		t.Fatalf("missing date header:\n%s", gotMsg)
	}
}

func TestSMTPSender_PropagatesFailure(t *testing.T) {
	s := NewSMTPSender(Config{Host: "smtp.example.com", Port: 25}, zerolog.Nop())
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }

	if err := s.SendEmail(context.Background(), "ada@example.com", "t", "c"); err == nil {
		t.Fatalf("expected error")
	}
	if err := s.SendEmail(context.Background(), "", "t", "c"); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestSMTPSender_CancelledContext(t *testing.T) {
	s := NewSMTPSender(Config{Host: "smtp.example.com", Port: 25}, zerolog.Nop())
	s.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatalf("should not dial with a cancelled context")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendEmail(ctx, "ada@example.com", "t", "c"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
