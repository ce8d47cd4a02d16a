package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

type stubSender struct {
	sent []string
	err  error
}

func (s *stubSender) SendEmail(_ context.Context, address, title, content string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, address+"|"+title+"|"+content)
	return nil
}

func TestNotificationService_Deliver(t *testing.T) {
	users := newStubUserRepo(&domain.User{Key: "u1", Email: "ada@example.com"})
	sender := &stubSender{}
	svc := NewNotificationService(users, newStubDirectory(), sender, zerolog.Nop())

	notice := ports.StatusChangeNotice{UserKey: "u1", StudyKey: "s1", PriorStatus: domain.StatusActive, NewStatus: domain.StatusWithdrawn}
	if err := svc.Deliver(context.Background(), notice); err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sender.sent))
	}
	if !strings.HasPrefix(sender.sent[0], "ada@example.com|") || !strings.Contains(sender.sent[0], "Sleep study") {
		t.Fatalf("unexpected email: %s", sender.sent[0])
	}
}

func TestNotificationService_DeliverErrors(t *testing.T) {
	users := newStubUserRepo(&domain.User{Key: "u1", Email: "ada@example.com"})
	sender := &stubSender{err: errors.New("smtp down")}
	svc := NewNotificationService(users, newStubDirectory(), sender, zerolog.Nop())

	if err := svc.Deliver(context.Background(), ports.StatusChangeNotice{UserKey: "u1", StudyKey: "s1"}); err == nil {
		t.Fatalf("expected send error to be returned to the dispatcher")
	}
	if err := svc.Deliver(context.Background(), ports.StatusChangeNotice{UserKey: "ghost", StudyKey: "s1"}); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestComposeStatusChangeMessage(t *testing.T) {
	notice := ports.StatusChangeNotice{StudyKey: "s9", NewStatus: domain.StatusCompleted}

	msg := ComposeStatusChangeMessage(notice, nil)
	if !strings.Contains(msg.Title, "s9") || !strings.Contains(msg.Content, "completed") {
		t.Fatalf("unexpected message without study: %+v", msg)
	}

	study := &domain.Study{Key: "s9", Generalities: domain.StudyGeneralities{Title: "Heart study"}}
	msg = ComposeStatusChangeMessage(notice, study)
	if !strings.Contains(msg.Title, "Heart study") {
		t.Fatalf("expected study title in subject: %+v", msg)
	}
}
