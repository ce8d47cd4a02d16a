package ports

import (
	"context"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

// StatusChangeNotice describes an enrollment status change worth telling the
// participant about.
type StatusChangeNotice struct {
	UserKey        string
	ParticipantKey string
	StudyKey       string
	PriorStatus    domain.EnrollmentStatus
	NewStatus      domain.EnrollmentStatus
}

// StatusChangeNotifier accepts notices without blocking the caller.
type StatusChangeNotifier interface {
	NotifyStatusChange(ctx context.Context, notice StatusChangeNotice)
}

// EmailMessage is a composed notification.
type EmailMessage struct {
	Title   string
	Content string
}

// EmailSender delivers a message to one address.
type EmailSender interface {
	SendEmail(ctx context.Context, address, title, content string) error
}

// NotificationService composes and sends one notice. It is what the
// asynchronous dispatcher workers call.
type NotificationService interface {
	Deliver(ctx context.Context, notice StatusChangeNotice) error
}
