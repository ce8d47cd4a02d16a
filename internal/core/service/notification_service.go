package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// NotificationService composes status change emails and hands them to the sender.
type NotificationService struct {
	users     ports.UserRepository
	directory ports.StudyDirectory
	sender    ports.EmailSender
	log       zerolog.Logger
}

func NewNotificationService(users ports.UserRepository, directory ports.StudyDirectory, sender ports.EmailSender, log zerolog.Logger) *NotificationService {
	return &NotificationService{
		users:     users,
		directory: directory,
		sender:    sender,
		log:       log.With().Str("component", "notifications").Logger(),
	}
}

func (s *NotificationService) Deliver(ctx context.Context, notice ports.StatusChangeNotice) error {
	user, err := s.users.FindByKey(ctx, notice.UserKey)
	if err != nil {
		return fmt.Errorf("status notification: %w", err)
	}
	if user.Email == "" {
		return fmt.Errorf("status notification: user %s has no email address", user.Key)
	}

	study, err := s.directory.Study(ctx, notice.StudyKey)
	if err != nil && !errors.Is(err, domain.ErrStudyNotFound) {
		return fmt.Errorf("status notification: %w", err)
	}

	msg := ComposeStatusChangeMessage(notice, study)
	if err := s.sender.SendEmail(ctx, user.Email, msg.Title, msg.Content); err != nil {
		return fmt.Errorf("status notification: send: %w", err)
	}

	s.log.Info().
		Str("user_key", notice.UserKey).
		Str("study_key", notice.StudyKey).
		Str("new_status", string(notice.NewStatus)).
		Msg("status notification sent")
	return nil
}

// ComposeStatusChangeMessage builds the email for a status change. study may
// be nil when the study description is unavailable.
func ComposeStatusChangeMessage(notice ports.StatusChangeNotice, study *domain.Study) ports.EmailMessage {
	title := notice.StudyKey
	if study != nil && study.Generalities.Title != "" {
		title = study.Generalities.Title
	}

	var content string
	switch notice.NewStatus {
	case domain.StatusActive:
		content = fmt.Sprintf("Thank you for joining the study %q. You can now start your tasks in the app.", title)
	case domain.StatusCompleted:
		content = fmt.Sprintf("You have completed the study %q. Thank you for your participation.", title)
	case domain.StatusWithdrawn:
		content = fmt.Sprintf("You have withdrawn from the study %q. No further data will be collected.", title)
	case domain.StatusExcluded:
		content = fmt.Sprintf("You are no longer eligible for the study %q. No further data will be collected.", title)
	default:
		content = fmt.Sprintf("Your status in the study %q has changed to %q.", title, notice.NewStatus)
	}

	return ports.EmailMessage{
		Title:   fmt.Sprintf("Study %q: status update", title),
		Content: content,
	}
}
