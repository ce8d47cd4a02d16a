package handler

import (
	"encoding/json"
	"time"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Auth ---

type registerRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role"     validate:"required,oneof=participant researcher"`
	TestUser bool   `json:"testUser"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token string       `json:"token,omitempty"`
	User  *domain.User `json:"user,omitempty"`
}

// --- Participants ---

// profileRequest carries the editable profile fields. Studies and timestamps
// sent by clients are ignored.
type profileRequest struct {
	Name        string     `json:"name"`
	Surname     string     `json:"surname"`
	DateOfBirth *time.Time `json:"dateOfBirth"`
	Sex         string     `json:"sex"      validate:"omitempty,oneof=male female other"`
	Language    string     `json:"language" validate:"omitempty,min=2"`
	Country     string     `json:"country"  validate:"omitempty,min=2"`
}

// taskConsentRequest and taskItemRequest keep any extra per-task members the
// app sends, such as sample timestamps of a wearable.
type taskConsentRequest struct {
	Consented    bool           `json:"consented"`
	LastExecuted *time.Time     `json:"lastExecuted"`
	Extra        map[string]any `json:"-"`
}

func (r *taskConsentRequest) UnmarshalJSON(data []byte) error {
	type known taskConsentRequest
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	extra, err := domain.UnknownTaskConsentFields(data)
	if err != nil {
		return err
	}
	k.Extra = extra
	*r = taskConsentRequest(k)
	return nil
}

type extraConsentRequest struct {
	Description string `json:"description" validate:"required"`
	Consented   bool   `json:"consented"`
}

type taskItemRequest struct {
	TaskID       *int           `json:"taskId" validate:"required"`
	Consented    bool           `json:"consented"`
	LastExecuted *time.Time     `json:"lastExecuted"`
	Extra        map[string]any `json:"-"`
}

func (r *taskItemRequest) UnmarshalJSON(data []byte) error {
	type known taskItemRequest
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	extra, err := domain.UnknownTaskConsentFields(data)
	if err != nil {
		return err
	}
	k.Extra = extra
	*r = taskItemRequest(k)
	return nil
}

// enrollmentRequest is the full status block of one study. It replaces the
// stored block as a whole.
type enrollmentRequest struct {
	CurrentStatus     string                `json:"currentStatus"     validate:"omitempty,oneof=active completed withdrawn excluded"`
	Timestamp         *time.Time            `json:"timestamp"`
	WithdrawalReason  string                `json:"withdrawalReason"`
	CriteriaAnswers   []string              `json:"criteriaAnswers"`
	TaskItemsConsent  []taskItemRequest     `json:"taskItemsConsent"  validate:"dive"`
	ExtraItemsConsent []extraConsentRequest `json:"extraItemsConsent" validate:"dive"`
}

// --- Health data ---

type healthDataRequest struct {
	StudyKey   string          `json:"studyKey"   validate:"required"`
	TaskID     *int            `json:"taskId"     validate:"required"`
	HealthData json.RawMessage `json:"healthData" validate:"required"`
	CreatedTS  *time.Time      `json:"createdTS"`
}

// --- Mappers ---

func toProfile(r profileRequest) domain.Profile {
	return domain.Profile{
		Name:        r.Name,
		Surname:     r.Surname,
		DateOfBirth: r.DateOfBirth,
		Sex:         r.Sex,
		Language:    r.Language,
		Country:     r.Country,
	}
}

func toEnrollment(studyKey string, r enrollmentRequest) *domain.StudyEnrollment {
	e := &domain.StudyEnrollment{
		StudyKey:         studyKey,
		CurrentStatus:    domain.EnrollmentStatus(r.CurrentStatus),
		Timestamp:        r.Timestamp,
		WithdrawalReason: r.WithdrawalReason,
		CriteriaAnswers:  r.CriteriaAnswers,
		TaskItemsConsent: make([]domain.TaskItemConsent, 0, len(r.TaskItemsConsent)),
	}
	for _, t := range r.TaskItemsConsent {
		e.TaskItemsConsent = append(e.TaskItemsConsent, domain.TaskItemConsent{
			TaskID:       *t.TaskID,
			Consented:    t.Consented,
			LastExecuted: t.LastExecuted,
			Extra:        t.Extra,
		})
	}
	for _, x := range r.ExtraItemsConsent {
		e.ExtraItemsConsent = append(e.ExtraItemsConsent, domain.ExtraItemConsent{
			Description: x.Description,
			Consented:   x.Consented,
		})
	}
	return e
}

func toTaskConsent(taskID int, r taskConsentRequest) domain.TaskItemConsent {
	return domain.TaskItemConsent{
		TaskID:       taskID,
		Consented:    r.Consented,
		LastExecuted: r.LastExecuted,
		Extra:        r.Extra,
	}
}

func toSubmission(userKey string, r healthDataRequest) domain.HealthDataSubmission {
	sub := domain.HealthDataSubmission{
		UserKey:    userKey,
		StudyKey:   r.StudyKey,
		TaskID:     r.TaskID,
		HealthData: r.HealthData,
	}
	if r.CreatedTS != nil {
		sub.CreatedTS = r.CreatedTS.UTC()
	}
	return sub
}

func toListInput(c queryGetter) ports.ListParticipantsInput {
	return ports.ListParticipantsInput{
		TeamKey:       c.QueryParam("teamKey"),
		StudyKey:      c.QueryParam("studyKey"),
		CurrentStatus: c.QueryParam("currentStatus"),
	}
}

type queryGetter interface {
	QueryParam(name string) string
}
