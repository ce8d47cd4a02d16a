package domain

import "time"

// EnrollmentStatus represents the lifecycle state of a participant in one study.
type EnrollmentStatus string

const (
	StatusUnset     EnrollmentStatus = ""
	StatusActive    EnrollmentStatus = "active"
	StatusCompleted EnrollmentStatus = "completed"
	StatusWithdrawn EnrollmentStatus = "withdrawn"
	StatusExcluded  EnrollmentStatus = "excluded"
)

// Known reports whether s is one of the lifecycle states.
func (s EnrollmentStatus) Known() bool {
	switch s {
	case StatusUnset, StatusActive, StatusCompleted, StatusWithdrawn, StatusExcluded:
		return true
	}
	return false
}

// Terminal reports whether s ends the lifecycle. Terminal states are not
// enforced on update: any known status may follow any other.
func (s EnrollmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusWithdrawn || s == StatusExcluded
}

// TaskItemConsent is the per-task consent and execution marker of an enrollment.
// Client fields beyond the known ones (app-specific sample markers) live in
// Extra and sit next to the known fields in both JSON and BSON.
type TaskItemConsent struct {
	TaskID       int            `json:"taskId" bson:"taskId"`
	Consented    bool           `json:"consented" bson:"consented"`
	LastExecuted *time.Time     `json:"lastExecuted,omitempty" bson:"lastExecuted,omitempty"`
	Extra        map[string]any `json:"-" bson:",inline"`
}

// ExtraItemConsent is a researcher-defined consent question outside the task list.
type ExtraItemConsent struct {
	Description string `json:"description" bson:"description"`
	Consented   bool   `json:"consented" bson:"consented"`
}

// StudyEnrollment is a participant's status and consent record for one study.
type StudyEnrollment struct {
	StudyKey          string             `json:"studyKey" bson:"studyKey"`
	CurrentStatus     EnrollmentStatus   `json:"currentStatus,omitempty" bson:"currentStatus,omitempty"`
	Timestamp         *time.Time         `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
	WithdrawalReason  string             `json:"withdrawalReason,omitempty" bson:"withdrawalReason,omitempty"`
	CriteriaAnswers   []string           `json:"criteriaAnswers,omitempty" bson:"criteriaAnswers,omitempty"`
	TaskItemsConsent  []TaskItemConsent  `json:"taskItemsConsent" bson:"taskItemsConsent"`
	ExtraItemsConsent []ExtraItemConsent `json:"extraItemsConsent,omitempty" bson:"extraItemsConsent,omitempty"`
}

// Profile holds the participant fields that are not related to studies.
type Profile struct {
	Name        string     `json:"name,omitempty" bson:"name,omitempty"`
	Surname     string     `json:"surname,omitempty" bson:"surname,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty" bson:"dateOfBirth,omitempty"`
	Sex         string     `json:"sex,omitempty" bson:"sex,omitempty"`
	Language    string     `json:"language,omitempty" bson:"language,omitempty"`
	Country     string     `json:"country,omitempty" bson:"country,omitempty"`
}

// Participant is the aggregate root for a study subject. Studies holds at most
// one enrollment per study key.
type Participant struct {
	Key     string `json:"_key" bson:"_id,omitempty"`
	UserKey string `json:"userKey" bson:"userKey"`

	Profile `bson:",inline"`

	Studies         []StudyEnrollment `json:"studies" bson:"studies"`
	PendingDeletion bool              `json:"pendingDeletion,omitempty" bson:"pendingDeletion,omitempty"`
	CreatedTS       time.Time         `json:"createdTS" bson:"createdTS"`
	UpdatedTS       time.Time         `json:"updatedTS,omitempty" bson:"updatedTS,omitempty"`

	// Version is bumped on every replace and used as a compare-and-set token.
	Version int64 `json:"-" bson:"version"`
}

// StatusCount is one row of the per-study status statistics.
type StatusCount struct {
	Status EnrollmentStatus `json:"currentStatus" bson:"_id"`
	Count  int64            `json:"count" bson:"count"`
}
