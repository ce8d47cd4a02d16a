package domain

import (
	"encoding/json"
	"time"
)

// RecordStatus tracks the write-ahead state of a health data record.
type RecordStatus string

const (
	// RecordPending records have a durable key but no committed attachment yet.
	RecordPending RecordStatus = "pending"
	// RecordComplete records reference exactly one stored attachment.
	RecordComplete RecordStatus = "complete"
)

// HealthDataRecord is the metadata of one data submission. The raw payload
// lives in the attachment store under the filenames listed in Attachments.
type HealthDataRecord struct {
	Key         string       `json:"_key" bson:"_id,omitempty"`
	UserKey     string       `json:"userKey" bson:"userKey"`
	StudyKey    string       `json:"studyKey" bson:"studyKey"`
	TaskID      int          `json:"taskId" bson:"taskId"`
	CreatedTS   time.Time    `json:"createdTS" bson:"createdTS"`
	Attachments []string     `json:"attachments" bson:"attachments"`
	Status      RecordStatus `json:"-" bson:"status"`
	// PendingSince is the server time the pending record was inserted. It is
	// cleared on promotion and is what the reconciler ages records by.
	PendingSince *time.Time `json:"-" bson:"pendingSince,omitempty"`
}

// HealthDataSubmission is an inbound submission before it is split into
// metadata and attachment bytes.
type HealthDataSubmission struct {
	UserKey    string
	StudyKey   string
	TaskID     *int
	HealthData json.RawMessage

	// CreatedTS defaults to the ingestion time when zero.
	CreatedTS time.Time
}
