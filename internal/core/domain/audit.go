package domain

import "time"

// Audit event types recorded by the core.
const (
	AuditParticipantCreated     = "participantCreated"
	AuditParticipantUpdated     = "participantUpdated"
	AuditParticipantDeleted     = "participantDeleted"
	AuditParticipantStudyUpdate = "participantStudyUpdate"
	AuditHealthStoreDataCreated = "healthStoreDataCreated"
)

// AuditEntry is an immutable record of an accepted mutation.
type AuditEntry struct {
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
	EventType  string    `json:"event" bson:"event"`
	ActorKey   string    `json:"userKey" bson:"userKey"`
	StudyKey   string    `json:"studyKey,omitempty" bson:"studyKey,omitempty"`
	TaskID     *int      `json:"taskId,omitempty" bson:"taskId,omitempty"`
	Message    string    `json:"message" bson:"message"`
	Collection string    `json:"refData" bson:"refData"`
	EntityKey  string    `json:"refKey" bson:"refKey"`
	Data       any       `json:"data,omitempty" bson:"data,omitempty"`
}
