package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

var taskConsentFields = map[string]bool{"taskId": true, "consented": true, "lastExecuted": true}

// UnknownTaskConsentFields returns the members of the JSON object data that
// are not TaskItemConsent fields, or nil when there are none.
func UnknownTaskConsentFields(data []byte) (map[string]any, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	var extra map[string]any
	for k, raw := range all {
		if taskConsentFields[k] {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra, nil
}

type plainTaskConsent TaskItemConsent

func (t TaskItemConsent) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(plainTaskConsent(t))
	if err != nil || len(t.Extra) == 0 {
		return known, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(known, &out); err != nil {
		return nil, err
	}
	for k, v := range t.Extra {
		if taskConsentFields[k] {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("task consent field %s: %w", k, err)
		}
		out[k] = raw
	}
	return json.Marshal(out)
}

func (t *TaskItemConsent) UnmarshalJSON(data []byte) error {
	var known plainTaskConsent
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	extra, err := UnknownTaskConsentFields(data)
	if err != nil {
		return err
	}
	known.Extra = extra
	*t = TaskItemConsent(known)
	return nil
}

// FindTask returns the index and a pointer to the consent entry for taskID,
// or -1 and nil.
func (e *StudyEnrollment) FindTask(taskID int) (int, *TaskItemConsent) {
	for i := range e.TaskItemsConsent {
		if e.TaskItemsConsent[i].TaskID == taskID {
			return i, &e.TaskItemsConsent[i]
		}
	}
	return -1, nil
}

// UpsertTaskConsent replaces the consent entry for taskID in the enrollment
// for studyKey. Entries are never created here: both the enrollment and the
// task entry must already exist.
func (p *Participant) UpsertTaskConsent(studyKey string, taskID int, payload TaskItemConsent) error {
	_, enrollment := p.FindEnrollment(studyKey)
	if enrollment == nil {
		return fmt.Errorf("%w: study %s", ErrEnrollmentNotFound, studyKey)
	}
	idx, task := enrollment.FindTask(taskID)
	if task == nil {
		return fmt.Errorf("%w: study %s task %d", ErrTaskNotFound, studyKey, taskID)
	}
	next := cloneTask(payload)
	next.TaskID = taskID
	enrollment.TaskItemsConsent[idx] = next
	return nil
}

// CheckTaskRegistered validates that a submission for (studyKey, taskID) can
// be accepted: the participant must be enrolled and the task pre-registered.
func (p *Participant) CheckTaskRegistered(studyKey string, taskID int) error {
	_, enrollment := p.FindEnrollment(studyKey)
	if enrollment == nil {
		return fmt.Errorf("%w: study %s", ErrNotEnrolled, studyKey)
	}
	if _, task := enrollment.FindTask(taskID); task == nil {
		return fmt.Errorf("%w: study %s task %d", ErrTaskNotRegistered, studyKey, taskID)
	}
	return nil
}

// MarkTaskExecuted sets the lastExecuted marker of a registered task.
func (p *Participant) MarkTaskExecuted(studyKey string, taskID int, at time.Time) error {
	if err := p.CheckTaskRegistered(studyKey, taskID); err != nil {
		return err
	}
	_, enrollment := p.FindEnrollment(studyKey)
	_, task := enrollment.FindTask(taskID)
	ts := at
	task.LastExecuted = &ts
	return nil
}

func cloneTask(t TaskItemConsent) TaskItemConsent {
	out := t
	if t.LastExecuted != nil {
		ts := *t.LastExecuted
		out.LastExecuted = &ts
	}
	if t.Extra != nil {
		out.Extra = make(map[string]any, len(t.Extra))
		for k, v := range t.Extra {
			out.Extra[k] = v
		}
	}
	return out
}
