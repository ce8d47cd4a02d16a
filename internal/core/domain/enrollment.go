package domain

import "fmt"

// EnrollmentChange describes the effect of UpsertEnrollment. PriorStatus is
// captured before the payload is applied.
type EnrollmentChange struct {
	PriorStatus EnrollmentStatus
	NewStatus   EnrollmentStatus
	Created     bool
	Removed     bool
	NoOp        bool
}

// StatusChanged reports whether the enrollment was written with a status
// different from the one it had before. Removals and no-ops never count.
func (c EnrollmentChange) StatusChanged() bool {
	if c.NoOp || c.Removed {
		return false
	}
	return c.PriorStatus != c.NewStatus
}

// FindEnrollment returns the index and a pointer to the enrollment for
// studyKey, or -1 and nil.
func (p *Participant) FindEnrollment(studyKey string) (int, *StudyEnrollment) {
	for i := range p.Studies {
		if p.Studies[i].StudyKey == studyKey {
			return i, &p.Studies[i]
		}
	}
	return -1, nil
}

// UpsertEnrollment applies a status block to the enrollment for studyKey.
//
// A nil payload is the empty payload: it removes an existing enrollment and is
// a no-op when there is none. A non-empty payload replaces the whole
// sub-record; fields absent from the payload are dropped. The enrollment is
// created when missing.
func (p *Participant) UpsertEnrollment(studyKey string, payload *StudyEnrollment) (EnrollmentChange, error) {
	if studyKey == "" {
		return EnrollmentChange{}, ErrMissingStudyKey
	}

	idx, current := p.FindEnrollment(studyKey)

	if payload == nil {
		if current == nil {
			return EnrollmentChange{NoOp: true}, nil
		}
		change := EnrollmentChange{PriorStatus: current.CurrentStatus, Removed: true}
		p.Studies = append(p.Studies[:idx], p.Studies[idx+1:]...)
		return change, nil
	}

	if !payload.CurrentStatus.Known() {
		return EnrollmentChange{}, fmt.Errorf("%w: %q", ErrUnknownStatus, payload.CurrentStatus)
	}
	if err := checkUniqueTasks(payload.TaskItemsConsent); err != nil {
		return EnrollmentChange{}, err
	}

	next := cloneEnrollment(*payload)
	next.StudyKey = studyKey

	if current == nil {
		p.Studies = append(p.Studies, next)
		return EnrollmentChange{PriorStatus: StatusUnset, NewStatus: next.CurrentStatus, Created: true}, nil
	}

	change := EnrollmentChange{PriorStatus: current.CurrentStatus, NewStatus: next.CurrentStatus}
	p.Studies[idx] = next
	return change, nil
}

func checkUniqueTasks(tasks []TaskItemConsent) error {
	seen := make(map[int]struct{}, len(tasks))
	for _, t := range tasks {
		if _, dup := seen[t.TaskID]; dup {
			return fmt.Errorf("%w: duplicate taskId %d", ErrInvalidPayload, t.TaskID)
		}
		seen[t.TaskID] = struct{}{}
	}
	return nil
}

func cloneEnrollment(e StudyEnrollment) StudyEnrollment {
	out := e
	if e.Timestamp != nil {
		ts := *e.Timestamp
		out.Timestamp = &ts
	}
	if e.CriteriaAnswers != nil {
		out.CriteriaAnswers = append([]string(nil), e.CriteriaAnswers...)
	}
	if e.ExtraItemsConsent != nil {
		out.ExtraItemsConsent = append([]ExtraItemConsent(nil), e.ExtraItemsConsent...)
	}
	out.TaskItemsConsent = make([]TaskItemConsent, len(e.TaskItemsConsent))
	for i, t := range e.TaskItemsConsent {
		out.TaskItemsConsent[i] = cloneTask(t)
	}
	return out
}
