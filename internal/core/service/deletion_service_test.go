package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

type stubPurger struct {
	collections []string
	failOn      string
	purged      map[string][]string
}

func (p *stubPurger) Collections() []string { return p.collections }

func (p *stubPurger) DeleteByUser(_ context.Context, collection, userKey string) (int64, error) {
	if collection == p.failOn {
		return 0, domain.ErrStoreUnavailable
	}
	if p.purged == nil {
		p.purged = make(map[string][]string)
	}
	p.purged[collection] = append(p.purged[collection], userKey)
	return 1, nil
}

type deletionFixture struct {
	svc         *DeletionService
	repo        *stubParticipantRepo
	users       *stubUserRepo
	attachments *stubAttachments
	purger      *stubPurger
	audit       *recordingAudit
}

func newDeletionFixture(ps ...*domain.Participant) *deletionFixture {
	f := &deletionFixture{
		repo:        newStubParticipantRepo(ps...),
		users:       newStubUserRepo(&domain.User{Key: "u1", Email: "u1@example.com"}),
		attachments: newStubAttachments(),
		purger:      &stubPurger{collections: []string{"answers", "healthStoreData", "tasksResults"}},
		audit:       &recordingAudit{},
	}
	f.attachments.blobs["u1/s1/3/r1.json"] = []byte("{}")
	f.attachments.blobs["u2/s1/3/r2.json"] = []byte("{}")
	f.svc = NewDeletionService(DeletionDeps{
		Participants: f.repo,
		Users:        f.users,
		Attachments:  f.attachments,
		Purger:       f.purger,
		Audit:        f.audit,
	}, zerolog.Nop())
	return f
}

func TestDeletionService_DeleteParticipant(t *testing.T) {
	f := newDeletionFixture(enrolledParticipant())
	ctx := context.Background()
	p, _ := f.repo.FindByKey(ctx, "p1")

	if err := f.svc.DeleteParticipant(ctx, "a1", p); err != nil {
		t.Fatalf("DeleteParticipant returned error: %v", err)
	}
	if _, err := f.repo.FindByKey(ctx, "p1"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("participant should be gone, got %v", err)
	}
	if _, err := f.users.FindByKey(ctx, "u1"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("user should be gone, got %v", err)
	}
	if _, ok := f.attachments.blobs["u1/s1/3/r1.json"]; ok {
		t.Fatalf("user attachments should be deleted")
	}
	if _, ok := f.attachments.blobs["u2/s1/3/r2.json"]; !ok {
		t.Fatalf("other users' attachments must be kept")
	}
	for _, c := range f.purger.collections {
		if len(f.purger.purged[c]) != 1 {
			t.Fatalf("collection %s not purged", c)
		}
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].EventType != domain.AuditParticipantDeleted {
		t.Fatalf("expected participantDeleted audit, got %+v", f.audit.entries)
	}
}

func TestDeletionService_InterruptedJobResumes(t *testing.T) {
	f := newDeletionFixture(enrolledParticipant())
	ctx := context.Background()
	f.purger.failOn = "healthStoreData"
	p, _ := f.repo.FindByKey(ctx, "p1")

	if err := f.svc.DeleteParticipant(ctx, "u1", p); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	stored, err := f.repo.FindByKey(ctx, "p1")
	if err != nil || !stored.PendingDeletion {
		t.Fatalf("participant should remain flagged for deletion: %+v (%v)", stored, err)
	}
	if len(f.audit.entries) != 0 {
		t.Fatalf("incomplete deletion must not be audited")
	}

	f.purger.failOn = ""
	n, err := f.svc.ResumePending(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ResumePending: expected 1 resumed job, got %d (%v)", n, err)
	}
	if _, err := f.repo.FindByKey(ctx, "p1"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("participant should be gone after resume")
	}
	// Running the job again on an already-deleted participant is harmless.
	if err := f.svc.DeleteParticipant(ctx, "u1", stored); err != nil {
		t.Fatalf("repeated deletion returned error: %v", err)
	}
}
