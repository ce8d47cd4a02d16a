package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

type participantFixture struct {
	svc      *ParticipantService
	repo     *stubParticipantRepo
	users    *stubUserRepo
	locker   *stubLocker
	audit    *recordingAudit
	notifier *recordingNotifier
	deletion *stubDeletion
}

type stubDeletion struct {
	deleted []string
}

func (d *stubDeletion) DeleteParticipant(_ context.Context, _ string, p *domain.Participant) error {
	d.deleted = append(d.deleted, p.Key)
	return nil
}

func (d *stubDeletion) ResumePending(context.Context) (int, error) { return 0, nil }

func newParticipantFixture(ps ...*domain.Participant) *participantFixture {
	repo := newStubParticipantRepo(ps...)
	dir := newStubDirectory()
	f := &participantFixture{
		repo:     repo,
		users:    newStubUserRepo(&domain.User{Key: "u1", Email: "u1@example.com", Role: domain.RoleParticipant}),
		locker:   &stubLocker{},
		audit:    &recordingAudit{},
		notifier: &recordingNotifier{},
		deletion: &stubDeletion{},
	}
	f.svc = NewParticipantService(ParticipantDeps{
		Participants: repo,
		Users:        f.users,
		Directory:    dir,
		Locker:       f.locker,
		Guard:        newTestGuard(dir, repo),
		Audit:        f.audit,
		Notifier:     f.notifier,
		Deletion:     f.deletion,
	}, zerolog.Nop())
	f.svc.now = fixedClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	return f
}

func TestParticipantService_Create(t *testing.T) {
	f := newParticipantFixture()
	ctx := context.Background()

	p, err := f.svc.Create(ctx, participantActor, domain.Profile{Name: "Ada"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if p.UserKey != "u1" || p.Name != "Ada" || p.Key == "" {
		t.Fatalf("unexpected participant: %+v", p)
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].EventType != domain.AuditParticipantCreated {
		t.Fatalf("expected participantCreated audit, got %+v", f.audit.entries)
	}

	if _, err := f.svc.Create(ctx, participantActor, domain.Profile{}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate: expected ErrConflict, got %v", err)
	}
	if _, err := f.svc.Create(ctx, adminActor, domain.Profile{}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("admin: expected ErrForbidden, got %v", err)
	}
}

func TestParticipantService_UpdateEnrollment_StatusChangeNotifies(t *testing.T) {
	f := newParticipantFixture(enrolledParticipant())
	ctx := context.Background()

	payload := &domain.StudyEnrollment{
		CurrentStatus:    domain.StatusWithdrawn,
		WithdrawalReason: "moving abroad",
		TaskItemsConsent: []domain.TaskItemConsent{{TaskID: 3, Consented: true}},
	}
	p, err := f.svc.UpdateEnrollment(ctx, participantActor, "u1", "s1", payload)
	if err != nil {
		t.Fatalf("UpdateEnrollment returned error: %v", err)
	}
	if _, e := p.FindEnrollment("s1"); e == nil || e.CurrentStatus != domain.StatusWithdrawn {
		t.Fatalf("expected withdrawn enrollment, got %+v", p.Studies)
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].EventType != domain.AuditParticipantStudyUpdate {
		t.Fatalf("expected participantStudyUpdate audit, got %+v", f.audit.entries)
	}
	if len(f.notifier.notices) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(f.notifier.notices))
	}
	n := f.notifier.notices[0]
	if n.PriorStatus != domain.StatusActive || n.NewStatus != domain.StatusWithdrawn || n.StudyKey != "s1" {
		t.Fatalf("unexpected notice: %+v", n)
	}

	// Resubmitting the same status does not notify again.
	if _, err := f.svc.UpdateEnrollment(ctx, participantActor, "u1", "s1", payload); err != nil {
		t.Fatalf("second UpdateEnrollment returned error: %v", err)
	}
	if len(f.notifier.notices) != 1 {
		t.Fatalf("unchanged status must not notify, got %d notices", len(f.notifier.notices))
	}

	stored, _ := f.repo.FindByUserKey(ctx, "u1")
	if stored.Version != 2 {
		t.Fatalf("expected version 2 after two writes, got %d", stored.Version)
	}
	if f.locker.acquired != 2 || len(f.locker.held) != 0 {
		t.Fatalf("expected two released lock acquisitions, got %d held=%v", f.locker.acquired, f.locker.held)
	}
}

func TestParticipantService_UpdateEnrollment_EmptyPayload(t *testing.T) {
	f := newParticipantFixture(enrolledParticipant())
	ctx := context.Background()

	p, err := f.svc.UpdateEnrollment(ctx, participantActor, "u1", "s1", nil)
	if err != nil {
		t.Fatalf("UpdateEnrollment returned error: %v", err)
	}
	if len(p.Studies) != 0 {
		t.Fatalf("expected enrollment removed, got %+v", p.Studies)
	}
	if len(f.notifier.notices) != 0 {
		t.Fatalf("removal must not notify")
	}

	// Nothing left to remove: no-op, no write, no audit.
	replaces := f.repo.replaces
	audits := len(f.audit.entries)
	if _, err := f.svc.UpdateEnrollment(ctx, participantActor, "u1", "s1", nil); err != nil {
		t.Fatalf("no-op returned error: %v", err)
	}
	if f.repo.replaces != replaces || len(f.audit.entries) != audits {
		t.Fatalf("no-op must not write or audit")
	}
}

func TestParticipantService_UpdateEnrollment_ResetLogLevel(t *testing.T) {
	cases := []struct {
		name     string
		testUser bool
		want     string
	}{
		{"regular user", false, `"level":"info"`},
		{"test user", true, `"level":"debug"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newParticipantFixture(enrolledParticipant())
			f.users.users["u1"].TestUser = tc.testUser
			var buf bytes.Buffer
			f.svc.log = zerolog.New(&buf).Level(zerolog.DebugLevel)

			if _, err := f.svc.UpdateEnrollment(context.Background(), participantActor, "u1", "s1", nil); err != nil {
				t.Fatalf("UpdateEnrollment returned error: %v", err)
			}

			var resets []string
			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				if strings.Contains(line, "enrollment reset requested") {
					resets = append(resets, line)
				}
			}
			if len(resets) != 1 {
				t.Fatalf("expected one reset line, got %d: %q", len(resets), buf.String())
			}
			if !strings.Contains(resets[0], tc.want) {
				t.Fatalf("expected %s in %s", tc.want, resets[0])
			}
		})
	}
}

func TestParticipantService_UpdateEnrollment_Forbidden(t *testing.T) {
	f := newParticipantFixture(enrolledParticipant())
	ctx := context.Background()
	payload := &domain.StudyEnrollment{CurrentStatus: domain.StatusActive}

	if _, err := f.svc.UpdateEnrollment(ctx, researcherActor, "u1", "s1", payload); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("researcher: expected ErrForbidden, got %v", err)
	}
	other := participantActor
	other.Key = "u9"
	if _, err := f.svc.UpdateEnrollment(ctx, other, "u1", "s1", payload); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("other participant: expected ErrForbidden, got %v", err)
	}
	if f.repo.replaces != 0 || f.locker.acquired != 0 {
		t.Fatalf("denied requests must not touch the stores")
	}
}

func TestParticipantService_UpdateEnrollment_VersionConflict(t *testing.T) {
	f := newParticipantFixture(enrolledParticipant())
	f.repo.replaceErr = domain.ErrVersionConflict

	_, err := f.svc.UpdateEnrollment(context.Background(), adminActor, "u1", "s1", &domain.StudyEnrollment{CurrentStatus: domain.StatusCompleted})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if len(f.audit.entries) != 0 || len(f.notifier.notices) != 0 {
		t.Fatalf("failed update must not audit or notify")
	}
}

func TestParticipantService_UpdateTaskConsent(t *testing.T) {
	f := newParticipantFixture(enrolledParticipant())
	ctx := context.Background()

	p, err := f.svc.UpdateTaskConsent(ctx, participantActor, "u1", "s1", 3, domain.TaskItemConsent{Consented: false})
	if err != nil {
		t.Fatalf("UpdateTaskConsent returned error: %v", err)
	}
	if p.Studies[0].TaskItemsConsent[0].Consented {
		t.Fatalf("expected consent revoked")
	}
	if _, err := f.svc.UpdateTaskConsent(ctx, participantActor, "u1", "s1", 4, domain.TaskItemConsent{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown task: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.UpdateTaskConsent(ctx, participantActor, "u1", "s2", 3, domain.TaskItemConsent{}); !errors.Is(err, domain.ErrEnrollmentNotFound) {
		t.Fatalf("unknown study: expected ErrEnrollmentNotFound, got %v", err)
	}
	if f.repo.replaces != 1 {
		t.Fatalf("expected one replace, got %d", f.repo.replaces)
	}
}

func TestParticipantService_Get(t *testing.T) {
	f := newParticipantFixture(enrolledParticipant())
	ctx := context.Background()

	if _, err := f.svc.Get(ctx, researcherActor, "p1"); err != nil {
		t.Fatalf("linked researcher: %v", err)
	}
	if _, err := f.svc.Get(ctx, otherResearcher, "p1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("unlinked researcher: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Get(ctx, adminActor, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing participant: expected ErrNotFound, got %v", err)
	}
}

func TestParticipantService_List(t *testing.T) {
	p2 := &domain.Participant{Key: "p2", UserKey: "u2", Studies: []domain.StudyEnrollment{{StudyKey: "s2", CurrentStatus: domain.StatusActive}}}
	f := newParticipantFixture(enrolledParticipant(), p2)
	ctx := context.Background()

	all, err := f.svc.List(ctx, adminActor, ports.ListParticipantsInput{})
	if err != nil || len(all) != 2 {
		t.Fatalf("admin: expected 2 participants, got %d (%v)", len(all), err)
	}

	mine, err := f.svc.List(ctx, researcherActor, ports.ListParticipantsInput{})
	if err != nil || len(mine) != 1 || mine[0].Key != "p1" {
		t.Fatalf("researcher: expected only p1, got %+v (%v)", mine, err)
	}

	if _, err := f.svc.List(ctx, researcherActor, ports.ListParticipantsInput{StudyKey: "s2"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("researcher on foreign study: expected ErrForbidden, got %v", err)
	}

	withdrawn, err := f.svc.List(ctx, researcherActor, ports.ListParticipantsInput{StudyKey: "s1", CurrentStatus: "withdrawn"})
	if err != nil || len(withdrawn) != 0 {
		t.Fatalf("status filter: expected none, got %+v (%v)", withdrawn, err)
	}

	self, err := f.svc.List(ctx, participantActor, ports.ListParticipantsInput{})
	if err != nil || len(self) != 1 || self[0].UserKey != "u1" {
		t.Fatalf("participant: expected own profile only, got %+v (%v)", self, err)
	}
}

func TestParticipantService_StatusStats(t *testing.T) {
	f := newParticipantFixture(enrolledParticipant())
	ctx := context.Background()

	stats, err := f.svc.StatusStats(ctx, researcherActor, "s1")
	if err != nil {
		t.Fatalf("StatusStats returned error: %v", err)
	}
	if len(stats) != 1 || stats[0].Status != domain.StatusActive || stats[0].Count != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if _, err := f.svc.StatusStats(ctx, participantActor, "s1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("participant: expected ErrForbidden, got %v", err)
	}
}

func TestParticipantService_Delete(t *testing.T) {
	f := newParticipantFixture(enrolledParticipant())
	ctx := context.Background()

	if err := f.svc.Delete(ctx, researcherActor, "p1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("researcher: expected ErrForbidden, got %v", err)
	}
	if err := f.svc.DeleteByUserKey(ctx, participantActor, "u1"); err != nil {
		t.Fatalf("self delete: %v", err)
	}
	if len(f.deletion.deleted) != 1 || f.deletion.deleted[0] != "p1" {
		t.Fatalf("expected deletion job for p1, got %v", f.deletion.deleted)
	}
}

func TestParticipantService_UpdateProfileKeepsStudies(t *testing.T) {
	f := newParticipantFixture(enrolledParticipant())

	p, err := f.svc.UpdateProfile(context.Background(), participantActor, "u1", domain.Profile{Name: "Grace", Country: "it"})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if p.Name != "Grace" || len(p.Studies) != 1 {
		t.Fatalf("unexpected participant: %+v", p)
	}
	if !p.UpdatedTS.Equal(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected updatedTS to be stamped, got %v", p.UpdatedTS)
	}
}
