package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/core/access"
	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stubs shared by the service tests
// ---------------------------------------------------------------------------

func cloneParticipant(p *domain.Participant) *domain.Participant {
	if p == nil {
		return nil
	}
	c := *p
	c.Studies = make([]domain.StudyEnrollment, len(p.Studies))
	for i, e := range p.Studies {
		ce := e
		ce.TaskItemsConsent = make([]domain.TaskItemConsent, len(e.TaskItemsConsent))
		for j, t := range e.TaskItemsConsent {
			ct := t
			if t.LastExecuted != nil {
				ts := *t.LastExecuted
				ct.LastExecuted = &ts
			}
			ce.TaskItemsConsent[j] = ct
		}
		c.Studies[i] = ce
	}
	return &c
}

type stubParticipantRepo struct {
	byKey      map[string]*domain.Participant
	nextID     int
	replaceErr error
	replaces   int
}

func newStubParticipantRepo(ps ...*domain.Participant) *stubParticipantRepo {
	r := &stubParticipantRepo{byKey: make(map[string]*domain.Participant)}
	for _, p := range ps {
		r.byKey[p.Key] = cloneParticipant(p)
	}
	return r
}

func (r *stubParticipantRepo) Create(_ context.Context, p *domain.Participant) (*domain.Participant, error) {
	for _, existing := range r.byKey {
		if existing.UserKey == p.UserKey {
			return nil, domain.ErrParticipantExists
		}
	}
	r.nextID++
	c := cloneParticipant(p)
	if c.Key == "" {
		c.Key = fmt.Sprintf("p%d", r.nextID)
	}
	r.byKey[c.Key] = c
	return cloneParticipant(c), nil
}

func (r *stubParticipantRepo) FindByKey(_ context.Context, key string) (*domain.Participant, error) {
	p, ok := r.byKey[key]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return cloneParticipant(p), nil
}

func (r *stubParticipantRepo) FindByUserKey(_ context.Context, userKey string) (*domain.Participant, error) {
	for _, p := range r.byKey {
		if p.UserKey == userKey {
			return cloneParticipant(p), nil
		}
	}
	return nil, domain.ErrParticipantNotFound
}

func (r *stubParticipantRepo) List(_ context.Context, f ports.ParticipantFilter) ([]*domain.Participant, error) {
	out := []*domain.Participant{}
	for _, p := range r.byKey {
		if p.PendingDeletion {
			continue
		}
		if f.StudyKeys != nil && !enrolledInAny(p, f.StudyKeys, f.CurrentStatus) {
			continue
		}
		out = append(out, cloneParticipant(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func enrolledInAny(p *domain.Participant, studyKeys []string, status string) bool {
	for _, k := range studyKeys {
		if _, e := p.FindEnrollment(k); e != nil && (status == "" || string(e.CurrentStatus) == status) {
			return true
		}
	}
	return false
}

func (r *stubParticipantRepo) Replace(_ context.Context, p *domain.Participant) error {
	r.replaces++
	if r.replaceErr != nil {
		return r.replaceErr
	}
	stored, ok := r.byKey[p.Key]
	if !ok || stored.Version != p.Version {
		return domain.ErrVersionConflict
	}
	c := cloneParticipant(p)
	c.Version = p.Version + 1
	r.byKey[p.Key] = c
	return nil
}

func (r *stubParticipantRepo) SetPendingDeletion(_ context.Context, key string) error {
	if p, ok := r.byKey[key]; ok {
		p.PendingDeletion = true
	}
	return nil
}

func (r *stubParticipantRepo) ListPendingDeletion(context.Context) ([]*domain.Participant, error) {
	var out []*domain.Participant
	for _, p := range r.byKey {
		if p.PendingDeletion {
			out = append(out, cloneParticipant(p))
		}
	}
	return out, nil
}

func (r *stubParticipantRepo) Delete(_ context.Context, key string) error {
	delete(r.byKey, key)
	return nil
}

func (r *stubParticipantRepo) StatusCounts(_ context.Context, studyKey string) ([]domain.StatusCount, error) {
	counts := map[domain.EnrollmentStatus]int64{}
	for _, p := range r.byKey {
		if _, e := p.FindEnrollment(studyKey); e != nil {
			counts[e.CurrentStatus]++
		}
	}
	var out []domain.StatusCount
	for s, n := range counts {
		out = append(out, domain.StatusCount{Status: s, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

type stubUserRepo struct {
	users   map[string]*domain.User
	deleted []string
}

func newStubUserRepo(users ...*domain.User) *stubUserRepo {
	r := &stubUserRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		c := *u
		r.users[u.Key] = &c
	}
	return r
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) FindByKey(_ context.Context, key string) (*domain.User, error) {
	u, ok := r.users[key]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	if _, err := r.FindByEmail(context.Background(), user.Email); err == nil {
		return nil, domain.ErrUserExists
	}
	c := *user
	if c.Key == "" {
		c.Key = fmt.Sprintf("u%d", len(r.users)+1)
	}
	r.users[c.Key] = &c
	out := c
	return &out, nil
}

func (r *stubUserRepo) Delete(_ context.Context, key string) error {
	delete(r.users, key)
	r.deleted = append(r.deleted, key)
	return nil
}

type stubRecordRepo struct {
	records   map[string]*domain.HealthDataRecord
	nextID    int
	createErr error
	deleteErr error
	completes int
	// beforeDeletePending runs ahead of every conditional delete.
	beforeDeletePending func(key string)
}

func newStubRecordRepo() *stubRecordRepo {
	return &stubRecordRepo{records: make(map[string]*domain.HealthDataRecord)}
}

func (r *stubRecordRepo) CreatePending(_ context.Context, rec *domain.HealthDataRecord) (*domain.HealthDataRecord, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.nextID++
	c := *rec
	c.Key = fmt.Sprintf("r%d", r.nextID)
	c.Status = domain.RecordPending
	c.Attachments = []string{}
	r.records[c.Key] = &c
	out := c
	return &out, nil
}

func (r *stubRecordRepo) Complete(_ context.Context, key string, attachments []string) error {
	r.completes++
	rec, ok := r.records[key]
	if !ok {
		return domain.ErrRecordNotFound
	}
	if rec.Status != domain.RecordPending {
		return domain.ErrRecordNotFound
	}
	rec.Status = domain.RecordComplete
	rec.Attachments = append([]string(nil), attachments...)
	rec.PendingSince = nil
	return nil
}

func (r *stubRecordRepo) Delete(_ context.Context, key string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.records, key)
	return nil
}

func (r *stubRecordRepo) DeletePending(_ context.Context, key string) (bool, error) {
	if r.beforeDeletePending != nil {
		r.beforeDeletePending(key)
	}
	if r.deleteErr != nil {
		return false, r.deleteErr
	}
	rec, ok := r.records[key]
	if !ok || rec.Status != domain.RecordPending {
		return false, nil
	}
	delete(r.records, key)
	return true, nil
}

func (r *stubRecordRepo) List(_ context.Context, f ports.HealthDataFilter) ([]*domain.HealthDataRecord, error) {
	out := []*domain.HealthDataRecord{}
	for _, rec := range r.records {
		if rec.Status != domain.RecordComplete {
			continue
		}
		if f.UserKey != "" && rec.UserKey != f.UserKey {
			continue
		}
		if f.StudyKey != "" && rec.StudyKey != f.StudyKey {
			continue
		}
		c := *rec
		out = append(out, &c)
	}
	return out, nil
}

func (r *stubRecordRepo) ListPendingBefore(_ context.Context, cutoff time.Time) ([]*domain.HealthDataRecord, error) {
	var out []*domain.HealthDataRecord
	for _, rec := range r.records {
		if rec.Status == domain.RecordPending && rec.PendingSince != nil && rec.PendingSince.Before(cutoff) {
			c := *rec
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// stubAttachments keeps finalized blobs by path; aborted writers leave nothing.
type stubAttachments struct {
	blobs     map[string][]byte
	openErr   error
	writeErr  error
	deleteErr error
	opened    int
	aborted   int
	// onClose runs after a writer finalizes its blob.
	onClose func()
}

func newStubAttachments() *stubAttachments {
	return &stubAttachments{blobs: make(map[string][]byte)}
}

func refPath(ref ports.AttachmentRef) string {
	return fmt.Sprintf("%s/%s/%d/%s", ref.UserKey, ref.StudyKey, ref.TaskID, ref.Filename)
}

type stubWriter struct {
	store  *stubAttachments
	path   string
	buf    bytes.Buffer
	closed bool
}

func (w *stubWriter) Write(p []byte) (int, error) {
	if w.store.writeErr != nil {
		return 0, w.store.writeErr
	}
	return w.buf.Write(p)
}

func (w *stubWriter) Close() error {
	w.closed = true
	w.store.blobs[w.path] = w.buf.Bytes()
	if w.store.onClose != nil {
		w.store.onClose()
	}
	return nil
}

func (w *stubWriter) Abort() error {
	if !w.closed {
		w.store.aborted++
	}
	return nil
}

func (s *stubAttachments) OpenWriter(_ context.Context, ref ports.AttachmentRef) (ports.AttachmentWriter, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opened++
	return &stubWriter{store: s, path: refPath(ref)}, nil
}

func (s *stubAttachments) Delete(_ context.Context, ref ports.AttachmentRef) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.blobs, refPath(ref))
	return nil
}

func (s *stubAttachments) DeleteAllForUser(_ context.Context, userKey string) (int, error) {
	n := 0
	for path := range s.blobs {
		if len(path) > len(userKey) && path[:len(userKey)+1] == userKey+"/" {
			delete(s.blobs, path)
			n++
		}
	}
	return n, nil
}

// stubTx runs fn directly; commitErr simulates a failed commit after fn ran.
type stubTx struct {
	commitErr error
	runs      int
}

func (t *stubTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.runs++
	if err := fn(ctx); err != nil {
		return err
	}
	return t.commitErr
}

type stubLocker struct {
	mu       sync.Mutex
	lockErr  error
	held     map[string]bool
	acquired int
}

func (l *stubLocker) Lock(_ context.Context, userKey string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lockErr != nil {
		return nil, l.lockErr
	}
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	l.held[userKey] = true
	l.acquired++
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, userKey)
	}, nil
}

type recordingAudit struct {
	entries []domain.AuditEntry
}

func (a *recordingAudit) Record(_ context.Context, e domain.AuditEntry) {
	a.entries = append(a.entries, e)
}

type recordingNotifier struct {
	notices []ports.StatusChangeNotice
}

func (n *recordingNotifier) NotifyStatusChange(_ context.Context, notice ports.StatusChangeNotice) {
	n.notices = append(n.notices, notice)
}

type recordingIncidents struct {
	errs []error
}

func (r *recordingIncidents) Report(_ context.Context, err error, _ map[string]string) {
	r.errs = append(r.errs, err)
}

type stubDirectory struct {
	studies map[string]*domain.Study
	teams   map[string]*domain.Team
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		studies: map[string]*domain.Study{
			"s1": {Key: "s1", TeamKey: "t1", Generalities: domain.StudyGeneralities{Title: "Sleep study"}},
			"s2": {Key: "s2", TeamKey: "t2", Generalities: domain.StudyGeneralities{Title: "Walk study"}},
		},
		teams: map[string]*domain.Team{
			"t1": {Key: "t1", ResearchersKeys: []string{"r1"}, StudiesKeys: []string{"s1"}},
			"t2": {Key: "t2", ResearchersKeys: []string{"r2"}, StudiesKeys: []string{"s2"}},
		},
	}
}

func (d *stubDirectory) Study(_ context.Context, key string) (*domain.Study, error) {
	s, ok := d.studies[key]
	if !ok {
		return nil, domain.ErrStudyNotFound
	}
	return s, nil
}

func (d *stubDirectory) StudyKeysForTeam(_ context.Context, teamKey string) ([]string, error) {
	t, ok := d.teams[teamKey]
	if !ok {
		return nil, domain.ErrTeamNotFound
	}
	return t.StudiesKeys, nil
}

func (d *stubDirectory) StudyKeysForResearcher(_ context.Context, researcherKey string) ([]string, error) {
	var keys []string
	for _, t := range d.teams {
		if t.HasResearcher(researcherKey) {
			keys = append(keys, t.StudiesKeys...)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Relationship lookups backed by the directory and the participant repo.

func (d *stubDirectory) Team(_ context.Context, teamKey string) (*domain.Team, error) {
	t, ok := d.teams[teamKey]
	if !ok {
		return nil, domain.ErrTeamNotFound
	}
	return t, nil
}

func (d *stubDirectory) TeamsForResearcher(_ context.Context, researcherKey, studyKey string) ([]domain.Team, error) {
	var out []domain.Team
	for _, t := range d.teams {
		if !t.HasResearcher(researcherKey) {
			continue
		}
		if studyKey != "" && !contains(t.StudiesKeys, studyKey) {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

type stubRelationships struct {
	*stubDirectory
	participants *stubParticipantRepo
}

func (s stubRelationships) IsResearcherLinkedToParticipant(ctx context.Context, researcherKey string, ref access.ParticipantRef) (bool, error) {
	p, err := s.participants.FindByUserKey(ctx, ref.UserKey)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, e := range p.Studies {
		teams, _ := s.TeamsForResearcher(ctx, researcherKey, e.StudyKey)
		if len(teams) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func newTestGuard(dir *stubDirectory, participants *stubParticipantRepo) *access.Guard {
	return access.NewGuard(stubRelationships{stubDirectory: dir, participants: participants}, zerolog.Nop())
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var (
	participantActor = access.Actor{Role: domain.RoleParticipant, Key: "u1"}
	researcherActor  = access.Actor{Role: domain.RoleResearcher, Key: "r1"}
	otherResearcher  = access.Actor{Role: domain.RoleResearcher, Key: "r2"}
	adminActor       = access.Actor{Role: domain.RoleAdmin, Key: "a1"}
)

// enrolledParticipant is u1, active in s1 with task 3 registered.
func enrolledParticipant() *domain.Participant {
	return &domain.Participant{
		Key:     "p1",
		UserKey: "u1",
		Studies: []domain.StudyEnrollment{{
			StudyKey:         "s1",
			CurrentStatus:    domain.StatusActive,
			TaskItemsConsent: []domain.TaskItemConsent{{TaskID: 3, Consented: true}},
		}},
	}
}
