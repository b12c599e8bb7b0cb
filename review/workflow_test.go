package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"applyflow/application"
	"applyflow/config"
	"applyflow/notify"
)

const staffChannel = "staff-channel"

func testConfig() *config.Config {
	cfg := &config.Config{
		Questions:           []string{"Why join?", "Prior experience?"},
		Scales:              []int{5, 10, 50, 100},
		StaffConversationID: staffChannel,
	}
	cfg.Templates.Approved = config.Template("Approved: {id} by {reviewer} with {score}/{scale}. {reason}")
	cfg.Templates.Denied = config.Template("Denied: {id} by {reviewer} with {score}/{scale}. {reason}")
	return cfg
}

func newTestWorkflow(t *testing.T, isReviewer ReviewerCheck) (*Workflow, *fakeStore, *memoryLedger, *recordingDispatcher) {
	t.Helper()
	if isReviewer == nil {
		isReviewer = func(context.Context, string) bool { return true }
	}
	store := newFakeStore()
	ledger := newMemoryLedger()
	out := &recordingDispatcher{}
	return NewWorkflow(store, ledger, out, testConfig(), isReviewer), store, ledger, out
}

func submittedApplication(t *testing.T, store *fakeStore, applicantID string) application.Application {
	t.Helper()
	app := store.seedSubmitted(applicantID, []string{"To help out.", "Two years elsewhere."})
	return app
}

func TestWorkflow_PickClaimsOnce(t *testing.T) {
	w, store, _, out := newTestWorkflow(t, nil)
	ctx := context.Background()
	app := submittedApplication(t, store, "applicant-1")
	if err := w.OpenCard(ctx, app); err != nil {
		t.Fatalf("open card: %v", err)
	}

	won, err := w.Pick(ctx, app.ID, "reviewer-x")
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if won.Status != application.StatusClaimed || !won.OwnedBy("reviewer-x") {
		t.Fatalf("expected claim by reviewer-x, got %+v", won)
	}
	edits := len(out.edits)

	if _, err := w.Pick(ctx, app.ID, "reviewer-y"); !errors.Is(err, application.ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed for the losing pick, got %v", err)
	}
	// The losing pick must leave the card untouched.
	if len(out.edits) != edits {
		t.Fatalf("losing pick edited the card: %d -> %d edits", edits, len(out.edits))
	}
	if !strings.Contains(out.edits[edits-1], "Picked by: reviewer-x") {
		t.Fatalf("card must show the claiming reviewer: %q", out.edits[edits-1])
	}
}

func TestWorkflow_NonReviewerRejected(t *testing.T) {
	w, store, _, _ := newTestWorkflow(t, func(_ context.Context, actorID string) bool {
		return actorID == "reviewer-x"
	})
	ctx := context.Background()
	app := submittedApplication(t, store, "applicant-1")

	if _, err := w.Pick(ctx, app.ID, "random-user"); !errors.Is(err, ErrNotReviewer) {
		t.Fatalf("expected ErrNotReviewer, got %v", err)
	}
	if _, err := w.Score(ctx, app.ID, "random-user", 5, 10); !errors.Is(err, ErrNotReviewer) {
		t.Fatalf("expected ErrNotReviewer on score, got %v", err)
	}
	if _, err := w.Decide(ctx, app.ID, "random-user", application.DecisionApproved, "nope"); !errors.Is(err, ErrNotReviewer) {
		t.Fatalf("expected ErrNotReviewer on decide, got %v", err)
	}
}

func TestWorkflow_ScoreValidation(t *testing.T) {
	w, store, _, _ := newTestWorkflow(t, nil)
	ctx := context.Background()
	app := submittedApplication(t, store, "applicant-1")
	if _, err := w.Pick(ctx, app.ID, "reviewer-x"); err != nil {
		t.Fatalf("pick: %v", err)
	}

	// 7 is not one of the configured scales.
	if _, err := w.Score(ctx, app.ID, "reviewer-x", 3, 7); !errors.Is(err, application.ErrInvalidScore) {
		t.Fatalf("expected ErrInvalidScore for unknown scale, got %v", err)
	}
	if _, err := w.Score(ctx, app.ID, "reviewer-x", 60, 50); !errors.Is(err, application.ErrInvalidScore) {
		t.Fatalf("expected ErrInvalidScore above scale, got %v", err)
	}
	if _, err := w.Score(ctx, app.ID, "reviewer-y", 42, 50); !errors.Is(err, application.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for non-claiming reviewer, got %v", err)
	}

	scored, err := w.Score(ctx, app.ID, "reviewer-x", 42, 50)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if scored.Score == nil || *scored.Score != 42 || *scored.Scale != 50 {
		t.Fatalf("expected 42/50, got %+v", scored)
	}
}

func TestWorkflow_DecideDeliversOneResult(t *testing.T) {
	w, store, ledger, out := newTestWorkflow(t, nil)
	ctx := context.Background()
	app := submittedApplication(t, store, "applicant-1")
	if err := w.OpenCard(ctx, app); err != nil {
		t.Fatalf("open card: %v", err)
	}
	// The applicant's conversation still carries the submission summary.
	summaryRef, err := out.Send(ctx, "applicant-1", notify.RoleSummary, "submitted")
	if err != nil {
		t.Fatalf("seed summary: %v", err)
	}
	summaryRef.ApplicationID = app.ID
	if err := ledger.Track(ctx, summaryRef); err != nil {
		t.Fatalf("track summary: %v", err)
	}

	if _, err := w.Pick(ctx, app.ID, "reviewer-x"); err != nil {
		t.Fatalf("pick: %v", err)
	}

	// Deciding before scoring names the missing score.
	if _, err := w.Decide(ctx, app.ID, "reviewer-x", application.DecisionApproved, "early"); !errors.Is(err, application.ErrMissingScore) {
		t.Fatalf("expected ErrMissingScore, got %v", err)
	}

	if _, err := w.Score(ctx, app.ID, "reviewer-x", 42, 50); err != nil {
		t.Fatalf("score: %v", err)
	}
	decided, err := w.Decide(ctx, app.ID, "reviewer-x", application.DecisionApproved, "Great fit")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decided.Status != application.StatusApproved {
		t.Fatalf("expected approved, got %s", decided.Status)
	}

	result := out.lastSendTo(t, "applicant-1")
	if result.role != notify.RoleResult {
		t.Fatalf("expected result message, got %s", result.role)
	}
	want := fmt.Sprintf("Approved: %s by reviewer-x with 42/50. Great fit", app.ID)
	if result.content != want {
		t.Fatalf("result template mismatch:\n got %q\nwant %q", result.content, want)
	}

	// The summary was displaced; the conversation holds only the result.
	refs := ledger.conversation("applicant-1")
	if len(refs) != 1 || refs[0].Role != notify.RoleResult {
		t.Fatalf("expected a single result ref, got %+v", refs)
	}
	if !out.deleted(summaryRef.Handle) {
		t.Fatal("expected the stale summary to be deleted")
	}

	// The card is final.
	lastEdit := out.edits[len(out.edits)-1]
	if !strings.Contains(lastEdit, "(Final)") || !strings.Contains(lastEdit, "Decision: approved") {
		t.Fatalf("expected final card, got %q", lastEdit)
	}

	// A second decision is rejected and sends nothing new to the applicant.
	sends := out.countSendsTo("applicant-1")
	if _, err := w.Decide(ctx, app.ID, "reviewer-x", application.DecisionDenied, "again"); !errors.Is(err, application.ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}
	if out.countSendsTo("applicant-1") != sends {
		t.Fatal("rejected decision must not deliver another result")
	}
}

func TestWorkflow_DeniedUsesDeniedTemplate(t *testing.T) {
	w, store, _, out := newTestWorkflow(t, nil)
	ctx := context.Background()
	app := submittedApplication(t, store, "applicant-1")

	if _, err := w.Pick(ctx, app.ID, "reviewer-x"); err != nil {
		t.Fatalf("pick: %v", err)
	}
	if _, err := w.Score(ctx, app.ID, "reviewer-x", 1, 10); err != nil {
		t.Fatalf("score: %v", err)
	}
	if _, err := w.Decide(ctx, app.ID, "reviewer-x", application.DecisionDenied, "Not enough experience"); err != nil {
		t.Fatalf("decide: %v", err)
	}

	result := out.lastSendTo(t, "applicant-1")
	want := fmt.Sprintf("Denied: %s by reviewer-x with 1/10. Not enough experience", app.ID)
	if result.content != want {
		t.Fatalf("denied template mismatch:\n got %q\nwant %q", result.content, want)
	}
}

func TestWorkflow_TranscriptAuthorization(t *testing.T) {
	w, store, _, out := newTestWorkflow(t, func(_ context.Context, actorID string) bool {
		return actorID == "reviewer-x"
	})
	ctx := context.Background()
	app := submittedApplication(t, store, "applicant-1")

	if err := w.Transcript(ctx, app.ID, "applicant-1"); err != nil {
		t.Fatalf("applicant transcript: %v", err)
	}
	if err := w.Transcript(ctx, app.ID, "reviewer-x"); err != nil {
		t.Fatalf("reviewer transcript: %v", err)
	}
	if err := w.Transcript(ctx, app.ID, "stranger"); !errors.Is(err, ErrNotReviewer) {
		t.Fatalf("expected ErrNotReviewer for stranger, got %v", err)
	}

	dm := out.lastSendTo(t, "reviewer-x")
	if !strings.Contains(dm.content, "Q: Why join?") || !strings.Contains(dm.content, "A: To help out.") {
		t.Fatalf("transcript must pair questions with answers: %q", dm.content)
	}

	if err := w.ConfirmResults(ctx, app.ID, "applicant-1"); err != nil {
		t.Fatalf("confirm results: %v", err)
	}
	summary := out.lastSendTo(t, "applicant-1")
	if !strings.Contains(summary.content, "Status: submitted") || !strings.Contains(summary.content, "Decision: pending") {
		t.Fatalf("unexpected results summary: %q", summary.content)
	}
}

type sentMessage struct {
	conversationID string
	role           notify.Role
	content        string
	handle         string
}

type recordingDispatcher struct {
	mu      sync.Mutex
	sends   []sentMessage
	edits   []string
	deletes []notify.MessageRef
	next    int
}

func (d *recordingDispatcher) Send(_ context.Context, conversationID string, role notify.Role, content string) (notify.MessageRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	msg := sentMessage{conversationID: conversationID, role: role, content: content, handle: fmt.Sprintf("msg-%d", d.next)}
	d.sends = append(d.sends, msg)
	return notify.MessageRef{ConversationID: conversationID, Handle: msg.handle, Role: role}, nil
}

func (d *recordingDispatcher) Edit(_ context.Context, _ notify.MessageRef, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.edits = append(d.edits, content)
	return nil
}

func (d *recordingDispatcher) Delete(_ context.Context, ref notify.MessageRef) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deletes = append(d.deletes, ref)
	return nil
}

func (d *recordingDispatcher) DeleteMany(ctx context.Context, refs []notify.MessageRef) error {
	for _, ref := range refs {
		if err := d.Delete(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

func (d *recordingDispatcher) lastSendTo(t *testing.T, conversationID string) sentMessage {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.sends) - 1; i >= 0; i-- {
		if d.sends[i].conversationID == conversationID {
			return d.sends[i]
		}
	}
	t.Fatalf("no messages sent to %s", conversationID)
	return sentMessage{}
}

func (d *recordingDispatcher) countSendsTo(conversationID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sends {
		if s.conversationID == conversationID {
			n++
		}
	}
	return n
}

func (d *recordingDispatcher) deleted(handle string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ref := range d.deletes {
		if ref.Handle == handle {
			return true
		}
	}
	return false
}

type memoryLedger struct {
	mu   sync.Mutex
	refs []notify.MessageRef
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{}
}

func (l *memoryLedger) Track(_ context.Context, ref notify.MessageRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs = append(l.refs, ref)
	return nil
}

func (l *memoryLedger) Replace(_ context.Context, ref notify.MessageRef) ([]notify.MessageRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var displaced, kept []notify.MessageRef
	for _, r := range l.refs {
		if r.ConversationID == ref.ConversationID && (r.Role == notify.RoleSummary || r.Role == notify.RoleResult) {
			displaced = append(displaced, r)
			continue
		}
		kept = append(kept, r)
	}
	l.refs = append(kept, ref)
	return displaced, nil
}

func (l *memoryLedger) ListByRole(_ context.Context, conversationID string, role notify.Role) ([]notify.MessageRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []notify.MessageRef
	for _, r := range l.refs {
		if r.ConversationID == conversationID && r.Role == role {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *memoryLedger) Find(_ context.Context, conversationID string, role notify.Role, applicationID string) (notify.MessageRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.refs) - 1; i >= 0; i-- {
		r := l.refs[i]
		if r.ConversationID == conversationID && r.Role == role && r.ApplicationID == applicationID {
			return r, nil
		}
	}
	return notify.MessageRef{}, notify.ErrRefNotFound
}

func (l *memoryLedger) Forget(_ context.Context, ref notify.MessageRef) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.refs[:0]
	for _, r := range l.refs {
		if r.ConversationID == ref.ConversationID && r.Handle == ref.Handle {
			continue
		}
		kept = append(kept, r)
	}
	l.refs = kept
	return nil
}

func (l *memoryLedger) ForgetByRole(_ context.Context, conversationID string, roles ...notify.Role) ([]notify.MessageRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	match := func(role notify.Role) bool {
		for _, r := range roles {
			if r == role {
				return true
			}
		}
		return false
	}
	var dropped, kept []notify.MessageRef
	for _, r := range l.refs {
		if r.ConversationID == conversationID && match(r.Role) {
			dropped = append(dropped, r)
			continue
		}
		kept = append(kept, r)
	}
	l.refs = kept
	return dropped, nil
}

func (l *memoryLedger) conversation(conversationID string) []notify.MessageRef {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []notify.MessageRef
	for _, r := range l.refs {
		if r.ConversationID == conversationID {
			out = append(out, r)
		}
	}
	return out
}

type fakeStore struct {
	mu   sync.Mutex
	apps map[string]*application.Application
	next int
}

func newFakeStore() *fakeStore {
	return &fakeStore{apps: make(map[string]*application.Application)}
}

// seedSubmitted drops a fully answered, submitted application into the store.
func (s *fakeStore) seedSubmitted(applicantID string, answers []string) application.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	now := time.Now()
	app := &application.Application{
		ID:          fmt.Sprintf("app-%d", s.next),
		ApplicantID: applicantID,
		Status:      application.StatusSubmitted,
		CreatedAt:   now,
		SubmittedAt: &now,
	}
	for i, body := range answers {
		app.Answers = append(app.Answers, application.Answer{Index: i, Body: body})
	}
	s.apps[app.ID] = app
	return *app
}

func (s *fakeStore) Create(_ context.Context, applicantID string) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	app := &application.Application{
		ID:          fmt.Sprintf("app-%d", s.next),
		ApplicantID: applicantID,
		Status:      application.StatusInProgress,
		CreatedAt:   time.Now(),
	}
	s.apps[app.ID] = app
	return *app, nil
}

func (s *fakeStore) AppendAnswer(_ context.Context, id string, index int, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return application.ErrNotFound
	}
	if app.Status != application.StatusInProgress || index != len(app.Answers) {
		return application.ErrInvalidState
	}
	app.Answers = append(app.Answers, application.Answer{Index: index, Body: body})
	return nil
}

func (s *fakeStore) Submit(_ context.Context, id string, questionCount int) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return application.Application{}, application.ErrNotFound
	}
	if app.Status != application.StatusInProgress || len(app.Answers) != questionCount {
		return application.Application{}, application.ErrInvalidState
	}
	now := time.Now()
	app.Status = application.StatusSubmitted
	app.SubmittedAt = &now
	return *app, nil
}

func (s *fakeStore) Claim(_ context.Context, id, reviewerID string) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return application.Application{}, application.ErrNotFound
	}
	if app.Status.Terminal() {
		return application.Application{}, application.ErrAlreadyDecided
	}
	if app.ReviewerID != nil {
		return application.Application{}, application.ErrAlreadyClaimed
	}
	if app.Status != application.StatusSubmitted {
		return application.Application{}, application.ErrInvalidState
	}
	app.Status = application.StatusClaimed
	app.ReviewerID = &reviewerID
	return *app, nil
}

func (s *fakeStore) SetScore(_ context.Context, id, reviewerID string, value, scale int) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return application.Application{}, application.ErrNotFound
	}
	if value < 0 || value > scale {
		return application.Application{}, application.ErrInvalidScore
	}
	if app.Status.Terminal() {
		return application.Application{}, application.ErrAlreadyDecided
	}
	if !app.OwnedBy(reviewerID) {
		return application.Application{}, application.ErrNotOwner
	}
	if app.Status != application.StatusClaimed {
		return application.Application{}, application.ErrInvalidState
	}
	app.Status = application.StatusScored
	app.Score = &value
	app.Scale = &scale
	return *app, nil
}

func (s *fakeStore) Decide(_ context.Context, id, reviewerID string, decision application.Decision, reason string) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return application.Application{}, application.ErrNotFound
	}
	if app.Score == nil {
		return application.Application{}, application.ErrMissingScore
	}
	if app.Status.Terminal() {
		return application.Application{}, application.ErrAlreadyDecided
	}
	if !app.OwnedBy(reviewerID) {
		return application.Application{}, application.ErrNotOwner
	}
	now := time.Now()
	app.Status = application.Status(decision)
	app.Decision = &decision
	app.Reason = &reason
	app.DecidedAt = &now
	return *app, nil
}

func (s *fakeStore) Get(_ context.Context, id string) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return application.Application{}, application.ErrNotFound
	}
	return *app, nil
}

func (s *fakeStore) GetByApplicant(_ context.Context, applicantID string) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *application.Application
	for _, app := range s.apps {
		if app.ApplicantID != applicantID {
			continue
		}
		if latest == nil || app.CreatedAt.After(latest.CreatedAt) {
			latest = app
		}
	}
	if latest == nil {
		return application.Application{}, application.ErrNotFound
	}
	return *latest, nil
}
