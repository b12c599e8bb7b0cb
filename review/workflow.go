// Package review implements the staff-side claim/score/decide workflow.
//
// Every mutation goes through the application store first; the review card
// and applicant notifications are updated only after the state transition has
// committed, so a transport failure can delay a message but never corrupt an
// application.
package review

import (
	"context"
	"errors"
	"log"

	"applyflow/application"
	"applyflow/config"
	"applyflow/notify"
)

// ErrNotReviewer signals the actor is not permitted to act as a reviewer.
var ErrNotReviewer = errors.New("review: not authorized to review applications")

// ReviewerCheck is the authorization predicate supplied at startup.
type ReviewerCheck func(ctx context.Context, actorID string) bool

// Workflow coordinates staff actions on submitted applications.
type Workflow struct {
	store  application.Store
	ledger notify.Ledger
	out    notify.Dispatcher

	staffConversationID string
	approved            config.Template
	denied              config.Template
	scales              []int
	questions           []string
	isReviewer          ReviewerCheck
}

// NewWorkflow builds the workflow from the startup snapshot.
func NewWorkflow(store application.Store, ledger notify.Ledger, out notify.Dispatcher, cfg *config.Config, isReviewer ReviewerCheck) *Workflow {
	return &Workflow{
		store:               store,
		ledger:              ledger,
		out:                 out,
		staffConversationID: cfg.StaffConversationID,
		approved:            cfg.Templates.Approved,
		denied:              cfg.Templates.Denied,
		scales:              cfg.Scales,
		questions:           cfg.Questions,
		isReviewer:          isReviewer,
	}
}

// OpenCard posts the review card for a freshly submitted application into the
// staff conversation and tracks its ref. The card is edited in place for the
// rest of the application's life.
func (w *Workflow) OpenCard(ctx context.Context, app application.Application) error {
	ref, err := w.out.Send(ctx, w.staffConversationID, notify.RoleStaffReviewCard, renderCard(app, w.questions))
	if err != nil {
		return err
	}
	ref.ApplicationID = app.ID
	return w.ledger.Track(ctx, ref)
}

// Pick claims the application for actorID. Exactly one of N concurrent picks
// succeeds; losers receive ErrAlreadyClaimed and the card is left untouched.
func (w *Workflow) Pick(ctx context.Context, id, actorID string) (application.Application, error) {
	if !w.isReviewer(ctx, actorID) {
		return application.Application{}, ErrNotReviewer
	}

	app, err := w.store.Claim(ctx, id, actorID)
	if err != nil {
		return application.Application{}, err
	}

	w.editCard(ctx, app)
	return app, nil
}

// Score records value on the given scale for a claimed application. Only the
// claiming reviewer may score, and the scale must belong to the configured set.
func (w *Workflow) Score(ctx context.Context, id, actorID string, value, scale int) (application.Application, error) {
	if !w.isReviewer(ctx, actorID) {
		return application.Application{}, ErrNotReviewer
	}
	if !w.validScale(scale) {
		return application.Application{}, application.ErrInvalidScore
	}

	app, err := w.store.SetScore(ctx, id, actorID, value, scale)
	if err != nil {
		return application.Application{}, err
	}

	w.editCard(ctx, app)
	return app, nil
}

// Decide moves a scored application to its terminal status, locks the card
// and delivers exactly one result message to the applicant, replacing the
// earlier summary.
func (w *Workflow) Decide(ctx context.Context, id, actorID string, decision application.Decision, reason string) (application.Application, error) {
	if !w.isReviewer(ctx, actorID) {
		return application.Application{}, ErrNotReviewer
	}

	app, err := w.store.Decide(ctx, id, actorID, decision, reason)
	if err != nil {
		return application.Application{}, err
	}

	// The decision is durable from here on; everything below is delivery.
	w.editCard(ctx, app)
	w.deliverResult(ctx, app)
	return app, nil
}

// Transcript sends the full ordered answer transcript as a DM to the
// requester. Permitted to the applicant themself or to any reviewer; never
// mutates application or card state.
func (w *Workflow) Transcript(ctx context.Context, id, actorID string) error {
	app, err := w.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if actorID != app.ApplicantID && !w.isReviewer(ctx, actorID) {
		return ErrNotReviewer
	}

	if _, err := w.out.Send(ctx, actorID, notify.RoleTranscript, renderTranscript(app, w.questions)); err != nil {
		return err
	}
	return nil
}

// ConfirmResults sends the current status summary for an application as a DM
// to the requester. Same read-only authorization as Transcript.
func (w *Workflow) ConfirmResults(ctx context.Context, id, actorID string) error {
	app, err := w.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if actorID != app.ApplicantID && !w.isReviewer(ctx, actorID) {
		return ErrNotReviewer
	}

	if _, err := w.out.Send(ctx, actorID, notify.RoleTranscript, renderResults(app)); err != nil {
		return err
	}
	return nil
}

// deliverResult clears every non-result message the service owns in the
// applicant's conversation and sends the single templated result. Failures
// are logged and swallowed: the decision has already committed and the store
// is the source of truth.
func (w *Workflow) deliverResult(ctx context.Context, app application.Application) {
	stale, err := w.ledger.ForgetByRole(ctx, app.ApplicantID, notify.RoleQuestionPrompt, notify.RoleSummary)
	if err != nil {
		log.Printf("review: forget applicant refs for %s: %v", app.ID, err)
	}
	notify.Discard(ctx, w.out, stale...)

	tmpl := w.approved
	if app.Decision != nil && *app.Decision == application.DecisionDenied {
		tmpl = w.denied
	}
	content := tmpl.Render(resultValues(app))

	ref, err := w.out.Send(ctx, app.ApplicantID, notify.RoleResult, content)
	if err != nil {
		log.Printf("review: send result for %s: %v", app.ID, err)
		return
	}
	ref.ApplicationID = app.ID
	displaced, err := w.ledger.Replace(ctx, ref)
	if err != nil {
		log.Printf("review: track result for %s: %v", app.ID, err)
		return
	}
	notify.Discard(ctx, w.out, displaced...)
}

// editCard rewrites the staff review card in place. Best-effort: the card may
// have been removed out-of-band, which must not block the workflow.
func (w *Workflow) editCard(ctx context.Context, app application.Application) {
	ref, err := w.ledger.Find(ctx, w.staffConversationID, notify.RoleStaffReviewCard, app.ID)
	if err != nil {
		if !errors.Is(err, notify.ErrRefNotFound) {
			log.Printf("review: find card for %s: %v", app.ID, err)
		}
		return
	}
	if err := w.out.Edit(ctx, ref, renderCard(app, w.questions)); err != nil {
		log.Printf("review: edit card for %s: %v", app.ID, err)
	}
}

func (w *Workflow) validScale(scale int) bool {
	for _, s := range w.scales {
		if s == scale {
			return true
		}
	}
	return false
}

func resultValues(app application.Application) config.Values {
	v := config.Values{ID: app.ID}
	if app.ReviewerID != nil {
		v.Reviewer = *app.ReviewerID
	}
	if app.Score != nil {
		v.Score = *app.Score
	}
	if app.Scale != nil {
		v.Scale = *app.Scale
	}
	if app.Reason != nil {
		v.Reason = *app.Reason
	}
	return v
}
