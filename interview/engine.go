// Package interview drives the DM question/answer sequence for applicants.
//
// The engine holds no per-applicant state between events: every incoming
// message re-derives its position from the store, so an interview survives a
// process restart and resumes at the first unanswered question.
package interview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"applyflow/application"
	"applyflow/notify"
)

// CardOpener posts the staff review card once an application is submitted.
// The review workflow satisfies this.
type CardOpener interface {
	OpenCard(ctx context.Context, app application.Application) error
}

// Engine runs interviews against the configured question list.
type Engine struct {
	store    application.Store
	cooldown application.CooldownGate
	ledger   notify.Ledger
	out      notify.Dispatcher
	cards    CardOpener

	questions []string
	window    time.Duration
}

// NewEngine builds an engine over the given collaborators. The question list
// and cooldown window are startup snapshots and never change mid-interview.
func NewEngine(store application.Store, cooldown application.CooldownGate, ledger notify.Ledger, out notify.Dispatcher, questions []string, window time.Duration) *Engine {
	return &Engine{
		store:     store,
		cooldown:  cooldown,
		ledger:    ledger,
		out:       out,
		questions: questions,
		window:    window,
	}
}

// WithCardOpener attaches the submitted-application hook.
func (e *Engine) WithCardOpener(cards CardOpener) *Engine {
	e.cards = cards
	return e
}

// Start handles the apply command: it checks the cooldown, creates the
// application and sends the first question prompt into the applicant's DM
// conversation. Applicant DM conversations are addressed by the applicant id;
// the transport adapter behind the dispatcher resolves the actual channel.
//
// A rejected apply (cooldown or an interview already running) leaves no state
// behind; callers surface the sentinel as a notice to the applicant only.
func (e *Engine) Start(ctx context.Context, applicantID string) (application.Application, error) {
	if err := e.cooldown.Check(ctx, applicantID, e.window); err != nil {
		return application.Application{}, err
	}

	app, err := e.store.Create(ctx, applicantID)
	if err != nil {
		return application.Application{}, err
	}

	if err := e.cooldown.Touch(ctx, applicantID); err != nil {
		return application.Application{}, err
	}

	if err := e.sendPrompt(ctx, applicantID, app.ID, 0); err != nil {
		return application.Application{}, err
	}

	return app, nil
}

// HandleMessage consumes one applicant text event. Text with no active
// interview behind it is ignored, not an error.
func (e *Engine) HandleMessage(ctx context.Context, applicantID, text string) error {
	app, err := e.store.GetByApplicant(ctx, applicantID)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			return nil
		}
		return err
	}
	if app.Status != application.StatusInProgress {
		return nil
	}

	index := app.NextIndex()
	if err := e.store.AppendAnswer(ctx, app.ID, index, text); err != nil {
		// A lost race against a concurrent append is stray input too.
		if errors.Is(err, application.ErrInvalidState) {
			return nil
		}
		return err
	}

	if index+1 < len(e.questions) {
		return e.sendPrompt(ctx, applicantID, app.ID, index+1)
	}

	return e.finish(ctx, applicantID, app.ID)
}

// finish submits the application, tears down the question prompts and leaves a
// single summary message in the applicant's conversation. State transitions
// first; message I/O follows and never blocks them.
func (e *Engine) finish(ctx context.Context, conversationID, id string) error {
	app, err := e.store.Submit(ctx, id, len(e.questions))
	if err != nil {
		return err
	}

	prompts, err := e.ledger.ForgetByRole(ctx, conversationID, notify.RoleQuestionPrompt)
	if err != nil {
		return err
	}
	notify.Discard(ctx, e.out, prompts...)

	summary := fmt.Sprintf(
		"Your application has been submitted and will be reviewed by staff.\nApplication ID: %s\nKeep this ID to check your application later.",
		app.ID,
	)
	ref, err := e.out.Send(ctx, conversationID, notify.RoleSummary, summary)
	if err != nil {
		return fmt.Errorf("interview: send summary: %w", err)
	}
	ref.ApplicationID = app.ID
	displaced, err := e.ledger.Replace(ctx, ref)
	if err != nil {
		return err
	}
	notify.Discard(ctx, e.out, displaced...)

	if e.cards != nil {
		if err := e.cards.OpenCard(ctx, app); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) sendPrompt(ctx context.Context, conversationID, id string, index int) error {
	content := fmt.Sprintf("Question %d of %d\n%s\n(Application %s)", index+1, len(e.questions), e.questions[index], id)
	ref, err := e.out.Send(ctx, conversationID, notify.RoleQuestionPrompt, content)
	if err != nil {
		return fmt.Errorf("interview: send prompt %d: %w", index, err)
	}
	ref.ApplicationID = id
	return e.ledger.Track(ctx, ref)
}
