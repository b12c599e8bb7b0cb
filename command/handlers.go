// Package command is the external entry point layer: it feeds transport
// events into the interview engine and the review workflow and translates
// every domain rejection into an ephemeral notice for the invoking actor.
package command

import (
	"context"
	"errors"
	"fmt"

	"applyflow/application"
	"applyflow/interview"
	"applyflow/review"
)

// Notice is an ephemeral reply shown to the invoking actor only. Domain
// rejections never crash and never broadcast; they become notices.
type Notice string

// Handler wires the command surface to the core services.
type Handler struct {
	engine  *interview.Engine
	reviews *review.Workflow
}

// NewHandler builds the command surface.
func NewHandler(engine *interview.Engine, reviews *review.Workflow) *Handler {
	return &Handler{engine: engine, reviews: reviews}
}

// Apply starts a new interview for the applicant.
func (h *Handler) Apply(ctx context.Context, applicantID string) (Notice, error) {
	if _, err := h.engine.Start(ctx, applicantID); err != nil {
		return asNotice(err)
	}
	return "Check your DMs to start the application.", nil
}

// Message forwards one applicant DM text event. Stray input is silently
// dropped by the engine, so there is nothing to reply with.
func (h *Handler) Message(ctx context.Context, applicantID, text string) error {
	return h.engine.HandleMessage(ctx, applicantID, text)
}

// ViewTranscript DMs the requester the full answer transcript.
func (h *Handler) ViewTranscript(ctx context.Context, id, actorID string) (Notice, error) {
	if err := h.reviews.Transcript(ctx, id, actorID); err != nil {
		return asNotice(err)
	}
	return "Sent transcript to your DMs.", nil
}

// ConfirmResults DMs the requester the application's status summary.
func (h *Handler) ConfirmResults(ctx context.Context, id, actorID string) (Notice, error) {
	if err := h.reviews.ConfirmResults(ctx, id, actorID); err != nil {
		return asNotice(err)
	}
	return "Sent you a DM with the application summary.", nil
}

// Pick claims the application for the actor.
func (h *Handler) Pick(ctx context.Context, id, actorID string) (Notice, error) {
	app, err := h.reviews.Pick(ctx, id, actorID)
	if err != nil {
		return asNotice(err)
	}
	return Notice(fmt.Sprintf("You claimed %s. You can now score, approve or deny.", app.ID)), nil
}

// Score records the actor's score for the application.
func (h *Handler) Score(ctx context.Context, id, actorID string, value, scale int) (Notice, error) {
	app, err := h.reviews.Score(ctx, id, actorID, value, scale)
	if err != nil {
		return asNotice(err)
	}
	return Notice(fmt.Sprintf("Saved score %d/%d for %s.", value, scale, app.ID)), nil
}

// Approve decides the application in the applicant's favor.
func (h *Handler) Approve(ctx context.Context, id, actorID, reason string) (Notice, error) {
	return h.decide(ctx, id, actorID, application.DecisionApproved, reason)
}

// Deny decides the application against the applicant.
func (h *Handler) Deny(ctx context.Context, id, actorID, reason string) (Notice, error) {
	return h.decide(ctx, id, actorID, application.DecisionDenied, reason)
}

func (h *Handler) decide(ctx context.Context, id, actorID string, decision application.Decision, reason string) (Notice, error) {
	app, err := h.reviews.Decide(ctx, id, actorID, decision, reason)
	if err != nil {
		return asNotice(err)
	}
	return Notice(fmt.Sprintf("Decision recorded: %s for %s.", decision, app.ID)), nil
}

// asNotice maps the domain error taxonomy onto invoker-facing notices.
// Anything outside the taxonomy (persistence unavailability, transport
// failures on required sends) is passed through for the caller to retry.
func asNotice(err error) (Notice, error) {
	switch {
	case errors.Is(err, application.ErrCooldownActive):
		return "Please wait before starting another application.", nil
	case errors.Is(err, application.ErrDuplicateActive):
		return "You already have an application in progress.", nil
	case errors.Is(err, application.ErrNotFound):
		return "Application not found.", nil
	case errors.Is(err, application.ErrAlreadyClaimed):
		return "Already claimed.", nil
	case errors.Is(err, application.ErrNotOwner):
		return "This application is claimed by another staff member.", nil
	case errors.Is(err, application.ErrInvalidScore):
		return "Score must be a number within one of the accepted scales.", nil
	case errors.Is(err, application.ErrMissingScore):
		return "Please score the application before making a decision.", nil
	case errors.Is(err, application.ErrAlreadyDecided):
		return "This application has already been decided.", nil
	case errors.Is(err, application.ErrInvalidState):
		return "That action is not available right now.", nil
	case errors.Is(err, review.ErrNotReviewer):
		return "You are not authorized to review applications.", nil
	default:
		return "", err
	}
}
