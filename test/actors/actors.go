package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"applyflow/application"
	"applyflow/notify"
)

// Applicant repeatedly runs interviews end to end: apply, answer every
// question in order, submit. Cooldown and duplicate-apply rejections are
// expected under contention and simply retried later.
func Applicant(ctx context.Context, store application.Store, gate application.CooldownGate, applicantID string, questionCount int, stop <-chan struct{}) error {
	window := 50 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if err := gate.Check(ctx, applicantID, window); err != nil {
			if errors.Is(err, application.ErrCooldownActive) {
				time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
				continue
			}
			return fmt.Errorf("applicant check: %w", err)
		}

		if _, err := store.Create(ctx, applicantID); err != nil {
			// An earlier interview may still be live; pick it up below.
			if !errors.Is(err, application.ErrDuplicateActive) {
				return fmt.Errorf("applicant create: %w", err)
			}
		} else if err := gate.Touch(ctx, applicantID); err != nil {
			return fmt.Errorf("applicant touch: %w", err)
		}

		app, err := store.GetByApplicant(ctx, applicantID)
		if err != nil {
			if errors.Is(err, application.ErrNotFound) {
				continue
			}
			return fmt.Errorf("applicant lookup: %w", err)
		}
		if app.Status != application.StatusInProgress {
			time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
			continue
		}

		for i := app.NextIndex(); i < questionCount; i++ {
			err := store.AppendAnswer(ctx, app.ID, i, fmt.Sprintf("answer %d from %s", i, applicantID))
			if errors.Is(err, application.ErrInvalidState) {
				break
			}
			if err != nil {
				return fmt.Errorf("applicant answer: %w", err)
			}
		}

		if _, err := store.Submit(ctx, app.ID, questionCount); err != nil {
			if !errors.Is(err, application.ErrInvalidState) && !errors.Is(err, application.ErrAlreadyDecided) {
				return fmt.Errorf("applicant submit: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Claimer races other claimers for any submitted application. Losing a claim
// is the expected outcome most of the time.
func Claimer(ctx context.Context, pool *pgxpool.Pool, store application.Store, reviewerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var id string
		err := pool.QueryRow(ctx,
			`SELECT id FROM applications WHERE status = 'submitted' ORDER BY random() LIMIT 1`,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
			continue
		}
		if err != nil {
			return fmt.Errorf("claimer scan: %w", err)
		}

		if _, err := store.Claim(ctx, id, reviewerID); err != nil && !expectedClaimLoss(err) {
			return fmt.Errorf("claimer claim: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Reviewer scores and then decides the applications it has claimed.
func Reviewer(ctx context.Context, pool *pgxpool.Pool, store application.Store, reviewerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var (
			id     string
			status string
		)
		err := pool.QueryRow(ctx,
			`SELECT id, status::text FROM applications WHERE reviewer_id = $1 AND status IN ('claimed', 'scored') LIMIT 1`,
			reviewerID,
		).Scan(&id, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
			continue
		}
		if err != nil {
			return fmt.Errorf("reviewer scan: %w", err)
		}

		switch application.Status(status) {
		case application.StatusClaimed:
			if _, err := store.SetScore(ctx, id, reviewerID, rand.Intn(11), 10); err != nil && !expectedClaimLoss(err) {
				return fmt.Errorf("reviewer score: %w", err)
			}
		case application.StatusScored:
			decision := application.DecisionApproved
			if rand.Intn(2) == 0 {
				decision = application.DecisionDenied
			}
			if _, err := store.Decide(ctx, id, reviewerID, decision, "stress decision"); err != nil && !expectedClaimLoss(err) {
				return fmt.Errorf("reviewer decide: %w", err)
			}
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}

// Messenger churns the message ref ledger for one conversation: prompt refs
// come and go, and every terminal message goes through Replace so the
// single-live-message invariant stays under pressure.
func Messenger(ctx context.Context, ledger notify.Ledger, conversationID string, stop <-chan struct{}) error {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		n++

		prompt := notify.MessageRef{
			ConversationID: conversationID,
			Handle:         fmt.Sprintf("%s-prompt-%d", conversationID, n),
			Role:           notify.RoleQuestionPrompt,
		}
		if err := ledger.Track(ctx, prompt); err != nil {
			return fmt.Errorf("messenger track: %w", err)
		}

		role := notify.RoleSummary
		if n%2 == 0 {
			role = notify.RoleResult
		}
		terminal := notify.MessageRef{
			ConversationID: conversationID,
			Handle:         fmt.Sprintf("%s-terminal-%d", conversationID, n),
			Role:           role,
		}
		if _, err := ledger.Replace(ctx, terminal); err != nil {
			return fmt.Errorf("messenger replace: %w", err)
		}

		if n%5 == 0 {
			if _, err := ledger.ForgetByRole(ctx, conversationID, notify.RoleQuestionPrompt); err != nil {
				return fmt.Errorf("messenger forget: %w", err)
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// expectedClaimLoss reports whether err is an ordinary race outcome rather
// than a bug.
func expectedClaimLoss(err error) bool {
	return errors.Is(err, application.ErrAlreadyClaimed) ||
		errors.Is(err, application.ErrAlreadyDecided) ||
		errors.Is(err, application.ErrInvalidState) ||
		errors.Is(err, application.ErrNotOwner) ||
		errors.Is(err, application.ErrNotFound)
}
