package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the application does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrDuplicateActive signals the applicant already has a non-terminal application.
	ErrDuplicateActive = errors.New("application: active application already exists")
	// ErrInvalidState signals an answer/submit ordering violation.
	ErrInvalidState = errors.New("application: invalid state")
	// ErrAlreadyClaimed signals the claim lost to another reviewer.
	ErrAlreadyClaimed = errors.New("application: already claimed")
	// ErrNotOwner signals the actor is not the claiming reviewer.
	ErrNotOwner = errors.New("application: not the claiming reviewer")
	// ErrInvalidScore signals a score outside [0, scale].
	ErrInvalidScore = errors.New("application: score outside scale")
	// ErrMissingScore signals a decision attempted before scoring.
	ErrMissingScore = errors.New("application: decision requires a score")
	// ErrAlreadyDecided signals the application reached a terminal status.
	ErrAlreadyDecided = errors.New("application: already decided")
)

// Store is the durable record of applications, answers and status consumed by
// the interview engine and the review workflow.
type Store interface {
	Create(ctx context.Context, applicantID string) (Application, error)
	AppendAnswer(ctx context.Context, id string, index int, body string) error
	Submit(ctx context.Context, id string, questionCount int) (Application, error)
	Claim(ctx context.Context, id, reviewerID string) (Application, error)
	SetScore(ctx context.Context, id, reviewerID string, value, scale int) (Application, error)
	Decide(ctx context.Context, id, reviewerID string, decision Decision, reason string) (Application, error)
	Get(ctx context.Context, id string) (Application, error)
	GetByApplicant(ctx context.Context, applicantID string) (Application, error)
}

// PGStore implements Store backed by PostgreSQL. Claim relies on a conditional
// single-row UPDATE so concurrent claims yield exactly one winner; answer
// appends take the application row lock to keep the sequence dense.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgxpool-backed store implementation.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const applicationColumns = `
	id, applicant_id, status::text, reviewer_id, score, scale, decision, reason,
	created_at, submitted_at, decided_at
`

func scanApplication(row pgx.Row) (Application, error) {
	var (
		app      Application
		status   string
		decision *string
	)
	err := row.Scan(
		&app.ID,
		&app.ApplicantID,
		&status,
		&app.ReviewerID,
		&app.Score,
		&app.Scale,
		&decision,
		&app.Reason,
		&app.CreatedAt,
		&app.SubmittedAt,
		&app.DecidedAt,
	)
	if err != nil {
		return Application{}, err
	}
	app.Status = Status(status)
	if decision != nil {
		d := Decision(*decision)
		app.Decision = &d
	}
	return app, nil
}

// Create inserts a fresh in_progress application for the applicant. The
// partial unique index on non-terminal rows makes concurrent creates yield a
// single winner.
func (s *PGStore) Create(ctx context.Context, applicantID string) (Application, error) {
	if applicantID == "" {
		return Application{}, fmt.Errorf("application: missing applicant id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Application{}, fmt.Errorf("application: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertSQL := `
		INSERT INTO applications (applicant_id)
		VALUES ($1)
		RETURNING ` + applicationColumns

	app, err := scanApplication(tx.QueryRow(ctx, insertSQL, applicantID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Application{}, ErrDuplicateActive
		}
		return Application{}, fmt.Errorf("application: insert: %w", err)
	}

	if err := appendEvent(ctx, tx, app.ID, EventCreated, &applicantID, map[string]any{
		"applicant_id": applicantID,
	}); err != nil {
		return Application{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Application{}, fmt.Errorf("application: commit create: %w", err)
	}

	return app, nil
}

// AppendAnswer records the answer at index, which must be exactly the next
// expected one. The application row is locked for the duration so concurrent
// appends cannot interleave.
func (s *PGStore) AppendAnswer(ctx context.Context, id string, index int, body string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("application: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		status string
		next   int
	)
	const lockSQL = `
		SELECT a.status::text, COALESCE(MAX(ans.idx) + 1, 0)
		FROM applications a
		LEFT JOIN answers ans ON ans.application_id = a.id
		WHERE a.id = $1
		GROUP BY a.status
	`
	// Take the row lock first; the aggregate query cannot carry FOR UPDATE.
	if _, err := tx.Exec(ctx, `SELECT 1 FROM applications WHERE id = $1 FOR UPDATE`, id); err != nil {
		return fmt.Errorf("application: lock for append: %w", err)
	}
	if err := tx.QueryRow(ctx, lockSQL, id).Scan(&status, &next); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("application: inspect for append: %w", err)
	}

	if Status(status) != StatusInProgress || index != next {
		return ErrInvalidState
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO answers (application_id, idx, body) VALUES ($1, $2, $3)`,
		id, index, body,
	); err != nil {
		return fmt.Errorf("application: insert answer: %w", err)
	}

	if err := appendEvent(ctx, tx, id, EventAnswered, nil, map[string]any{
		"index": index,
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("application: commit append: %w", err)
	}
	return nil
}

// Submit transitions in_progress -> submitted once all questionCount answers
// are present.
func (s *PGStore) Submit(ctx context.Context, id string, questionCount int) (Application, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Application{}, fmt.Errorf("application: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT 1 FROM applications WHERE id = $1 FOR UPDATE`, id); err != nil {
		return Application{}, fmt.Errorf("application: lock for submit: %w", err)
	}

	var answered int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM answers WHERE application_id = $1`, id,
	).Scan(&answered); err != nil {
		return Application{}, fmt.Errorf("application: count answers: %w", err)
	}
	if answered != questionCount {
		return Application{}, ErrInvalidState
	}

	updateSQL := `
		UPDATE applications
		SET status = 'submitted', submitted_at = now()
		WHERE id = $1 AND status = 'in_progress'
		RETURNING ` + applicationColumns

	app, err := scanApplication(tx.QueryRow(ctx, updateSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, s.classifySubmit(ctx, id)
		}
		return Application{}, fmt.Errorf("application: submit: %w", err)
	}

	if err := appendEvent(ctx, tx, id, EventSubmit, nil, map[string]any{
		"answers": answered,
	}); err != nil {
		return Application{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Application{}, fmt.Errorf("application: commit submit: %w", err)
	}

	return s.withAnswers(ctx, app)
}

// Claim assigns the application to reviewerID. The guard on reviewer_id being
// unset is the compare-and-set: under N concurrent claims exactly one UPDATE
// matches, the rest observe no row and lose.
func (s *PGStore) Claim(ctx context.Context, id, reviewerID string) (Application, error) {
	if reviewerID == "" {
		return Application{}, fmt.Errorf("application: missing reviewer id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Application{}, fmt.Errorf("application: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	updateSQL := `
		UPDATE applications
		SET status = 'claimed', reviewer_id = $2
		WHERE id = $1 AND status = 'submitted' AND reviewer_id IS NULL
		RETURNING ` + applicationColumns

	app, err := scanApplication(tx.QueryRow(ctx, updateSQL, id, reviewerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, s.classify(ctx, id, ErrAlreadyClaimed)
		}
		return Application{}, fmt.Errorf("application: claim: %w", err)
	}

	if err := appendEvent(ctx, tx, id, EventClaimed, &reviewerID, map[string]any{
		"reviewer_id": reviewerID,
	}); err != nil {
		return Application{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Application{}, fmt.Errorf("application: commit claim: %w", err)
	}

	return s.withAnswers(ctx, app)
}

// SetScore records value on the given scale. Only the claiming reviewer may
// score, and only while the application is claimed.
func (s *PGStore) SetScore(ctx context.Context, id, reviewerID string, value, scale int) (Application, error) {
	if value < 0 || value > scale {
		return Application{}, ErrInvalidScore
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Application{}, fmt.Errorf("application: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	updateSQL := `
		UPDATE applications
		SET status = 'scored', score = $3, scale = $4
		WHERE id = $1 AND status = 'claimed' AND reviewer_id = $2
		RETURNING ` + applicationColumns

	app, err := scanApplication(tx.QueryRow(ctx, updateSQL, id, reviewerID, value, scale))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, s.classifyOwned(ctx, id, reviewerID, ErrInvalidState)
		}
		return Application{}, fmt.Errorf("application: set score: %w", err)
	}

	if err := appendEvent(ctx, tx, id, EventScored, &reviewerID, map[string]any{
		"score": value,
		"scale": scale,
	}); err != nil {
		return Application{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Application{}, fmt.Errorf("application: commit score: %w", err)
	}

	return s.withAnswers(ctx, app)
}

// Decide moves a scored application to its terminal status and freezes the
// decision, reason and decided_at timestamp.
func (s *PGStore) Decide(ctx context.Context, id, reviewerID string, decision Decision, reason string) (Application, error) {
	if decision != DecisionApproved && decision != DecisionDenied {
		return Application{}, fmt.Errorf("application: invalid decision %q", decision)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Application{}, fmt.Errorf("application: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	updateSQL := `
		UPDATE applications
		SET status = $3::application_status, decision = $3, reason = $4, decided_at = now()
		WHERE id = $1 AND status = 'scored' AND reviewer_id = $2
		RETURNING ` + applicationColumns

	app, err := scanApplication(tx.QueryRow(ctx, updateSQL, id, reviewerID, string(decision), reason))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, s.classifyDecide(ctx, id, reviewerID)
		}
		return Application{}, fmt.Errorf("application: decide: %w", err)
	}

	if err := appendEvent(ctx, tx, id, EventDecided, &reviewerID, map[string]any{
		"decision": string(decision),
		"reason":   reason,
	}); err != nil {
		return Application{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Application{}, fmt.Errorf("application: commit decide: %w", err)
	}

	return s.withAnswers(ctx, app)
}

// Get fetches the application and its ordered answers.
func (s *PGStore) Get(ctx context.Context, id string) (Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	app, err := scanApplication(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, fmt.Errorf("application: get: %w", err)
	}
	return s.withAnswers(ctx, app)
}

// GetByApplicant returns the applicant's most recent application.
func (s *PGStore) GetByApplicant(ctx context.Context, applicantID string) (Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE applicant_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	app, err := scanApplication(s.pool.QueryRow(ctx, query, applicantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, fmt.Errorf("application: get by applicant: %w", err)
	}
	return s.withAnswers(ctx, app)
}

func (s *PGStore) withAnswers(ctx context.Context, app Application) (Application, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT idx, body FROM answers WHERE application_id = $1 ORDER BY idx`, app.ID,
	)
	if err != nil {
		return Application{}, fmt.Errorf("application: load answers: %w", err)
	}
	defer rows.Close()

	answers := make([]Answer, 0, 8)
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.Index, &a.Body); err != nil {
			return Application{}, fmt.Errorf("application: scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return Application{}, fmt.Errorf("application: iterate answers: %w", err)
	}
	app.Answers = answers
	return app, nil
}

// classify maps a failed conditional update to the domain error the current
// row state calls for. fallback is returned when the row exists in the status
// the update targeted, which means the guard that failed was the CAS itself.
func (s *PGStore) classify(ctx context.Context, id string, fallback error) error {
	query := `SELECT status::text, reviewer_id FROM applications WHERE id = $1`
	var (
		status     string
		reviewerID *string
	)
	if err := s.pool.QueryRow(ctx, query, id).Scan(&status, &reviewerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("application: classify: %w", err)
	}
	switch {
	case Status(status).Terminal():
		return ErrAlreadyDecided
	case reviewerID != nil:
		return ErrAlreadyClaimed
	case Status(status) != StatusSubmitted:
		return ErrInvalidState
	default:
		return fallback
	}
}

func (s *PGStore) classifySubmit(ctx context.Context, id string) error {
	var status string
	if err := s.pool.QueryRow(ctx, `SELECT status::text FROM applications WHERE id = $1`, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("application: classify: %w", err)
	}
	if Status(status).Terminal() {
		return ErrAlreadyDecided
	}
	return ErrInvalidState
}

func (s *PGStore) classifyOwned(ctx context.Context, id, reviewerID string, fallback error) error {
	query := `SELECT status::text, reviewer_id FROM applications WHERE id = $1`
	var (
		status string
		owner  *string
	)
	if err := s.pool.QueryRow(ctx, query, id).Scan(&status, &owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("application: classify: %w", err)
	}
	switch {
	case Status(status).Terminal():
		return ErrAlreadyDecided
	case owner != nil && *owner != reviewerID:
		return ErrNotOwner
	default:
		return fallback
	}
}

func (s *PGStore) classifyDecide(ctx context.Context, id, reviewerID string) error {
	query := `SELECT status::text, reviewer_id, score FROM applications WHERE id = $1`
	var (
		status string
		owner  *string
		score  *int
	)
	if err := s.pool.QueryRow(ctx, query, id).Scan(&status, &owner, &score); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("application: classify: %w", err)
	}
	switch {
	case score == nil:
		return ErrMissingScore
	case Status(status).Terminal():
		return ErrAlreadyDecided
	case owner != nil && *owner != reviewerID:
		return ErrNotOwner
	default:
		return ErrInvalidState
	}
}

// appendEvent writes the next journal row for the application inside the
// caller's transaction. Callers hold the application row lock, so the MAX(seq)
// computation cannot race.
func appendEvent(ctx context.Context, tx pgx.Tx, applicationID, eventType string, actorID *string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("application: marshal event payload: %w", err)
	}

	var actor any
	if actorID != nil && *actorID != "" {
		actor = *actorID
	}

	const q = `
		INSERT INTO application_events (application_id, seq, type, actor_id, payload)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4::jsonb
		FROM application_events
		WHERE application_id = $1
	`
	if _, err := tx.Exec(ctx, q, applicationID, eventType, actor, body); err != nil {
		return fmt.Errorf("application: insert event: %w", err)
	}
	return nil
}
