package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ledger is the durable owner of message refs. Keeping refs in the database
// rather than in memory lets cleanup survive a process restart, and the
// partial unique index behind Replace holds the invariant that a conversation
// carries at most one live summary-or-result message.
type Ledger interface {
	Track(ctx context.Context, ref MessageRef) error
	Replace(ctx context.Context, ref MessageRef) ([]MessageRef, error)
	ListByRole(ctx context.Context, conversationID string, role Role) ([]MessageRef, error)
	Find(ctx context.Context, conversationID string, role Role, applicationID string) (MessageRef, error)
	Forget(ctx context.Context, ref MessageRef) error
	ForgetByRole(ctx context.Context, conversationID string, roles ...Role) ([]MessageRef, error)
}

// ErrRefNotFound signals no tracked ref matches the lookup.
var ErrRefNotFound = errors.New("notify: message ref not found")

// PGLedger implements Ledger over the message_refs table.
type PGLedger struct {
	pool *pgxpool.Pool
}

// NewLedger wires a pgxpool-backed ledger implementation.
func NewLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

// Track records a newly sent message.
func (l *PGLedger) Track(ctx context.Context, ref MessageRef) error {
	const query = `
		INSERT INTO message_refs (conversation_id, handle, role, application_id)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid)
	`
	if _, err := l.pool.Exec(ctx, query, ref.ConversationID, ref.Handle, string(ref.Role), ref.ApplicationID); err != nil {
		return fmt.Errorf("notify: track ref: %w", err)
	}
	return nil
}

// Replace tracks ref after atomically dropping any prior summary/result ref in
// the conversation. The displaced refs are returned so the caller can request
// their best-effort transport deletion.
func (l *PGLedger) Replace(ctx context.Context, ref MessageRef) ([]MessageRef, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const dropSQL = `
		DELETE FROM message_refs
		WHERE conversation_id = $1 AND role IN ('summary', 'result')
		RETURNING conversation_id, handle, role, application_id::text
	`
	rows, err := tx.Query(ctx, dropSQL, ref.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("notify: drop prior refs: %w", err)
	}
	displaced, err := collectRefs(rows)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO message_refs (conversation_id, handle, role, application_id)
		 VALUES ($1, $2, $3, NULLIF($4, '')::uuid)`,
		ref.ConversationID, ref.Handle, string(ref.Role), ref.ApplicationID,
	); err != nil {
		return nil, fmt.Errorf("notify: track replacement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("notify: commit replace: %w", err)
	}
	return displaced, nil
}

// ListByRole returns the refs of the given role within a conversation.
func (l *PGLedger) ListByRole(ctx context.Context, conversationID string, role Role) ([]MessageRef, error) {
	const query = `
		SELECT conversation_id, handle, role, application_id::text
		FROM message_refs
		WHERE conversation_id = $1 AND role = $2
		ORDER BY created_at
	`
	rows, err := l.pool.Query(ctx, query, conversationID, string(role))
	if err != nil {
		return nil, fmt.Errorf("notify: list refs: %w", err)
	}
	return collectRefs(rows)
}

// Find returns the tracked ref of the given role for an application.
func (l *PGLedger) Find(ctx context.Context, conversationID string, role Role, applicationID string) (MessageRef, error) {
	const query = `
		SELECT conversation_id, handle, role, application_id::text
		FROM message_refs
		WHERE conversation_id = $1 AND role = $2 AND application_id = $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	row := l.pool.QueryRow(ctx, query, conversationID, string(role), applicationID)
	ref, err := scanRef(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MessageRef{}, ErrRefNotFound
		}
		return MessageRef{}, fmt.Errorf("notify: find ref: %w", err)
	}
	return ref, nil
}

// Forget drops a single ref.
func (l *PGLedger) Forget(ctx context.Context, ref MessageRef) error {
	const query = `DELETE FROM message_refs WHERE conversation_id = $1 AND handle = $2`
	if _, err := l.pool.Exec(ctx, query, ref.ConversationID, ref.Handle); err != nil {
		return fmt.Errorf("notify: forget ref: %w", err)
	}
	return nil
}

// ForgetByRole drops every ref of the given roles in the conversation and
// returns them for transport cleanup.
func (l *PGLedger) ForgetByRole(ctx context.Context, conversationID string, roles ...Role) ([]MessageRef, error) {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, string(r))
	}

	const query = `
		DELETE FROM message_refs
		WHERE conversation_id = $1 AND role = ANY($2)
		RETURNING conversation_id, handle, role, application_id::text
	`
	rows, err := l.pool.Query(ctx, query, conversationID, names)
	if err != nil {
		return nil, fmt.Errorf("notify: forget by role: %w", err)
	}
	return collectRefs(rows)
}

func collectRefs(rows pgx.Rows) ([]MessageRef, error) {
	defer rows.Close()

	out := make([]MessageRef, 0, 8)
	for rows.Next() {
		ref, err := scanRef(rows)
		if err != nil {
			return nil, fmt.Errorf("notify: scan ref: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: iterate refs: %w", err)
	}
	return out, nil
}

func scanRef(row pgx.Row) (MessageRef, error) {
	var (
		ref   MessageRef
		role  string
		appID *string
	)
	if err := row.Scan(&ref.ConversationID, &ref.Handle, &role, &appID); err != nil {
		return MessageRef{}, err
	}
	ref.Role = Role(role)
	if appID != nil {
		ref.ApplicationID = *appID
	}
	return ref, nil
}
