package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCooldownActive signals an apply attempt inside the fixed window.
var ErrCooldownActive = errors.New("application: cooldown active")

// CooldownGate enforces the fixed window between apply attempts. Check is
// read-only so a rejected apply leaves no state behind; Touch records the
// attempt once the application has been created.
type CooldownGate interface {
	Check(ctx context.Context, applicantID string, window time.Duration) error
	Touch(ctx context.Context, applicantID string) error
}

// PGCooldownGate implements CooldownGate over the cooldowns table.
type PGCooldownGate struct {
	pool *pgxpool.Pool
}

// NewCooldownGate wires a pgxpool-backed cooldown gate.
func NewCooldownGate(pool *pgxpool.Pool) *PGCooldownGate {
	return &PGCooldownGate{pool: pool}
}

// Check returns ErrCooldownActive when the applicant applied within the window.
func (g *PGCooldownGate) Check(ctx context.Context, applicantID string, window time.Duration) error {
	if window <= 0 {
		return nil
	}

	const query = `SELECT last_applied_at FROM cooldowns WHERE applicant_id = $1`
	var last time.Time
	if err := g.pool.QueryRow(ctx, query, applicantID).Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("application: check cooldown: %w", err)
	}

	if time.Since(last) < window {
		return ErrCooldownActive
	}
	return nil
}

// Touch records the apply timestamp for the applicant.
func (g *PGCooldownGate) Touch(ctx context.Context, applicantID string) error {
	const query = `
		INSERT INTO cooldowns (applicant_id, last_applied_at)
		VALUES ($1, now())
		ON CONFLICT (applicant_id) DO UPDATE SET last_applied_at = now()
	`
	if _, err := g.pool.Exec(ctx, query, applicantID); err != nil {
		return fmt.Errorf("application: touch cooldown: %w", err)
	}
	return nil
}
