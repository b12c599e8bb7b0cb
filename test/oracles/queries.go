package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_active_application_per_applicant",
			SQL: `SELECT applicant_id, COUNT(*) FROM applications
                  WHERE status NOT IN ('approved','denied')
                  GROUP BY applicant_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_reviewer_iff_claimed",
			SQL: `SELECT id FROM applications
                  WHERE (status IN ('claimed','scored','approved','denied') AND reviewer_id IS NULL)
                     OR (status IN ('in_progress','submitted') AND reviewer_id IS NOT NULL)`,
		},
		{
			Name: "O3_score_requires_reviewer",
			SQL: `SELECT id FROM applications
                  WHERE score IS NOT NULL AND (reviewer_id IS NULL OR scale IS NULL OR score < 0 OR score > scale)`,
		},
		{
			Name: "O4_decision_requires_score",
			SQL: `SELECT id FROM applications
                  WHERE decision IS NOT NULL AND (score IS NULL OR decided_at IS NULL)`,
		},
		{
			Name: "O5_status_decision_consistent",
			SQL: `SELECT id FROM applications
                  WHERE (status IN ('approved','denied')) <> (decision IS NOT NULL)
                     OR (decision IS NOT NULL AND status::text <> decision)`,
		},
		{
			Name: "O6_answers_dense",
			SQL: `WITH seqs AS (
                      SELECT application_id, idx,
                             LAG(idx) OVER (PARTITION BY application_id ORDER BY idx) AS prev
                      FROM answers)
                  SELECT * FROM seqs
                  WHERE (prev IS NULL AND idx <> 0) OR (prev IS NOT NULL AND idx <> prev + 1)`,
		},
		{
			Name: "O7_event_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT application_id, seq,
                             LAG(seq) OVER (PARTITION BY application_id ORDER BY seq) AS prev
                      FROM application_events)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			Name: "O8_single_live_terminal_message",
			SQL: `SELECT conversation_id, COUNT(*) FROM message_refs
                  WHERE role IN ('summary','result')
                  GROUP BY conversation_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O9_timestamp_order",
			SQL: `SELECT id FROM applications
                  WHERE (submitted_at IS NOT NULL AND submitted_at < created_at)
                     OR (decided_at IS NOT NULL AND (submitted_at IS NULL OR decided_at < submitted_at))`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
