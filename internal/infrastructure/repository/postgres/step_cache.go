package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StepCache checkpoints completed load-bearing stages so a retried job
// can skip re-downloading and re-parsing a document it already parsed.
type StepCache struct {
	db *sql.DB
}

func NewStepCache(db *sql.DB) *StepCache {
	return &StepCache{db: db}
}

func (c *StepCache) Get(ctx context.Context, documentID, step string) ([]byte, bool, error) {
	row := c.db.QueryRowContext(ctx, `
SELECT payload
FROM pipeline_steps
WHERE document_id = $1 AND step = $2
`, documentID, step)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read pipeline step: %w", err)
	}
	return payload, true, nil
}

func (c *StepCache) Put(ctx context.Context, documentID, step string, payload []byte) error {
	_, err := c.db.ExecContext(ctx, `
INSERT INTO pipeline_steps (document_id, step, payload, completed_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (document_id, step)
DO UPDATE SET payload = EXCLUDED.payload, completed_at = EXCLUDED.completed_at
`, documentID, step, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write pipeline step: %w", err)
	}
	return nil
}
