package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

type ComplianceRepository struct {
	db *sql.DB
}

func NewComplianceRepository(db *sql.DB) *ComplianceRepository {
	return &ComplianceRepository{db: db}
}

// ReplaceExtractedForDocument swaps the system-extracted commitment set
// for a (document, grant) pair in one transaction. Human-entered rows
// are never touched, and a reprocess never accumulates duplicates.
func (r *ComplianceRepository) ReplaceExtractedForDocument(ctx context.Context, documentID, grantID string, commitments []domain.Commitment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commitments tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
DELETE FROM commitments
WHERE document_id = $1 AND grant_id = $2 AND extracted_by = $3
`, documentID, grantID, domain.ExtractedBySystem)
	if err != nil {
		return fmt.Errorf("delete prior extracted commitments: %w", err)
	}

	for _, c := range commitments {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO commitments (
	id, organization_id, grant_id, document_id, commitment_type, description,
	metric_name, metric_value, due_date, extracted_by, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
			id, c.OrganizationID, grantID, documentID, string(c.Type), c.Description,
			c.MetricName, c.MetricValue, c.DueDate, domain.ExtractedBySystem, createdAt,
		)
		if err != nil {
			return fmt.Errorf("insert commitment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit commitments tx: %w", err)
	}
	return nil
}

func (r *ComplianceRepository) InsertAudit(ctx context.Context, audit domain.ComplianceAudit) error {
	id := audit.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := audit.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO compliance_audits (
	id, organization_id, action, actor, document_id, grant_id, commitment_count, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		id, audit.OrganizationID, audit.Action, audit.Actor, audit.DocumentID,
		audit.GrantID, audit.CommitmentCnt, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert compliance audit: %w", err)
	}
	return nil
}
