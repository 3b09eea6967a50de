package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, organization_id, name, doc_type, mime_type, size_bytes, storage_key, status, confidence, extracted_text, metadata, warnings, grant_id, processed_at, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	warningsJSON, err := marshalWarnings(doc.Warnings)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, organization_id, name, doc_type, mime_type, size_bytes, storage_key, status, confidence, extracted_text, metadata, warnings, grant_id, processed_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`,
		doc.ID, doc.OrganizationID, doc.Name, string(doc.Type), doc.MimeType, doc.SizeBytes,
		doc.StorageKey, string(doc.Status), doc.Confidence, doc.ExtractedText, metaJSON,
		warningsJSON, doc.GrantID, doc.ProcessedAt, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, organizationID, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1 AND organization_id = $2
`, id, organizationID)
	return scanDocument(row)
}

// GetWithGrant loads the document plus its grant in one round trip.
// The grant pointer is nil when the document has no association.
func (r *DocumentRepository) GetWithGrant(ctx context.Context, organizationID, id string) (*domain.Document, *domain.Grant, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT d.id, d.organization_id, d.name, d.doc_type, d.mime_type, d.size_bytes, d.storage_key, d.status,
	d.confidence, d.extracted_text, d.metadata, d.warnings, d.grant_id, d.processed_at, d.created_at, d.updated_at,
	g.id, g.organization_id, g.funder, g.status, g.created_at
FROM documents d
LEFT JOIN grants g ON g.id = d.grant_id AND g.organization_id = d.organization_id
WHERE d.id = $1 AND d.organization_id = $2
`, id, organizationID)

	var (
		doc          domain.Document
		docType      string
		status       string
		metaRaw      []byte
		warningsRaw  []byte
		grantID      sql.NullString
		grantOrg     sql.NullString
		grantFunder  sql.NullString
		grantStatus  sql.NullString
		grantCreated sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.OrganizationID, &doc.Name, &docType, &doc.MimeType, &doc.SizeBytes,
		&doc.StorageKey, &status, &doc.Confidence, &doc.ExtractedText, &metaRaw, &warningsRaw,
		&doc.GrantID, &doc.ProcessedAt, &doc.CreatedAt, &doc.UpdatedAt,
		&grantID, &grantOrg, &grantFunder, &grantStatus, &grantCreated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, domain.WrapError(domain.ErrDocumentNotFound, "get document with grant", err)
		}
		return nil, nil, fmt.Errorf("scan document with grant: %w", err)
	}
	if err := decodeDocumentJSON(&doc, docType, status, metaRaw, warningsRaw); err != nil {
		return nil, nil, err
	}

	var grant *domain.Grant
	if grantID.Valid {
		grant = &domain.Grant{
			ID:             grantID.String,
			OrganizationID: grantOrg.String,
			Funder:         grantFunder.String,
			Status:         domain.GrantStatus(grantStatus.String),
		}
		if grantCreated.Valid {
			grant.CreatedAt = grantCreated.Time
		}
	}
	return &doc, grant, nil
}

// UpdateParseResult performs the pipeline's single atomic write. The
// compound (id, organization_id) scope enforces tenant isolation: a
// zero-row update reads as not-found, never as a cross-tenant hint.
func (r *DocumentRepository) UpdateParseResult(ctx context.Context, organizationID, id string, update domain.ParseUpdate) error {
	metaJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	warningsJSON, err := marshalWarnings(update.Warnings)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, confidence = $4, extracted_text = $5,
	metadata = metadata || $6::jsonb, warnings = $7,
	processed_at = $8, updated_at = $9
WHERE id = $1 AND organization_id = $2
`, id, organizationID, string(update.Status), update.Confidence, update.Text,
		metaJSON, warningsJSON, update.ProcessedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update parse result: %w", err)
	}
	return requireRow(res, "update parse result")
}

func (r *DocumentRepository) MergeMetadata(ctx context.Context, organizationID, id string, meta domain.DocumentMetadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET metadata = metadata || $3::jsonb, updated_at = $4
WHERE id = $1 AND organization_id = $2
`, id, organizationID, metaJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("merge document metadata: %w", err)
	}
	return requireRow(res, "merge document metadata")
}

// MarkFailed appends the explanatory warning rather than replacing any
// parse warnings already present.
func (r *DocumentRepository) MarkFailed(ctx context.Context, organizationID, id string, warning string) error {
	warningJSON, err := json.Marshal([]string{warning})
	if err != nil {
		return fmt.Errorf("marshal warning: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, warnings = COALESCE(warnings, '[]'::jsonb) || $4::jsonb, updated_at = $5
WHERE id = $1 AND organization_id = $2
`, id, organizationID, string(domain.StatusFailed), warningJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	return requireRow(res, "mark document failed")
}

func requireRow(res sql.Result, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, sql.ErrNoRows)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc         domain.Document
		docType     string
		status      string
		metaRaw     []byte
		warningsRaw []byte
	)
	err := row.Scan(
		&doc.ID, &doc.OrganizationID, &doc.Name, &docType, &doc.MimeType, &doc.SizeBytes,
		&doc.StorageKey, &status, &doc.Confidence, &doc.ExtractedText, &metaRaw, &warningsRaw,
		&doc.GrantID, &doc.ProcessedAt, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", err)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if err := decodeDocumentJSON(&doc, docType, status, metaRaw, warningsRaw); err != nil {
		return nil, err
	}
	return &doc, nil
}

func decodeDocumentJSON(doc *domain.Document, docType, status string, metaRaw, warningsRaw []byte) error {
	doc.Type = domain.DocumentType(docType)
	doc.Status = domain.ProcessingStatus(status)
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &doc.Metadata); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(warningsRaw) > 0 {
		if err := json.Unmarshal(warningsRaw, &doc.Warnings); err != nil {
			return fmt.Errorf("unmarshal warnings: %w", err)
		}
	}
	return nil
}

func marshalWarnings(warnings []string) (any, error) {
	if warnings == nil {
		return nil, nil
	}
	raw, err := json.Marshal(warnings)
	if err != nil {
		return nil, fmt.Errorf("marshal warnings: %w", err)
	}
	return raw, nil
}
