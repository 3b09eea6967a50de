package ports

import (
	"context"
	"io"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

// DocumentRepository persists and reads document state. Every mutation
// is scoped by (id, organizationID); touching another tenant's row
// yields domain.ErrDocumentNotFound.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, organizationID, id string) (*domain.Document, error)
	// GetWithGrant loads the document together with its grant, if any.
	GetWithGrant(ctx context.Context, organizationID, id string) (*domain.Document, *domain.Grant, error)
	// UpdateParseResult is the pipeline's single atomic write: text,
	// confidence, status, metadata and warnings land in one statement.
	UpdateParseResult(ctx context.Context, organizationID, id string, update domain.ParseUpdate) error
	// MergeMetadata folds vectorization results into stored metadata.
	MergeMetadata(ctx context.Context, organizationID, id string, meta domain.DocumentMetadata) error
	// MarkFailed is the best-effort fallback write after a fatal stage.
	MarkFailed(ctx context.Context, organizationID, id string, warning string) error
}

// ComplianceRepository persists extracted commitments and audit entries.
type ComplianceRepository interface {
	// ReplaceExtractedForDocument deletes prior system-extracted rows
	// for the (document, grant) pair and inserts the new set in one
	// transaction, so a reprocess never duplicates commitments.
	ReplaceExtractedForDocument(ctx context.Context, documentID, grantID string, commitments []domain.Commitment) error
	InsertAudit(ctx context.Context, audit domain.ComplianceAudit) error
}

// NotificationRepository enumerates recipients and records attempts.
type NotificationRepository interface {
	ListRecipients(ctx context.Context, organizationID string) ([]domain.Recipient, error)
	InsertLog(ctx context.Context, logEntry domain.NotificationLog) error
	ListLogs(ctx context.Context, organizationID string, limit int) ([]domain.NotificationLog, error)
}

// ObjectStorage stores and fetches source files. Fetch buffers the
// whole object; callers must be prepared to fail on oversized files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// DocumentParser converts raw bytes plus a declared MIME type into
// text, a 0-100 confidence score and non-fatal warnings.
type DocumentParser interface {
	Parse(ctx context.Context, raw []byte, mimeType string) (domain.ParseResult, error)
}

// Chunk is one bounded substring of extracted text with a stable
// zero-based index.
type Chunk struct {
	Index int
	Text  string
}

type Chunker interface {
	Split(text string) []Chunk
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore upserts chunk vectors into a namespace partitioned by
// organization id and returns the generated record identifiers.
type VectorStore interface {
	UpsertChunks(ctx context.Context, doc *domain.Document, chunks []Chunk, vectors [][]float32) ([]string, error)
}

// CommitmentExtractor scans extracted text for obligations.
type CommitmentExtractor interface {
	Extract(ctx context.Context, doc *domain.Document, grant *domain.Grant, text string) ([]domain.Commitment, error)
}

// WebhookEmitter delivers processed events fire-and-forget; its errors
// never fail the calling stage.
type WebhookEmitter interface {
	EmitProcessed(ctx context.Context, evt domain.ProcessedEvent) error
}

// NotificationDispatcher sends one notification-intent event.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, intent domain.NotificationIntent) error
}

// MessageQueue publishes/consumes upload events.
type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, evt domain.UploadedEvent) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, domain.UploadedEvent) error) error
}

// StepCache checkpoints completed load-bearing stages so a retried job
// does not redo them. Misses are not errors.
type StepCache interface {
	Get(ctx context.Context, documentID, step string) ([]byte, bool, error)
	Put(ctx context.Context, documentID, step string, payload []byte) error
}
