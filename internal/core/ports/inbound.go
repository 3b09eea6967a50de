package ports

import (
	"context"
	"io"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

// DocumentIngestor is the inbound contract for upload registration.
type DocumentIngestor interface {
	Upload(ctx context.Context, req UploadRequest, body io.Reader) (*domain.Document, error)
}

// UploadRequest carries the caller-declared attributes of one upload.
type UploadRequest struct {
	OrganizationID string
	Filename       string
	MimeType       string
	DocumentType   domain.DocumentType
	GrantID        string
	SizeBytes      int64
}

// DocumentReader is the inbound read model for document state.
type DocumentReader interface {
	GetByID(ctx context.Context, organizationID, id string) (*domain.Document, error)
}

// DocumentProcessor runs the pipeline for one uploaded-document event.
type DocumentProcessor interface {
	Process(ctx context.Context, evt domain.UploadedEvent) (domain.PipelineReport, error)
}
