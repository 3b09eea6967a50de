package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grantsignal/grantsignal/internal/core/domain"
	"github.com/grantsignal/grantsignal/internal/core/ports"
)

type IngestDocumentUseCase struct {
	docs    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	docs ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		docs:    docs,
		storage: storage,
		queue:   queue,
	}
}

// Upload registers a document: stores the object, creates the pending
// row and publishes the document.uploaded event that drives the worker.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	req ports.UploadRequest,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(req.OrganizationID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "register upload", fmt.Errorf("organization id is required"))
	}
	docType := req.DocumentType
	if docType == "" {
		docType = domain.TypeOther
	}
	if !domain.ValidDocumentType(docType) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "register upload", fmt.Errorf("unknown document type %q", req.DocumentType))
	}

	id := uuid.NewString()
	// Keys are prefixed by tenant so object listings can never mix
	// organizations either.
	storageKey := fmt.Sprintf("%s/%s_%s", req.OrganizationID, id, sanitizeFilename(req.Filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:             id,
		OrganizationID: req.OrganizationID,
		Name:           req.Filename,
		Type:           docType,
		MimeType:       req.MimeType,
		SizeBytes:      req.SizeBytes,
		StorageKey:     storageKey,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.GrantID != "" {
		grantID := req.GrantID
		doc.GrantID = &grantID
	}

	if err := uc.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	evt := domain.UploadedEvent{
		DocumentID:     doc.ID,
		OrganizationID: doc.OrganizationID,
		StorageKey:     doc.StorageKey,
		MimeType:       doc.MimeType,
		EnqueuedAt:     now,
	}
	if err := uc.queue.PublishDocumentUploaded(ctx, evt); err != nil {
		return nil, fmt.Errorf("publish upload event: %w", err)
	}

	return doc, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
