package domain

import "time"

// UploadedEvent triggers one pipeline run.
type UploadedEvent struct {
	DocumentID     string    `json:"document_id"`
	OrganizationID string    `json:"organization_id"`
	StorageKey     string    `json:"storage_key"`
	MimeType       string    `json:"mime_type"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// ProcessedEvent is the fire-and-forget webhook payload emitted after
// the parse result lands.
type ProcessedEvent struct {
	Type        string           `json:"type"`
	DocumentID  string           `json:"document_id"`
	Name        string           `json:"name"`
	DocType     DocumentType     `json:"document_type"`
	Status      ProcessingStatus `json:"status"`
	Confidence  int              `json:"confidence"`
	HasWarnings bool             `json:"has_warnings"`
	ProcessedAt time.Time        `json:"processed_at"`
}
