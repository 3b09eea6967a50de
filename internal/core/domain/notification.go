package domain

import "time"

const NotificationDocumentProcessed = "document_processed"

// Recipient is an organization member joined with their notification
// preferences. A member without a preferences row has Preferences nil
// and receives nothing.
type Recipient struct {
	UserID      string
	Email       string
	Preferences *NotificationPreferences
}

type NotificationPreferences struct {
	DocumentProcessed bool `json:"document_processed"`
}

func (r Recipient) WantsDocumentProcessed() bool {
	return r.Preferences != nil && r.Preferences.DocumentProcessed
}

// NotificationLog is one delivery attempt. Append-only; it doubles as
// the audit trail behind the notification-history view.
type NotificationLog struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	UserID         string            `json:"user_id"`
	Type           string            `json:"type"`
	Subject        string            `json:"subject"`
	Success        bool              `json:"success"`
	Error          string            `json:"error,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NotificationIntent is the outbound fan-out event for one opted-in
// recipient. Rendering and delivery belong to a downstream consumer.
type NotificationIntent struct {
	Type           string           `json:"type"`
	OrganizationID string           `json:"organization_id"`
	DocumentID     string           `json:"document_id"`
	UserID         string           `json:"user_id"`
	Email          string           `json:"email"`
	Status         ProcessingStatus `json:"status"`
}
