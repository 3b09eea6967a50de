package domain

import "time"

type ProcessingStatus string

const (
	StatusPending     ProcessingStatus = "pending"
	StatusProcessing  ProcessingStatus = "processing"
	StatusCompleted   ProcessingStatus = "completed"
	StatusNeedsReview ProcessingStatus = "needs_review"
	StatusFailed      ProcessingStatus = "failed"
)

type DocumentType string

const (
	TypeApplication   DocumentType = "application"
	TypeAwardLetter   DocumentType = "award_letter"
	TypeReport        DocumentType = "report"
	TypeAgreement     DocumentType = "agreement"
	TypeBudget        DocumentType = "budget"
	TypeAnnualReport  DocumentType = "annual_report"
	TypeStrategicPlan DocumentType = "strategic_plan"
	TypeEvaluation    DocumentType = "evaluation"
	TypeOther         DocumentType = "other"
)

// ConfidenceThreshold splits completed from needs_review. Fixed, not
// configurable per call.
const ConfidenceThreshold = 70

// MinIndexableChars is the shortest extracted text worth embedding.
const MinIndexableChars = 100

type Document struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	Name           string           `json:"name"`
	Type           DocumentType     `json:"type"`
	MimeType       string           `json:"mime_type"`
	SizeBytes      int64            `json:"size_bytes"`
	StorageKey     string           `json:"storage_key"`
	Status         ProcessingStatus `json:"status"`
	Confidence     *int             `json:"confidence,omitempty"`
	ExtractedText  *string          `json:"extracted_text,omitempty"`
	Metadata       DocumentMetadata `json:"metadata"`
	Warnings       []string         `json:"warnings,omitempty"`
	GrantID        *string          `json:"grant_id,omitempty"`
	ProcessedAt    *time.Time       `json:"processed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type DocumentMetadata struct {
	WordCount  int      `json:"word_count,omitempty"`
	VectorIDs  []string `json:"vector_ids,omitempty"`
	Vectorized bool     `json:"vectorized,omitempty"`
	ChunkCount int      `json:"chunk_count,omitempty"`
}

// Merge folds vectorization results into existing metadata without
// discarding the parse-time fields.
func (m DocumentMetadata) Merge(other DocumentMetadata) DocumentMetadata {
	out := m
	if other.WordCount > 0 {
		out.WordCount = other.WordCount
	}
	if len(other.VectorIDs) > 0 {
		out.VectorIDs = other.VectorIDs
	}
	if other.Vectorized {
		out.Vectorized = true
	}
	if other.ChunkCount > 0 {
		out.ChunkCount = other.ChunkCount
	}
	return out
}

// ParseResult is what the parser capability returns for one document.
// Confidence is 0-100; stage 3 rounds it to the nearest integer before
// persisting.
type ParseResult struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	WordCount  int      `json:"word_count"`
	Warnings   []string `json:"warnings,omitempty"`
}

// ParseOutcome feeds the status transition function.
type ParseOutcome struct {
	Failed     bool
	Confidence int
}

// NextStatus is the total transition function for one upload attempt.
// Transitions are one-directional: pending → processing → terminal.
// Terminal states never move again within an attempt.
func NextStatus(current ProcessingStatus, outcome ParseOutcome) ProcessingStatus {
	switch current {
	case StatusCompleted, StatusNeedsReview, StatusFailed:
		return current
	}
	if outcome.Failed {
		return StatusFailed
	}
	if outcome.Confidence >= ConfidenceThreshold {
		return StatusCompleted
	}
	return StatusNeedsReview
}

// ParseUpdate is the single atomic write stage 3 performs: text,
// confidence, metadata, warnings and the terminal status land together.
type ParseUpdate struct {
	Status      ProcessingStatus
	Confidence  int
	Text        string
	Metadata    DocumentMetadata
	Warnings    []string
	ProcessedAt time.Time
}

func ValidDocumentType(t DocumentType) bool {
	switch t {
	case TypeApplication, TypeAwardLetter, TypeReport, TypeAgreement,
		TypeBudget, TypeAnnualReport, TypeStrategicPlan, TypeEvaluation, TypeOther:
		return true
	}
	return false
}

// CommitmentEligible reports whether a document type can feed the
// commitment extractor at all.
func (t DocumentType) CommitmentEligible() bool {
	return t == TypeAwardLetter || t == TypeAgreement
}
