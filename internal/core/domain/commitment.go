package domain

import "time"

type CommitmentType string

const (
	CommitmentDeliverable   CommitmentType = "deliverable"
	CommitmentOutcomeMetric CommitmentType = "outcome_metric"
	CommitmentReportDue     CommitmentType = "report_due"
	CommitmentBudgetSpend   CommitmentType = "budget_spend"
	CommitmentStaffing      CommitmentType = "staffing"
	CommitmentTimeline      CommitmentType = "timeline"
)

// ExtractedBySystem marks commitments created by the automated scan, as
// opposed to rows entered by a person.
const ExtractedBySystem = "system"

// Commitment is an obligation pulled out of an award document, e.g.
// "submit quarterly report by March 1".
type Commitment struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	GrantID        string         `json:"grant_id"`
	DocumentID     string         `json:"document_id"`
	Type           CommitmentType `json:"type"`
	Description    string         `json:"description"`
	MetricName     *string        `json:"metric_name,omitempty"`
	MetricValue    *string        `json:"metric_value,omitempty"`
	DueDate        *time.Time     `json:"due_date,omitempty"`
	ExtractedBy    string         `json:"extracted_by"`
	CreatedAt      time.Time      `json:"created_at"`
}

func ValidCommitmentType(t CommitmentType) bool {
	switch t {
	case CommitmentDeliverable, CommitmentOutcomeMetric, CommitmentReportDue,
		CommitmentBudgetSpend, CommitmentStaffing, CommitmentTimeline:
		return true
	}
	return false
}

// ComplianceAudit records that an automated scan ran. Append-only.
type ComplianceAudit struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Action         string    `json:"action"`
	Actor          string    `json:"actor"`
	DocumentID     string    `json:"document_id"`
	GrantID        string    `json:"grant_id"`
	CommitmentCnt  int       `json:"commitment_count"`
	CreatedAt      time.Time `json:"created_at"`
}

const AuditActionCommitmentScan = "commitment_scan"
