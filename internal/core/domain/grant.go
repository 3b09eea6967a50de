package domain

import "time"

type GrantStatus string

const (
	GrantResearching GrantStatus = "researching"
	GrantApplied     GrantStatus = "applied"
	GrantAwarded     GrantStatus = "awarded"
	GrantDeclined    GrantStatus = "declined"
	GrantClosed      GrantStatus = "closed"
)

// Grant is owned by the pipeline only to the extent the extraction gate
// needs it: identity and status.
type Grant struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id"`
	Funder         string      `json:"funder,omitempty"`
	Status         GrantStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
}
