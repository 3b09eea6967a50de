package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

// CommitmentExtractor scans award-document text for obligations via the
// generation model's JSON mode.
type CommitmentExtractor struct {
	client *Client
}

func NewCommitmentExtractor(client *Client) *CommitmentExtractor {
	return &CommitmentExtractor{client: client}
}

type extractedCommitment struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	MetricName  string `json:"metric_name"`
	MetricValue string `json:"metric_value"`
	DueDate     string `json:"due_date"`
}

func (e *CommitmentExtractor) Extract(ctx context.Context, doc *domain.Document, grant *domain.Grant, text string) ([]domain.Commitment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	raw, err := e.client.generateJSON(ctx, buildCommitmentPrompt(text))
	if err != nil {
		return nil, err
	}

	var response struct {
		Commitments []extractedCommitment `json:"commitments"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &response); err != nil {
		return nil, fmt.Errorf("parse commitment json: %w", err)
	}

	commitments := make([]domain.Commitment, 0, len(response.Commitments))
	for _, c := range response.Commitments {
		description := strings.TrimSpace(c.Description)
		if description == "" {
			continue
		}
		commitmentType := domain.CommitmentType(strings.TrimSpace(c.Type))
		if !domain.ValidCommitmentType(commitmentType) {
			commitmentType = domain.CommitmentDeliverable
		}

		commitment := domain.Commitment{
			OrganizationID: doc.OrganizationID,
			GrantID:        grant.ID,
			DocumentID:     doc.ID,
			Type:           commitmentType,
			Description:    description,
			ExtractedBy:    domain.ExtractedBySystem,
		}
		if name := strings.TrimSpace(c.MetricName); name != "" {
			commitment.MetricName = &name
		}
		if value := strings.TrimSpace(c.MetricValue); value != "" {
			commitment.MetricValue = &value
		}
		if due, ok := parseDueDate(c.DueDate); ok {
			commitment.DueDate = &due
		}
		commitments = append(commitments, commitment)
	}
	return commitments, nil
}

func parseDueDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "January 2, 2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
