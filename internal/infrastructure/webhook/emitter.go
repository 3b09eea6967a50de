package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

// Emitter posts processed events to a configured endpoint. The caller
// treats delivery as fire-and-forget; an emitter error is logged, never
// propagated.
type Emitter struct {
	endpoint   string
	httpClient *http.Client
}

func New(endpoint string) *Emitter {
	return &Emitter{
		endpoint:   strings.TrimSpace(endpoint),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *Emitter) EmitProcessed(ctx context.Context, evt domain.ProcessedEvent) error {
	if e.endpoint == "" {
		return nil
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal processed event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status: %s", resp.Status)
	}
	return nil
}
