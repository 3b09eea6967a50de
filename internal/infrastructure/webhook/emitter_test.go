package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

func TestEmitProcessedPostsEvent(t *testing.T) {
	var received domain.ProcessedEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected json content type, got %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	emitter := New(server.URL)
	err := emitter.EmitProcessed(context.Background(), domain.ProcessedEvent{
		Type:       domain.NotificationDocumentProcessed,
		DocumentID: "doc-1",
		Status:     domain.StatusCompleted,
		Confidence: 82,
	})
	if err != nil {
		t.Fatalf("EmitProcessed() error = %v", err)
	}
	if received.DocumentID != "doc-1" || received.Status != domain.StatusCompleted {
		t.Fatalf("unexpected delivered event: %+v", received)
	}
}

func TestEmitProcessedErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	emitter := New(server.URL)
	if err := emitter.EmitProcessed(context.Background(), domain.ProcessedEvent{}); err == nil {
		t.Fatalf("expected error for 502 response")
	}
}

func TestEmitProcessedNoEndpointIsNoOp(t *testing.T) {
	emitter := New("")
	if err := emitter.EmitProcessed(context.Background(), domain.ProcessedEvent{}); err != nil {
		t.Fatalf("empty endpoint must be a no-op, got %v", err)
	}
}
