package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grantsignal/grantsignal/internal/core/domain"
	"github.com/grantsignal/grantsignal/internal/core/ports"
)

// Client upserts chunk vectors into one Qdrant collection per
// organization. Tenant isolation is structural: a query can only ever
// address the collection its organization id names.
type Client struct {
	baseURL          string
	collectionPrefix string
	httpClient       *http.Client

	ensureMu sync.Mutex
	ensured  map[string]bool
}

func New(baseURL, collectionPrefix string) *Client {
	if collectionPrefix == "" {
		collectionPrefix = "grantsignal"
	}
	return &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		collectionPrefix: collectionPrefix,
		httpClient:       &http.Client{Timeout: 60 * time.Second},
		ensured:          make(map[string]bool),
	}
}

func (c *Client) collectionFor(organizationID string) string {
	return fmt.Sprintf("%s_%s", c.collectionPrefix, organizationID)
}

// chunkKey is the stable record identity: {documentID}-{chunkIndex}.
// Qdrant point ids must be UUIDs or integers, so the key is hashed into
// a deterministic UUIDv5 and kept verbatim in the payload. Re-upserting
// the same document overwrites, never duplicates.
func chunkKey(documentID string, index int) string {
	return fmt.Sprintf("%s-%d", documentID, index)
}

func pointID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

func (c *Client) UpsertChunks(ctx context.Context, doc *domain.Document, chunks []ports.Chunk, vectors [][]float32) ([]string, error) {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil, nil
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	collection := c.collectionFor(doc.OrganizationID)
	if err := c.ensureCollection(ctx, collection, len(vectors[0])); err != nil {
		return nil, err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	ids := make([]string, 0, len(chunks))
	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		key := chunkKey(doc.ID, chunk.Index)
		id := pointID(key)
		ids = append(ids, id)
		points = append(points, point{
			ID:     id,
			Vector: vectors[i],
			Payload: map[string]any{
				"chunk_key":       key,
				"organization_id": doc.OrganizationID,
				"document_id":     doc.ID,
				"document_name":   doc.Name,
				"document_type":   string(doc.Type),
				"chunk_index":     chunk.Index,
				// Raw chunk text lives in the payload so search hits
				// can return context without a second text lookup.
				"text": chunk.Text,
			},
		})
	}

	reqBody := map[string]any{"points": points}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant upsert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant upsert status: %s", readStatus(resp))
	}
	return ids, nil
}

func (c *Client) ensureCollection(ctx context.Context, collection string, vectorSize int) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()

	if c.ensured[collection] {
		return nil
	}

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create ensure-collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}
	defer resp.Body.Close()

	// 409 means the collection already exists, which is fine.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("qdrant create collection status: %s", readStatus(resp))
	}

	c.ensured[collection] = true
	return nil
}

func readStatus(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, msg)
}
