package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPStore mirrors documents to an immutable-ledger service over its
// document API: POST /v1/documents returns the external reference,
// GET /v1/documents/{ref} fetches one back.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore builds a store for endpoint with a per-call timeout. The
// timeout keeps mirror calls off the liveness path even when the service
// hangs.
func NewHTTPStore(endpoint string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(endpoint, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// StoreDocument writes doc to the remote ledger and returns its reference.
func (s *HTTPStore) StoreDocument(ctx context.Context, doc Document) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("mirror: marshal document: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/documents", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("mirror: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mirror: store document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("mirror: store document: status %d", resp.StatusCode)
	}
	var out struct {
		Ref string `json:"ref"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("mirror: decode response: %w", err)
	}
	if out.Ref == "" {
		return "", fmt.Errorf("mirror: empty document reference")
	}
	return out.Ref, nil
}

// FetchDocument retrieves a mirrored document by its external reference.
func (s *HTTPStore) FetchDocument(ctx context.Context, ref string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/documents/"+url.PathEscape(ref), nil)
	if err != nil {
		return Document{}, fmt.Errorf("mirror: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("mirror: fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Document{}, fmt.Errorf("mirror: document %s not found", ref)
	}
	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("mirror: fetch document: status %d", resp.StatusCode)
	}
	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("mirror: decode document: %w", err)
	}
	return doc, nil
}
