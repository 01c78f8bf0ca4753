// Package client holds the HTTP clients for the proxy's external
// collaborators: the inference backend, the vision describer, the
// knowledge-base document server, and the web search service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	mimeJSON          = "application/json"
	headerContentType = "Content-Type"
)

// Ollama talks to the inference backend's REST API.
// Endpoints used:
//   - POST /api/chat — streaming chat completion (the relay target)
//   - GET  /api/tags — model inventory
//   - POST /api/show — per-model details for capability probing
type Ollama struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllama creates a backend client. The client carries no global timeout;
// chat streams run for as long as the backend generates and are bounded by
// the request context.
func NewOllama(baseURL string) *Ollama {
	return &Ollama{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// BaseURL returns the backend base address.
func (o *Ollama) BaseURL() string {
	return o.baseURL
}

// ChatStream POSTs a chat body and returns the backend's raw streaming
// response. The caller owns the response body and the status handling.
func (o *Ollama) ChatStream(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerContentType, mimeJSON)
	return o.httpClient.Do(req)
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the names of the models the backend serves.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

type showRequest struct {
	Name string `json:"name"`
}

type showResponse struct {
	Details  json.RawMessage `json:"details"`
	Template string          `json:"template"`
}

// ShowModel fetches one model's details and template blob for capability
// keyword scanning.
func (o *Ollama) ShowModel(ctx context.Context, name string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	body, err := json.Marshal(showRequest{Name: name})
	if err != nil {
		return "", "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/show", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set(headerContentType, mimeJSON)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("show model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", "", fmt.Errorf("show model: status %d: %s", resp.StatusCode, raw)
	}

	var show showResponse
	if err := json.NewDecoder(resp.Body).Decode(&show); err != nil {
		return "", "", fmt.Errorf("decode show response: %w", err)
	}
	return string(show.Details), show.Template, nil
}
