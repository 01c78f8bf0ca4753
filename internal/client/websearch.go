package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/liliang-cn/ragproxy/internal/domain"
)

// WebSearch talks to the web search service.
type WebSearch struct {
	baseURL    string
	maxResults int
	httpClient *http.Client
}

// NewWebSearch creates a web search client with a 45s per-call timeout;
// the service fetches and ranks pages behind this call.
func NewWebSearch(baseURL string, maxResults int) *WebSearch {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebSearch{
		baseURL:    baseURL,
		maxResults: maxResults,
		httpClient: &http.Client{
			Timeout: 45 * time.Second,
		},
	}
}

type webSearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type webSearchResponse struct {
	Results []domain.SearchResult `json:"results"`
}

// Search runs one query and returns the ranked hits.
func (w *WebSearch) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	body, err := json.Marshal(webSearchRequest{Query: query, MaxResults: w.maxResults})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/api/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerContentType, mimeJSON)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("web search: status %d: %s", resp.StatusCode, raw)
	}

	var parsed webSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode web search results: %w", err)
	}
	return parsed.Results, nil
}
