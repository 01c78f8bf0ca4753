package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/liliang-cn/ragproxy/internal/domain"
)

// KB talks to the knowledge-base document server. When no knowledge base is
// configured it discovers one: the first entry of the server's list, cached
// for the process lifetime.
type KB struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	defaultKB string
}

// NewKB creates a knowledge-base client with a 30s per-call timeout.
func NewKB(baseURL string) *KB {
	return &KB{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type kbListResponse struct {
	KBList map[string]json.RawMessage `json:"kb_list"`
}

// ListKnowledgeBases returns the server's knowledge-base ids, sorted for
// deterministic selection.
func (k *KB) ListKnowledgeBases(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+"/api/knowledge-base/list", nil)
	if err != nil {
		return nil, err
	}
	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list knowledge bases: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list knowledge bases: status %d", resp.StatusCode)
	}

	var list kbListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode knowledge base list: %w", err)
	}
	ids := make([]string, 0, len(list.KBList))
	for id := range list.KBList {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type kbSearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type kbSearchResponse struct {
	Results []domain.KBResult `json:"results"`
}

// Search queries the default knowledge base.
func (k *KB) Search(ctx context.Context, query string, topK int) ([]domain.KBResult, error) {
	kbID, err := k.resolveDefaultKB(ctx)
	if err != nil {
		return nil, err
	}
	return k.SearchKB(ctx, kbID, query, topK)
}

// SearchKB queries one knowledge base by id.
func (k *KB) SearchKB(ctx context.Context, kbID, query string, topK int) ([]domain.KBResult, error) {
	body, err := json.Marshal(kbSearchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/api/knowledge-base/%s/search", k.baseURL, kbID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerContentType, mimeJSON)

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge base search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("knowledge base search: status %d: %s", resp.StatusCode, raw)
	}

	var parsed kbSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode knowledge base results: %w", err)
	}
	return parsed.Results, nil
}

func (k *KB) resolveDefaultKB(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.defaultKB != "" {
		return k.defaultKB, nil
	}
	ids, err := k.ListKnowledgeBases(ctx)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("no knowledge base available: %w", domain.ErrNotFound)
	}
	k.defaultKB = ids[0]
	return k.defaultKB, nil
}
