package rerankers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"docqa/internal/config"
	"docqa/internal/rag/interfaces"
	"docqa/internal/rag/schema"
)

const (
	defaultCohereURL   = "https://api.cohere.ai/v1/rerank"
	defaultCohereModel = "rerank-english-v3.0"
)

// Doer sends HTTP requests. *http.Client and the circuit breaking client both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CohereReranker implements the Reranker interface using the Cohere Rerank API.
type CohereReranker struct {
	apiKey     string
	model      string
	url        string
	httpClient Doer
}

type cohereRerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n"`
	ReturnDocuments bool     `json:"return_documents"`
}

type cohereRerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type cohereRerankResponse struct {
	Results []cohereRerankResult `json:"results"`
}

// NewCohereReranker creates a CohereReranker from the rerank config. A nil client uses http.DefaultClient.
func NewCohereReranker(cfg config.RerankConfig, client Doer) (*CohereReranker, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("cohere reranker: api key is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	r := &CohereReranker{apiKey: cfg.APIKey, model: cfg.Model, url: cfg.BaseURL, httpClient: client}
	if r.model == "" {
		r.model = defaultCohereModel
	}
	if r.url == "" {
		r.url = defaultCohereURL
	}
	return r, nil
}

// Rerank re-orders chunks by Cohere relevance score. Chunks the API omits are dropped.
func (r *CohereReranker) Rerank(ctx context.Context, query string, chunks schema.RetrievalResult) (schema.RetrievalResult, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	docTexts := make([]string, len(chunks))
	for i, c := range chunks {
		docTexts[i] = c.Chunk.Text
	}
	payload, err := json.Marshal(cohereRerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: docTexts,
		TopN:      len(chunks),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cohere request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create cohere request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call cohere api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cohere api returned non-200 status: %s", resp.Status)
	}

	var cohereResp cohereRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&cohereResp); err != nil {
		return nil, fmt.Errorf("failed to decode cohere response: %w", err)
	}

	reranked := make(schema.RetrievalResult, 0, len(cohereResp.Results))
	seen := make(map[int]bool, len(cohereResp.Results))
	for _, result := range cohereResp.Results {
		if result.Index < 0 || result.Index >= len(chunks) || seen[result.Index] {
			continue
		}
		seen[result.Index] = true
		c := chunks[result.Index]
		c.Score = float32(result.RelevanceScore)
		reranked = append(reranked, c)
	}

	sort.SliceStable(reranked, func(i, j int) bool { return reranked[i].Score > reranked[j].Score })
	return reranked, nil
}

var _ interfaces.Reranker = (*CohereReranker)(nil)
