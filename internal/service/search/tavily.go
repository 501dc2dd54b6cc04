package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docuexplore/internal/models"
)

const DefaultTavilyURL = "https://api.tavily.com"

// TavilyProvider calls the Tavily search API.
type TavilyProvider struct {
	baseURL    string
	apiKey     string
	maxResults int
	httpClient *http.Client
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeImages bool   `json:"include_images"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type tavilyResponse struct {
	Query   string `json:"query"`
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func NewTavilyProvider(baseURL, apiKey string, maxResults int, timeout time.Duration) (*TavilyProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("tavily api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultTavilyURL
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TavilyProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (p *TavilyProvider) Name() string { return "tavily" }

func (p *TavilyProvider) Query(ctx context.Context, query string) (*models.SearchResultSet, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(tavilyRequest{
		APIKey:        p.apiKey,
		Query:         query,
		SearchDepth:   "advanced",
		IncludeImages: false,
		IncludeAnswer: true,
		MaxResults:    p.maxResults,
	}); err != nil {
		return nil, fmt.Errorf("encode tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/search", &buf)
	if err != nil {
		return nil, fmt.Errorf("build tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if readErr != nil {
		return nil, fmt.Errorf("read tavily response: %w", readErr)
	}

	var decoded tavilyResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}
	out := &models.SearchResultSet{
		Query:   decoded.Query,
		Answer:  strings.TrimSpace(decoded.Answer),
		Results: make([]models.SearchResult, 0, len(decoded.Results)),
	}
	for _, r := range decoded.Results {
		out.Results = append(out.Results, models.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		})
	}
	return out, nil
}
