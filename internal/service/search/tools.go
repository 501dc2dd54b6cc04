package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"

	"docuexplore/internal/models"
)

// ToolProvider adapts an eino search tool. These backends never synthesize an answer.
type ToolProvider struct {
	name string
	tool tool.InvokableTool
}

func NewToolProvider(name string, t tool.InvokableTool) *ToolProvider {
	return &ToolProvider{name: name, tool: t}
}

// NewDuckDuckGoProvider needs no credentials.
func NewDuckDuckGoProvider(ctx context.Context, maxResults int, timeout time.Duration) (*ToolProvider, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	duckTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "related_articles_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: maxResults,
		Region:     duckduckgo.RegionWT,
		Timeout:    timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init duckduckgo: %w", err)
	}
	return NewToolProvider("duckduckgo", duckTool), nil
}

// NewGoogleProvider uses the programmable search engine API.
func NewGoogleProvider(ctx context.Context, apiKey, engineID string, maxResults int) (*ToolProvider, error) {
	if apiKey == "" || engineID == "" {
		return nil, errors.New("google search requires GOOGLE_API_KEY and GOOGLE_SEARCH_ENGINE_ID")
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	googleTool, err := googlesearch.NewTool(ctx, &googlesearch.Config{
		ToolName:       "related_articles_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         apiKey,
		SearchEngineID: engineID,
		Lang:           "en",
		Num:            maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("init google search: %w", err)
	}
	return NewToolProvider("google", googleTool), nil
}

func (p *ToolProvider) Name() string { return p.name }

func (p *ToolProvider) Query(ctx context.Context, query string) (*models.SearchResultSet, error) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("marshal search params: %w", err)
	}
	raw, err := p.tool.InvokableRun(ctx, string(payload))
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", p.name, err)
	}
	results, err := parseToolResults(raw)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", p.name, err)
	}
	return &models.SearchResultSet{Query: query, Results: results}, nil
}

type toolResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Link    string `json:"link"`
	Summary string `json:"summary"`
	Snippet string `json:"snippet"`
	Desc    string `json:"desc"`
}

type toolOutput struct {
	Results []toolResult `json:"results"`
	Items   []toolResult `json:"items"`
}

// parseToolResults accepts both the duckduckgo ("results"/"url") and google ("items"/"link") shapes.
func parseToolResults(raw string) ([]models.SearchResult, error) {
	var out toolOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode tool output: %w", err)
	}
	items := out.Results
	if len(items) == 0 {
		items = out.Items
	}
	results := make([]models.SearchResult, 0, len(items))
	for _, item := range items {
		link := item.URL
		if link == "" {
			link = item.Link
		}
		if link == "" {
			continue
		}
		content := firstNonEmpty(item.Summary, item.Snippet, item.Desc)
		results = append(results, models.SearchResult{
			Title:   strings.TrimSpace(item.Title),
			URL:     link,
			Content: strings.TrimSpace(content),
		})
	}
	return results, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
