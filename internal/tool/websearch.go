package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	searchUserAgent      = "Mozilla/5.0 (compatible; OpenCore-API/1.0)"
	defaultSearchResults = 5
	maxSearchResults     = 20
)

// WebSearchTool searches the web through DuckDuckGo's Instant Answer
// API and formats results as a numbered list.
type WebSearchTool struct {
	client  *http.Client
	baseURL string
}

// NewWebSearchTool creates the web search tool with a 30s HTTP client.
func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://api.duckduckgo.com",
	}
}

func (t *WebSearchTool) ID() string { return "websearch" }

func (t *WebSearchTool) Description() string {
	return "Search the web using DuckDuckGo. Returns relevant search results " +
		"with titles, URLs, and snippets. Use this when you need current " +
		"information from the internet."
}

func (t *WebSearchTool) Parameters() json.RawMessage {
	return mustJSON(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return (default: 5)",
				"default":     defaultSearchResults,
			},
		},
		"required": []string{"query"},
	})
}

type searchResult struct {
	Title   string
	URL     string
	Snippet string
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any, tc Context) (*Result, error) {
	query := stringArg(args, "query", "")
	if query == "" {
		return &Result{
			Title:    "Web search",
			Output:   "Query parameter is required.",
			Metadata: map[string]any{"error": "missing_query"},
		}, nil
	}
	maxResults := intArg(args, "max_results", defaultSearchResults)
	if maxResults < 1 {
		maxResults = 1
	} else if maxResults > maxSearchResults {
		maxResults = maxSearchResults
	}

	results, err := t.search(ctx, query, maxResults)
	if err != nil {
		return &Result{
			Title:    fmt.Sprintf("Web search: %s", query),
			Output:   fmt.Sprintf("Error performing search: %v", err),
			Metadata: map[string]any{"error": err.Error()},
		}, nil
	}
	if len(results) == 0 {
		return &Result{
			Title:    fmt.Sprintf("Web search: %s", query),
			Output:   "No results found.",
			Metadata: map[string]any{"query": query, "count": 0},
		}, nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Title)
		fmt.Fprintf(&b, "   URL: %s\n", r.URL)
		fmt.Fprintf(&b, "   %s\n\n", r.Snippet)
	}
	return &Result{
		Title:    fmt.Sprintf("Web search: %s", query),
		Output:   strings.TrimRight(b.String(), "\n"),
		Metadata: map[string]any{"query": query, "count": len(results)},
	}, nil
}

func (t *WebSearchTool) search(ctx context.Context, query string, maxResults int) ([]searchResult, error) {
	endpoint := fmt.Sprintf("%s/?q=%s&format=json&no_html=1", t.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DuckDuckGo returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var ddg struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &ddg); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var results []searchResult
	if ddg.AbstractText != "" && ddg.AbstractURL != "" {
		results = append(results, searchResult{
			Title:   ddg.Heading,
			URL:     ddg.AbstractURL,
			Snippet: ddg.AbstractText,
		})
	}
	for _, topic := range ddg.RelatedTopics {
		if len(results) >= maxResults {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		title := topic.Text
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, searchResult{
			Title:   title,
			URL:     topic.FirstURL,
			Snippet: topic.Text,
		})
	}
	return results, nil
}
