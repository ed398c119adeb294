package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const maxFetchLength = 50000

var (
	scriptRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// WebFetchTool fetches a URL and converts the body to readable text.
type WebFetchTool struct {
	client *http.Client
}

// NewWebFetchTool creates the fetch tool with a 30s HTTP client that
// follows redirects.
func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *WebFetchTool) ID() string { return "webfetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch content from a URL and convert it to readable text or markdown. " +
		"Use this when you need to read the content of a specific web page."
}

func (t *WebFetchTool) Parameters() json.RawMessage {
	return mustJSON(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to fetch",
			},
			"format": map[string]any{
				"type":        "string",
				"enum":        []string{"text", "markdown", "html"},
				"description": "Output format (default: markdown)",
				"default":     "markdown",
			},
		},
		"required": []string{"url"},
	})
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any, tc Context) (*Result, error) {
	target := stringArg(args, "url", "")
	if target == "" {
		return &Result{
			Title:    "Fetch failed",
			Output:   "URL parameter is required.",
			Metadata: map[string]any{"error": "missing_url"},
		}, nil
	}
	format := stringArg(args, "format", "markdown")
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = "https://" + target
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &Result{
			Title:    fmt.Sprintf("Fetch failed: %s", target),
			Output:   fmt.Sprintf("Invalid URL: %v", err),
			Metadata: map[string]any{"error": "request_error"},
		}, nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; OpenCore-API/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return &Result{
			Title:    fmt.Sprintf("Fetch failed: %s", target),
			Output:   fmt.Sprintf("Request error: %v", err),
			Metadata: map[string]any{"error": "request_error"},
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &Result{
			Title:    fmt.Sprintf("Fetch failed: %s", target),
			Output:   fmt.Sprintf("HTTP Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
			Metadata: map[string]any{"error": "http_error", "status_code": resp.StatusCode},
		}, nil
	}

	// Read at most double the cap; the rest would be truncated anyway.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchLength*2))
	if err != nil {
		return &Result{
			Title:    fmt.Sprintf("Fetch failed: %s", target),
			Output:   fmt.Sprintf("Request error: %v", err),
			Metadata: map[string]any{"error": "request_error"},
		}, nil
	}

	var content string
	switch format {
	case "html":
		content = string(body)
		if len(content) > maxFetchLength {
			content = content[:maxFetchLength]
		}
	default:
		content = htmlToText(string(body))
	}
	if len(content) > maxFetchLength {
		content = content[:maxFetchLength] + "\n\n[Content truncated...]"
	}

	return &Result{
		Title:    fmt.Sprintf("Fetched: %s", target),
		Output:   content,
		Metadata: map[string]any{"url": target, "format": format, "length": len(content)},
	}, nil
}

// htmlToText strips scripts, styles, and markup, collapsing whitespace.
func htmlToText(html string) string {
	text := scriptRe.ReplaceAllString(html, "")
	text = styleRe.ReplaceAllString(text, "")
	text = tagRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
