// Package duckduckgo implements a keyless web search tool backed by the
// DuckDuckGo HTML endpoint.
package duckduckgo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/internal/httpx"
	"github.com/hupe1980/codeagent/tool"
	"golang.org/x/net/html"
)

const (
	// ToolName is the name the search tool is registered under.
	ToolName = "duckduckgo_search"

	defaultURL        = "https://html.duckduckgo.com/html/"
	defaultMaxResults = 5
	maxAllowedResults = 10
)

// Result represents a single search result.
type Result struct {
	Title       string
	URL         string
	Description string
}

// Options configure the search tool.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// SearchTool searches the web with DuckDuckGo.
type SearchTool struct {
	opts   Options
	client *resty.Client
}

// NewSearchTool creates the duckduckgo_search tool.
func NewSearchTool(optFns ...func(o *Options)) *SearchTool {
	opts := Options{
		BaseURL:    defaultURL,
		Timeout:    30 * time.Second,
		RetryCount: 3,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := httpx.NewClient(func(o *httpx.Options) {
		o.Timeout = opts.Timeout
		o.RetryCount = opts.RetryCount
	})
	return &SearchTool{opts: opts, client: client}
}

// Name implements tool.Tool.
func (t *SearchTool) Name() string { return ToolName }

// Description implements tool.Tool.
func (t *SearchTool) Description() string {
	return "Performs a DuckDuckGo web search for your query then returns a string of the top search results."
}

// Parameters implements tool.Tool.
func (t *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to perform.",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return (default: 5, max: 10)",
				"nullable":    true,
			},
		},
		"required": []string{"query"},
	}
}

// Call implements tool.Tool.
func (t *SearchTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, tool.NewToolError(ToolName, "query is required", tool.CodeValidation)
	}

	maxResults := 0
	switch n := args["max_results"].(type) {
	case float64:
		maxResults = int(n)
	case int:
		maxResults = n
	}

	ctx, cancel := context.WithTimeout(toolCtx.Context(), t.opts.Timeout)
	defer cancel()

	results, err := t.Search(ctx, query, ResolveMaxResults(maxResults))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, tool.NewToolError(ToolName, fmt.Sprintf("search timed out after %v", t.opts.Timeout), tool.CodeExecution)
		}
		return nil, tool.NewToolError(ToolName, fmt.Sprintf("search failed: %v", err), tool.CodeExecution)
	}

	if len(results) == 0 {
		return fmt.Sprintf("No results found for '%s'. Try with a more general query.", query), nil
	}

	return FormatResults(results), nil
}

// Search performs the HTTP request and parses up to maxResults results.
func (t *SearchTool) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"q": query}).
		Post(t.opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	return ParseResults(resp.String(), maxResults)
}

// ResolveMaxResults applies the default and the upper bound.
func ResolveMaxResults(maxResults int) int {
	if maxResults <= 0 {
		return defaultMaxResults
	}
	return min(maxResults, maxAllowedResults)
}

// ParseResults extracts results from a DuckDuckGo HTML result page.
func ParseResults(htmlContent string, maxResults int) ([]Result, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}

		if isResultDiv(n) {
			if r := extractResult(n); r != nil {
				results = append(results, *r)
			}
			return
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return results, nil
}

func isResultDiv(n *html.Node) bool {
	if n.Type != html.ElementNode || n.Data != "div" {
		return false
	}
	for _, cls := range classes(n) {
		if cls == "result" {
			return true
		}
	}
	return false
}

func extractResult(n *html.Node) *Result {
	r := &Result{}

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			if node.Data == "a" && hasClass(node, "result__a") {
				r.Title = textContent(node)
				r.URL = DecodeRedirectURL(attr(node, "href"))
			}
			if hasClass(node, "result__snippet") {
				r.Description = textContent(node)
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	if r.Title == "" || r.URL == "" {
		return nil
	}

	return r
}

func classes(n *html.Node) []string {
	return strings.Fields(attr(n, "class"))
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range classes(n) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// DecodeRedirectURL unwraps DuckDuckGo redirect links of the form
// //duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com.
func DecodeRedirectURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "//") {
		rawURL = "https:" + rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if uddg := parsed.Query().Get("uddg"); uddg != "" {
		return uddg
	}

	return rawURL
}

// FormatResults renders results as a markdown list.
func FormatResults(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		entry := fmt.Sprintf("[%s](%s)", r.Title, r.URL)
		if r.Description != "" {
			entry += "\n" + r.Description
		}
		parts = append(parts, entry)
	}
	return "## Search Results\n\n" + strings.Join(parts, "\n\n")
}
