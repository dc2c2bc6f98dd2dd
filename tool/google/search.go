package google

import (
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/tool"
)

// SearchToolName is the name web search is registered under.
const SearchToolName = "web_search"

type searchResponse struct {
	Items []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	} `json:"items"`
}

// SearchTool queries the Google Custom Search API.
type SearchTool struct {
	opts   Options
	client *resty.Client
}

// NewSearchTool creates the web_search tool.
func NewSearchTool(optFns ...func(o *Options)) *SearchTool {
	opts := newOptions(optFns...)
	return &SearchTool{opts: opts, client: opts.newClient()}
}

// Name implements tool.Tool.
func (t *SearchTool) Name() string { return SearchToolName }

// Description implements tool.Tool.
func (t *SearchTool) Description() string {
	return "Performs a Google web search for your query then returns a string of the top search results."
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
			"filter_year": map[string]any{
				"type":        "integer",
				"description": "Optionally restrict results to a certain year",
				"nullable":    true,
			},
		},
		"required": []string{"query"},
	}
}

// Call implements tool.Tool.
func (t *SearchTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	if t.opts.APIKey == "" {
		return nil, tool.NewToolError(SearchToolName,
			"Missing Google API key. Make sure you have 'GOOGLE_API_KEY' in your env variables.", tool.CodeExecution)
	}
	if t.opts.CSEID == "" {
		return nil, tool.NewToolError(SearchToolName,
			"Missing Custom Search Engine ID. Make sure you have 'GOOGLE_CSE_ID' in your env variables.", tool.CodeExecution)
	}

	query, _ := args["query"].(string)
	if query == "" {
		return nil, tool.NewToolError(SearchToolName, "query is required", tool.CodeValidation)
	}

	year, hasYear, err := intArg(args, "filter_year")
	if err != nil {
		return nil, tool.NewToolError(SearchToolName, err.Error(), tool.CodeValidation)
	}

	params := map[string]string{
		"key": t.opts.APIKey,
		"cx":  t.opts.CSEID,
		"q":   query,
	}
	if hasYear {
		params["sort"] = "date"
		params["dateRestrict"] = fmt.Sprintf("y%d", year)
	}

	var result searchResponse
	resp, err := t.client.R().
		SetContext(toolCtx.Context()).
		SetQueryParams(params).
		SetResult(&result).
		Get(t.opts.SearchURL)
	if err != nil {
		return nil, tool.NewToolError(SearchToolName,
			fmt.Sprintf("Error making request to Google Custom Search API: %v", err), tool.CodeExecution)
	}
	if resp.IsError() {
		return nil, tool.NewToolError(SearchToolName,
			fmt.Sprintf("Error making request to Google Custom Search API: status %d", resp.StatusCode()), tool.CodeExecution)
	}

	if len(result.Items) == 0 {
		yearMsg := ""
		if hasYear {
			yearMsg = fmt.Sprintf(" with filter year=%d", year)
		}
		return fmt.Sprintf("No results found for '%s'%s. Try with a more general query, or remove the year filter.", query, yearMsg), nil
	}

	snippets := make([]string, 0, len(result.Items))
	for i, item := range result.Items {
		title := item.Title
		if title == "" {
			title = "No title"
		}
		link := item.Link
		if link == "" {
			link = "#"
		}
		snippets = append(snippets, fmt.Sprintf("%d. [%s](%s)", i+1, title, link))
	}

	return "## Search Results\n" + strings.Join(snippets, "\n\n"), nil
}
