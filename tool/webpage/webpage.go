// Package webpage provides the visit_webpage tool which fetches a URL and
// returns its content as markdown.
package webpage

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-resty/resty/v2"
	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/internal/httpx"
	"github.com/hupe1980/codeagent/internal/util"
	"github.com/hupe1980/codeagent/tool"
)

// ToolName is the name the tool is registered under.
const ToolName = "visit_webpage"

var blankLines = regexp.MustCompile(`\n{3,}`)

// Options configure the tool.
type Options struct {
	MaxLength  int
	Timeout    time.Duration
	RetryCount int
}

// VisitTool fetches web pages.
type VisitTool struct {
	opts   Options
	client *resty.Client
}

// NewVisitTool creates the visit_webpage tool.
func NewVisitTool(optFns ...func(o *Options)) *VisitTool {
	opts := Options{
		MaxLength:  40000,
		Timeout:    20 * time.Second,
		RetryCount: 2,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := httpx.NewClient(func(o *httpx.Options) {
		o.Timeout = opts.Timeout
		o.RetryCount = opts.RetryCount
	})
	return &VisitTool{opts: opts, client: client}
}

// Name implements tool.Tool.
func (t *VisitTool) Name() string { return ToolName }

// Description implements tool.Tool.
func (t *VisitTool) Description() string {
	return "Visits a webpage at the given url and reads its content as a markdown string. Use this to browse webpages."
}

// Parameters implements tool.Tool.
func (t *VisitTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The url of the webpage to visit.",
			},
		},
		"required": []string{"url"},
	}
}

// Call implements tool.Tool.
func (t *VisitTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	target, _ := args["url"].(string)
	if target == "" {
		return nil, tool.NewToolError(ToolName, "url is required", tool.CodeValidation)
	}

	resp, err := t.client.R().SetContext(toolCtx.Context()).Get(target)
	if err != nil {
		return nil, tool.NewToolError(ToolName, fmt.Sprintf("error fetching the webpage: %v", err), tool.CodeExecution)
	}
	if resp.IsError() {
		return nil, tool.NewToolError(ToolName, fmt.Sprintf("error fetching the webpage: status %d", resp.StatusCode()), tool.CodeExecution)
	}

	md, err := htmltomarkdown.ConvertString(resp.String())
	if err != nil {
		return nil, tool.NewToolError(ToolName, fmt.Sprintf("error converting the webpage: %v", err), tool.CodeExecution)
	}

	md = strings.TrimSpace(blankLines.ReplaceAllString(md, "\n\n"))

	return util.Truncate(md, t.opts.MaxLength), nil
}
