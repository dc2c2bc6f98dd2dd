package duckduckgo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/logging"
	"github.com/hupe1980/codeagent/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultPage = `<html><body>
<div class="results">
  <div class="result results_links web-result">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2F&amp;rut=abc">The Go
      Programming Language</a>
    <a class="result__snippet" href="#">Go is an open source language.</a>
  </div>
  <div class="result results_links web-result">
    <a class="result__a" href="https://example.com">Example</a>
  </div>
  <div class="result results_links web-result">
    <a class="result__a" href="https://third.example">Third</a>
  </div>
</div>
</body></html>`

func toolCtx() *core.ToolContext {
	return core.NewStandaloneToolContext(context.Background(), logging.NoOpLogger{})
}

func TestParseResults(t *testing.T) {
	results, err := ParseResults(resultPage, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "The Go Programming Language", results[0].Title)
	assert.Equal(t, "https://go.dev/", results[0].URL)
	assert.Equal(t, "Go is an open source language.", results[0].Description)
	assert.Equal(t, "https://example.com", results[1].URL)
}

func TestResolveMaxResults(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{name: "zero uses default", input: 0, expected: 5},
		{name: "negative uses default", input: -1, expected: 5},
		{name: "valid value returned", input: 3, expected: 3},
		{name: "large value capped at max", input: 20, expected: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveMaxResults(tt.input))
		})
	}
}

func TestDecodeRedirectURL(t *testing.T) {
	assert.Equal(t, "https://example.com/a b", DecodeRedirectURL("//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa%20b"))
	assert.Equal(t, "https://plain.example", DecodeRedirectURL("https://plain.example"))
}

func TestSearchTool_Call(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_ = r.ParseForm()
		gotQuery = r.PostForm.Get("q")
		_, _ = w.Write([]byte(resultPage))
	}))
	defer srv.Close()

	st := NewSearchTool(func(o *Options) {
		o.BaseURL = srv.URL
		o.RetryCount = 0
	})

	out, err := st.Call(toolCtx(), map[string]any{"query": "golang", "max_results": 1.0})
	require.NoError(t, err)
	assert.Equal(t, "golang", gotQuery)
	assert.Equal(t, "## Search Results\n\n[The Go Programming Language](https://go.dev/)\nGo is an open source language.", out)
}

func TestSearchTool_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	st := NewSearchTool(func(o *Options) {
		o.BaseURL = srv.URL
		o.RetryCount = 0
	})

	_, err := st.Call(toolCtx(), map[string]any{"query": ""})
	var toolErr *tool.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.CodeValidation, toolErr.Code)

	_, err = st.Call(toolCtx(), map[string]any{"query": "x"})
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, toolErr.Message, "418")
}
