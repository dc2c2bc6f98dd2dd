package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatServer(t *testing.T, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))

		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]any{
			"model":   "test",
			"message": map[string]any{"role": "assistant", "content": "Hel"},
			"done":    false,
		})
		_ = enc.Encode(map[string]any{
			"model":             "test",
			"message":           map[string]any{"role": "assistant", "content": "lo"},
			"done":              true,
			"done_reason":       "stop",
			"prompt_eval_count": 7,
			"eval_count":        2,
		})
	}))
}

func TestModel_GenerateStreaming(t *testing.T) {
	var captured map[string]any
	srv := newChatServer(t, &captured)
	defer srv.Close()

	m, err := NewModel(func(o *Options) {
		o.BaseURL = srv.URL
		o.Model = "test"
	})
	require.NoError(t, err)

	var deltas []string
	resp, err := model.GenerateSync(context.Background(), m, model.Request{
		Contents: []core.Content{
			core.NewTextContent(core.RoleSystem, "be brief"),
			core.NewTextContent(core.RoleUser, "hi"),
		},
		StopSequences: []string{"<end_code>"},
		Stream:        true,
	}, func(r model.Response) { deltas = append(deltas, r.Content.Text()) })
	require.NoError(t, err)

	assert.Equal(t, "Hello", resp.Content.Text())
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 7, resp.Usage.InputTokens)
	assert.Equal(t, 2, resp.Usage.OutputTokens)

	opts, ok := captured["options"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"<end_code>"}, opts["stop"])
	assert.Len(t, captured["messages"], 2)
}

func TestBuildMessages_ToolResponsesBecomeObservations(t *testing.T) {
	msgs := buildMessages([]core.Content{
		core.NewTextContent(core.RoleUser, "q"),
		{Role: core.RoleTool, Parts: []core.Part{
			core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "1", Name: "search", Response: "42"}},
		}},
		core.NewTextContent(core.RoleAssistant, ""),
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Observation (search): 42")
}

func TestModel_Info(t *testing.T) {
	m, err := NewModel()
	require.NoError(t, err)
	assert.Equal(t, "ollama", m.Info().Provider)
	assert.False(t, m.Info().SupportsTools)

	_, err = NewModel(func(o *Options) { o.BaseURL = "://bad" })
	assert.Error(t, err)
}
