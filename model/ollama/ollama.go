// Package ollama implements model.Model on top of a local Ollama server using
// the chat endpoint. The adapter is text only: tool definitions are not
// forwarded, which is sufficient for code agents that express actions as code.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/model"
	"github.com/ollama/ollama/api"
)

// Options configures the Ollama adapter.
type Options struct {
	Model       string
	BaseURL     string
	Temperature float64
	NumCtx      int
	HTTPClient  *http.Client
}

// Model wraps an Ollama chat client.
type Model struct {
	client *api.Client
	opts   Options
}

// NewModel creates a model talking to Options.BaseURL (default http://localhost:11434).
func NewModel(optFns ...func(o *Options)) (*Model, error) {
	opts := Options{
		Model:       "llama3.1",
		BaseURL:     "http://localhost:11434",
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url: %w", err)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
	}

	return &Model{client: api.NewClient(u, hc), opts: opts}, nil
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		stream := req.Stream
		options := map[string]any{"temperature": m.opts.Temperature}
		if m.opts.NumCtx > 0 {
			options["num_ctx"] = m.opts.NumCtx
		}
		if len(req.StopSequences) > 0 {
			options["stop"] = req.StopSequences
		}

		chatReq := &api.ChatRequest{
			Model:    m.opts.Model,
			Messages: buildMessages(req.Contents),
			Stream:   &stream,
			Options:  options,
		}

		var (
			text   strings.Builder
			reason string
			usage  *model.TokenUsage
		)

		err := m.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			if chunk := resp.Message.Content; chunk != "" {
				text.WriteString(chunk)
				if stream {
					out <- model.Response{
						Partial: true,
						Content: core.NewTextContent(core.RoleAssistant, chunk),
					}
				}
			}
			if resp.Done {
				reason = resp.DoneReason
				usage = &model.TokenUsage{
					InputTokens:  resp.Metrics.PromptEvalCount,
					OutputTokens: resp.Metrics.EvalCount,
				}
			}
			return nil
		})
		if err != nil {
			errCh <- wrapError(err)
			return
		}

		if reason == "" {
			reason = "stop"
		}

		out <- model.Response{
			Content:      core.NewTextContent(core.RoleAssistant, text.String()),
			FinishReason: reason,
			Usage:        usage,
		}
	}()

	return out, errCh
}

// buildMessages flattens contents into role/text chat messages. Tool
// responses are rendered as user observations.
func buildMessages(contents []core.Content) []api.Message {
	messages := make([]api.Message, 0, len(contents))
	for _, c := range contents {
		role := c.Role
		text := c.Text()
		if c.Role == core.RoleTool {
			role = core.RoleUser
			var sb strings.Builder
			for _, fr := range c.FunctionResponses() {
				if fr.Error != "" {
					fmt.Fprintf(&sb, "Observation (%s): error: %s\n", fr.Name, fr.Error)
					continue
				}
				fmt.Fprintf(&sb, "Observation (%s): %v\n", fr.Name, fr.Response)
			}
			text = strings.TrimSpace(sb.String())
		}
		if text == "" {
			continue
		}
		messages = append(messages, api.Message{Role: role, Content: text})
	}
	return messages
}

func wrapError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return &model.APIError{Provider: "ollama", StatusCode: statusErr.StatusCode, Err: err}
	}
	return fmt.Errorf("ollama chat: %w", err)
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "ollama", SupportsTools: false}
}
