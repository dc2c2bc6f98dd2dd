package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/codeagent/agent"
	"github.com/hupe1980/codeagent/artifact"
	"github.com/hupe1980/codeagent/artifact/s3"
	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/logging"
	"github.com/hupe1980/codeagent/model"
	"github.com/hupe1980/codeagent/model/anthropic"
	"github.com/hupe1980/codeagent/model/ollama"
	"github.com/hupe1980/codeagent/model/openai"
	"github.com/hupe1980/codeagent/runner"
	"github.com/hupe1980/codeagent/session"
	"github.com/hupe1980/codeagent/tool"
	"github.com/hupe1980/codeagent/tool/duckduckgo"
	"github.com/hupe1980/codeagent/tool/google"
	"github.com/hupe1980/codeagent/tool/webpage"
)

var toolBuilders = map[string]func() tool.Tool{
	google.SearchToolName:       func() tool.Tool { return google.NewSearchTool() },
	google.PlacesToolName:       func() tool.Tool { return google.NewPlacesTool() },
	google.WorkingHoursToolName: func() tool.Tool { return google.NewWorkingHoursTool() },
	duckduckgo.ToolName:         func() tool.Tool { return duckduckgo.NewSearchTool() },
	webpage.ToolName:            func() tool.Tool { return webpage.NewVisitTool() },
	tool.StateToolName:          func() tool.Tool { return tool.NewStateTool() },
}

func toolNames() []string {
	names := make([]string, 0, len(toolBuilders))
	for name := range toolBuilders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func buildTools(names []string) ([]tool.Tool, error) {
	tools := make([]tool.Tool, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		build, ok := toolBuilders[name]
		if !ok {
			return nil, fmt.Errorf("unknown tool %q, available: %s", name, strings.Join(toolNames(), ", "))
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		tools = append(tools, build())
	}
	return tools, nil
}

func buildModel(cfg *Config) (model.Model, error) {
	var m model.Model

	switch cfg.Provider {
	case "openai":
		m = openai.NewModel(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = int64(cfg.MaxTokens)
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.APIBase
		})
	case "anthropic":
		m = anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			o.Temperature = cfg.Temperature
			o.MaxTokens = int64(cfg.MaxTokens)
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.APIBase
		})
	case "ollama":
		om, err := ollama.NewModel(func(o *ollama.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.APIBase != "" {
				o.BaseURL = cfg.APIBase
			}
			o.Temperature = cfg.Temperature
			o.NumCtx = cfg.NumCtx
		})
		if err != nil {
			return nil, err
		}
		m = om
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	return model.WithRetry(m, model.DefaultRetryPolicy()), nil
}

// buildLogger returns the logger and a function closing the log file.
func buildLogger(cfg *Config) (*logging.AgentLogger, func() error, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	lc := logging.DefaultLoggerConfig()
	lc.Level = level
	lc.Format = cfg.LogFormat
	lc.Component = "cli"

	closeFn := func() error { return nil }
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		lc.File = f
		closeFn = f.Close
	}

	return logging.NewLogger(lc), closeFn, nil
}

// buildStores returns the session and artifact stores and a cleanup function.
func buildStores(cfg *Config) (core.SessionStore, core.ArtifactStore, func() error, error) {
	var sessions core.SessionStore = session.NewInMemoryStore()
	var artifacts core.ArtifactStore = artifact.NewInMemoryStore()
	closeFn := func() error { return nil }

	if cfg.RedisURL != "" {
		store, client, err := session.NewRedisStoreFromURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		sessions = store
		closeFn = client.Close
	}

	if cfg.ArtifactDir != "" {
		store, err := artifact.NewFileStore(cfg.ArtifactDir)
		if err != nil {
			_ = closeFn()
			return nil, nil, nil, err
		}
		artifacts = store
	}

	return sessions, artifacts, closeFn, nil
}

func newAgentFactory(cfg *Config, m model.Model, logger logging.Logger) runner.AgentFactory {
	return func() (agent.Agent, error) {
		tools, err := buildTools(cfg.Tools)
		if err != nil {
			return nil, err
		}

		if cfg.Agent == "toolcalling" {
			return agent.NewToolCallingAgent(m, tools, func(o *agent.ToolCallingAgentOptions) {
				o.MaxSteps = cfg.MaxSteps
				o.PlanningInterval = cfg.PlanningInterval
				o.Stream = cfg.Stream
				o.Logger = logger
			})
		}

		return agent.NewCodeAgent(m, tools, func(o *agent.CodeAgentOptions) {
			o.MaxSteps = cfg.MaxSteps
			o.PlanningInterval = cfg.PlanningInterval
			o.Stream = cfg.Stream
			o.Logger = logger
			o.AdditionalAuthorizedImports = cfg.AuthorizedImports
			o.ExecutionTimeout = cfg.ExecTimeout
		})
	}
}

// writeOutput stores the final answer in a local file or an S3 object.
func writeOutput(ctx context.Context, dest string, data []byte) error {
	if strings.HasPrefix(dest, "s3://") {
		bucket, key, err := s3.ParseURL(dest)
		if err != nil {
			return err
		}
		store, err := s3.NewStore(bucket)
		if err != nil {
			return err
		}
		return store.PutObject(ctx, key, data)
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	return os.WriteFile(dest, data, 0o644)
}

// readTask joins the arguments or, without arguments, reads stdin.
func readTask(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read task from stdin: %w", err)
	}

	task := strings.TrimSpace(string(b))
	if task == "" {
		return "", fmt.Errorf("no task given: pass it as argument or on stdin")
	}

	return task, nil
}
