package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix prefixes environment variables overriding flags, e.g.
// CODEAGENT_MAX_STEPS.
const envPrefix = "CODEAGENT"

type commandLineFlag struct {
	name, shorthand, defaultValue, usage string
}

var (
	configFlag            = commandLineFlag{name: "config", shorthand: "c", usage: "config file (yaml, json or toml)"}
	providerFlag          = commandLineFlag{name: "provider", shorthand: "p", defaultValue: "openai", usage: "model provider: openai, anthropic or ollama"}
	modelFlag             = commandLineFlag{name: "model", shorthand: "m", usage: "model id (provider default when empty)"}
	apiBaseFlag           = commandLineFlag{name: "api-base", usage: "base url of the model api"}
	apiKeyFlag            = commandLineFlag{name: "api-key", usage: "model api key (provider environment variable when empty)"}
	temperatureFlag       = commandLineFlag{name: "temperature", defaultValue: "0.7", usage: "sampling temperature"}
	maxTokensFlag         = commandLineFlag{name: "max-tokens", defaultValue: "4096", usage: "maximum tokens per completion"}
	numCtxFlag            = commandLineFlag{name: "num-ctx", defaultValue: "0", usage: "ollama context window size"}
	toolsFlag             = commandLineFlag{name: "tools", shorthand: "t", defaultValue: "duckduckgo_search,visit_webpage", usage: "comma separated tools: " + strings.Join(toolNames(), ", ")}
	authorizedImportsFlag = commandLineFlag{name: "authorized-imports", usage: "comma separated additional python modules the code may import"}
	maxStepsFlag          = commandLineFlag{name: "max-steps", defaultValue: "20", usage: "maximum number of agent steps"}
	planningIntervalFlag  = commandLineFlag{name: "planning-interval", defaultValue: "0", usage: "run a planning step every n steps (0 disables planning)"}
	agentFlag             = commandLineFlag{name: "agent", shorthand: "a", defaultValue: "code", usage: "agent type: code or toolcalling"}
	execTimeoutFlag       = commandLineFlag{name: "exec-timeout", defaultValue: "0s", usage: "timeout of one code execution (0 disables it)"}
	outputFlag            = commandLineFlag{name: "output", shorthand: "o", usage: "write the final answer to a file or s3://bucket/key"}
	sessionFlag           = commandLineFlag{name: "session", shorthand: "s", usage: "session id; runs on the same session continue the conversation"}
	redisURLFlag          = commandLineFlag{name: "redis-url", usage: "redis url for session persistence (in-memory when empty)"}
	artifactDirFlag       = commandLineFlag{name: "artifact-dir", usage: "directory for artifacts (in-memory when empty)"}
	logLevelFlag          = commandLineFlag{name: "log-level", defaultValue: "warn", usage: "log level: debug, info, warn or error"}
	logFormatFlag         = commandLineFlag{name: "log-format", defaultValue: "text", usage: "log format: text or json"}
	logFileFlag           = commandLineFlag{name: "log-file", usage: "additionally write logs to this file"}
	streamFlag            = commandLineFlag{name: "stream", defaultValue: "false", usage: "stream model output and steps to stderr"}
)

var runFlags = []commandLineFlag{
	providerFlag, modelFlag, apiBaseFlag, apiKeyFlag, temperatureFlag, maxTokensFlag, numCtxFlag,
	toolsFlag, authorizedImportsFlag, maxStepsFlag, planningIntervalFlag, agentFlag, execTimeoutFlag,
	outputFlag, sessionFlag, redisURLFlag, artifactDirFlag,
	logLevelFlag, logFormatFlag, logFileFlag, streamFlag,
}

// Config is the resolved configuration of a run: flags override the
// environment, which overrides the config file.
type Config struct {
	Provider          string
	Model             string
	APIBase           string
	APIKey            string
	Temperature       float64
	MaxTokens         int
	NumCtx            int
	Tools             []string
	AuthorizedImports []string
	MaxSteps          int
	PlanningInterval  int
	Agent             string
	ExecTimeout       time.Duration
	Output            string
	Session           string
	RedisURL          string
	ArtifactDir       string
	LogLevel          string
	LogFormat         string
	LogFile           string
	Stream            bool
}

func initFlags(cmd *cobra.Command, flags []commandLineFlag) {
	flags = append(flags, configFlag)
	for _, flag := range flags {
		cmd.Flags().StringP(flag.name, flag.shorthand, flag.defaultValue, flag.usage)
	}
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, flags []commandLineFlag) error {
	for _, flag := range flags {
		if err := v.BindPFlag(flag.name, cmd.Flags().Lookup(flag.name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag.name, err)
		}
	}
	return nil
}

// loadConfig reads .env, the optional config file and CODEAGENT_* variables
// into a Config.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := bindFlags(v, cmd, runFlags); err != nil {
		return nil, err
	}

	if cfgFile, _ := cmd.Flags().GetString(configFlag.name); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	cfg := &Config{
		Provider:          strings.ToLower(v.GetString(providerFlag.name)),
		Model:             v.GetString(modelFlag.name),
		APIBase:           v.GetString(apiBaseFlag.name),
		APIKey:            v.GetString(apiKeyFlag.name),
		Temperature:       v.GetFloat64(temperatureFlag.name),
		MaxTokens:         v.GetInt(maxTokensFlag.name),
		NumCtx:            v.GetInt(numCtxFlag.name),
		Tools:             splitList(v.GetString(toolsFlag.name)),
		AuthorizedImports: splitList(v.GetString(authorizedImportsFlag.name)),
		MaxSteps:          v.GetInt(maxStepsFlag.name),
		PlanningInterval:  v.GetInt(planningIntervalFlag.name),
		Agent:             strings.ToLower(v.GetString(agentFlag.name)),
		ExecTimeout:       v.GetDuration(execTimeoutFlag.name),
		Output:            v.GetString(outputFlag.name),
		Session:           v.GetString(sessionFlag.name),
		RedisURL:          v.GetString(redisURLFlag.name),
		ArtifactDir:       v.GetString(artifactDirFlag.name),
		LogLevel:          v.GetString(logLevelFlag.name),
		LogFormat:         v.GetString(logFormatFlag.name),
		LogFile:           v.GetString(logFileFlag.name),
		Stream:            v.GetBool(streamFlag.name),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Provider {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	switch c.Agent {
	case "code", "toolcalling":
	default:
		return fmt.Errorf("unknown agent type %q", c.Agent)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max-steps must be positive, got %d", c.MaxSteps)
	}
	if c.PlanningInterval < 0 {
		return fmt.Errorf("planning-interval must not be negative, got %d", c.PlanningInterval)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
