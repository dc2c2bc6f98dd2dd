package agent

import (
	"time"

	"github.com/hupe1980/codeagent/logging"
	"github.com/hupe1980/codeagent/model"
)

// domainLogger is implemented by *logging.AgentLogger.
type domainLogger interface {
	LogStep(step int, kind string, dur time.Duration, err error)
	LogToolCall(tool string, dur time.Duration, err error)
	LogModelCall(model string, inputTokens, outputTokens int, dur time.Duration, err error)
	LogCodeExecution(codeLen int, dur time.Duration, final bool, err error)
}

func runLogger(l logging.Logger, sessionID, runID string) logging.Logger {
	if al, ok := l.(*logging.AgentLogger); ok {
		return al.WithComponent("agent").WithSession(sessionID, runID)
	}
	return l
}

func logStep(l logging.Logger, step int, kind string, dur time.Duration, err error) {
	if dl, ok := l.(domainLogger); ok {
		dl.LogStep(step, kind, dur, err)
		return
	}
	if err != nil {
		l.Warn("agent.step.failed", "step", step, "kind", kind, "duration", dur, "error", err.Error())
		return
	}
	l.Info("agent.step.completed", "step", step, "kind", kind, "duration", dur)
}

func logToolCall(l logging.Logger, name string, dur time.Duration, err error) {
	if dl, ok := l.(domainLogger); ok {
		dl.LogToolCall(name, dur, err)
		return
	}
	if err != nil {
		l.Error("tool.call.failed", "tool", name, "duration", dur, "error", err.Error())
		return
	}
	l.Info("tool.call.completed", "tool", name, "duration", dur)
}

func logModelCall(l logging.Logger, name string, usage model.TokenUsage, dur time.Duration, err error) {
	if dl, ok := l.(domainLogger); ok {
		dl.LogModelCall(name, usage.InputTokens, usage.OutputTokens, dur, err)
		return
	}
	if err != nil {
		l.Error("model.call.failed", "model", name, "duration", dur, "error", err.Error())
		return
	}
	l.Info("model.call.completed", "model", name, "input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens, "duration", dur)
}

func logCodeExecution(l logging.Logger, codeLen int, dur time.Duration, final bool, err error) {
	if dl, ok := l.(domainLogger); ok {
		dl.LogCodeExecution(codeLen, dur, final, err)
		return
	}
	if err != nil {
		l.Warn("code.exec.failed", "code_bytes", codeLen, "duration", dur, "error", err.Error())
		return
	}
	l.Debug("code.exec.completed", "code_bytes", codeLen, "duration", dur, "final_answer", final)
}
