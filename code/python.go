package code

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/codeagent/logging"
)

//go:embed bootstrap.py
var bootstrapScript string

// ErrExecutorClosed is returned when using a closed executor.
var ErrExecutorClosed = errors.New("executor closed")

// PythonOptions configure a PythonExecutor.
type PythonOptions struct {
	// Interpreter is the python binary (default "python3").
	Interpreter string
	// AdditionalAuthorizedImports extends BaseBuiltinModules. "*" allows any
	// import; "pkg.*" allows pkg and its submodules.
	AdditionalAuthorizedImports []string
	// MaxPrintLength bounds the logs returned per execution (default 50000).
	MaxPrintLength int
	// Timeout bounds one execution; zero means only ctx applies.
	Timeout time.Duration
	// Env is appended to the current environment of the interpreter.
	Env    []string
	Logger logging.Logger
}

// message is the newline delimited JSON frame exchanged with the interpreter.
type message struct {
	Op string `json:"op"`

	// go -> python
	Code              string              `json:"code,omitempty"`
	Tools             []string            `json:"tools,omitempty"`
	Params            map[string][]string `json:"params,omitempty"`
	AuthorizedImports []string            `json:"authorized_imports,omitempty"`
	MaxPrintLen       int                 `json:"max_print_len,omitempty"`
	Vars              map[string]any      `json:"vars,omitempty"`
	Value             any                 `json:"value,omitempty"`

	// python -> go
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Logs    string         `json:"logs,omitempty"`
	Output  any            `json:"output,omitempty"`
	IsFinal bool           `json:"is_final,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// PythonExecutor runs code in a persistent python3 subprocess. Globals
// survive between Execute calls until the process is restarted, which happens
// after a cancellation, a timeout or a crash. Tools and variables sent
// earlier are re-sent to a restarted interpreter; values computed by earlier
// code are lost.
//
// Executions are serialized; a PythonExecutor is safe for concurrent use.
type PythonExecutor struct {
	opts PythonOptions

	mu     sync.Mutex
	closed bool
	proc   *pythonProcess
	tools  map[string]ToolFunc
	vars   map[string]any
}

type pythonProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	proto  *os.File
	enc    *json.Encoder
	dec    *json.Decoder
	stderr *tailBuffer
	done   chan struct{}
}

// NewPythonExecutor creates an executor. The interpreter starts lazily on
// first use.
func NewPythonExecutor(optFns ...func(o *PythonOptions)) *PythonExecutor {
	opts := PythonOptions{
		Interpreter:    "python3",
		MaxPrintLength: 50000,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &PythonExecutor{
		opts:  opts,
		tools: map[string]ToolFunc{},
		vars:  map[string]any{},
	}
}

// AuthorizedImports returns the effective import allow list.
func (e *PythonExecutor) AuthorizedImports() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range append(append([]string{}, BaseBuiltinModules...), e.opts.AdditionalAuthorizedImports...) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// SendTools implements Executor. The reserved name final_answer is always
// provided by the interpreter and skipped here.
func (e *PythonExecutor) SendTools(tools map[string]ToolFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrExecutorClosed
	}

	for name, fn := range tools {
		if name == "final_answer" {
			continue
		}
		e.tools[name] = fn
	}

	if e.proc == nil {
		return nil
	}

	return e.sendInit(e.proc)
}

// SendVariables implements Executor.
func (e *PythonExecutor) SendVariables(vars map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrExecutorClosed
	}

	for k, v := range vars {
		e.vars[k] = v
	}

	if e.proc == nil || len(vars) == 0 {
		return nil
	}

	return e.roundTrip(e.proc, message{Op: "vars", Vars: vars})
}

// Execute implements Executor.
func (e *PythonExecutor) Execute(ctx context.Context, code string) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrExecutorClosed
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := e.ensureProcess()
	if err != nil {
		return nil, err
	}

	// A blocked read cannot observe ctx; killing the process unblocks it.
	stop := context.AfterFunc(ctx, p.kill)

	res, err := e.exchange(ctx, p, code)
	if !stop() {
		e.discard()
		if err != nil {
			return nil, fmt.Errorf("code execution interrupted: %w", context.Cause(ctx))
		}
		return res, nil
	}

	if err != nil {
		var execErr *ExecutionError
		if !errors.As(err, &execErr) {
			e.discard()
		}
		return nil, err
	}

	return res, nil
}

func (e *PythonExecutor) exchange(ctx context.Context, p *pythonProcess, code string) (*Result, error) {
	if err := p.enc.Encode(message{Op: "exec", Code: code}); err != nil {
		return nil, p.failure("send code", err)
	}

	for {
		var msg message
		if err := p.dec.Decode(&msg); err != nil {
			return nil, p.failure("read response", err)
		}

		switch msg.Op {
		case "call":
			reply := e.callTool(ctx, msg.Tool, msg.Args)
			if err := p.enc.Encode(reply); err != nil {
				return nil, p.failure("send tool result", err)
			}
		case "done":
			if msg.Error != "" {
				return nil, &ExecutionError{Message: msg.Error, Logs: msg.Logs}
			}
			return &Result{Output: msg.Output, Logs: msg.Logs, IsFinalAnswer: msg.IsFinal}, nil
		default:
			return nil, fmt.Errorf("unexpected interpreter message %q", msg.Op)
		}
	}
}

func (e *PythonExecutor) callTool(ctx context.Context, name string, args map[string]any) message {
	fn, ok := e.tools[name]
	if !ok {
		return message{Op: "result", Error: fmt.Sprintf("unknown tool %q", name)}
	}

	start := time.Now()
	value, err := fn.Fn(ctx, args)
	e.opts.Logger.Debug("code.tool.call", "tool", name, "duration_ms", time.Since(start).Milliseconds(), "error", errString(err))
	if err != nil {
		return message{Op: "result", Error: err.Error()}
	}

	// Round-trip through JSON so Go structs arrive as plain dicts.
	b, err := json.Marshal(value)
	if err != nil {
		return message{Op: "result", Error: fmt.Sprintf("tool %s returned a non JSON value: %v", name, err)}
	}
	var plain any
	if err := json.Unmarshal(b, &plain); err != nil {
		return message{Op: "result", Error: err.Error()}
	}

	return message{Op: "result", Value: plain}
}

func (e *PythonExecutor) ensureProcess() (*pythonProcess, error) {
	if e.proc != nil {
		select {
		case <-e.proc.done:
			e.proc = nil
		default:
			return e.proc, nil
		}
	}

	p, err := e.start()
	if err != nil {
		return nil, err
	}

	if err := e.sendInit(p); err != nil {
		p.kill()
		p.wait()
		return nil, err
	}

	if len(e.vars) > 0 {
		if err := e.roundTrip(p, message{Op: "vars", Vars: e.vars}); err != nil {
			p.kill()
			p.wait()
			return nil, err
		}
	}

	e.proc = p
	return p, nil
}

func (e *PythonExecutor) start() (*pythonProcess, error) {
	protoR, protoW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create protocol pipe: %w", err)
	}

	cmd := exec.Command(e.opts.Interpreter, "-u", "-c", bootstrapScript) // #nosec G204 -- interpreter is configured by the embedding program
	cmd.Env = append(os.Environ(), e.opts.Env...)
	cmd.Env = append(cmd.Env, "PYTHONIOENCODING=utf-8")
	cmd.ExtraFiles = []*os.File{protoW}
	stderr := &tailBuffer{max: 16 * 1024}
	cmd.Stderr = stderr
	cmd.Stdout = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = protoR.Close()
		_ = protoW.Close()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = protoR.Close()
		_ = protoW.Close()
		return nil, fmt.Errorf("start %s: %w", e.opts.Interpreter, err)
	}
	_ = protoW.Close()

	p := &pythonProcess{
		cmd:    cmd,
		stdin:  stdin,
		proto:  protoR,
		enc:    json.NewEncoder(stdin),
		dec:    json.NewDecoder(protoR),
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		_ = protoR.Close()
		close(p.done)
	}()

	var ready message
	if err := p.dec.Decode(&ready); err != nil || ready.Op != "ready" {
		p.kill()
		p.wait()
		return nil, p.failure("start interpreter", err)
	}

	e.opts.Logger.Debug("code.python.started", "pid", cmd.Process.Pid)

	return p, nil
}

func (e *PythonExecutor) sendInit(p *pythonProcess) error {
	names := make([]string, 0, len(e.tools))
	params := make(map[string][]string, len(e.tools))
	for name, fn := range e.tools {
		names = append(names, name)
		params[name] = fn.Params
	}
	sort.Strings(names)

	return e.roundTrip(p, message{
		Op:                "init",
		Tools:             names,
		Params:            params,
		AuthorizedImports: e.AuthorizedImports(),
		MaxPrintLen:       e.opts.MaxPrintLength,
	})
}

func (e *PythonExecutor) roundTrip(p *pythonProcess, msg message) error {
	if err := p.enc.Encode(msg); err != nil {
		return p.failure("send "+msg.Op, err)
	}
	var reply message
	if err := p.dec.Decode(&reply); err != nil {
		return p.failure("read "+msg.Op+" reply", err)
	}
	if reply.Error != "" {
		return fmt.Errorf("interpreter rejected %s: %s", msg.Op, reply.Error)
	}
	return nil
}

// discard kills the current process; the next Execute starts a fresh one.
func (e *PythonExecutor) discard() {
	if e.proc == nil {
		return
	}
	e.proc.kill()
	e.proc.wait()
	e.proc = nil
	e.opts.Logger.Warn("code.python.restarting")
}

// Close implements Executor.
func (e *PythonExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.proc != nil {
		_ = e.proc.stdin.Close()
		select {
		case <-e.proc.done:
		case <-time.After(2 * time.Second):
			e.proc.kill()
			e.proc.wait()
		}
		e.proc = nil
	}

	return nil
}

func (p *pythonProcess) kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func (p *pythonProcess) wait() { <-p.done }

func (p *pythonProcess) failure(stage string, err error) error {
	if err == nil {
		err = errors.New("unexpected message")
	}
	if tail := p.stderr.String(); tail != "" {
		return fmt.Errorf("python %s: %w\n%s", stage, err, tail)
	}
	return fmt.Errorf("python %s: %w", stage, err)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
