package code

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- Parsing --------------------

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "py fence",
			in:   "Thought: search\nCode:\n```py\nx = web_search(\"q\")\nprint(x)\n```<end_code>",
			want: "x = web_search(\"q\")\nprint(x)",
		},
		{
			name: "python fence and multiple blocks",
			in:   "```python\na = 1\n```\ntext\n```py\nb = 2\n```",
			want: "a = 1\n\nb = 2",
		},
		{
			name: "bare fence",
			in:   "```\nfinal_answer(3)\n```",
			want: "final_answer(3)",
		},
		{
			name: "code tags",
			in:   "Thought: x\n<code>\nprint(1)\n</code>",
			want: "print(1)",
		},
		{
			name: "unterminated fence cut by stop sequence",
			in:   "Thought: y\nCode:\n```py\nfinal_answer(\"done\")\n",
			want: "final_answer(\"done\")",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractCode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractCode_NoCode(t *testing.T) {
	_, err := ExtractCode("I think the answer is 42.")
	require.ErrorIs(t, err, ErrNoCode)
	assert.Contains(t, err.Error(), "I think the answer is 42.")
	assert.Contains(t, err.Error(), "```py")

	_, err = ExtractCode("```json\n{\"a\": 1}\n```")
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestFixFinalAnswerCode(t *testing.T) {
	in := "final_answer = compute()\nfinal_answer(final_answer)"
	assert.Equal(t, "final_answer_variable = compute()\nfinal_answer(final_answer_variable)", FixFinalAnswerCode(in))

	unchanged := "if x == 1:\n    final_answer(x)"
	assert.Equal(t, unchanged, FixFinalAnswerCode(unchanged))
}

func TestTruncate(t *testing.T) {
	s := strings.Repeat("a", 50) + strings.Repeat("b", 50)
	out := Truncate(s, 20)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 10)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("b", 10)))
	assert.Contains(t, out, "truncated to stay below 20 characters")
	assert.Equal(t, "short", Truncate("short", 20))
	assert.Equal(t, s, Truncate(s, 0))
}

// -------------------- Python executor --------------------

func newPython(t *testing.T, optFns ...func(o *PythonOptions)) *PythonExecutor {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	e := NewPythonExecutor(optFns...)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestPythonExecutor_StatePersistsAndLogs(t *testing.T) {
	e := newPython(t)
	ctx := context.Background()

	res, err := e.Execute(ctx, "x = 40\nprint('hello')\nx + 2")
	require.NoError(t, err)
	assert.Equal(t, float64(42), res.Output)
	assert.Equal(t, "hello\n", res.Logs)
	assert.False(t, res.IsFinalAnswer)

	res, err = e.Execute(ctx, "import math\ny = math.sqrt(x + 9)\ny")
	require.NoError(t, err)
	assert.Equal(t, float64(7), res.Output)

	res, err = e.Execute(ctx, "z = 1")
	require.NoError(t, err)
	assert.Nil(t, res.Output)
}

func TestPythonExecutor_FinalAnswer(t *testing.T) {
	e := newPython(t)

	res, err := e.Execute(context.Background(), "print('before')\nfinal_answer({'city': 'Belgrade', 'n': 3})\nprint('after')")
	require.NoError(t, err)
	assert.True(t, res.IsFinalAnswer)
	assert.Equal(t, map[string]any{"city": "Belgrade", "n": float64(3)}, res.Output)
	assert.Equal(t, "before\n", res.Logs)
}

func TestPythonExecutor_ExecutionErrorKeepsState(t *testing.T) {
	e := newPython(t)
	ctx := context.Background()

	_, err := e.Execute(ctx, "a = 5\nprint('partial')\n1/0")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "ZeroDivisionError")
	assert.Equal(t, "partial\n", execErr.Logs)

	res, err := e.Execute(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, float64(5), res.Output)

	_, err = e.Execute(ctx, "def broken(:\n  pass")
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "Code parsing failed on line 1")
}

func TestPythonExecutor_ImportRestrictions(t *testing.T) {
	e := newPython(t, func(o *PythonOptions) {
		o.AdditionalAuthorizedImports = []string{"json", "os.*"}
	})
	ctx := context.Background()

	_, err := e.Execute(ctx, "import subprocess")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "Import of subprocess is not allowed")

	_, err = e.Execute(ctx, "import json\nimport os.path\nimport collections")
	require.NoError(t, err)

	_, err = e.Execute(ctx, "open('/etc/passwd')")
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "NameError")

	assert.Contains(t, e.AuthorizedImports(), "json")
	assert.Contains(t, e.AuthorizedImports(), "math")
}

func TestPythonExecutor_SubmodulesOfAuthorizedImports(t *testing.T) {
	e := newPython(t, func(o *PythonOptions) {
		o.AdditionalAuthorizedImports = []string{"json"}
	})
	ctx := context.Background()

	res, err := e.Execute(ctx, "import collections.abc\nfrom json import decoder\nimport json.decoder\nisinstance([], collections.abc.Sequence)")
	require.NoError(t, err)
	assert.Equal(t, true, res.Output)

	_, err = e.Execute(ctx, "import xml.etree.ElementTree")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "Import of xml.etree.ElementTree is not allowed")

	_, err = e.Execute(ctx, "import collectionsx")
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "Import of collectionsx is not allowed")
}

func TestPythonExecutor_WildcardImports(t *testing.T) {
	e := newPython(t, func(o *PythonOptions) {
		o.AdditionalAuthorizedImports = []string{"*"}
	})

	_, err := e.Execute(context.Background(), "import subprocess")
	assert.NoError(t, err)
}

func TestPythonExecutor_ToolCalls(t *testing.T) {
	e := newPython(t)

	var got []map[string]any
	require.NoError(t, e.SendTools(map[string]ToolFunc{
		"places_search": {
			Params: []string{"query", "location", "radius"},
			Fn: func(_ context.Context, args map[string]any) (any, error) {
				got = append(got, args)
				return []map[string]any{{"name": "A", "place_id": "p1"}}, nil
			},
		},
		"failing": {
			Params: []string{"x"},
			Fn: func(context.Context, map[string]any) (any, error) {
				return nil, errors.New("quota exceeded")
			},
		},
	}))
	require.NoError(t, e.SendVariables(map[string]any{"city": "Belgrade"}))

	res, err := e.Execute(context.Background(), "r = places_search('michelin ' + city, radius=100)\nr[0]['place_id']")
	require.NoError(t, err)
	assert.Equal(t, "p1", res.Output)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"query": "michelin Belgrade", "radius": float64(100)}, got[0])

	_, err = e.Execute(context.Background(), "failing(1)")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "quota exceeded")
}

func TestPythonExecutor_TimeoutRestarts(t *testing.T) {
	e := newPython(t, func(o *PythonOptions) {
		o.Timeout = 300 * time.Millisecond
	})
	ctx := context.Background()

	require.NoError(t, e.SendVariables(map[string]any{"seed": 7}))

	_, err := e.Execute(ctx, "while True:\n    pass")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	res, err := e.Execute(ctx, "seed * 2")
	require.NoError(t, err)
	assert.Equal(t, float64(14), res.Output)
}

func TestPythonExecutor_MaxPrintLength(t *testing.T) {
	e := newPython(t, func(o *PythonOptions) { o.MaxPrintLength = 40 })

	res, err := e.Execute(context.Background(), "print('x' * 1000)")
	require.NoError(t, err)
	assert.Contains(t, res.Logs, "truncated to stay below 40 characters")
}

func TestPythonExecutor_Closed(t *testing.T) {
	e := NewPythonExecutor()
	require.NoError(t, e.Close())
	_, err := e.Execute(context.Background(), "1")
	assert.ErrorIs(t, err, ErrExecutorClosed)
}
