package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/google/uuid"
)

// NewID returns a random UUID string.
func NewID() string { return uuid.NewString() }

// RenderTemplate replaces template variables using Go's text/template package.
// Prompts contain code, so html escaping must not be applied. Missing keys
// are an error.
func RenderTemplate(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Funcs(template.FuncMap{
		"default": func(defaultVal any, val any) any {
			if val == nil || val == "" {
				return defaultVal
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join": func(sep string, items []string) string {
			return strings.Join(items, sep)
		},
		"quote": func(items []string) []string {
			out := make([]string, len(items))
			for i, item := range items {
				out[i] = fmt.Sprintf("%q", item)
			}
			return out
		},
	}).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
