package code

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/codeagent/internal/util"
)

// ErrNoCode is returned by ExtractCode when the text holds no code block.
var ErrNoCode = errors.New("no code block found")

var (
	fencePattern      = regexp.MustCompile("(?s)```(?:py|python)?[ \\t]*\\n(.*?)\\n?```")
	openFencePattern  = regexp.MustCompile("(?s)```(?:py|python)[ \\t]*\\n(.*)$")
	codeTagPattern    = regexp.MustCompile(`(?s)<code>(.*?)</code>`)
	finalAssignRegexp = regexp.MustCompile(`(?m)^(\s*)final_answer(\s*=[^=])`)
)

const codeFormatHint = "Make sure to include code with the correct pattern, for instance:\n" +
	"Thoughts: Your thoughts\n" +
	"Code:\n" +
	"```py\n" +
	"# Your python code here\n" +
	"```<end_code>"

// ExtractCode returns the code of all fenced python blocks (or <code> tags)
// in text, joined by blank lines. A trailing ```py block left open because
// generation stopped at a stop sequence is accepted as well.
func ExtractCode(text string) (string, error) {
	var blocks []string
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		if b := strings.TrimSpace(m[1]); b != "" {
			blocks = append(blocks, b)
		}
	}

	if len(blocks) == 0 {
		for _, m := range codeTagPattern.FindAllStringSubmatch(text, -1) {
			if b := strings.TrimSpace(m[1]); b != "" {
				blocks = append(blocks, b)
			}
		}
	}

	if len(blocks) == 0 {
		if m := openFencePattern.FindStringSubmatch(text); m != nil {
			if b := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(m[1]), "<end_code>")); b != "" {
				blocks = append(blocks, b)
			}
		}
	}

	if len(blocks) == 0 {
		return "", fmt.Errorf("%w: the pattern ```(?:py|python)?\\s*\\n(.*?)\\n``` was not found in it.\n"+
			"Here is your code snippet:\n%s\n%s", ErrNoCode, text, codeFormatHint)
	}

	return strings.Join(blocks, "\n\n"), nil
}

// FixFinalAnswerCode renames assignments to a variable called final_answer,
// which would otherwise shadow the final_answer function.
func FixFinalAnswerCode(code string) string {
	if !finalAssignRegexp.MatchString(code) {
		return code
	}

	code = finalAssignRegexp.ReplaceAllString(code, "${1}final_answer_variable${2}")

	return regexp.MustCompile(`\bfinal_answer\b([^(_]|$)`).ReplaceAllString(code, "final_answer_variable$1")
}

// Truncate shortens s to roughly maxLen characters keeping head and tail.
func Truncate(s string, maxLen int) string {
	return util.Truncate(s, maxLen)
}
