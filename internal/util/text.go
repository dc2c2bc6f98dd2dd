package util

import "fmt"

// Truncate keeps the head and tail of s so the result stays close to maxLen
// characters, inserting a notice in the middle. maxLen <= 0 disables it.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	half := maxLen / 2
	return s[:half] +
		fmt.Sprintf("\n..._This content has been truncated to stay below %d characters_...\n", maxLen) +
		s[len(s)-half:]
}
