// Package testutil contains builders for scripted model responses used by
// the agent, runner and CLI tests. Not intended for production usage.
package testutil
