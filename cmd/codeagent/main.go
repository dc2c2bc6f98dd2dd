package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "codeagent",
	Short: "Solve tasks with an LLM agent that writes Python code",
	Long: `codeagent runs a ReAct style agent on a task.

The agent thinks, writes a Python snippet that calls the configured tools,
observes the output and repeats until it calls final_answer.
`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(versionCmd())
}
