// Package main is the opencore CLI: an agent-orchestration server that
// streams LLM completions over SSE with tool dispatch, interactive
// questions, and session compaction.
//
// Start the server:
//
//	opencore serve --config opencore.yaml
//
// Provider credentials come from the environment (ANTHROPIC_API_KEY,
// OPENAI_API_KEY, GEMINI_API_KEY, GROQ_API_KEY, DEEPSEEK_API_KEY,
// OPENROUTER_API_KEY, ZAI_API_KEY / ZAI_API_BASE) or the config file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:          "opencore",
		Short:        "Agent orchestration server for LLM sessions",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("opencore %s (commit %s, built %s)\n", version, commit, date)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
