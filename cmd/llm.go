package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/studylog/internal/llm"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect the LLM provider used for score extraction",
}

var llmStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the resolved provider, model and pricing",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg, err := llm.ResolveConfig()
		if err != nil {
			fmt.Fprintln(out, "Not configured:", err)
			return nil
		}
		r, err := llm.NewReader(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Provider:  %s\n", cfg.Provider)
		fmt.Fprintf(out, "Model:     %s\n", r.ModelID())
		if cfg.BaseURL != "" {
			fmt.Fprintf(out, "Endpoint:  %s\n", cfg.BaseURL)
		}
		fmt.Fprintf(out, "Tokens:    %d per card\n", cfg.MaxTokens)
		fmt.Fprintf(out, "Timeout:   %s\n", cfg.Timeout)
		fmt.Fprintf(out, "Retries:   %d\n", cfg.Retry.MaxAttempts)
		if c := llm.LookupCost(r.ModelID()); c != nil {
			fmt.Fprintf(out, "Pricing:   $%g in / $%g out per 1M tokens\n", c.InputPerMTok, c.OutputPerMTok)
		} else {
			fmt.Fprintln(out, "Pricing:   unknown")
		}
		return nil
	},
}

func init() {
	llmCmd.AddCommand(llmStatusCmd)
}
