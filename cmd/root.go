package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "studylog",
	Short: "Study tracker for NEET PG and INICET preparation",
	Long: "studylog records study sessions, test scores and plans in a local store,\n" +
		"backs them up to an encrypted vault and recovers them when storage is damaged.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd, 0)
	},
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides STUDYLOG_DB)")
	rootCmd.PersistentFlags().String("vault-db", "", "Path to the vault database file (overrides STUDYLOG_VAULT_DB)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides STUDYLOG_LOG_LEVEL)")

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(examCmd)
	rootCmd.AddCommand(targetCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}
