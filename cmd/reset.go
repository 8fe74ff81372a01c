package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all study data of the current partition",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if first, _ := cmd.Flags().GetBool("backup-first"); first {
			res := e.backups().CreateBackup(ctx, e.study.Snapshot(), e.study.User())
			if !res.Success {
				return fmt.Errorf("backup before reset: %s", res.Error)
			}
			fmt.Fprintf(out, "Backup created at %s\n", res.Timestamp)
		}
		if !confirm(cmd, "Delete all sessions, scores, subjects and plans? This cannot be undone.") {
			fmt.Fprintln(out, "Reset cancelled.")
			return nil
		}
		if err := e.study.ClearAllData(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "All data cleared.")
		return nil
	}),
}

var debugCmd = &cobra.Command{
	Use:    "debug",
	Short:  "Show what the store holds for the current partition",
	Hidden: true,
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		info, err := e.study.Debug(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "user:      %s\n", orDash(info.UserID))
		fmt.Fprintf(out, "keys:      %d total, %d in partition\n", info.TotalKeys, len(info.PartitionKeys))
		fmt.Fprintf(out, "loaded:    %d sessions, %d scores, %d subjects, %d plans, active=%v\n",
			info.Sessions, info.Scores, info.Subjects, info.Plans, info.Active)
		keys := make([]string, 0, len(info.Canonical))
		for k := range info.Canonical {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %-40s %d bytes\n", k, info.Canonical[k])
		}
		return nil
	}),
}

func init() {
	resetCmd.Flags().BoolP("yes", "y", false, "Reset without asking")
	resetCmd.Flags().Bool("backup-first", false, "Create a vault backup before clearing")
	rootCmd.AddCommand(debugCmd)
}
