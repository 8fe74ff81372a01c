package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/studylog/internal/recovery"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Scan storage for recoverable study data",
	Long: "recover scans the secure vault and every local key for study data, merges\n" +
		"what it finds and, after confirmation, writes it back to the canonical keys.",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		ctx := cmd.Context()
		svc := e.recovery()
		out := cmd.OutOrStdout()

		if n, err := svc.ImmediateCorruptionCleanup(ctx); err != nil {
			e.log.Warn("corruption cleanup failed", "error", err)
		} else if n > 0 {
			fmt.Fprintf(out, "Removed %d corrupted key(s)\n", n)
		}

		res := svc.RecoverAllData(ctx, e.userID())
		fmt.Fprintln(out, recovery.Summary(res, 10))
		if !res.Success {
			return nil
		}
		if !confirm(cmd, "Save recovered data?") {
			fmt.Fprintln(out, "Nothing written.")
			return nil
		}
		if err := svc.SaveRecoveredData(ctx, res.Data, e.userID()); err != nil {
			return fmt.Errorf("save recovered data: %w", err)
		}
		if err := e.study.Refresh(ctx); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		fmt.Fprintln(out, "Recovered data saved.")
		return nil
	}),
}

var recoverCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove corrupted values from local storage",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		ctx := cmd.Context()
		svc := e.recovery()
		out := cmd.OutOrStdout()

		if emergency, _ := cmd.Flags().GetBool("emergency"); emergency {
			if !confirm(cmd, "Emergency cleanup removes every value that does not look like JSON. Continue?") {
				return nil
			}
			res := svc.EmergencyCleanupCorruption(ctx)
			fmt.Fprintf(out, "Removed %d key(s)\n", res.Cleaned)
			for _, msg := range res.Errors {
				fmt.Fprintln(out, "- "+msg)
			}
			return nil
		}

		n, err := svc.ImmediateCorruptionCleanup(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d key(s)\n", n)
		return nil
	}),
}

func init() {
	recoverCmd.Flags().BoolP("yes", "y", false, "Save recovered data without asking")
	recoverCleanupCmd.Flags().Bool("emergency", false, "Also remove values that look corrupted by heuristics")
	recoverCleanupCmd.Flags().BoolP("yes", "y", false, "Skip the emergency confirmation")
	recoverCmd.AddCommand(recoverCleanupCmd)
}
