package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/studylog/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage encrypted backups in the secure vault",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Back up the current data now",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		res := e.backups().CreateBackup(cmd.Context(), e.study.Snapshot(), e.study.User())
		if !res.Success {
			return errors.New(res.Error)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backup created at %s\n", res.Timestamp)
		return nil
	}),
}

var backupAutoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Back up only if the last backup is older than the auto interval",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		res := e.backups().AutoBackup(cmd.Context(), e.study.Snapshot(), e.study.User())
		switch {
		case res.Error != "":
			return errors.New(res.Error)
		case res.Created:
			fmt.Fprintln(cmd.OutOrStdout(), "Backup created.")
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "Skipped: %s\n", res.Skipped)
		}
		return nil
	}),
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		list := e.backups().GetBackupList(cmd.Context(), e.userID())
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No backups.")
			return nil
		}
		now := time.Now()
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIMESTAMP\tWHEN\tSESSIONS\tTESTS\tHOURS\tVERSION")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.1f\t%s\n", s.Timestamp, backup.FormatBackupDate(s.Timestamp, now),
				s.Metadata.TotalSessions, s.Metadata.TotalTests, s.Metadata.TotalStudyHours, s.Version)
		}
		return tw.Flush()
	}),
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <timestamp>",
	Short: "Replace current data with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		res := e.backups().RestoreFromBackup(cmd.Context(), args[0], e.userID())
		if !res.Success {
			return errors.New(res.Error)
		}
		d := res.Data
		fmt.Fprintf(cmd.OutOrStdout(), "Backup holds %d sessions, %d test scores, %d subjects and %d plans.\n",
			len(d.StudySessions), len(d.TestScores), len(d.Subjects), len(d.StudyPlans))
		if !confirm(cmd, "Replace all current data with it?") {
			fmt.Fprintln(cmd.OutOrStdout(), "Restore cancelled.")
			return nil
		}
		if err := e.study.ApplySnapshot(cmd.Context(), *d); err != nil {
			return fmt.Errorf("apply backup: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Restored.")
		return nil
	}),
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <timestamp>",
	Short: "Delete one backup",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		if res := e.backups().DeleteBackup(cmd.Context(), args[0], e.userID()); !res.Success {
			return errors.New(res.Error)
		}
		return nil
	}),
}

var backupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete backups beyond the retention limit",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		res := e.backups().CleanupOldBackups(cmd.Context(), e.userID())
		if !res.Success {
			return errors.New(res.Error)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d old backup(s)\n", res.Deleted)
		return nil
	}),
}

var backupStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault availability and the last backup",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		info := e.backups().GetBackupInfo(cmd.Context(), e.userID())
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Status:       %s\n", info.Status)
		if info.IsAvailable {
			fmt.Fprintf(out, "Last backup:  %s\n", orDash(info.LastBackupDate))
			fmt.Fprintf(out, "Backups:      %d\n", info.BackupCount)
			fmt.Fprintf(out, "Next auto:    %s\n", orDash(info.NextAutoBackup))
		}
		return nil
	}),
}

func init() {
	backupRestoreCmd.Flags().BoolP("yes", "y", false, "Restore without asking")
	backupCmd.AddCommand(backupCreateCmd, backupAutoCmd, backupListCmd, backupRestoreCmd,
		backupDeleteCmd, backupCleanupCmd, backupStatusCmd)
}
