package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abhisek/studylog/internal/study"
	"github.com/abhisek/studylog/internal/ui/layout"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage per-subject study targets",
}

var planSetCmd = &cobra.Command{
	Use:   "set <subject>",
	Short: "Create or replace the plan for a subject",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		subj, err := e.subject(args[0])
		if err != nil {
			return err
		}
		daily, _ := cmd.Flags().GetInt("daily")
		weekly, _ := cmd.Flags().GetInt("weekly")
		priority, _ := cmd.Flags().GetString("priority")
		return e.study.UpdateStudyPlan(cmd.Context(), study.StudyPlan{
			SubjectID:    subj.ID,
			DailyTarget:  daily,
			WeeklyTarget: weekly,
			Priority:     study.Priority(priority),
		})
	}),
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List study plans",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		plans := e.study.Plans()
		if len(plans) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No study plans.")
			return nil
		}
		names := subjectNames(e.study.Subjects())
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SUBJECT\tDAILY\tWEEKLY\tPRIORITY")
		for _, p := range plans {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", names[p.SubjectID],
				layout.FormatMinutes(p.DailyTarget), layout.FormatMinutes(p.WeeklyTarget), p.Priority)
		}
		return tw.Flush()
	}),
}

var examCmd = &cobra.Command{
	Use:   "exam",
	Short: "Show or set exam dates",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		dates := e.study.ExamDates()
		if !cmd.Flags().Changed("neet-pg") && !cmd.Flags().Changed("inicet") {
			fmt.Fprintf(cmd.OutOrStdout(), "NEET PG: %s\nINICET:  %s\n", orDash(dates.NEETPG), orDash(dates.INICET))
			return nil
		}
		if v, _ := cmd.Flags().GetString("neet-pg"); cmd.Flags().Changed("neet-pg") {
			dates.NEETPG = v
		}
		if v, _ := cmd.Flags().GetString("inicet"); cmd.Flags().Changed("inicet") {
			dates.INICET = v
		}
		return e.study.UpdateExamDates(cmd.Context(), dates)
	}),
}

var targetCmd = &cobra.Command{
	Use:   "target [hours]",
	Short: "Show or set the daily study target in hours",
	Args:  cobra.MaximumNArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		if len(args) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%gh per day\n", e.study.DailyTargetHours())
			return nil
		}
		var hours float64
		if _, err := fmt.Sscanf(args[0], "%g", &hours); err != nil {
			return fmt.Errorf("invalid hours %q", args[0])
		}
		return e.study.UpdateDailyTargetHours(cmd.Context(), hours)
	}),
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	planSetCmd.Flags().Int("daily", 0, "Daily target in minutes")
	planSetCmd.Flags().Int("weekly", 0, "Weekly target in minutes")
	planSetCmd.Flags().String("priority", string(study.PriorityMedium), "Priority: high, medium or low")
	planCmd.AddCommand(planSetCmd, planListCmd)

	examCmd.Flags().String("neet-pg", "", "NEET PG date as YYYY-MM-DD; empty clears")
	examCmd.Flags().String("inicet", "", "INICET date as YYYY-MM-DD; empty clears")
}
