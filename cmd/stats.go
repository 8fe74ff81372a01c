package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/studylog/internal/ui/components"
	"github.com/abhisek/studylog/internal/ui/layout"
	"github.com/abhisek/studylog/internal/ui/theme"
)

const barWidth = 56

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show today, the past week and progress per subject",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		out := cmd.OutOrStdout()
		svc := e.study
		names := subjectNames(svc.Subjects())

		today := svc.TodayStats()
		target := svc.DailyTargetHours()
		fmt.Fprintln(out, theme.Title.Render("Today"))
		fmt.Fprintln(out, components.NewProgressBar(
			fmt.Sprintf("%-14s", layout.FormatMinutes(today.TotalMinutes)),
			float64(today.TotalMinutes)/(target*60), true, barWidth).View())
		for _, b := range today.SubjectBreakdown {
			fmt.Fprintf(out, "  %-20s %s\n", names[b.SubjectID], layout.FormatMinutes(b.Minutes))
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, theme.Title.Render("Past 7 days"))
		for _, d := range svc.WeeklyStats() {
			label := d.Date
			if t, err := time.Parse(time.DateOnly, d.Date); err == nil {
				label = t.Format("Mon 02 Jan")
			}
			fmt.Fprintln(out, components.NewProgressBar(
				fmt.Sprintf("%-14s", label),
				float64(d.TotalMinutes)/(target*60), false, barWidth).View()+
				"  "+theme.Hint.Render(layout.FormatMinutes(d.TotalMinutes)))
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, theme.Title.Render("Subjects"))
		for _, s := range svc.Subjects() {
			p := svc.OverallProgress(s.ID)
			fmt.Fprintln(out, components.NewProgressBar(
				fmt.Sprintf("%-14.14s", s.Name),
				float64(p.OverallProgress)/100, true, barWidth).View()+
				"  "+theme.Hint.Render(fmt.Sprintf("%.1f/%gh", s.CompletedHours, s.TargetHours)))
		}

		if countdown := svc.ExamCountdown(time.Now()); len(countdown) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, theme.Title.Render("Exams"))
			for _, c := range countdown {
				style := theme.Body
				if c.DaysLeft <= 30 {
					style = theme.Failed
				}
				fmt.Fprintf(out, "  %-8s %s  %s\n", c.Exam, c.Date, style.Render(fmt.Sprintf("%d days", c.DaysLeft)))
			}
		}
		return nil
	}),
}
