package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/studylog/internal/app"
	"github.com/abhisek/studylog/internal/screens/studytimer"
	"github.com/abhisek/studylog/internal/study"
	"github.com/abhisek/studylog/internal/timer"
	"github.com/abhisek/studylog/internal/ui/layout"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start, pause and record study sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <subject>",
	Short: "Start timing a study session",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		subj, err := e.subject(args[0])
		if err != nil {
			return err
		}
		if _, err := e.study.Start(cmd.Context(), subj.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Started %s\n", subj.Name)
		return nil
	}),
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the active session",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		return e.study.Pause(cmd.Context())
	}),
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the paused session",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		return e.study.Resume(cmd.Context())
	}),
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the active session and record it",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		out := cmd.OutOrStdout()
		if e.study.ActiveSession() == nil {
			fmt.Fprintln(out, "No active session.")
			return nil
		}
		notes, _ := cmd.Flags().GetString("notes")
		sess, err := e.study.End(cmd.Context(), notes)
		if err != nil {
			return err
		}
		if sess == nil {
			fmt.Fprintln(out, "Break ended; nothing recorded.")
			return nil
		}
		fmt.Fprintf(out, "Recorded %s of %s\n", layout.FormatMinutes(sess.Duration), sess.SubjectName)
		return nil
	}),
}

var sessionDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Drop the active session without recording it",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		return e.study.Discard(cmd.Context())
	}),
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active session",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		out := cmd.OutOrStdout()
		a := e.study.ActiveSession()
		if a == nil {
			fmt.Fprintln(out, "No active session.")
			return nil
		}
		name := a.SubjectID
		if s, err := e.subject(a.SubjectID); err == nil {
			name = s.Name
		}
		state := "running"
		if a.IsPaused {
			state = "paused"
		}
		elapsed := a.Elapsed(time.Now())
		fmt.Fprintf(out, "%s: %s (%s)\n", name, layout.FormatMinutes(int(elapsed.Minutes())), state)
		return nil
	}),
}

var sessionAddCmd = &cobra.Command{
	Use:   "add <subject> <minutes>",
	Short: "Record a session after the fact",
	Args:  cobra.ExactArgs(2),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		subj, err := e.subject(args[0])
		if err != nil {
			return err
		}
		var minutes int
		if _, err := fmt.Sscanf(args[1], "%d", &minutes); err != nil || minutes <= 0 {
			return fmt.Errorf("invalid minutes %q", args[1])
		}
		notes, _ := cmd.Flags().GetString("notes")
		end := time.Now()
		if d, _ := cmd.Flags().GetString("date"); d != "" {
			day, err := time.ParseInLocation(time.DateOnly, d, time.Local)
			if err != nil {
				return fmt.Errorf("invalid date %q: %w", d, err)
			}
			end = day.Add(12 * time.Hour)
		}
		sess, err := e.study.AddSession(cmd.Context(), study.StudySession{
			SubjectID: subj.ID,
			StartTime: end.Add(-time.Duration(minutes) * time.Minute),
			EndTime:   end,
			Duration:  minutes,
			Notes:     notes,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s of %s on %s (%s)\n",
			layout.FormatMinutes(sess.Duration), subj.Name, sess.Date, sess.ID)
		return nil
	}),
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions, newest first",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		sessions := e.study.Sessions()
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded.")
			return nil
		}
		names := subjectNames(e.study.Subjects())
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDATE\tSUBJECT\tDURATION\tNOTES")
		for i, n := len(sessions)-1, 0; i >= 0 && (limit <= 0 || n < limit); i, n = i-1, n+1 {
			s := sessions[i]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Date, names[s.SubjectID],
				layout.FormatMinutes(s.Duration), s.Notes)
		}
		return tw.Flush()
	}),
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete recorded sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		n, err := e.study.DeleteSessions(cmd.Context(), args)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d session(s)\n", n)
		return nil
	}),
}

var sessionTUICmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive study timer",
	RunE: func(cmd *cobra.Command, args []string) error {
		pomodoro, _ := cmd.Flags().GetDuration("pomodoro")
		return runTUI(cmd, pomodoro)
	},
}

func runTUI(cmd *cobra.Command, pomodoro time.Duration) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	t := timer.New(e.store, timer.WithLogger(e.log))
	defer t.Close()

	return app.Run(cmd.Context(), studytimer.Config{
		Study:    e.study,
		Timer:    t,
		Pomodoro: pomodoro,
	})
}

func subjectNames(subjects []study.Subject) map[string]string {
	m := make(map[string]string, len(subjects))
	for _, s := range subjects {
		m[s.ID] = s.Name
	}
	return m
}

// withEnv opens the environment around a command body.
func withEnv(fn func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(cmd, e, args)
	}
}

func init() {
	sessionEndCmd.Flags().String("notes", "", "Notes for the session; break notes are not recorded")
	sessionAddCmd.Flags().String("notes", "", "Notes for the session")
	sessionAddCmd.Flags().String("date", "", "Day studied as YYYY-MM-DD (default today)")
	sessionListCmd.Flags().IntP("limit", "n", 20, "Number of sessions to show; 0 for all")
	sessionTUICmd.Flags().Duration("pomodoro", 0, "Run a pomodoro countdown of this length alongside the session")

	sessionCmd.AddCommand(sessionStartCmd, sessionPauseCmd, sessionResumeCmd, sessionEndCmd,
		sessionDiscardCmd, sessionStatusCmd, sessionAddCmd, sessionListCmd, sessionDeleteCmd, sessionTUICmd)
}
