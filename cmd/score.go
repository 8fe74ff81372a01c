package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/studylog/internal/extract"
	"github.com/abhisek/studylog/internal/llm"
	"github.com/abhisek/studylog/internal/study"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Record and review test scores",
}

var scoreAddCmd = &cobra.Command{
	Use:   "add <test name>",
	Short: "Record a test score",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		testType, _ := cmd.Flags().GetString("type")
		total, _ := cmd.Flags().GetFloat64("total")
		obtained, _ := cmd.Flags().GetFloat64("obtained")
		date, _ := cmd.Flags().GetString("date")
		rawSubjects, _ := cmd.Flags().GetStringSlice("subject")

		score := study.TestScore{
			TestName:      args[0],
			TestType:      study.TestType(testType),
			Date:          date,
			TotalMarks:    total,
			ObtainedMarks: obtained,
		}
		for _, raw := range rawSubjects {
			ss, err := parseSubjectScore(e, raw)
			if err != nil {
				return err
			}
			score.SubjectScores = append(score.SubjectScores, ss)
		}

		saved, err := e.study.AddTestScore(cmd.Context(), score)
		if err != nil {
			return err
		}
		printScore(cmd, saved, subjectNames(e.study.Subjects()))
		return nil
	}),
}

// parseSubjectScore reads "subject=correct/total".
func parseSubjectScore(e *env, raw string) (study.SubjectScore, error) {
	name, frac, ok := strings.Cut(raw, "=")
	if !ok {
		return study.SubjectScore{}, fmt.Errorf("subject score %q: want subject=correct/total", raw)
	}
	subj, err := e.subject(strings.TrimSpace(name))
	if err != nil {
		return study.SubjectScore{}, err
	}
	var correct, total int
	if _, err := fmt.Sscanf(strings.TrimSpace(frac), "%d/%d", &correct, &total); err != nil {
		return study.SubjectScore{}, fmt.Errorf("subject score %q: %w", raw, err)
	}
	return study.SubjectScore{SubjectID: subj.ID, CorrectAnswers: correct, TotalQuestions: total}, nil
}

var scoreExtractCmd = &cobra.Command{
	Use:   "extract <image>...",
	Short: "Read a test result from score-card screenshots",
	Args:  cobra.MinimumNArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		ctx := cmd.Context()
		images := make([]llm.Image, 0, len(args))
		for _, path := range args {
			img, err := extract.LoadImage(path)
			if err != nil {
				return err
			}
			images = append(images, img)
		}

		cfg, err := llm.ResolveConfig()
		if err != nil {
			return fmt.Errorf("LLM provider not configured: %w", err)
		}
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		reader, err := llm.NewReader(ctx, cfg, e.log)
		if err != nil {
			return err
		}
		x, err := extract.New(reader,
			extract.WithLogger(e.log),
			extract.WithMaxTokens(cfg.MaxTokens),
			extract.WithSubjects(e.study.Subjects()),
		).Extract(llm.WithSources(ctx, args...), images)
		if err != nil {
			return err
		}

		score, skipped, err := extract.ToTestScore(x, e.study.Subjects(), time.Now())
		if err != nil {
			return fmt.Errorf("extracted result is not a valid score: %w", err)
		}
		printScore(cmd, &score, subjectNames(e.study.Subjects()))
		if len(skipped) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Skipped unknown subjects: %s\n", strings.Join(skipped, ", "))
		}
		if !confirm(cmd, "Save this score?") {
			fmt.Fprintln(cmd.OutOrStdout(), "Not saved.")
			return nil
		}
		saved, err := e.study.AddTestScore(cmd.Context(), score)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", saved.ID)
		return nil
	}),
}

var scoreListCmd = &cobra.Command{
	Use:   "list",
	Short: "List test scores",
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		scores := e.study.Scores()
		if len(scores) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No test scores recorded.")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDATE\tTYPE\tTEST\tMARKS")
		for _, s := range scores {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Date, s.TestType, s.TestName, marks(s))
		}
		return tw.Flush()
	}),
}

var scoreDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a test score",
	Args:  cobra.ExactArgs(1),
	RunE: withEnv(func(cmd *cobra.Command, e *env, args []string) error {
		return e.study.DeleteTestScore(cmd.Context(), args[0])
	}),
}

func marks(s study.TestScore) string {
	if s.TotalMarks <= 0 {
		return fmt.Sprintf("%g", s.ObtainedMarks)
	}
	return fmt.Sprintf("%g/%g (%.1f%%)", s.ObtainedMarks, s.TotalMarks, s.ObtainedMarks/s.TotalMarks*100)
}

func printScore(cmd *cobra.Command, s *study.TestScore, names map[string]string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s [%s] %s  %s\n", s.TestName, s.TestType, s.Date, marks(*s))
	for _, ss := range s.SubjectScores {
		fmt.Fprintf(out, "  %-20s %d/%d (%.1f%%)\n", names[ss.SubjectID], ss.CorrectAnswers, ss.TotalQuestions, ss.Percentage)
	}
}

func init() {
	scoreAddCmd.Flags().String("type", string(study.TestMock), "Test type: INICET, NEET or Mock")
	scoreAddCmd.Flags().Float64("total", 0, "Total marks")
	scoreAddCmd.Flags().Float64("obtained", 0, "Obtained marks")
	scoreAddCmd.Flags().String("date", "", "Test date as YYYY-MM-DD (default today)")
	scoreAddCmd.Flags().StringSlice("subject", nil, "Subject result as subject=correct/total; repeatable")
	scoreExtractCmd.Flags().BoolP("yes", "y", false, "Save without asking")

	scoreCmd.AddCommand(scoreAddCmd, scoreExtractCmd, scoreListCmd, scoreDeleteCmd)
}
