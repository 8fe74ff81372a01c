package study

import (
	"math"
	"sort"
	"time"
)

// TodayStats pairs today's live counter with a per-subject breakdown
// rebuilt from today's sessions. The counter is not recomputed from
// sessions. If the day has rolled over but CheckDayRollover has not run,
// the counter reads as zero.
func (s *Service) TodayStats() DailyStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aggregateToday(s.now())
}

// WeeklyStats returns the last seven days, oldest first, ending today.
// Today comes from the live counter and past days are rebuilt from
// sessions. The two paths differ on purpose; see aggregateToday.
func (s *Service) WeeklyStats() []DailyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]DailyStats, 0, 7)
	for i := 6; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		if i == 0 {
			out = append(out, s.aggregateToday(now))
			continue
		}
		out = append(out, s.aggregateHistorical(dateOf(day), now.Location()))
	}
	return out
}

// aggregateToday takes its total from TodayProgress so that it reflects a
// session the moment it ends, including time no session accounts for.
// Must be called with mu held.
func (s *Service) aggregateToday(now time.Time) DailyStats {
	today := dateOf(now)
	return DailyStats{
		Date:             today,
		TotalMinutes:     s.effectiveToday(now).TotalMinutes,
		SubjectBreakdown: s.breakdown(today, now.Location()),
	}
}

// aggregateHistorical derives total and breakdown from sessions alone.
// Must be called with mu held.
func (s *Service) aggregateHistorical(date string, loc *time.Location) DailyStats {
	breakdown := s.breakdown(date, loc)
	total := 0
	for _, b := range breakdown {
		total += b.Minutes
	}
	return DailyStats{Date: date, TotalMinutes: total, SubjectBreakdown: breakdown}
}

// breakdown sums session minutes per known subject for date, in subject
// order, omitting subjects with no time. Must be called with mu held.
func (s *Service) breakdown(date string, loc *time.Location) []SubjectMinutes {
	minutes := map[string]int{}
	for _, ss := range s.data.StudySessions {
		if ss.Duration <= 0 || sessionDate(ss, loc) != date {
			continue
		}
		minutes[ss.SubjectID] += ss.Duration
	}
	out := []SubjectMinutes{}
	for _, sub := range s.data.Subjects {
		if m := minutes[sub.ID]; m > 0 {
			out = append(out, SubjectMinutes{SubjectID: sub.ID, Minutes: m})
		}
	}
	return out
}

// OverallProgress weighs hours 40% and marks 60% once the subject has marks.
// Unknown subjects report zero.
func (s *Service) OverallProgress(subjectID string) Progress {
	s.mu.Lock()
	sub, ok := s.subject(subjectID)
	s.mu.Unlock()
	if !ok {
		return Progress{}
	}

	hours := 0
	if sub.TargetHours > 0 {
		hours = int(math.Min(100, math.Round(sub.CompletedHours/sub.TargetHours*100)))
	}
	marks := 0
	if sub.MarksProgress != nil {
		marks = int(*sub.MarksProgress)
	}
	overall := hours
	if marks > 0 {
		overall = int(math.Round(float64(hours)*0.4 + float64(marks)*0.6))
	}
	return Progress{HoursProgress: hours, MarksProgress: marks, OverallProgress: overall}
}

// SubjectPerformance lists every test's result for subjectID, oldest first.
// Tests that did not cover the subject appear with zero values.
func (s *Service) SubjectPerformance(subjectID string) []PerformancePoint {
	s.mu.Lock()
	scores := cloneScores(s.data.TestScores)
	s.mu.Unlock()

	out := make([]PerformancePoint, 0, len(scores))
	for _, t := range scores {
		p := PerformancePoint{Date: t.Date, TestName: t.TestName, TestType: t.TestType}
		for _, ss := range t.SubjectScores {
			if ss.SubjectID == subjectID {
				p.Percentage = ss.Percentage
				p.CorrectAnswers = ss.CorrectAnswers
				p.TotalQuestions = ss.TotalQuestions
				break
			}
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return parseDay(out[i].Date).Before(parseDay(out[j].Date)) })
	return out
}

// ExamCountdown returns whole days from now's date to each set exam date.
// Past exams have negative counts.
func (s *Service) ExamCountdown(now time.Time) []Countdown {
	dates := s.ExamDates()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var out []Countdown
	for _, e := range []struct{ name, date string }{{"NEET_PG", dates.NEETPG}, {"INICET", dates.INICET}} {
		if e.date == "" {
			continue
		}
		t, err := time.Parse(dateLayout, e.date)
		if err != nil {
			continue
		}
		out = append(out, Countdown{Exam: e.name, Date: e.date, DaysLeft: int(t.Sub(today).Hours() / 24)})
	}
	return out
}

// parseDay accepts YYYY-MM-DD or RFC 3339. Unparseable dates sort first.
func parseDay(s string) time.Time {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}
