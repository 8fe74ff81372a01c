package study

import (
	"context"
	"fmt"
	"math"
	"slices"
)

// MarksBand maps an average percentage to marks progress. The steps are
// fixed; below 30 the average itself is used.
func MarksBand(avg float64) float64 {
	switch {
	case avg >= 90:
		return 100
	case avg >= 80:
		return 90
	case avg >= 70:
		return 80
	case avg >= 60:
		return 70
	case avg >= 50:
		return 60
	case avg >= 40:
		return 50
	case avg >= 30:
		return 40
	default:
		return avg
	}
}

// recomputeMarks derives AverageMarks and MarksProgress from scores. Subjects
// with no scored tests keep their prior values, or have them cleared when
// clearUnscored is set.
func recomputeMarks(subjects []Subject, scores []TestScore, clearUnscored bool) []Subject {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, t := range scores {
		seen := map[string]bool{}
		for _, ss := range t.SubjectScores {
			if seen[ss.SubjectID] {
				continue
			}
			seen[ss.SubjectID] = true
			sums[ss.SubjectID] += ss.Percentage
			counts[ss.SubjectID]++
		}
	}

	out := cloneSubjects(subjects)
	for i := range out {
		n := counts[out[i].ID]
		if n == 0 {
			if clearUnscored {
				out[i].AverageMarks = nil
				out[i].MarksProgress = nil
			}
			continue
		}
		avg := sums[out[i].ID] / float64(n)
		rounded := math.Round(avg*10) / 10
		band := math.Round(MarksBand(avg))
		out[i].AverageMarks = &rounded
		out[i].MarksProgress = &band
	}
	return out
}

// AddTestScore validates and records score, then recomputes subject marks.
func (s *Service) AddTestScore(ctx context.Context, score TestScore) (*TestScore, error) {
	s.mu.Lock()
	if score.ID == "" {
		score.ID = s.newID()
	}
	if score.Date == "" {
		score.Date = dateOf(s.now())
	}
	score.SubjectScores = slices.Clone(score.SubjectScores)
	score = score.normalized()
	if err := score.Validate(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	scores := append(cloneScores(s.data.TestScores), score)
	subjects := recomputeMarks(s.data.Subjects, scores, false)
	err := s.batch().
		set(s.keys.TestScores, scores).
		set(s.keys.Subjects, subjects).
		apply(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("add test score: %w", err)
	}
	s.data.TestScores = scores
	s.data.Subjects = subjects
	s.mu.Unlock()

	s.notify(ChangeScores | ChangeSubjects)
	return &score, nil
}

// DeleteTestScore removes a score. Subjects left without any score have
// their marks cleared.
func (s *Service) DeleteTestScore(ctx context.Context, id string) error {
	s.mu.Lock()
	scores := make([]TestScore, 0, len(s.data.TestScores))
	found := false
	for _, t := range s.data.TestScores {
		if t.ID == id {
			found = true
			continue
		}
		scores = append(scores, t)
	}
	if !found {
		s.mu.Unlock()
		return ErrScoreNotFound
	}
	subjects := recomputeMarks(s.data.Subjects, scores, true)
	err := s.batch().
		set(s.keys.TestScores, scores).
		set(s.keys.Subjects, subjects).
		apply(ctx)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("delete test score: %w", err)
	}
	s.data.TestScores = scores
	s.data.Subjects = subjects
	s.mu.Unlock()

	s.notify(ChangeScores | ChangeSubjects)
	return nil
}
