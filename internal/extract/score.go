package extract

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/abhisek/studylog/internal/llm"
	"github.com/abhisek/studylog/internal/study"
)

const defaultTestName = "Imported Test"

// Match finds the subject for an extracted name, ignoring case. An exact
// name wins, then the longest subject name contained in name, then the
// first subject whose name contains name.
func Match(name string, subjects []study.Subject) (study.Subject, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return study.Subject{}, false
	}
	best, bestLen := -1, 0
	partial := -1
	for i, s := range subjects {
		hay := strings.ToLower(s.Name)
		switch {
		case hay == "":
		case hay == needle:
			return s, true
		case strings.Contains(needle, hay):
			if len(hay) > bestLen {
				best, bestLen = i, len(hay)
			}
		case partial < 0 && strings.Contains(hay, needle):
			partial = i
		}
	}
	if best >= 0 {
		return subjects[best], true
	}
	if partial >= 0 {
		return subjects[partial], true
	}
	return study.Subject{}, false
}

// ToTestScore maps an extraction onto a test score for subjects. Unmatched
// subjects are returned as skipped. The score has no ID; the study service
// assigns one when it is added.
func ToTestScore(x *llm.Card, subjects []study.Subject, now time.Time) (study.TestScore, []string, error) {
	score := study.TestScore{
		TestName:      strings.TrimSpace(x.TestName),
		TestType:      study.TestType(x.TestType),
		Date:          now.Format(time.DateOnly),
		TotalMarks:    x.TotalMarks,
		ObtainedMarks: x.ObtainedMarks,
		SubjectScores: []study.SubjectScore{},
	}
	if score.TestName == "" {
		score.TestName = defaultTestName
	}
	if !score.TestType.Valid() {
		score.TestType = study.TestMock
	}

	var skipped []string
	for _, xs := range x.SubjectScores {
		subj, ok := Match(xs.SubjectName, subjects)
		if !ok {
			skipped = append(skipped, xs.SubjectName)
			continue
		}
		ss := study.SubjectScore{
			SubjectID:      subj.ID,
			TotalQuestions: xs.TotalQuestions,
			CorrectAnswers: xs.CorrectAnswers,
			Percentage:     xs.Percentage,
		}
		if ss.Percentage == 0 && ss.TotalQuestions > 0 {
			ss.Percentage = float64(ss.CorrectAnswers) / float64(ss.TotalQuestions) * 100
		}
		score.SubjectScores = append(score.SubjectScores, ss)
	}

	// Validate as a persisted record would be; the placeholder id is dropped.
	candidate := score
	candidate.ID = "pending"
	raw, err := json.Marshal(candidate)
	if err != nil {
		return study.TestScore{}, skipped, err
	}
	if r := study.ValidateScore(raw); !r.OK() {
		return study.TestScore{}, skipped, r.Err
	}
	return score, skipped, nil
}
