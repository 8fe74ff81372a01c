package llm

import (
	"fmt"
	"strings"
)

// Card is one test result as read off score-card screenshots. Fields the
// model could not see are left zero.
type Card struct {
	TestName      string        `json:"testName,omitempty"`
	TestType      string        `json:"testType,omitempty"`
	TotalMarks    float64       `json:"totalMarks,omitempty"`
	ObtainedMarks float64       `json:"obtainedMarks,omitempty"`
	SubjectScores []CardSubject `json:"subjectScores,omitempty"`
}

type CardSubject struct {
	SubjectName    string  `json:"subjectName"`
	CorrectAnswers int     `json:"correctAnswers,omitempty"`
	TotalQuestions int     `json:"totalQuestions,omitempty"`
	Percentage     float64 `json:"percentage,omitempty"`
}

// CardTestTypes are the test types a card may name.
var CardTestTypes = []string{"INICET", "NEET", "Mock"}

const cardSchemaName = "test-score-extraction"

const cardInstructions = `You read screenshots of medical entrance test results (NEET PG, INICET and mock tests).
Return only JSON. Omit any field that is not visible in the images. Never guess numbers.`

const cardPrompt = `Analyze these test result images and extract:
- the test name or title
- the test type: INICET, NEET or Mock
- total marks and obtained marks
- the subject-wise breakdown with correct answers, total questions and percentage per subject`

// prompt is the user turn sent with the images. Known subject names steer
// the model towards names the tracker can match.
func (r Request) prompt() string {
	if len(r.Subjects) == 0 {
		return cardPrompt + " (Anatomy, Physiology, Pathology, Pharmacology, ...)"
	}
	return fmt.Sprintf("%s.\nUse these subject names where they fit: %s.", cardPrompt, strings.Join(r.Subjects, ", "))
}

func cardSchema() map[string]any {
	types := make([]any, len(CardTestTypes))
	for i, t := range CardTestTypes {
		types[i] = t
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"testName":      map[string]any{"type": "string"},
			"testType":      map[string]any{"type": "string", "enum": types},
			"totalMarks":    map[string]any{"type": "number", "minimum": 0},
			"obtainedMarks": map[string]any{"type": "number"},
			"subjectScores": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"subjectName":    map[string]any{"type": "string"},
						"correctAnswers": map[string]any{"type": "integer", "minimum": 0},
						"totalQuestions": map[string]any{"type": "integer", "minimum": 0},
						"percentage":     map[string]any{"type": "number"},
					},
					"required": []any{"subjectName"},
				},
			},
		},
	}
}
