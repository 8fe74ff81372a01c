package study

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError describes a record that is present but unusable.
type ValidationError struct {
	Record string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s: %s", e.Record, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s %s", e.Record, e.Field, e.Reason)
}

// Result is either a valid Value or a validation failure. A failed record
// is treated as absent.
type Result[T any] struct {
	Value T
	Err   *ValidationError
}

func (r Result[T]) OK() bool { return r.Err == nil }

func valid[T any](v T) Result[T] { return Result[T]{Value: v} }

func invalid[T any](record, field, reason string) Result[T] {
	return Result[T]{Err: &ValidationError{Record: record, Field: field, Reason: reason}}
}

var recordSchemas = map[string]map[string]any{
	"session": {
		"type":     "object",
		"required": []any{"id", "subjectId", "startTime", "duration"},
		"properties": map[string]any{
			"id":        map[string]any{"type": "string", "minLength": 1},
			"subjectId": map[string]any{"type": "string", "minLength": 1},
			"startTime": map[string]any{"type": "string", "minLength": 1},
			"duration":  map[string]any{"type": "number", "exclusiveMinimum": 0},
		},
	},
	"score": {
		"type":     "object",
		"required": []any{"id", "testName"},
		"properties": map[string]any{
			"id":            map[string]any{"type": "string", "minLength": 1},
			"testName":      map[string]any{"type": "string", "minLength": 1},
			"testType":      map[string]any{"enum": []any{"INICET", "NEET", "Mock"}},
			"totalMarks":    map[string]any{"type": "number", "minimum": 0},
			"obtainedMarks": map[string]any{"type": "number"},
			"subjectScores": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []any{"subjectId"},
					"properties": map[string]any{
						"subjectId":      map[string]any{"type": "string", "minLength": 1},
						"totalQuestions": map[string]any{"type": "number", "minimum": 0},
						"correctAnswers": map[string]any{"type": "number", "minimum": 0},
						"percentage":     map[string]any{"type": "number"},
					},
				},
			},
		},
	},
	"plan": {
		"type":     "object",
		"required": []any{"subjectId"},
		"properties": map[string]any{
			"subjectId":    map[string]any{"type": "string", "minLength": 1},
			"dailyTarget":  map[string]any{"type": "number", "minimum": 0},
			"weeklyTarget": map[string]any{"type": "number", "minimum": 0},
			"priority":     map[string]any{"enum": []any{"high", "medium", "low"}},
		},
	},
	"subject": {
		"type":     "object",
		"required": []any{"id", "name"},
		"properties": map[string]any{
			"id":          map[string]any{"type": "string", "minLength": 1},
			"name":        map[string]any{"type": "string", "minLength": 1},
			"targetHours": map[string]any{"type": "number", "minimum": 0},
		},
	},
}

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func schemaFor(record string) (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		compiled = make(map[string]*jsonschema.Schema, len(recordSchemas))
		for name, def := range recordSchemas {
			// Round-trip so the compiler sees plain JSON values.
			b, err := json.Marshal(def)
			if err != nil {
				compileErr = err
				return
			}
			var doc any
			if err := json.Unmarshal(b, &doc); err != nil {
				compileErr = err
				return
			}
			url := fmt.Sprintf("schema://study/%s.json", name)
			if err := c.AddResource(url, doc); err != nil {
				compileErr = fmt.Errorf("add %s schema: %w", name, err)
				return
			}
			s, err := c.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("compile %s schema: %w", name, err)
				return
			}
			compiled[name] = s
		}
	})
	if compileErr != nil {
		return nil, compileErr
	}
	return compiled[record], nil
}

// decodeRecord checks raw against the record schema and decodes it into T.
func decodeRecord[T any](record string, raw json.RawMessage) Result[T] {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return invalid[T](record, "", "is not JSON")
	}
	schema, err := schemaFor(record)
	if err != nil {
		return invalid[T](record, "", err.Error())
	}
	if err := schema.Validate(doc); err != nil {
		return invalid[T](record, "", firstLine(err.Error()))
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return invalid[T](record, "", err.Error())
	}
	return valid(v)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// ValidateSession checks a persisted session record.
func ValidateSession(raw json.RawMessage) Result[StudySession] {
	r := decodeRecord[StudySession]("session", raw)
	if !r.OK() {
		return r
	}
	if err := r.Value.Validate(); err != nil {
		return Result[StudySession]{Err: err.(*ValidationError)}
	}
	return r
}

// ValidateScore checks a persisted test score. A missing test type reads as Mock.
func ValidateScore(raw json.RawMessage) Result[TestScore] {
	r := decodeRecord[TestScore]("score", raw)
	if !r.OK() {
		return r
	}
	r.Value = r.Value.normalized()
	if err := r.Value.Validate(); err != nil {
		return Result[TestScore]{Err: err.(*ValidationError)}
	}
	return r
}

// ValidatePlan checks a persisted study plan. A missing priority reads as medium.
func ValidatePlan(raw json.RawMessage) Result[StudyPlan] {
	r := decodeRecord[StudyPlan]("plan", raw)
	if !r.OK() {
		return r
	}
	if r.Value.Priority == "" {
		r.Value.Priority = PriorityMedium
	}
	return r
}

// ValidateSubject checks a persisted subject.
func ValidateSubject(raw json.RawMessage) Result[Subject] {
	return decodeRecord[Subject]("subject", raw)
}

// FilterValid keeps the records that validate, in order, and returns the
// failures alongside.
func FilterValid[T any](raws []json.RawMessage, validate func(json.RawMessage) Result[T]) ([]T, []*ValidationError) {
	var (
		out     []T
		dropped []*ValidationError
	)
	for _, raw := range raws {
		r := validate(raw)
		if !r.OK() {
			dropped = append(dropped, r.Err)
			continue
		}
		out = append(out, r.Value)
	}
	return out, dropped
}

// Validate checks a session built in memory.
func (s StudySession) Validate() error {
	switch {
	case s.ID == "":
		return &ValidationError{Record: "session", Field: "id", Reason: "is required"}
	case s.SubjectID == "":
		return &ValidationError{Record: "session", Field: "subjectId", Reason: "is required"}
	case s.StartTime.IsZero():
		return &ValidationError{Record: "session", Field: "startTime", Reason: "is required"}
	case s.Duration <= 0:
		return &ValidationError{Record: "session", Field: "duration", Reason: "must be positive"}
	}
	if s.Date != "" {
		if _, err := time.Parse(dateLayout, s.Date); err != nil {
			return &ValidationError{Record: "session", Field: "date", Reason: "must be YYYY-MM-DD"}
		}
	}
	return nil
}

// Validate checks a score built in memory.
func (t TestScore) Validate() error {
	switch {
	case t.ID == "":
		return &ValidationError{Record: "score", Field: "id", Reason: "is required"}
	case strings.TrimSpace(t.TestName) == "":
		return &ValidationError{Record: "score", Field: "testName", Reason: "is required"}
	case !t.TestType.Valid():
		return &ValidationError{Record: "score", Field: "testType", Reason: fmt.Sprintf("unknown type %q", t.TestType)}
	case t.TotalMarks < 0:
		return &ValidationError{Record: "score", Field: "totalMarks", Reason: "must not be negative"}
	case t.ObtainedMarks > t.TotalMarks:
		return &ValidationError{Record: "score", Field: "obtainedMarks", Reason: "exceeds totalMarks"}
	}
	for _, ss := range t.SubjectScores {
		if ss.SubjectID == "" {
			return &ValidationError{Record: "score", Field: "subjectScores.subjectId", Reason: "is required"}
		}
		if ss.CorrectAnswers > ss.TotalQuestions {
			return &ValidationError{Record: "score", Field: "subjectScores.correctAnswers", Reason: "exceeds totalQuestions"}
		}
	}
	return nil
}

func (t TestScore) normalized() TestScore {
	if t.TestType == "" {
		t.TestType = TestMock
	}
	if t.SubjectScores == nil {
		t.SubjectScores = []SubjectScore{}
	}
	for i, ss := range t.SubjectScores {
		if ss.Percentage == 0 && ss.TotalQuestions > 0 {
			t.SubjectScores[i].Percentage = float64(ss.CorrectAnswers) / float64(ss.TotalQuestions) * 100
		}
	}
	return t
}

// Validate checks a plan built in memory.
func (p StudyPlan) Validate() error {
	switch {
	case p.SubjectID == "":
		return &ValidationError{Record: "plan", Field: "subjectId", Reason: "is required"}
	case p.DailyTarget < 0 || p.WeeklyTarget < 0:
		return &ValidationError{Record: "plan", Field: "target", Reason: "must not be negative"}
	case !p.Priority.Valid():
		return &ValidationError{Record: "plan", Field: "priority", Reason: fmt.Sprintf("unknown priority %q", p.Priority)}
	}
	return nil
}

// Validate checks exam dates. Empty dates are allowed.
func (d ExamDates) Validate() error {
	for name, v := range map[string]string{"NEET_PG": d.NEETPG, "INICET": d.INICET} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, v); err != nil {
			return &ValidationError{Record: "examDates", Field: name, Reason: "must be YYYY-MM-DD"}
		}
	}
	return nil
}
