package study

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSession(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"valid", `{"id":"a","subjectId":"s","startTime":"2026-01-01T10:00:00.000Z","duration":5}`, true},
		{"missing id", `{"subjectId":"s","startTime":"2026-01-01T10:00:00Z","duration":5}`, false},
		{"bad time", `{"id":"a","subjectId":"s","startTime":"yesterday","duration":5}`, false},
		{"negative duration", `{"id":"a","subjectId":"s","startTime":"2026-01-01T10:00:00Z","duration":-1}`, false},
		{"not object", `"session"`, false},
		{"bad date", `{"id":"a","subjectId":"s","startTime":"2026-01-01T10:00:00Z","duration":5,"date":"01/01/2026"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ValidateSession(json.RawMessage(tt.raw))
			assert.Equal(t, tt.ok, r.OK(), "%v", r.Err)
			if !tt.ok {
				assert.Equal(t, "session", r.Err.Record)
			}
		})
	}
}

func TestValidateScoreDefaults(t *testing.T) {
	r := ValidateScore(json.RawMessage(`{"id":"t","testName":"GT","totalMarks":10,"obtainedMarks":5,
		"subjectScores":[{"subjectId":"a","totalQuestions":4,"correctAnswers":3}]}`))
	require.True(t, r.OK(), "%v", r.Err)
	assert.Equal(t, TestMock, r.Value.TestType)
	assert.Equal(t, 75.0, r.Value.SubjectScores[0].Percentage)
}

func TestValidatePlanAndSubject(t *testing.T) {
	assert.True(t, ValidatePlan(json.RawMessage(`{"subjectId":"a","priority":"high"}`)).OK())
	assert.False(t, ValidatePlan(json.RawMessage(`{"subjectId":"a","priority":"urgent"}`)).OK())
	assert.True(t, ValidateSubject(json.RawMessage(`{"id":"a","name":"A","color":"#fff","targetHours":10}`)).OK())
	assert.False(t, ValidateSubject(json.RawMessage(`{"id":"a"}`)).OK())
}

func TestFilterValid(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`{"id":"a","name":"A"}`),
		json.RawMessage(`{"name":"B"}`),
		json.RawMessage(`{"id":"c","name":"C"}`),
	}
	got, dropped := FilterValid(raws, ValidateSubject)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[1].ID)
	require.Len(t, dropped, 1)
	assert.Contains(t, dropped[0].Error(), "invalid subject")
}

func TestActiveSessionElapsed(t *testing.T) {
	pause := t0.Add(10 * time.Minute)
	a := ActiveSession{StartTime: t0, PausedTime: 60_000, IsPaused: true, LastPauseStart: &pause}
	assert.Equal(t, 9*time.Minute, a.Elapsed(t0.Add(20*time.Minute)))

	running := ActiveSession{StartTime: t0}
	assert.Equal(t, time.Duration(0), running.Elapsed(t0.Add(-time.Hour)))
}
