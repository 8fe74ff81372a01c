package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/studylog/internal/llm"
	"github.com/abhisek/studylog/internal/study"
)

var png = llm.Image{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}

func TestExtract(t *testing.T) {
	r := llm.NewScriptedReader(llm.Scripted{Raw: `{
		"testName": "Grand Test 7",
		"testType": "NEET",
		"totalMarks": 800,
		"obtainedMarks": 512,
		"subjectScores": [{"subjectName": "Anatomy", "correctAnswers": 14, "totalQuestions": 20, "percentage": 70}]
	}`})

	got, err := New(r, WithSubjects(subjects), WithMaxTokens(4096)).Extract(context.Background(), []llm.Image{png, png})
	require.NoError(t, err)
	assert.Equal(t, "Grand Test 7", got.TestName)
	assert.Equal(t, 512.0, got.ObtainedMarks)
	require.Len(t, got.SubjectScores, 1)
	assert.Equal(t, 14, got.SubjectScores[0].CorrectAnswers)

	req := r.Requests[0]
	assert.Len(t, req.Images, 2)
	assert.Equal(t, 4096, req.MaxTokens)
	assert.Equal(t, []string{"Anatomy", "Physiology", "OBG", "Forensic Medicine", "Medicine"}, req.Subjects)
}

func TestExtract_NoImages(t *testing.T) {
	_, err := New(llm.NewScriptedReader()).Extract(context.Background(), nil)
	assert.ErrorIs(t, err, llm.ErrNoImages)
}

func TestExtract_SalvagesFencedJSON(t *testing.T) {
	r := llm.NewScriptedReader(llm.Scripted{
		Raw: "Here you go:\n```json\n{\"testName\":\"Mock 2\",\"totalMarks\":200}\n```",
	})

	got, err := New(r).Extract(context.Background(), []llm.Image{png})
	require.NoError(t, err)
	assert.Equal(t, "Mock 2", got.TestName)
	assert.Equal(t, 200.0, got.TotalMarks)
}

func TestExtract_ProviderFailure(t *testing.T) {
	r := llm.NewScriptedReader(llm.Scripted{Err: &llm.UnavailableError{Provider: "gemini"}})

	_, err := New(r).Extract(context.Background(), []llm.Image{png})
	var unavail *llm.UnavailableError
	assert.ErrorAs(t, err, &unavail)
}

func TestExtract_Unparseable(t *testing.T) {
	r := llm.NewScriptedReader(llm.Scripted{Raw: "I could not read the image."})

	_, err := New(r).Extract(context.Background(), []llm.Image{png})
	assert.ErrorContains(t, err, "could not extract structured data")
}

func TestExtract_TruncatedIsNotSalvaged(t *testing.T) {
	r := llm.NewScriptedReader(llm.Scripted{Err: &llm.TruncatedError{Raw: []byte(`{"testName":"GT`), MaxTokens: 2048}})

	_, err := New(r).Extract(context.Background(), []llm.Image{png})
	var cut *llm.TruncatedError
	assert.ErrorAs(t, err, &cut)
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "card.png")
	require.NoError(t, os.WriteFile(pngPath, []byte("\x89PNG\r\n\x1a\n0000"), 0o600))
	txtPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("hello"), 0o600))

	img, err := LoadImage(pngPath)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)

	_, err = LoadImage(txtPath)
	assert.ErrorContains(t, err, "unsupported image type")

	_, err = LoadImage(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

var subjects = []study.Subject{
	{ID: "anat", Name: "Anatomy"},
	{ID: "phys", Name: "Physiology"},
	{ID: "obg", Name: "OBG"},
	{ID: "forensic", Name: "Forensic Medicine"},
	{ID: "medicine", Name: "Medicine"},
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"anatomy", "anat"},
		{"ANATOMY & Embryology", "anat"},
		{"Physio", "phys"},
		{"Obstetrics (OBG)", "obg"},
		{"Medicine", "medicine"},
		{"Forensic Medicine & Toxicology", "forensic"},
		{"General Medicine", "medicine"},
		{"Forensic", "forensic"},
		{"Biochemistry", ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := Match(tt.name, subjects)
			assert.Equal(t, tt.want != "", ok)
			assert.Equal(t, tt.want, s.ID)
		})
	}
}

func TestToTestScore(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	x := &llm.Card{
		TestType:      "Weekly",
		TotalMarks:    800,
		ObtainedMarks: 450,
		SubjectScores: []llm.CardSubject{
			{SubjectName: "anatomy", CorrectAnswers: 15, TotalQuestions: 20},
			{SubjectName: "Biochemistry", CorrectAnswers: 5, TotalQuestions: 10},
			{SubjectName: "Physiology", CorrectAnswers: 9, TotalQuestions: 12, Percentage: 75},
		},
	}

	score, skipped, err := ToTestScore(x, subjects, now)
	require.NoError(t, err)
	assert.Empty(t, score.ID)
	assert.Equal(t, "Imported Test", score.TestName)
	assert.Equal(t, study.TestMock, score.TestType)
	assert.Equal(t, "2026-03-04", score.Date)
	assert.Equal(t, []string{"Biochemistry"}, skipped)
	require.Len(t, score.SubjectScores, 2)
	assert.Equal(t, "anat", score.SubjectScores[0].SubjectID)
	assert.InDelta(t, 75.0, score.SubjectScores[0].Percentage, 1e-9)
	assert.Equal(t, "phys", score.SubjectScores[1].SubjectID)
}

func TestToTestScore_Rejects(t *testing.T) {
	now := time.Now()

	_, _, err := ToTestScore(&llm.Card{TestName: "GT", TotalMarks: 100, ObtainedMarks: 120}, subjects, now)
	var verr *study.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "obtainedMarks", verr.Field)

	_, _, err = ToTestScore(&llm.Card{TestName: "GT", TotalMarks: 100, SubjectScores: []llm.CardSubject{
		{SubjectName: "Anatomy", CorrectAnswers: 30, TotalQuestions: 20},
	}}, subjects, now)
	assert.Error(t, err)
}
