package study

import (
	"slices"
	"time"
)

// Subject is a study subject. CompletedHours, AverageMarks and MarksProgress
// are derived from sessions and scores and never set directly.
type Subject struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Color          string   `json:"color"`
	TargetHours    float64  `json:"targetHours"`
	CompletedHours float64  `json:"completedHours"`
	AverageMarks   *float64 `json:"averageMarks,omitempty"`
	MarksProgress  *float64 `json:"marksProgress,omitempty"`
}

// StudySession is one recorded block of study time.
type StudySession struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subjectId"`
	SubjectName string    `json:"subjectName,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	// Duration is in whole minutes.
	Duration int `json:"duration"`
	// Date is the YYYY-MM-DD bucket. Empty means derive from StartTime.
	Date  string `json:"date"`
	Notes string `json:"notes,omitempty"`
}

type TestType string

const (
	TestINICET TestType = "INICET"
	TestNEET   TestType = "NEET"
	TestMock   TestType = "Mock"
)

func (t TestType) Valid() bool {
	switch t {
	case TestINICET, TestNEET, TestMock:
		return true
	}
	return false
}

type TestScore struct {
	ID            string         `json:"id"`
	TestName      string         `json:"testName"`
	TestType      TestType       `json:"testType"`
	Date          string         `json:"date"`
	TotalMarks    float64        `json:"totalMarks"`
	ObtainedMarks float64        `json:"obtainedMarks"`
	SubjectScores []SubjectScore `json:"subjectScores"`
}

type SubjectScore struct {
	SubjectID      string  `json:"subjectId"`
	TotalQuestions int     `json:"totalQuestions"`
	CorrectAnswers int     `json:"correctAnswers"`
	Percentage     float64 `json:"percentage"`
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// StudyPlan targets are in minutes. There is at most one plan per subject.
type StudyPlan struct {
	SubjectID    string   `json:"subjectId"`
	DailyTarget  int      `json:"dailyTarget"`
	WeeklyTarget int      `json:"weeklyTarget"`
	Priority     Priority `json:"priority"`
}

// ActiveSession is the running timer. PausedTime is in milliseconds.
type ActiveSession struct {
	SubjectID      string     `json:"subjectId"`
	StartTime      time.Time  `json:"startTime"`
	PausedTime     int64      `json:"pausedTime"`
	IsPaused       bool       `json:"isPaused"`
	LastPauseStart *time.Time `json:"lastPauseStart,omitempty"`
}

// Elapsed returns the studied time at now, excluding all pauses including
// one still in progress.
func (a ActiveSession) Elapsed(now time.Time) time.Duration {
	paused := time.Duration(a.PausedTime) * time.Millisecond
	if a.IsPaused && a.LastPauseStart != nil {
		paused += now.Sub(*a.LastPauseStart)
	}
	d := now.Sub(a.StartTime) - paused
	if d < 0 {
		return 0
	}
	return d
}

type TodayProgress struct {
	Date          string    `json:"date"`
	TotalMinutes  int       `json:"totalMinutes"`
	LastResetTime time.Time `json:"lastResetTime"`
}

type ExamDates struct {
	NEETPG string `json:"NEET_PG"`
	INICET string `json:"INICET"`
}

func (d ExamDates) Empty() bool { return d.NEETPG == "" && d.INICET == "" }

type SubjectMinutes struct {
	SubjectID string `json:"subjectId"`
	Minutes   int    `json:"minutes"`
}

type DailyStats struct {
	Date             string           `json:"date"`
	TotalMinutes     int              `json:"totalMinutes"`
	SubjectBreakdown []SubjectMinutes `json:"subjectBreakdown"`
}

// Progress values are percentages in [0, 100].
type Progress struct {
	HoursProgress   int `json:"hoursProgress"`
	MarksProgress   int `json:"marksProgress"`
	OverallProgress int `json:"overallProgress"`
}

type PerformancePoint struct {
	Date           string   `json:"date"`
	TestName       string   `json:"testName"`
	TestType       TestType `json:"testType"`
	Percentage     float64  `json:"percentage"`
	CorrectAnswers int      `json:"correctAnswers"`
	TotalQuestions int      `json:"totalQuestions"`
}

type Countdown struct {
	Exam     string `json:"exam"`
	Date     string `json:"date"`
	DaysLeft int    `json:"daysLeft"`
}

// Data is a full copy of one partition's persistent state. Backups
// serialize it and restores apply it wholesale.
type Data struct {
	StudySessions    []StudySession `json:"studySessions"`
	TestScores       []TestScore    `json:"testScores"`
	Subjects         []Subject      `json:"subjects"`
	StudyPlans       []StudyPlan    `json:"studyPlans"`
	ExamDates        ExamDates      `json:"examDates"`
	TodayProgress    TodayProgress  `json:"todayProgress"`
	DailyTargetHours float64        `json:"dailyTargetHours"`
}

// Clone returns a deep copy.
func (d Data) Clone() Data {
	out := d
	out.StudySessions = slices.Clone(d.StudySessions)
	out.TestScores = cloneScores(d.TestScores)
	out.Subjects = cloneSubjects(d.Subjects)
	out.StudyPlans = slices.Clone(d.StudyPlans)
	return out
}

func cloneScores(in []TestScore) []TestScore {
	if in == nil {
		return nil
	}
	out := make([]TestScore, len(in))
	for i, s := range in {
		s.SubjectScores = slices.Clone(s.SubjectScores)
		out[i] = s
	}
	return out
}

func cloneSubjects(in []Subject) []Subject {
	if in == nil {
		return nil
	}
	out := make([]Subject, len(in))
	for i, s := range in {
		s.AverageMarks = clonePtr(s.AverageMarks)
		s.MarksProgress = clonePtr(s.MarksProgress)
		out[i] = s
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
