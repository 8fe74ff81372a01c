package timer

import (
	"strings"
	"time"

	"github.com/abhisek/studylog/internal/safejson"
)

// StateKey is where the background timer state is persisted.
const StateKey = "background_timer_state"

type SessionType string

const (
	Work       SessionType = "work"
	ShortBreak SessionType = "shortBreak"
	LongBreak  SessionType = "longBreak"
)

type Mode string

const (
	Pomodoro Mode = "pomodoro"
	CountUp  Mode = "countup"
)

// State is the persisted timer. Instants are Unix milliseconds, PausedTime
// is milliseconds and TotalTime is seconds.
type State struct {
	IsRunning         bool        `json:"isRunning"`
	StartTime         int64       `json:"startTime"`
	PausedTime        int64       `json:"pausedTime"`
	TotalTime         int64       `json:"totalTime"`
	SessionType       SessionType `json:"sessionType"`
	Mode              Mode        `json:"mode"`
	SubjectID         string      `json:"subjectId"`
	CompletedSessions int         `json:"completedSessions"`
	TotalSessions     int         `json:"totalSessions"`
	DistractionCount  int         `json:"distractionCount"`
	Completed         bool        `json:"completed,omitempty"`
	CompletionTime    int64       `json:"completionTime,omitempty"`
	LastSaveTime      int64       `json:"lastSaveTime,omitempty"`
	LastPauseTime     int64       `json:"lastPauseTime,omitempty"`
}

// Elapsed is the running time at now, excluding pauses.
func (s State) Elapsed(now time.Time) time.Duration {
	paused := s.PausedTime
	if !s.IsRunning && s.LastPauseTime > 0 {
		paused += now.UnixMilli() - s.LastPauseTime
	}
	ms := now.UnixMilli() - s.StartTime - paused
	if ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Remaining is zero for count-up timers.
func (s State) Remaining(now time.Time) time.Duration {
	if s.Mode != Pomodoro {
		return 0
	}
	total := time.Duration(s.TotalTime) * time.Second
	return max(0, total-s.Elapsed(now).Truncate(time.Second))
}

// Progress is a point-in-time reading of a timer.
type Progress struct {
	Remaining time.Duration
	Elapsed   time.Duration
	Completed bool
	State     State
}

func progressAt(s State, now time.Time) Progress {
	p := Progress{Elapsed: s.Elapsed(now).Truncate(time.Second), State: s}
	if s.Mode == Pomodoro {
		p.Remaining = s.Remaining(now)
		p.Completed = p.Remaining == 0
	}
	return p
}

// corrupt reports stored text that cannot be a timer object.
func corrupt(raw string) bool {
	t := strings.TrimSpace(raw)
	switch {
	case t == "", t == "object",
		strings.Contains(t, "[object Object]"),
		strings.HasPrefix(t, "[object"),
		strings.HasPrefix(t, "o"),
		!strings.HasPrefix(t, "{"):
		return true
	}
	return safejson.IsCorrupt(t)
}

// wellFormed checks the fields every stored timer must carry.
// startTime is optional when requireStart is false.
func wellFormed(m map[string]any, requireStart bool) bool {
	if _, ok := m["isRunning"].(bool); !ok {
		return false
	}
	if _, ok := m["mode"].(string); !ok {
		return false
	}
	if requireStart {
		if _, ok := m["startTime"].(float64); !ok {
			return false
		}
	}
	return true
}
