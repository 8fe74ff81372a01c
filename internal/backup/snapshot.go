package backup

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/abhisek/studylog/internal/auth"
	"github.com/abhisek/studylog/internal/safejson"
	"github.com/abhisek/studylog/internal/study"
)

// isoMillis matches the millisecond ISO-8601 timestamps snapshots carry.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Snapshot is one backup of a partition's data.
type Snapshot struct {
	Version   string      `json:"version"`
	Timestamp string      `json:"timestamp"`
	UserID    string      `json:"userId,omitempty"`
	UserEmail string      `json:"userEmail,omitempty"`
	Data      *study.Data `json:"data"`
	Metadata  Metadata    `json:"metadata"`
}

type Metadata struct {
	TotalSessions   int        `json:"totalSessions"`
	TotalTests      int        `json:"totalTests"`
	TotalStudyHours float64    `json:"totalStudyHours"`
	DeviceInfo      DeviceInfo `json:"deviceInfo"`
}

type DeviceInfo struct {
	Platform   string `json:"platform"`
	AppVersion string `json:"appVersion"`
}

type statusRecord struct {
	LastBackupDate string `json:"lastBackupDate"`
	UpdatedAt      string `json:"updatedAt"`
}

// envelope is Snapshot with the data left raw.
type envelope struct {
	Version   string          `json:"version"`
	Timestamp string          `json:"timestamp"`
	UserID    string          `json:"userId"`
	UserEmail string          `json:"userEmail"`
	Data      json.RawMessage `json:"data"`
	Metadata  Metadata        `json:"metadata"`
}

var errNoTimestamp = errors.New("snapshot has no timestamp")

func newSnapshot(d study.Data, user *auth.User, platform string, now time.Time) Snapshot {
	minutes := 0
	for _, ss := range d.StudySessions {
		minutes += max(0, ss.Duration)
	}
	snap := Snapshot{
		Version:   Version,
		Timestamp: now.UTC().Format(isoMillis),
		Data:      &d,
		Metadata: Metadata{
			TotalSessions:   len(d.StudySessions),
			TotalTests:      len(d.TestScores),
			TotalStudyHours: math.Round(float64(minutes)/60*10) / 10,
			DeviceInfo:      DeviceInfo{Platform: platform, AppVersion: AppVersion},
		},
	}
	if user.Valid() {
		snap.UserID = user.ID
		snap.UserEmail = user.Email
	}
	return snap
}

// decodeSnapshot parses a stored snapshot. The envelope must be intact;
// data fields are decoded one by one so an old or partial payload still
// loads, and records that fail validation are dropped.
func decodeSnapshot(raw string) (*Snapshot, error) {
	env, err := safejson.Decode[envelope](raw)
	if err != nil {
		return nil, err
	}
	if env.Timestamp == "" {
		return nil, errNoTimestamp
	}
	snap := &Snapshot{
		Version:   env.Version,
		Timestamp: env.Timestamp,
		UserID:    env.UserID,
		UserEmail: env.UserEmail,
		Metadata:  env.Metadata,
	}
	if d, ok := decodeData(env.Data); ok {
		snap.Data = &d
	}
	return snap, nil
}

func decodeData(raw json.RawMessage) (study.Data, bool) {
	var fields map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil || fields == nil {
		return study.Data{}, false
	}
	var d study.Data
	d.StudySessions = records(fields["studySessions"], study.ValidateSession)
	d.TestScores = records(fields["testScores"], study.ValidateScore)
	d.Subjects = records(fields["subjects"], study.ValidateSubject)
	d.StudyPlans = records(fields["studyPlans"], study.ValidatePlan)
	_ = json.Unmarshal(fields["examDates"], &d.ExamDates)
	_ = json.Unmarshal(fields["todayProgress"], &d.TodayProgress)
	_ = json.Unmarshal(fields["dailyTargetHours"], &d.DailyTargetHours)
	return d, true
}

func records[T any](raw json.RawMessage, validate func(json.RawMessage) study.Result[T]) []T {
	var raws []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &raws) != nil {
		return nil
	}
	out, _ := study.FilterValid(raws, validate)
	return out
}

// normalize defaults every field a structurally incomplete snapshot lacks.
func normalize(d study.Data, now time.Time) study.Data {
	if d.StudySessions == nil {
		d.StudySessions = []study.StudySession{}
	}
	if d.TestScores == nil {
		d.TestScores = []study.TestScore{}
	}
	if d.Subjects == nil {
		d.Subjects = []study.Subject{}
	}
	if d.StudyPlans == nil {
		d.StudyPlans = []study.StudyPlan{}
	}
	if d.TodayProgress.Date == "" {
		d.TodayProgress = study.TodayProgress{Date: now.Format("2006-01-02"), LastResetTime: now.UTC()}
	}
	if d.DailyTargetHours <= 0 {
		d.DailyTargetHours = study.DefaultDailyTargetHours
	}
	return d
}

func parseTimestamp(ts string) (time.Time, bool) {
	for _, layout := range []string{isoMillis, time.RFC3339Nano} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
