// Package keys derives the per-user storage keys for every study dataset.
package keys

import "strings"

// Logical dataset names, as they appear after the partition prefix.
const (
	StudySessions    = "study_sessions"
	TestScores       = "test_scores"
	Subjects         = "subjects"
	StudyPlans       = "study_plans"
	ActiveSession    = "active_session"
	ExamDates        = "exam_dates"
	TodayProgress    = "today_progress"
	DailyTargetHours = "daily_target_hours"
	LastCloudSync    = "last_cloud_sync"
)

const (
	guestPrefix  = "guest_"
	mirrorPrefix = "cloud_"
)

// SyncIntent marks whether a write should also land in the cloud mirror
// partition. A future sync layer consumes the marker, not the key convention.
type SyncIntent int

const (
	LocalOnly SyncIntent = iota
	SyncMirror
)

func (i SyncIntent) String() string {
	if i == SyncMirror {
		return "sync-mirror"
	}
	return "local-only"
}

// Keys is the resolved key set for one partition.
type Keys struct {
	UserID string

	StudySessions    string
	TestScores       string
	Subjects         string
	StudyPlans       string
	ActiveSession    string
	ExamDates        string
	TodayProgress    string
	DailyTargetHours string
	LastCloudSync    string
}

// Prefix returns the partition prefix for userID: user_<id>_ or guest_.
func Prefix(userID string) string {
	if userID == "" {
		return guestPrefix
	}
	return "user_" + userID + "_"
}

// For returns the key set for userID. An empty id is the guest partition.
func For(userID string) Keys {
	p := Prefix(userID)
	return Keys{
		UserID:           userID,
		StudySessions:    p + StudySessions,
		TestScores:       p + TestScores,
		Subjects:         p + Subjects,
		StudyPlans:       p + StudyPlans,
		ActiveSession:    p + ActiveSession,
		ExamDates:        p + ExamDates,
		TodayProgress:    p + TodayProgress,
		DailyTargetHours: p + DailyTargetHours,
		LastCloudSync:    p + LastCloudSync,
	}
}

// Guest reports whether this is the guest partition.
func (k Keys) Guest() bool { return k.UserID == "" }

// Canonical lists the eight canonical dataset keys in load order.
func (k Keys) Canonical() []string {
	return []string{
		k.StudySessions,
		k.TestScores,
		k.Subjects,
		k.StudyPlans,
		k.ActiveSession,
		k.ExamDates,
		k.TodayProgress,
		k.DailyTargetHours,
	}
}

// Mirror returns the cloud_ mirror of key, or "" when the key has none:
// guests have no mirror, and the active session and the sync stamp are
// device-local.
func (k Keys) Mirror(key string) string {
	if k.Guest() || key == "" || key == k.ActiveSession || key == k.LastCloudSync {
		return ""
	}
	if !strings.HasPrefix(key, Prefix(k.UserID)) {
		return ""
	}
	return mirrorPrefix + key
}

// Mirrors lists the mirror key of every canonical key that has one.
func (k Keys) Mirrors() []string {
	var out []string
	for _, key := range k.Canonical() {
		if m := k.Mirror(key); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// IntentFor yields SyncMirror only for authenticated users.
func IntentFor(userID string) SyncIntent {
	if userID == "" {
		return LocalOnly
	}
	return SyncMirror
}
