package recovery

import "strings"

type dataset int

const (
	sessions dataset = iota
	scores
	subjects
	plans
	examDates
	numDatasets
)

func (d dataset) String() string {
	return [...]string{"sessions", "scores", "subjects", "plans", "exam dates"}[d]
}

// token is the substring that pulls unlisted keys into a dataset's scan.
func (d dataset) token() string {
	return [...]string{"session", "score", "subject", "plan", "exam"}[d]
}

// localPatterns lists the current, legacy, uppercase, @-prefixed and
// camelCase key names each dataset has been stored under.
func localPatterns(userID string) [numDatasets][]string {
	user := func(name string) []string {
		if userID == "" {
			return nil
		}
		return []string{"user_" + userID + "_" + name, "cloud_user_" + userID + "_" + name}
	}
	join := func(parts ...[]string) []string {
		var out []string
		for _, p := range parts {
			out = append(out, p...)
		}
		return out
	}
	return [numDatasets][]string{
		sessions: join(
			[]string{"study_sessions", "guest_study_sessions"},
			user("study_sessions"),
			[]string{"STUDY_SESSIONS", "@study_sessions", "studySessions", "sessions", "user_sessions", "cloud_sessions"},
		),
		scores: join(
			[]string{"test_scores", "guest_test_scores"},
			user("test_scores"),
			[]string{"TEST_SCORES", "@test_scores", "testScores", "scores", "user_scores", "cloud_scores"},
		),
		subjects: join(
			[]string{"subjects", "guest_subjects"},
			user("subjects"),
			[]string{"SUBJECTS", "@subjects", "user_subjects", "cloud_subjects"},
		),
		plans: join(
			[]string{"study_plans", "guest_study_plans"},
			user("study_plans"),
			[]string{"STUDY_PLANS", "@study_plans", "studyPlans", "plans", "user_plans", "cloud_plans"},
		),
		examDates: join(
			[]string{"exam_dates", "guest_exam_dates"},
			user("exam_dates"),
			[]string{"EXAM_DATES", "@exam_dates", "examDates", "dates", "user_dates", "cloud_dates"},
		),
	}
}

// substringMatch reports whether key belongs to d by substring alone.
// This can match keys written by unrelated software sharing the medium;
// such keys are reported in Result.MatchedKeys.
func substringMatch(d dataset, key string) bool {
	k := strings.ToLower(key)
	if d == sessions && strings.Contains(k, "active") {
		return false
	}
	return strings.Contains(k, d.token())
}

// scanKeys returns the keys to read for d, in order: explicit patterns
// first, then substring matches. Only keys present in all are returned.
// The second result lists the substring-only matches.
func scanKeys(d dataset, explicit []string, all []string, present map[string]bool) (ordered, extra []string) {
	seen := map[string]bool{}
	for _, k := range explicit {
		if present[k] && !seen[k] {
			seen[k] = true
			ordered = append(ordered, k)
		}
	}
	for _, k := range all {
		if !seen[k] && substringMatch(d, k) {
			seen[k] = true
			ordered = append(ordered, k)
			extra = append(extra, k)
		}
	}
	return ordered, extra
}

const vaultKeyPrefix = "icloud_"

// vaultPatterns lists the loosely named secure entries tried per dataset,
// without the vault key prefix.
func vaultPatterns(userID string) [numDatasets][]string {
	owner := "guest"
	if userID != "" {
		owner = userID
	}
	return [numDatasets][]string{
		sessions:  {owner + "_sessions", "sessions", "study_sessions"},
		scores:    {owner + "_scores", "scores", "test_scores"},
		subjects:  {owner + "_subjects", "subjects"},
		plans:     {owner + "_plans", "plans", "study_plans"},
		examDates: {owner + "_dates", "dates", "exam_dates"},
	}
}
