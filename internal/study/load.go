package study

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/studylog/internal/safejson"
)

type rawRead struct {
	value   string
	present bool
	err     error
}

// Load reads the eight canonical keys concurrently. A failed or corrupted
// dataset degrades to its default without affecting the others. Valid data
// is then written back so storage converges toward validity, and default
// subjects are installed when none are stored.
func (s *Service) Load(ctx context.Context) error {
	if err := s.load(ctx); err != nil {
		return err
	}
	s.notify(ChangeReset)
	return nil
}

func (s *Service) load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := s.keys
	canonical := k.Canonical()
	reads := make([]rawRead, len(canonical))

	var g errgroup.Group
	for i, key := range canonical {
		g.Go(func() error {
			v, ok, err := s.kv.Get(ctx, key)
			reads[i] = rawRead{value: v, present: ok, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	byKey := make(map[string]rawRead, len(canonical))
	for i, key := range canonical {
		r := reads[i]
		if r.err != nil {
			s.log.Warn("read failed, using default", "key", key, "error", r.err)
			r = rawRead{}
		}
		byKey[key] = r
	}

	now := s.now()
	data := s.emptyData()

	data.StudySessions = loadRecords(s, k.StudySessions, byKey[k.StudySessions], ValidateSession)
	data.TestScores = loadRecords(s, k.TestScores, byKey[k.TestScores], ValidateScore)
	data.StudyPlans = dedupPlans(loadRecords(s, k.StudyPlans, byKey[k.StudyPlans], ValidatePlan))
	data.Subjects = loadRecords(s, k.Subjects, byKey[k.Subjects], ValidateSubject)

	active := loadValue[*ActiveSession](s, k.ActiveSession, byKey[k.ActiveSession], nil)
	if active != nil && (active.SubjectID == "" || active.StartTime.IsZero()) {
		s.log.Warn("dropping malformed active session", "key", k.ActiveSession)
		active = nil
	}

	data.ExamDates = loadValue(s, k.ExamDates, byKey[k.ExamDates], ExamDates{})

	today := loadValue[*TodayProgress](s, k.TodayProgress, byKey[k.TodayProgress], nil)
	if today == nil || s.needsReset(*today, now) {
		data.TodayProgress = TodayProgress{Date: dateOf(now), LastResetTime: now.UTC()}
	} else {
		data.TodayProgress = *today
	}
	if data.TodayProgress.TotalMinutes < 0 {
		data.TodayProgress.TotalMinutes = 0
	}

	target := loadValue(s, k.DailyTargetHours, byKey[k.DailyTargetHours], DefaultDailyTargetHours)
	if target <= 0 || target > 24 {
		target = DefaultDailyTargetHours
	}
	data.DailyTargetHours = target

	initDefaults := len(data.Subjects) == 0
	if initDefaults {
		s.log.Info("no subjects stored, initializing defaults", "user_id", k.UserID)
		data.Subjects = DefaultSubjects()
	}
	data.Subjects = RecomputeHours(data.Subjects, data.StudySessions)

	s.data = data
	s.active = active
	s.loaded = true

	// Self-healing pass. Local only: it repairs this device's copy.
	b := s.localBatch()
	heal := []struct {
		key  string
		v    any
		keep bool
	}{
		{k.Subjects, data.Subjects, len(data.Subjects) > 0},
		{k.StudySessions, data.StudySessions, len(data.StudySessions) > 0},
		{k.TestScores, data.TestScores, len(data.TestScores) > 0},
		{k.StudyPlans, data.StudyPlans, len(data.StudyPlans) > 0},
		{k.ExamDates, data.ExamDates, !data.ExamDates.Empty()},
		{k.TodayProgress, data.TodayProgress, true},
		{k.DailyTargetHours, data.DailyTargetHours, true},
	}
	for _, h := range heal {
		if h.keep {
			b.set(h.key, h.v)
		}
	}
	if err := b.apply(ctx); err != nil {
		s.log.Warn("self-healing save failed", "error", err)
	}

	s.log.Debug("data loaded",
		"user_id", k.UserID,
		"sessions", len(data.StudySessions),
		"scores", len(data.TestScores),
		"subjects", len(data.Subjects),
		"plans", len(data.StudyPlans),
		"today_minutes", data.TodayProgress.TotalMinutes,
	)

	return nil
}

// Refresh reloads the current partition.
func (s *Service) Refresh(ctx context.Context) error {
	return s.Load(ctx)
}

func loadRecords[T any](s *Service, key string, r rawRead, validate func(json.RawMessage) Result[T]) []T {
	raws, err := decodeList(r.value, r.present)
	if err != nil {
		s.log.Warn("corrupted dataset, using empty", "key", key, "error", err, "preview", safejson.Preview(r.value))
		return []T{}
	}
	records, dropped := FilterValid(raws, validate)
	if len(dropped) > 0 {
		s.log.Warn("dropped malformed records", "key", key, "count", len(dropped), "first", dropped[0].Error())
	}
	if records == nil {
		records = []T{}
	}
	return records
}

func loadValue[T any](s *Service, key string, r rawRead, fallback T) T {
	if !r.present {
		return fallback
	}
	v, err := safejson.Decode[T](r.value)
	if err != nil {
		s.log.Warn("corrupted value, using default", "key", key, "error", err, "preview", safejson.Preview(r.value))
		return fallback
	}
	return v
}

// dedupPlans keeps the last plan seen for each subject.
func dedupPlans(plans []StudyPlan) []StudyPlan {
	idx := map[string]int{}
	out := make([]StudyPlan, 0, len(plans))
	for _, p := range plans {
		if i, ok := idx[p.SubjectID]; ok {
			out[i] = p
			continue
		}
		idx[p.SubjectID] = len(out)
		out = append(out, p)
	}
	return out
}

// boundary returns the day-boundary instant on now's local day.
func (s *Service) boundary(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, s.boundaryHour, 0, 0, 0, now.Location())
}

// needsReset applies the day-boundary policy: reset when the stored date is
// not today, or when the boundary hour has passed since the last reset.
func (s *Service) needsReset(tp TodayProgress, now time.Time) bool {
	if tp.Date != dateOf(now) {
		return true
	}
	b := s.boundary(now)
	return !now.Before(b) && tp.LastResetTime.Before(b)
}

// effectiveToday is the progress as of now, reset if the day has rolled.
// Must be called with mu held.
func (s *Service) effectiveToday(now time.Time) TodayProgress {
	if s.needsReset(s.data.TodayProgress, now) {
		return TodayProgress{Date: dateOf(now), LastResetTime: now.UTC()}
	}
	return s.data.TodayProgress
}

// CheckDayRollover resets and persists today's progress when the day has
// rolled over. Calling it again before the next boundary changes nothing.
func (s *Service) CheckDayRollover(ctx context.Context) (bool, error) {
	s.mu.Lock()
	now := s.now()
	if !s.needsReset(s.data.TodayProgress, now) {
		s.mu.Unlock()
		return false, nil
	}
	reset := TodayProgress{Date: dateOf(now), LastResetTime: now.UTC()}
	if err := s.batch().set(s.keys.TodayProgress, reset).apply(ctx); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("save daily reset: %w", err)
	}
	s.data.TodayProgress = reset
	s.mu.Unlock()

	s.notify(ChangeTodayProgress)
	return true, nil
}

// ForceInitializeSubjects replaces the subject list with the defaults.
func (s *Service) ForceInitializeSubjects(ctx context.Context) error {
	s.mu.Lock()
	subjects := RecomputeHours(DefaultSubjects(), s.data.StudySessions)
	if err := s.batch().set(s.keys.Subjects, subjects).apply(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("initialize subjects: %w", err)
	}
	s.data.Subjects = subjects
	s.mu.Unlock()

	s.notify(ChangeSubjects)
	return nil
}

// DebugInfo is a key inventory for troubleshooting.
type DebugInfo struct {
	UserID        string
	TotalKeys     int
	PartitionKeys []string
	Canonical     map[string]int
	Sessions      int
	Scores        int
	Subjects      int
	Plans         int
	Active        bool
}

// Debug reports which keys exist and how large the canonical values are.
func (s *Service) Debug(ctx context.Context) (DebugInfo, error) {
	s.mu.Lock()
	k := s.keys
	info := DebugInfo{
		UserID:    k.UserID,
		Canonical: map[string]int{},
		Sessions:  len(s.data.StudySessions),
		Scores:    len(s.data.TestScores),
		Subjects:  len(s.data.Subjects),
		Plans:     len(s.data.StudyPlans),
		Active:    s.active != nil,
	}
	s.mu.Unlock()

	all, err := s.kv.AllKeys(ctx)
	if err != nil {
		return info, fmt.Errorf("list keys: %w", err)
	}
	info.TotalKeys = len(all)
	canonical := map[string]bool{}
	for _, key := range k.Canonical() {
		canonical[key] = true
	}
	for _, key := range all {
		if !canonical[key] {
			continue
		}
		info.PartitionKeys = append(info.PartitionKeys, key)
		v, ok, err := s.kv.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		info.Canonical[key] = len(v)
	}
	return info, nil
}
