package study

import (
	"context"
	"fmt"
	"slices"
)

// UpdateStudyPlan inserts or replaces the plan for plan.SubjectID.
func (s *Service) UpdateStudyPlan(ctx context.Context, plan StudyPlan) error {
	if plan.Priority == "" {
		plan.Priority = PriorityMedium
	}
	if err := plan.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	plans := slices.Clone(s.data.StudyPlans)
	if i := slices.IndexFunc(plans, func(p StudyPlan) bool { return p.SubjectID == plan.SubjectID }); i >= 0 {
		plans[i] = plan
	} else {
		plans = append(plans, plan)
	}
	if err := s.batch().set(s.keys.StudyPlans, plans).apply(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("update study plan: %w", err)
	}
	s.data.StudyPlans = plans
	s.mu.Unlock()

	s.notify(ChangePlans)
	return nil
}

// UpdateExamDates replaces both exam dates.
func (s *Service) UpdateExamDates(ctx context.Context, dates ExamDates) error {
	if err := dates.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.batch().set(s.keys.ExamDates, dates).apply(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("update exam dates: %w", err)
	}
	s.data.ExamDates = dates
	s.mu.Unlock()

	s.notify(ChangeExamDates)
	return nil
}

// UpdateDailyTargetHours rejects values outside (0, 24].
func (s *Service) UpdateDailyTargetHours(ctx context.Context, hours float64) error {
	if hours <= 0 || hours > 24 {
		return fmt.Errorf("%w: got %v", ErrInvalidTargetHours, hours)
	}
	s.mu.Lock()
	if err := s.batch().set(s.keys.DailyTargetHours, hours).apply(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("update daily target: %w", err)
	}
	s.data.DailyTargetHours = hours
	s.mu.Unlock()

	s.notify(ChangeTargetHours)
	return nil
}

// DailyTargetHours returns the configured daily goal.
func (s *Service) DailyTargetHours() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DailyTargetHours
}

// ExamDates returns the stored exam dates.
func (s *Service) ExamDates() ExamDates {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ExamDates
}

// ClearAllData removes every canonical key of the current partition,
// including cloud mirrors and the sync stamp, and resets state. It cannot
// be undone.
func (s *Service) ClearAllData(ctx context.Context) error {
	s.mu.Lock()
	b := s.batch()
	for _, key := range s.keys.Canonical() {
		b.remove(key)
	}
	b.remove(s.keys.LastCloudSync)
	if err := b.apply(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("clear all data: %w", err)
	}
	s.data = s.emptyData()
	s.active = nil
	s.mu.Unlock()

	s.notify(ChangeReset)
	return nil
}

// ApplySnapshot overwrites the partition wholesale with d and persists it.
// Subject hours are recomputed from the restored sessions.
func (s *Service) ApplySnapshot(ctx context.Context, d Data) error {
	d = d.Clone()
	if d.StudySessions == nil {
		d.StudySessions = []StudySession{}
	}
	if d.TestScores == nil {
		d.TestScores = []TestScore{}
	}
	if d.StudyPlans == nil {
		d.StudyPlans = []StudyPlan{}
	}
	if d.DailyTargetHours <= 0 || d.DailyTargetHours > 24 {
		d.DailyTargetHours = DefaultDailyTargetHours
	}
	d.Subjects = RecomputeHours(d.Subjects, d.StudySessions)

	s.mu.Lock()
	if d.TodayProgress.Date == "" {
		now := s.now()
		d.TodayProgress = TodayProgress{Date: dateOf(now), LastResetTime: now.UTC()}
	}
	err := s.batch().
		set(s.keys.StudySessions, d.StudySessions).
		set(s.keys.TestScores, d.TestScores).
		set(s.keys.Subjects, d.Subjects).
		set(s.keys.StudyPlans, d.StudyPlans).
		set(s.keys.ExamDates, d.ExamDates).
		set(s.keys.TodayProgress, d.TodayProgress).
		set(s.keys.DailyTargetHours, d.DailyTargetHours).
		apply(ctx)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("apply snapshot: %w", err)
	}
	s.data = d
	s.mu.Unlock()

	s.notify(ChangeReset)
	return nil
}
