package study

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// IsBreakNote reports whether notes describe a rest interval. Such sessions
// are never recorded.
func IsBreakNote(notes string) bool {
	n := strings.ToLower(notes)
	return strings.Contains(n, "break") || strings.Contains(n, "rest")
}

// Start begins an active session for subjectID, replacing any running one.
func (s *Service) Start(ctx context.Context, subjectID string) (*ActiveSession, error) {
	if strings.TrimSpace(subjectID) == "" {
		return nil, &ValidationError{Record: "session", Field: "subjectId", Reason: "is required"}
	}
	s.mu.Lock()
	a := &ActiveSession{SubjectID: subjectID, StartTime: s.now().UTC()}
	if err := s.batch().set(s.keys.ActiveSession, a).apply(ctx); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("save active session: %w", err)
	}
	s.active = a
	s.mu.Unlock()

	s.notify(ChangeActiveSession)
	cp := *a
	return &cp, nil
}

// Pause is a no-op when there is no session or it is already paused.
func (s *Service) Pause(ctx context.Context) error {
	s.mu.Lock()
	if s.active == nil || s.active.IsPaused {
		s.mu.Unlock()
		return nil
	}
	now := s.now().UTC()
	next := *s.active
	next.IsPaused = true
	next.LastPauseStart = &now
	if err := s.batch().set(s.keys.ActiveSession, next).apply(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save paused session: %w", err)
	}
	s.active = &next
	s.mu.Unlock()

	s.notify(ChangeActiveSession)
	return nil
}

// Resume is a no-op unless the session is paused.
func (s *Service) Resume(ctx context.Context) error {
	s.mu.Lock()
	if s.active == nil || !s.active.IsPaused || s.active.LastPauseStart == nil {
		s.mu.Unlock()
		return nil
	}
	now := s.now()
	next := *s.active
	next.PausedTime += now.Sub(*next.LastPauseStart).Milliseconds()
	next.IsPaused = false
	next.LastPauseStart = nil
	if err := s.batch().set(s.keys.ActiveSession, next).apply(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save resumed session: %w", err)
	}
	s.active = &next
	s.mu.Unlock()

	s.notify(ChangeActiveSession)
	return nil
}

// Discard drops the active session without recording it.
func (s *Service) Discard(ctx context.Context) error {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return nil
	}
	if err := s.batch().remove(s.keys.ActiveSession).apply(ctx); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("clear active session: %w", err)
	}
	s.active = nil
	s.mu.Unlock()

	s.notify(ChangeActiveSession)
	return nil
}

// End records the active session. Paused time, including a pause still in
// progress, is excluded and the duration is at least one minute. Notes
// mentioning a break or rest discard the session instead and return nil.
// Without an active session End does nothing and returns nil. The session, subjects, today's progress and the active-session removal
// are written as one batch.
func (s *Service) End(ctx context.Context, notes string) (*StudySession, error) {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		s.log.Debug("end without active session")
		return nil, nil
	}
	a := *s.active

	if IsBreakNote(notes) {
		s.log.Warn("blocked break session from history", "subject", a.SubjectID)
		if err := s.batch().remove(s.keys.ActiveSession).apply(ctx); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("clear active session: %w", err)
		}
		s.active = nil
		s.mu.Unlock()
		s.notify(ChangeActiveSession)
		return nil, nil
	}

	now := s.now()
	elapsed := a.Elapsed(now)
	minutes := int(math.Max(1, math.Round(float64(elapsed.Milliseconds())/60000)))

	sess := StudySession{
		ID:        s.newID(),
		SubjectID: a.SubjectID,
		StartTime: a.StartTime,
		EndTime:   now.UTC(),
		Duration:  minutes,
		Date:      dateOf(a.StartTime.In(now.Location())),
		Notes:     notes,
	}
	if sub, ok := s.subject(a.SubjectID); ok {
		sess.SubjectName = sub.Name
	}

	sessions := append(slices.Clone(s.data.StudySessions), sess)
	subjects := RecomputeHours(s.data.Subjects, sessions)
	today := s.effectiveToday(now)
	today.TotalMinutes += minutes

	err := s.batch().
		set(s.keys.StudySessions, sessions).
		set(s.keys.Subjects, subjects).
		set(s.keys.TodayProgress, today).
		remove(s.keys.ActiveSession).
		apply(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("end session: %w", err)
	}
	s.data.StudySessions = sessions
	s.data.Subjects = subjects
	s.data.TodayProgress = today
	s.active = nil
	s.mu.Unlock()

	s.notify(ChangeSessions | ChangeSubjects | ChangeTodayProgress | ChangeActiveSession)
	return &sess, nil
}

// AddSession records a session entered by hand. Missing id, date and end
// time are filled in. A session dated today also counts toward today's
// progress.
func (s *Service) AddSession(ctx context.Context, sess StudySession) (*StudySession, error) {
	if IsBreakNote(sess.Notes) {
		return nil, &ValidationError{Record: "session", Field: "notes", Reason: "describes a break"}
	}

	s.mu.Lock()
	now := s.now()
	if sess.ID == "" {
		sess.ID = s.newID()
	}
	if sess.Date == "" && !sess.StartTime.IsZero() {
		sess.Date = dateOf(sess.StartTime.In(now.Location()))
	}
	if sess.EndTime.IsZero() && !sess.StartTime.IsZero() {
		sess.EndTime = sess.StartTime.Add(time.Duration(sess.Duration) * time.Minute)
	}
	if err := sess.Validate(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if sess.SubjectName == "" {
		if sub, ok := s.subject(sess.SubjectID); ok {
			sess.SubjectName = sub.Name
		}
	}

	sessions := append(slices.Clone(s.data.StudySessions), sess)
	subjects := RecomputeHours(s.data.Subjects, sessions)
	b := s.batch().set(s.keys.StudySessions, sessions).set(s.keys.Subjects, subjects)

	today := s.data.TodayProgress
	change := ChangeSessions | ChangeSubjects
	if sess.Date == dateOf(now) {
		today = s.effectiveToday(now)
		today.TotalMinutes += sess.Duration
		b.set(s.keys.TodayProgress, today)
		change |= ChangeTodayProgress
	}
	if err := b.apply(ctx); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("add session: %w", err)
	}
	s.data.StudySessions = sessions
	s.data.Subjects = subjects
	s.data.TodayProgress = today
	s.mu.Unlock()

	s.notify(change)
	return &sess, nil
}

// DeleteSession removes one session.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	n, err := s.DeleteSessions(ctx, []string{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSessions removes the sessions with the given ids and returns how
// many were found. Subject hours are recomputed and today's counter loses
// the minutes of deleted sessions dated today, never dropping below zero.
func (s *Service) DeleteSessions(ctx context.Context, ids []string) (int, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	now := s.now()
	todayKey := dateOf(now)
	var (
		remaining    = make([]StudySession, 0, len(s.data.StudySessions))
		removed      int
		todayMinutes int
	)
	for _, ss := range s.data.StudySessions {
		if !drop[ss.ID] {
			remaining = append(remaining, ss)
			continue
		}
		removed++
		if sessionDate(ss, now.Location()) == todayKey {
			todayMinutes += ss.Duration
		}
	}
	if removed == 0 {
		s.mu.Unlock()
		return 0, nil
	}

	subjects := RecomputeHours(s.data.Subjects, remaining)
	b := s.batch().set(s.keys.StudySessions, remaining).set(s.keys.Subjects, subjects)
	today := s.data.TodayProgress
	change := ChangeSessions | ChangeSubjects
	if todayMinutes > 0 && today.Date == todayKey {
		today.TotalMinutes = max(0, today.TotalMinutes-todayMinutes)
		b.set(s.keys.TodayProgress, today)
		change |= ChangeTodayProgress
	}
	if err := b.apply(ctx); err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	s.data.StudySessions = remaining
	s.data.Subjects = subjects
	s.data.TodayProgress = today
	s.mu.Unlock()

	s.notify(change)
	return removed, nil
}

// RecomputeHours returns subjects with CompletedHours derived from sessions.
func RecomputeHours(subjects []Subject, sessions []StudySession) []Subject {
	minutes := make(map[string]int, len(subjects))
	for _, ss := range sessions {
		minutes[ss.SubjectID] += max(0, ss.Duration)
	}
	out := cloneSubjects(subjects)
	if out == nil {
		out = []Subject{}
	}
	for i := range out {
		out[i].CompletedHours = float64(minutes[out[i].ID]) / 60
	}
	return out
}
