// Package study owns all persistent study data for the current user and
// keeps derived fields consistent with the sessions and scores they come from.
package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/studylog/internal/auth"
	"github.com/abhisek/studylog/internal/keys"
	"github.com/abhisek/studylog/internal/logger"
	"github.com/abhisek/studylog/internal/safejson"
	"github.com/abhisek/studylog/internal/store"
)

const dateLayout = "2006-01-02"

var (
	ErrInvalidTargetHours = errors.New("daily target hours must be within (0, 24]")
	ErrSessionNotFound    = errors.New("study session not found")
	ErrScoreNotFound      = errors.New("test score not found")
)

// Clock returns the current time.
type Clock func() time.Time

// Change flags which datasets an Event touched.
type Change uint16

const (
	ChangeSessions Change = 1 << iota
	ChangeScores
	ChangeSubjects
	ChangePlans
	ChangeActiveSession
	ChangeExamDates
	ChangeTodayProgress
	ChangeTargetHours
	ChangeReset
)

func (c Change) Has(flag Change) bool { return c&flag != 0 }

// Event is delivered to subscribers after a change has been persisted.
type Event struct {
	Change Change
	UserID string
}

type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.now = c } }

func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.log = l } }

// WithDayBoundaryHour sets the local hour at which today's progress rolls over.
func WithDayBoundaryHour(h int) Option { return func(s *Service) { s.boundaryHour = h } }

// WithIDGenerator overrides record id generation.
func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

// Service is the single owner of one partition's study data. It is safe for
// concurrent use; every mutation persists before it becomes visible.
type Service struct {
	kv           store.KV
	log          *logger.Logger
	now          Clock
	boundaryHour int
	newID        func() string

	mu     sync.Mutex
	user   *auth.User
	keys   keys.Keys
	data   Data
	active *ActiveSession
	loaded bool

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

func New(kv store.KV, opts ...Option) *Service {
	s := &Service{
		kv:           kv,
		log:          logger.Nop(),
		now:          time.Now,
		boundaryHour: 3,
		newID:        func() string { return uuid.Must(uuid.NewV7()).String() },
		keys:         keys.For(""),
		subs:         map[int]func(Event){},
	}
	for _, o := range opts {
		o(s)
	}
	s.data = s.emptyData()
	return s
}

// Subscribe registers fn for change events and returns its cancel func.
func (s *Service) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Service) notify(c Change) {
	if c == 0 {
		return
	}
	s.mu.Lock()
	ev := Event{Change: c, UserID: s.keys.UserID}
	s.mu.Unlock()

	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// SetUser switches the partition. A nil user selects the guest partition
// and clears in-memory state; call Load to read it. A valid user is loaded
// immediately.
func (s *Service) SetUser(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	if u.Valid() {
		cp := *u
		s.user = &cp
		s.keys = keys.For(u.ID)
	} else {
		s.user = nil
		s.keys = keys.For("")
	}
	s.data = s.emptyData()
	s.active = nil
	s.loaded = false
	s.mu.Unlock()

	if u.Valid() {
		return s.Load(ctx)
	}
	s.notify(ChangeReset)
	return nil
}

// User returns the current user, or nil for the guest partition.
func (s *Service) User() *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	cp := *s.user
	return &cp
}

// Keys returns the current partition's keys.
func (s *Service) Keys() keys.Keys {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys
}

func (s *Service) emptyData() Data {
	now := s.now()
	return Data{
		StudySessions:    []StudySession{},
		TestScores:       []TestScore{},
		Subjects:         []Subject{},
		StudyPlans:       []StudyPlan{},
		TodayProgress:    TodayProgress{Date: dateOf(now), LastResetTime: now.UTC()},
		DailyTargetHours: DefaultDailyTargetHours,
	}
}

// writer must be called with mu held.
func (s *Service) writer() *store.Writer {
	return store.NewWriter(s.kv, s.keys, s.now)
}

func (s *Service) intent() keys.SyncIntent {
	return keys.IntentFor(s.keys.UserID)
}

// batch collects canonical writes for one atomic apply. It must be used
// with mu held.
type batch struct {
	s      *Service
	intent keys.SyncIntent
	writes []store.Write
	err    error
}

func (s *Service) batch() *batch { return &batch{s: s, intent: s.intent()} }

// localBatch never mirrors. Repairs of this device's copy use it.
func (s *Service) localBatch() *batch { return &batch{s: s, intent: keys.LocalOnly} }

func (b *batch) set(key string, v any) *batch {
	if b.err != nil {
		return b
	}
	raw, err := safejson.Marshal(v)
	if err != nil {
		b.err = fmt.Errorf("encode %s: %w", key, err)
		return b
	}
	b.writes = append(b.writes, store.Write{Key: key, Value: raw, Intent: b.intent})
	return b
}

func (b *batch) remove(key string) *batch {
	b.writes = append(b.writes, store.Write{Key: key, Delete: true, Intent: b.intent})
	return b
}

func (b *batch) apply(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.writes) == 0 {
		return nil
	}
	return b.s.writer().Apply(ctx, b.writes...)
}

// Snapshot returns a deep copy of the persistent state.
func (s *Service) Snapshot() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

func (s *Service) Sessions() []StudySession { return s.Snapshot().StudySessions }
func (s *Service) Scores() []TestScore      { return s.Snapshot().TestScores }
func (s *Service) Subjects() []Subject      { return s.Snapshot().Subjects }
func (s *Service) Plans() []StudyPlan       { return s.Snapshot().StudyPlans }

// ActiveSession returns the running session, or nil.
func (s *Service) ActiveSession() *ActiveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	cp := *s.active
	cp.LastPauseStart = clonePtr(s.active.LastPauseStart)
	return &cp
}

// Loaded reports whether Load has completed for the current partition.
func (s *Service) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// subject returns the subject with id. Must be called with mu held.
func (s *Service) subject(id string) (Subject, bool) {
	for _, sub := range s.data.Subjects {
		if sub.ID == id {
			return sub, true
		}
	}
	return Subject{}, false
}

func dateOf(t time.Time) string { return t.Format(dateLayout) }

// sessionDate is the session's bucket: its explicit date, else its start day.
func sessionDate(ss StudySession, loc *time.Location) string {
	if ss.Date != "" {
		return ss.Date
	}
	return dateOf(ss.StartTime.In(loc))
}

func decodeList(raw string, present bool) ([]json.RawMessage, error) {
	if !present {
		return nil, nil
	}
	return safejson.Decode[[]json.RawMessage](raw)
}
