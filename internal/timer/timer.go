// Package timer keeps a study timer running in the background and persists
// its state so that it survives restarts. A pomodoro timer owns at most one
// ticker goroutine, which rewrites the state every tick and marks the timer
// completed when it runs out.
package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abhisek/studylog/internal/logger"
	"github.com/abhisek/studylog/internal/safejson"
	"github.com/abhisek/studylog/internal/store"
)

var ErrNoTimer = errors.New("timer: no timer state")

type Option func(*Timer)

func WithClock(now func() time.Time) Option { return func(t *Timer) { t.now = now } }

func WithLogger(l *logger.Logger) Option { return func(t *Timer) { t.log = l } }

// WithTickInterval sets the ticker period. The default is one second.
func WithTickInterval(d time.Duration) Option { return func(t *Timer) { t.interval = d } }

// WithCompletionHandler registers fn to run, outside any lock, when a
// pomodoro timer runs out.
func WithCompletionHandler(fn func(State)) Option { return func(t *Timer) { t.onComplete = fn } }

type Timer struct {
	kv         store.KV
	log        *logger.Logger
	now        func() time.Time
	interval   time.Duration
	onComplete func(State)

	// ops serializes the public operations so that ticker handover is
	// never interleaved.
	ops sync.Mutex

	mu     sync.Mutex
	state  *State
	cancel context.CancelFunc
	done   chan struct{}
}

func New(kv store.KV, opts ...Option) *Timer {
	t := &Timer{
		kv:       kv,
		log:      logger.Nop(),
		now:      time.Now,
		interval: time.Second,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start persists st as a running timer and, in pomodoro mode, starts the
// ticker. Any previous ticker is stopped first. A zero StartTime means now.
func (t *Timer) Start(ctx context.Context, st State) error {
	t.ops.Lock()
	defer t.ops.Unlock()
	t.stopTicker()

	if st.Mode == "" {
		st.Mode = Pomodoro
	}
	if st.SessionType == "" {
		st.SessionType = Work
	}
	if st.StartTime == 0 {
		st.StartTime = t.now().UnixMilli()
	}
	st.IsRunning = true
	st.Completed = false
	st.CompletionTime = 0
	st.LastPauseTime = 0

	t.mu.Lock()
	err := t.saveLocked(ctx, st)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	t.log.Info("timer started", "mode", string(st.Mode), "session_type", string(st.SessionType), "total_s", st.TotalTime)
	if st.Mode == Pomodoro {
		t.startTicker(ctx)
	}
	return nil
}

// Pause stops the ticker and records the pause start. Pausing a paused
// timer does nothing.
func (t *Timer) Pause(ctx context.Context) error {
	t.ops.Lock()
	defer t.ops.Unlock()
	t.stopTicker()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == nil {
		return ErrNoTimer
	}
	if !t.state.IsRunning {
		return nil
	}
	st := *t.state
	st.IsRunning = false
	st.LastPauseTime = t.now().UnixMilli()
	return t.saveLocked(ctx, st)
}

// Resume folds the open pause into PausedTime and restarts the ticker.
func (t *Timer) Resume(ctx context.Context) error {
	t.ops.Lock()
	defer t.ops.Unlock()

	t.mu.Lock()
	if t.state == nil {
		t.mu.Unlock()
		return ErrNoTimer
	}
	if t.state.IsRunning || t.state.Completed {
		t.mu.Unlock()
		return nil
	}
	st := *t.state
	now := t.now().UnixMilli()
	if st.LastPauseTime > 0 {
		st.PausedTime += max(0, now-st.LastPauseTime)
	}
	st.LastPauseTime = 0
	st.IsRunning = true
	err := t.saveLocked(ctx, st)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	if st.Mode == Pomodoro {
		t.startTicker(ctx)
	}
	return nil
}

// Stop cancels the ticker and clears the persisted state.
func (t *Timer) Stop(ctx context.Context) error {
	t.ops.Lock()
	defer t.ops.Unlock()
	t.stopTicker()

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clearLocked(ctx)
}

// Close stops the ticker and waits for it to exit. State stays persisted.
func (t *Timer) Close() {
	t.ops.Lock()
	defer t.ops.Unlock()
	t.stopTicker()
}

// IsActive reports whether a timer is currently running.
func (t *Timer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state != nil && t.state.IsRunning
}

// Progress reloads the persisted state and reads it at the current time.
func (t *Timer) Progress(ctx context.Context) (Progress, error) {
	st, err := t.LoadState(ctx)
	if err != nil {
		return Progress{}, err
	}
	if st == nil {
		return Progress{}, ErrNoTimer
	}
	return progressAt(*st, t.now()), nil
}

// LoadState reads the persisted state. Corrupted or structurally invalid
// state is removed and reads as nil.
func (t *Timer) LoadState(ctx context.Context) (*State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, ok, err := t.kv.Get(ctx, StateKey)
	if err != nil {
		t.log.Error("timer state read failed", "error", err)
		if cerr := t.clearLocked(ctx); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, nil
	}
	if !ok {
		t.state = nil
		return nil, nil
	}
	st, valid := decodeState(raw, true)
	if !valid {
		t.log.Warn("corrupted timer state", "preview", safejson.Preview(raw))
		return nil, t.clearLocked(ctx)
	}
	t.state = &st
	out := st
	return &out, nil
}

func decodeState(raw string, requireStart bool) (State, bool) {
	if corrupt(raw) {
		return State{}, false
	}
	m, err := safejson.Decode[map[string]any](raw)
	if err != nil || !wellFormed(m, requireStart) {
		return State{}, false
	}
	st, err := safejson.Decode[State](raw)
	if err != nil {
		return State{}, false
	}
	return st, true
}

// ClearCorruptedTimerData removes a stored timer state that is corrupted or
// lacks the required fields. A read failure also removes it.
func ClearCorruptedTimerData(ctx context.Context, kv store.KV, log *logger.Logger) error {
	raw, ok, err := kv.Get(ctx, StateKey)
	if err == nil && !ok {
		return nil
	}
	if err == nil {
		if _, valid := decodeState(raw, false); valid {
			return nil
		}
		log.Warn("clearing corrupted timer state", "preview", safejson.Preview(raw))
	} else {
		log.Error("timer state read failed, clearing", "error", err)
	}
	if err := kv.Remove(ctx, StateKey); err != nil {
		return fmt.Errorf("clear timer state: %w", err)
	}
	return nil
}

func (t *Timer) saveLocked(ctx context.Context, st State) error {
	st.LastSaveTime = t.now().UnixMilli()
	raw, err := safejson.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode timer state: %w", err)
	}
	if err := t.kv.Set(ctx, StateKey, raw); err != nil {
		t.log.Error("timer state save failed, clearing", "error", err)
		if cerr := t.clearLocked(ctx); cerr != nil {
			t.log.Error("timer state clear failed", "error", cerr)
		}
		return fmt.Errorf("save timer state: %w", err)
	}
	t.state = &st
	return nil
}

func (t *Timer) clearLocked(ctx context.Context) error {
	t.state = nil
	if err := t.kv.Remove(ctx, StateKey); err != nil {
		return fmt.Errorf("clear timer state: %w", err)
	}
	return nil
}

func (t *Timer) startTicker(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	done := make(chan struct{})
	t.mu.Lock()
	t.cancel, t.done = cancel, done
	t.mu.Unlock()
	go t.run(ctx, done)
}

// stopTicker cancels the live ticker, if any, and waits for it to exit.
// It must not be called from the ticker goroutine.
func (t *Timer) stopTicker() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Timer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	tk := time.NewTicker(t.interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if t.tick(ctx, done) {
				return
			}
		}
	}
}

// tick persists the running state and reports whether the ticker should exit.
func (t *Timer) tick(ctx context.Context, done chan struct{}) bool {
	t.mu.Lock()
	if ctx.Err() != nil || t.state == nil || !t.state.IsRunning {
		t.mu.Unlock()
		return true
	}
	now := t.now()
	st := *t.state
	if err := t.saveLocked(ctx, st); err != nil {
		t.mu.Unlock()
		return true
	}
	if st.Remaining(now) > 0 {
		t.mu.Unlock()
		return false
	}

	st.IsRunning = false
	st.Completed = true
	st.CompletionTime = now.UnixMilli()
	if err := t.saveLocked(ctx, st); err != nil {
		t.log.Error("timer completion save failed", "error", err)
	}
	if t.done == done {
		t.cancel()
		t.cancel, t.done = nil, nil
	}
	t.mu.Unlock()

	t.log.Info("timer completed", "session_type", string(st.SessionType), "subject_id", st.SubjectID)
	if t.onComplete != nil {
		t.onComplete(st)
	}
	return true
}
