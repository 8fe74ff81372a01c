package cmd

import (
	"context"
	"sync"
	"time"

	"github.com/abhisek/studylog/internal/backup"
	"github.com/abhisek/studylog/internal/logger"
	"github.com/abhisek/studylog/internal/study"
)

// autoBackup runs backup.AutoBackup once study data has stopped changing
// for delay. Changes to the active session alone do not count.
type autoBackup struct {
	ctx   context.Context
	svc   *backup.Service
	study *study.Service
	log   *logger.Logger
	delay time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
	wg     sync.WaitGroup
	unsub  func()
}

func newAutoBackup(ctx context.Context, svc *backup.Service, st *study.Service, log *logger.Logger, delay time.Duration) *autoBackup {
	a := &autoBackup{ctx: ctx, svc: svc, study: st, log: log, delay: delay}
	a.unsub = st.Subscribe(a.changed)
	return a
}

func (a *autoBackup) changed(ev study.Event) {
	if ev.Change&^study.ChangeActiveSession == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if a.timer != nil && a.timer.Stop() {
		a.wg.Done()
	}
	a.wg.Add(1)
	a.timer = time.AfterFunc(a.delay, func() {
		defer a.wg.Done()
		a.run()
	})
}

func (a *autoBackup) run() {
	d := a.study.Snapshot()
	if len(d.StudySessions) == 0 {
		return
	}
	res := a.svc.AutoBackup(a.ctx, d, a.study.User())
	switch {
	case res.Error != "":
		a.log.Warn("auto backup failed", "error", res.Error)
	case res.Created:
		a.log.Info("auto backup created", "sessions", len(d.StudySessions))
	default:
		a.log.Debug("auto backup skipped", "reason", res.Skipped)
	}
}

// flush runs a pending backup immediately and waits for any in flight.
// Later changes are ignored.
func (a *autoBackup) flush() {
	a.unsub()
	a.mu.Lock()
	a.closed = true
	t := a.timer
	a.timer = nil
	a.mu.Unlock()

	if t != nil && t.Stop() {
		a.run()
		a.wg.Done()
	}
	a.wg.Wait()
}
