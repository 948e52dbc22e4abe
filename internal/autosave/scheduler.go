// Package autosave turns a rapid sequence of content mutations into a
// bounded number of durable writes through a single debounced timer.
package autosave

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xxxsen/coscribe/internal/model"
)

// SaveFunc persists one coalesced write. versionType is one of the
// model.Version* tags; it is metadata on the new row, not a different code
// path.
type SaveFunc func(ctx context.Context, content, title, versionType string) error

// Timer abstracts the debounce timer so tests fire it without wall-clock
// delay.
type Timer interface {
	Stop() bool
}

type TimerFactory func(d time.Duration, fn func()) Timer

type wallTimer struct{ *time.Timer }

func defaultTimerFactory(d time.Duration, fn func()) Timer {
	return wallTimer{time.AfterFunc(d, fn)}
}

type pendingWrite struct {
	content string
	title   string
}

// Scheduler holds one cancelable debounce timer. Schedule resets it; only
// the last call before it fires is persisted. Flush must be called on
// artifact close or navigation so the most recent edit is not lost.
type Scheduler struct {
	delay    time.Duration
	save     SaveFunc
	newTimer TimerFactory
	logger   *zap.Logger

	mu          sync.Mutex
	timer       Timer
	pending     *pendingWrite
	lastContent string
	lastTitle   string
	closed      bool
}

type Option func(*Scheduler)

func WithTimerFactory(factory TimerFactory) Option {
	return func(s *Scheduler) { s.newTimer = factory }
}

func NewScheduler(delay time.Duration, save SaveFunc, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if delay <= 0 {
		delay = 1500 * time.Millisecond
	}
	s := &Scheduler{
		delay:    delay,
		save:     save,
		newTimer: defaultTimerFactory,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetBaseline records the latest persisted snapshot so identical content is
// never written again.
func (s *Scheduler) SetBaseline(content, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastContent = content
	s.lastTitle = title
}

// Schedule resets the debounce timer with the given state; the last call
// before the timer fires wins.
func (s *Scheduler) Schedule(content, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = &pendingWrite{content: content, title: title}
	s.stopTimerLocked()
	s.timer = s.newTimer(s.delay, s.fire)
}

func (s *Scheduler) fire() {
	if err := s.flush(context.Background(), model.VersionAutosave); err != nil {
		s.logger.Warn("autosave write failed", zap.Error(err))
	}
}

// Flush cancels the timer and performs the pending write immediately. It is
// a no-op when nothing is pending or when content and title are both
// unchanged relative to the latest persisted snapshot.
func (s *Scheduler) Flush(ctx context.Context) error {
	return s.flush(ctx, model.VersionAutosave)
}

// SaveNow persists the given state immediately as an explicit user save,
// discarding any pending debounce.
func (s *Scheduler) SaveNow(ctx context.Context, content, title string) error {
	s.mu.Lock()
	s.stopTimerLocked()
	s.pending = &pendingWrite{content: content, title: title}
	s.mu.Unlock()
	return s.flush(ctx, model.VersionExplicit)
}

func (s *Scheduler) flush(ctx context.Context, versionType string) error {
	s.mu.Lock()
	s.stopTimerLocked()
	write := s.pending
	s.pending = nil
	if write == nil || (write.content == s.lastContent && write.title == s.lastTitle) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.save(ctx, write.content, write.title, versionType); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastContent = write.content
	s.lastTitle = write.title
	s.mu.Unlock()
	return nil
}

// Close flushes the pending write and stops the scheduler.
func (s *Scheduler) Close(ctx context.Context) error {
	err := s.flush(ctx, model.VersionAutosave)
	s.mu.Lock()
	s.closed = true
	s.stopTimerLocked()
	s.mu.Unlock()
	return err
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
