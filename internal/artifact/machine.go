// Package artifact holds the consumer-side state machine that folds
// protocol events and local user edits into the single artifact state a
// viewer sees. The state itself is transient; only document snapshots are
// durable.
package artifact

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xxxsen/coscribe/internal/protocol"
)

type Status string

const (
	StatusInit      Status = "init"
	StatusStreaming Status = "streaming"
	StatusIdle      Status = "idle"
	StatusUpdated   Status = "updated"
)

// ErrStreamingEdit rejects a local edit while generated content is
// streaming in. Interleaving human keystrokes with generator output is
// deliberately unsupported.
var ErrStreamingEdit = errors.New("document is streaming, edit rejected")

// Scheduler is the autosave surface the machine drives. Flush must persist
// (or no-op) any pending write before returning.
type Scheduler interface {
	Schedule(content, title string)
	Flush(ctx context.Context) error
}

// Timer abstracts the updated->idle revert timer so tests control it.
type Timer interface {
	Stop() bool
}

type TimerFactory func(d time.Duration, fn func()) Timer

type wallTimer struct{ *time.Timer }

func defaultTimerFactory(d time.Duration, fn func()) Timer {
	return wallTimer{time.AfterFunc(d, fn)}
}

// State is what the viewer currently sees.
type State struct {
	DocumentID  string
	Kind        string
	Title       string
	Content     string
	Status      Status
	Visible     bool
	Suggestions []protocol.Suggestion
}

// Machine applies events strictly in arrival order. All mutation happens
// under one mutex, so callers on the feed goroutine and the edit path never
// interleave mid-transition.
type Machine struct {
	logger        *zap.Logger
	sched         Scheduler
	newTimer      TimerFactory
	updatedWindow time.Duration

	mu          sync.Mutex
	state       State
	revertTimer Timer
}

type Option func(*Machine)

// WithTimerFactory replaces the wall-clock revert timer, used by tests.
func WithTimerFactory(factory TimerFactory) Option {
	return func(m *Machine) { m.newTimer = factory }
}

func WithUpdatedWindow(d time.Duration) Option {
	return func(m *Machine) { m.updatedWindow = d }
}

// WithInitialState seeds the machine from an existing document so that an
// edit to one field does not wipe the others on the next save.
func WithInitialState(state State) Option {
	return func(m *Machine) { m.state = state }
}

func NewMachine(sched Scheduler, logger *zap.Logger, opts ...Option) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		logger:        logger,
		sched:         sched,
		newTimer:      defaultTimerFactory,
		updatedWindow: 2 * time.Second,
		state:         State{Status: StatusInit},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.state
	state.Suggestions = append([]protocol.Suggestion(nil), m.state.Suggestions...)
	return state
}

// Apply folds one protocol event into the state. Protocol violations are
// logged and ignored; they never abort the stream.
func (m *Machine) Apply(ctx context.Context, event protocol.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch event.Type {
	case protocol.EventKind:
		kind, err := event.Text()
		if err != nil {
			m.dropEvent(event, err)
			return
		}
		m.state.Kind = kind
		m.enterStreaming(ctx)
	case protocol.EventID:
		id, err := event.Text()
		if err != nil {
			m.dropEvent(event, err)
			return
		}
		m.state.DocumentID = id
		m.enterStreaming(ctx)
	case protocol.EventTitle:
		title, err := event.Text()
		if err != nil {
			m.dropEvent(event, err)
			return
		}
		m.state.Title = title
	case protocol.EventContent:
		if m.state.DocumentID == "" {
			m.logger.Warn("content event before document id assigned, ignoring")
			return
		}
		content, err := event.Text()
		if err != nil {
			m.dropEvent(event, err)
			return
		}
		// Whole-value replacement by contract, never a patch.
		m.state.Content = content
	case protocol.EventSuggestion:
		suggestion, err := event.AsSuggestion()
		if err != nil {
			m.dropEvent(event, err)
			return
		}
		m.state.Suggestions = append(m.state.Suggestions, suggestion)
	case protocol.EventFinish:
		m.finishLocked()
	case protocol.EventUpdated:
		m.state.Status = StatusUpdated
		m.armRevertTimer()
	case protocol.EventTextDelta:
		// Conversational prose outside the artifact; nothing to fold.
	default:
		m.logger.Warn("unknown event type reached reducer, ignoring", zap.String("type", event.Type))
	}
}

func (m *Machine) dropEvent(event protocol.Event, err error) {
	m.logger.Warn("dropping malformed event payload", zap.String("type", event.Type), zap.Error(err))
}

// enterStreaming flushes any pending local edit before generated content is
// allowed to overwrite it. Unsaved human work is never silently discarded.
func (m *Machine) enterStreaming(ctx context.Context) {
	if m.state.Status == StatusStreaming {
		return
	}
	m.stopRevertTimer()
	if m.sched != nil {
		if err := m.sched.Flush(ctx); err != nil {
			m.logger.Warn("autosave flush before stream failed", zap.Error(err))
		}
	}
	m.state.Status = StatusStreaming
	m.state.Visible = true
	m.state.Suggestions = nil
}

// Finish marks the end of a run. It covers both the explicit finish event
// and the transport-closed fallback, so a generator that dies mid-run still
// lands the machine in idle.
func (m *Machine) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishLocked()
}

func (m *Machine) finishLocked() {
	if m.state.Status == StatusStreaming {
		m.state.Status = StatusIdle
	}
}

// EditContent accepts a local human edit when no stream is active and
// schedules it for autosave.
func (m *Machine) EditContent(content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status == StatusStreaming {
		return ErrStreamingEdit
	}
	m.state.Content = content
	if m.sched != nil {
		m.sched.Schedule(m.state.Content, m.state.Title)
	}
	return nil
}

func (m *Machine) EditTitle(title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status == StatusStreaming {
		return ErrStreamingEdit
	}
	m.state.Title = title
	if m.sched != nil {
		m.sched.Schedule(m.state.Content, m.state.Title)
	}
	return nil
}

// Close flushes any pending autosave and stops timers. Called when the
// artifact is closed or the viewer navigates away.
func (m *Machine) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopRevertTimer()
	if m.sched == nil {
		return nil
	}
	return m.sched.Flush(ctx)
}

func (m *Machine) armRevertTimer() {
	m.stopRevertTimer()
	m.revertTimer = m.newTimer(m.updatedWindow, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state.Status == StatusUpdated {
			m.state.Status = StatusIdle
		}
	})
}

func (m *Machine) stopRevertTimer() {
	if m.revertTimer != nil {
		m.revertTimer.Stop()
		m.revertTimer = nil
	}
}
