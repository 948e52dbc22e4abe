package service

import (
	"context"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/coscribe/internal/artifact"
	"github.com/xxxsen/coscribe/internal/autosave"
	appErr "github.com/xxxsen/coscribe/internal/pkg/errors"
	"github.com/xxxsen/coscribe/internal/protocol"
)

// Session is one open artifact: the state machine the viewer sees plus the
// autosave scheduler that coalesces their edits. Sessions are transient;
// only document rows are durable.
type Session struct {
	DocumentID string
	OwnerID    string
	Machine    *artifact.Machine
	Sched      *autosave.Scheduler
}

// SessionManager tracks the single active session per document. Opening a
// document that is already open returns the existing session.
type SessionManager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	documents *DocumentService
	debounce  time.Duration
}

func NewSessionManager(documents *DocumentService, debounce time.Duration) *SessionManager {
	return &SessionManager{
		sessions:  make(map[string]*Session),
		documents: documents,
		debounce:  debounce,
	}
}

// Open loads the latest snapshot and builds the session around it.
func (m *SessionManager) Open(ctx context.Context, ownerID, docID string) (*Session, error) {
	m.mu.Lock()
	if session, ok := m.sessions[docID]; ok {
		m.mu.Unlock()
		if session.OwnerID != ownerID {
			return nil, appErr.ErrNotFound
		}
		return session, nil
	}
	m.mu.Unlock()

	doc, err := m.documents.GetLatest(ctx, ownerID, docID)
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", docID))
	sched := autosave.NewScheduler(m.debounce, func(ctx context.Context, content, title, versionType string) error {
		_, err := m.documents.Save(ctx, DocumentSaveInput{
			ID:          docID,
			OwnerID:     ownerID,
			Title:       title,
			Content:     content,
			Kind:        doc.Kind,
			VersionType: versionType,
		})
		return err
	}, logger)
	sched.SetBaseline(doc.Content, doc.Title)
	machine := artifact.NewMachine(sched, logger, artifact.WithInitialState(artifact.State{
		DocumentID: docID,
		Kind:       doc.Kind,
		Title:      doc.Title,
		Content:    doc.Content,
		Status:     artifact.StatusIdle,
		Visible:    true,
	}))
	session := &Session{DocumentID: docID, OwnerID: ownerID, Machine: machine, Sched: sched}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[docID]; ok {
		return existing, nil
	}
	m.sessions[docID] = session
	return session, nil
}

func (m *SessionManager) get(ownerID, docID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[docID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	if session.OwnerID != ownerID {
		// Same masking as the document reads: foreign ids do not exist.
		return nil, appErr.ErrNotFound
	}
	return session, nil
}

// EditContent accepts a local human edit into the open session. Rejected
// while a generation is streaming into the document.
func (m *SessionManager) EditContent(ctx context.Context, ownerID, docID, content string) error {
	session, err := m.Open(ctx, ownerID, docID)
	if err != nil {
		return err
	}
	return session.Machine.EditContent(content)
}

func (m *SessionManager) EditTitle(ctx context.Context, ownerID, docID, title string) error {
	session, err := m.Open(ctx, ownerID, docID)
	if err != nil {
		return err
	}
	return session.Machine.EditTitle(title)
}

// SaveNow persists the session state immediately as an explicit save.
func (m *SessionManager) SaveNow(ctx context.Context, ownerID, docID string) error {
	session, err := m.get(ownerID, docID)
	if err != nil {
		return err
	}
	state := session.Machine.Snapshot()
	return session.Sched.SaveNow(ctx, state.Content, state.Title)
}

// Close flushes the pending autosave and drops the session.
func (m *SessionManager) Close(ctx context.Context, ownerID, docID string) error {
	session, err := m.get(ownerID, docID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil
		}
		return err
	}
	m.mu.Lock()
	delete(m.sessions, docID)
	m.mu.Unlock()
	if err := session.Machine.Close(ctx); err != nil {
		return err
	}
	return session.Sched.Close(ctx)
}

// BeginRun moves an open session into streaming before an AI update
// touches the document, flushing any pending human edit first. A document
// with no open session is a no-op.
func (m *SessionManager) BeginRun(ctx context.Context, docID string) {
	m.mu.Lock()
	session, ok := m.sessions[docID]
	m.mu.Unlock()
	if !ok {
		return
	}
	session.Machine.Apply(ctx, protocol.IDEvent(docID))
}

// EndRun returns an open session to idle after a run that did not land a
// new version. The session content is untouched; edits flow again.
func (m *SessionManager) EndRun(docID string) {
	m.mu.Lock()
	session, ok := m.sessions[docID]
	m.mu.Unlock()
	if !ok {
		return
	}
	session.Machine.Finish()
}

// FinishRun lands the session after an AI update: new title/content, the
// updated flash, then the baseline so autosave does not re-write what the
// run just persisted.
func (m *SessionManager) FinishRun(ctx context.Context, docID, title, content string) {
	m.mu.Lock()
	session, ok := m.sessions[docID]
	m.mu.Unlock()
	if !ok {
		return
	}
	session.Sched.SetBaseline(content, title)
	session.Machine.Apply(ctx, protocol.TitleEvent(title))
	session.Machine.Apply(ctx, protocol.ContentEvent(content))
	session.Machine.Apply(ctx, protocol.FinishEvent())
	session.Machine.Apply(ctx, protocol.UpdatedEvent())
}

// Snapshot returns the live artifact state for an open session.
func (m *SessionManager) Snapshot(ownerID, docID string) (artifact.State, error) {
	session, err := m.get(ownerID, docID)
	if err != nil {
		return artifact.State{}, err
	}
	return session.Machine.Snapshot(), nil
}
