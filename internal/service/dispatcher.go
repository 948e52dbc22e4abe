package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/coscribe/internal/dockind"
	"github.com/xxxsen/coscribe/internal/model"
	appErr "github.com/xxxsen/coscribe/internal/pkg/errors"
	"github.com/xxxsen/coscribe/internal/protocol"
	"github.com/xxxsen/coscribe/internal/stream"
)

// ToolResult is what the generation process gets back from a tool call.
// It deliberately excludes the document content so large payloads are not
// duplicated into the model's context. A user-level failure (missing
// document, rejected write) travels in Error so the model can react
// conversationally; only configuration and storage faults return a Go
// error.
type ToolResult struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolDispatcher routes create/update tool calls to the handler registered
// for the document kind, broadcasting protocol events before persistence so
// the consumer renders immediately.
type ToolDispatcher struct {
	registry  *dockind.Registry
	documents *DocumentService
	sessions  *SessionManager
}

func NewToolDispatcher(registry *dockind.Registry, documents *DocumentService, sessions *SessionManager) *ToolDispatcher {
	return &ToolDispatcher{registry: registry, documents: documents, sessions: sessions}
}

// CreateDocument assigns a new id, emits kind/id/title/content events in
// that order, runs the kind handler's creation hook, persists and returns a
// compact result. A missing handler is a deployment defect and is raised.
func (d *ToolDispatcher) CreateDocument(ctx context.Context, sink *stream.Sink, ownerID, title, kind, content string) (ToolResult, error) {
	handler, err := d.registry.Get(kind)
	if err != nil {
		return ToolResult{}, err
	}
	id := newID()
	if err := d.emit(ctx, sink,
		protocol.KindEvent(kind),
		protocol.IDEvent(id),
		protocol.TitleEvent(title),
		protocol.ContentEvent(content),
	); err != nil {
		return ToolResult{}, err
	}
	stored, err := handler.OnCreate(ctx, id, title, content)
	if err != nil {
		return ToolResult{}, err
	}
	doc, err := d.documents.Save(ctx, DocumentSaveInput{
		ID:          id,
		OwnerID:     ownerID,
		Title:       title,
		Content:     stored,
		Kind:        kind,
		VersionType: model.VersionAIUpdate,
	})
	if err != nil {
		if appErr.IsOwnerMissing(err) {
			return ToolResult{Error: "Write rejected: unknown owner"}, nil
		}
		return ToolResult{}, err
	}
	return ToolResult{
		ID:      doc.ID,
		Title:   doc.Title,
		Kind:    doc.Kind,
		Message: "A document was created and is now visible to the user.",
	}, nil
}

// UpdateDocument looks up the target, emits title/content events, runs the
// kind handler's update hook, persists a new version and emits updated. A
// missing document is a structured result, never an exception.
func (d *ToolDispatcher) UpdateDocument(ctx context.Context, sink *stream.Sink, ownerID, docID, content string, title *string) (ToolResult, error) {
	doc, err := d.documents.GetLatest(ctx, ownerID, docID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return ToolResult{Error: "Document not found"}, nil
		}
		return ToolResult{}, err
	}
	handler, err := d.registry.Get(doc.Kind)
	if err != nil {
		return ToolResult{}, err
	}
	newTitle := doc.Title
	if title != nil {
		newTitle = *title
	}
	landed := false
	if d.sessions != nil {
		// Flushes any pending human edit before the run overwrites content.
		d.sessions.BeginRun(ctx, doc.ID)
		// A run that errors out below must not leave the session in
		// streaming, or every later edit would be rejected.
		defer func() {
			if !landed {
				d.sessions.EndRun(doc.ID)
			}
		}()
	}
	if err := d.emit(ctx, sink,
		protocol.TitleEvent(newTitle),
		protocol.ContentEvent(content),
	); err != nil {
		return ToolResult{}, err
	}
	stored, err := handler.OnUpdate(ctx, doc, content)
	if err != nil {
		return ToolResult{}, err
	}
	saved, err := d.documents.Save(ctx, DocumentSaveInput{
		ID:          doc.ID,
		OwnerID:     ownerID,
		Title:       newTitle,
		Content:     stored,
		Kind:        doc.Kind,
		VersionType: model.VersionAIUpdate,
	})
	if err != nil {
		if appErr.IsOwnerMissing(err) {
			return ToolResult{Error: "Write rejected: unknown owner"}, nil
		}
		return ToolResult{}, err
	}
	if err := d.emit(ctx, sink, protocol.UpdatedEvent()); err != nil {
		return ToolResult{}, err
	}
	if d.sessions != nil {
		d.sessions.FinishRun(ctx, saved.ID, saved.Title, saved.Content)
	}
	landed = true
	return ToolResult{
		ID:      saved.ID,
		Title:   saved.Title,
		Kind:    saved.Kind,
		Message: "The document has been updated successfully.",
	}, nil
}

func (d *ToolDispatcher) emit(ctx context.Context, sink *stream.Sink, events ...protocol.Event) error {
	if sink == nil {
		return nil
	}
	for _, event := range events {
		if err := sink.Write(ctx, event); err != nil {
			logutil.GetLogger(ctx).Warn("emit tool event failed", zap.String("type", event.Type), zap.Error(err))
			return err
		}
	}
	return nil
}
