package service

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/coscribe/internal/model"
	appErr "github.com/xxxsen/coscribe/internal/pkg/errors"
	"github.com/xxxsen/coscribe/internal/pkg/timeutil"
	"github.com/xxxsen/coscribe/internal/repo"
)

const latestCacheSize = 512

// DocumentService owns versioned document persistence. Every write appends
// a snapshot row; the LRU only caches the latest snapshot per id and is
// refreshed on every write, so readers see the row the last writer
// appended.
type DocumentService struct {
	docs    *repo.DocumentRepo
	latest  *lru.Cache[string, *model.Document]
	maxKeep int
}

func NewDocumentService(docs *repo.DocumentRepo, versionMaxKeep int) *DocumentService {
	cache, _ := lru.New[string, *model.Document](latestCacheSize)
	return &DocumentService{docs: docs, latest: cache, maxKeep: versionMaxKeep}
}

type DocumentSaveInput struct {
	ID          string
	OwnerID     string
	Title       string
	Content     string
	Kind        string
	VersionType string
}

// Save appends one snapshot. A missing ID creates a new document family.
// An unknown owner surfaces as ErrOwnerMissing so the caller can report a
// rejected write instead of silently losing it.
func (s *DocumentService) Save(ctx context.Context, input DocumentSaveInput) (*model.Document, error) {
	if input.ID == "" {
		input.ID = newID()
	}
	if input.Kind == "" {
		input.Kind = model.KindText
	}
	if !model.ValidKind(input.Kind) {
		return nil, appErr.ErrInvalid
	}
	if input.VersionType == "" {
		input.VersionType = model.VersionExplicit
	}
	now := timeutil.NowUnixMilli()
	doc := &model.Document{
		ID:          input.ID,
		Ctime:       now,
		Title:       input.Title,
		Content:     input.Content,
		Kind:        input.Kind,
		OwnerID:     input.OwnerID,
		Mtime:       now,
		IsAutosave:  input.VersionType == model.VersionAutosave,
		VersionType: input.VersionType,
	}
	// Two snapshots of one document can land in the same millisecond; bump
	// ctime past the collision instead of failing the write.
	for attempt := 0; ; attempt++ {
		err := s.docs.Save(ctx, doc)
		if err == nil {
			break
		}
		if !errors.Is(err, appErr.ErrConflict) || attempt >= 3 {
			return nil, err
		}
		doc.Ctime++
		doc.Mtime = doc.Ctime
	}
	s.latest.Add(doc.ID, doc)
	if doc.IsAutosave && s.maxKeep > 0 {
		if err := s.docs.TrimAutosaves(ctx, doc.ID, s.maxKeep); err != nil {
			logutil.GetLogger(ctx).Warn("trim autosave versions failed",
				zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	return doc, nil
}

// GetLatest resolves the current version of a document. Another user's
// document reads as not found rather than revealing that the id exists.
func (s *DocumentService) GetLatest(ctx context.Context, ownerID, docID string) (*model.Document, error) {
	if doc, ok := s.latest.Get(docID); ok {
		if doc.OwnerID != ownerID {
			return nil, appErr.ErrNotFound
		}
		return doc, nil
	}
	doc, err := s.docs.GetLatest(ctx, docID)
	if err != nil {
		return nil, err
	}
	s.latest.Add(docID, doc)
	if doc.OwnerID != ownerID {
		return nil, appErr.ErrNotFound
	}
	return doc, nil
}

// ListVersions returns the full history of an owned document, newest
// first. Like GetLatest, a foreign document reads as not found.
func (s *DocumentService) ListVersions(ctx context.Context, ownerID, docID string) ([]model.Document, error) {
	docs, err := s.docs.ListVersions(ctx, docID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 || docs[0].OwnerID != ownerID {
		return nil, appErr.ErrNotFound
	}
	return docs, nil
}

func (s *DocumentService) ListByOwner(ctx context.Context, ownerID string, limit, offset uint) ([]model.Document, error) {
	return s.docs.ListByOwner(ctx, ownerID, limit, offset)
}

func (s *DocumentService) Delete(ctx context.Context, ownerID, docID string) error {
	if err := s.docs.Delete(ctx, ownerID, docID); err != nil {
		return err
	}
	s.latest.Remove(docID)
	return nil
}
