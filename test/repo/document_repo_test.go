package repo_test

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/coscribe/internal/model"
	appErr "github.com/xxxsen/coscribe/internal/pkg/errors"
	"github.com/xxxsen/coscribe/internal/pkg/timeutil"
	"github.com/xxxsen/coscribe/internal/repo"
	"github.com/xxxsen/coscribe/test/testutil"
)

func newTestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func createTestUser(t *testing.T, db *sql.DB) string {
	t.Helper()
	users := repo.NewUserRepo(db)
	id := newTestID()
	now := timeutil.NowUnix()
	require.NoError(t, users.Create(context.Background(), &model.User{
		ID:           id,
		Email:        id + "@example.com",
		PasswordHash: "x",
		Ctime:        now,
		Mtime:        now,
	}))
	return id
}

func snapshot(id, ownerID, content string, ctime int64, versionType string) *model.Document {
	return &model.Document{
		ID:          id,
		Ctime:       ctime,
		Title:       "title",
		Content:     content,
		Kind:        model.KindText,
		OwnerID:     ownerID,
		Mtime:       ctime,
		IsAutosave:  versionType == model.VersionAutosave,
		VersionType: versionType,
	}
}

func TestDocumentRepoAppendOnlyVersioning(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	ownerID := createTestUser(t, db)
	docID := newTestID()
	base := timeutil.NowUnixMilli()

	require.NoError(t, docs.Save(context.Background(), snapshot(docID, ownerID, "v1", base, model.VersionExplicit)))
	require.NoError(t, docs.Save(context.Background(), snapshot(docID, ownerID, "v2", base+1, model.VersionAIUpdate)))

	latest, err := docs.GetLatest(context.Background(), docID)
	require.NoError(t, err)
	require.Equal(t, "v2", latest.Content)
	require.Equal(t, model.VersionAIUpdate, latest.VersionType)

	versions, err := docs.ListVersions(context.Background(), docID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, "v2", versions[0].Content)
	require.Equal(t, "v1", versions[1].Content)
}

func TestDocumentRepoDuplicateSnapshotConflicts(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	ownerID := createTestUser(t, db)
	docID := newTestID()
	now := timeutil.NowUnixMilli()

	require.NoError(t, docs.Save(context.Background(), snapshot(docID, ownerID, "v1", now, model.VersionExplicit)))
	err := docs.Save(context.Background(), snapshot(docID, ownerID, "v1-again", now, model.VersionExplicit))
	require.ErrorIs(t, err, appErr.ErrConflict)
}

func TestDocumentRepoRejectsUnknownOwner(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	err := docs.Save(context.Background(), snapshot(newTestID(), newTestID(), "orphan", timeutil.NowUnixMilli(), model.VersionExplicit))
	require.ErrorIs(t, err, appErr.ErrOwnerMissing)
}

func TestDocumentRepoDeleteRemovesVersionFamily(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	ownerID := createTestUser(t, db)
	docID := newTestID()
	base := timeutil.NowUnixMilli()

	require.NoError(t, docs.Save(context.Background(), snapshot(docID, ownerID, "v1", base, model.VersionExplicit)))
	require.NoError(t, docs.Save(context.Background(), snapshot(docID, ownerID, "v2", base+1, model.VersionExplicit)))

	require.NoError(t, docs.Delete(context.Background(), ownerID, docID))
	_, err := docs.GetLatest(context.Background(), docID)
	require.ErrorIs(t, err, appErr.ErrNotFound)

	require.ErrorIs(t, docs.Delete(context.Background(), ownerID, docID), appErr.ErrNotFound)
}

func TestDocumentRepoDeleteScopedToOwner(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	ownerID := createTestUser(t, db)
	otherID := createTestUser(t, db)
	docID := newTestID()

	require.NoError(t, docs.Save(context.Background(), snapshot(docID, ownerID, "v1", timeutil.NowUnixMilli(), model.VersionExplicit)))
	require.ErrorIs(t, docs.Delete(context.Background(), otherID, docID), appErr.ErrNotFound)
}

func TestDocumentRepoTrimAutosavesKeepsExplicit(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	ownerID := createTestUser(t, db)
	docID := newTestID()
	base := timeutil.NowUnixMilli()

	require.NoError(t, docs.Save(context.Background(), snapshot(docID, ownerID, "explicit", base, model.VersionExplicit)))
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, docs.Save(context.Background(), snapshot(docID, ownerID, "auto", base+i, model.VersionAutosave)))
	}

	require.NoError(t, docs.TrimAutosaves(context.Background(), docID, 2))

	versions, err := docs.ListVersions(context.Background(), docID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	autosaves := 0
	for _, v := range versions {
		if v.IsAutosave {
			autosaves++
		}
	}
	require.Equal(t, 2, autosaves)
	require.Equal(t, "explicit", versions[len(versions)-1].Content)
}

func TestDocumentRepoListByOwnerLatestPerDocument(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := repo.NewDocumentRepo(db)
	ownerID := createTestUser(t, db)
	now := timeutil.NowUnixMilli()

	revised := newTestID()
	for i, content := range []string{"draft", "second", "final"} {
		require.NoError(t, docs.Save(context.Background(), snapshot(revised, ownerID, content, now+int64(i), model.VersionExplicit)))
	}
	single := newTestID()
	require.NoError(t, docs.Save(context.Background(), snapshot(single, ownerID, "only", now+10, model.VersionExplicit)))

	// One entry per document, not one per version; each carries the
	// newest snapshot.
	listed, err := docs.ListByOwner(context.Background(), ownerID, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, single, listed[0].ID)
	require.Equal(t, revised, listed[1].ID)
	require.Equal(t, "final", listed[1].Content)

	// Pagination walks documents.
	listed, err = docs.ListByOwner(context.Background(), ownerID, 1, 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, revised, listed[0].ID)
}
