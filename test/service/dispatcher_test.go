package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/coscribe/internal/dockind"
	"github.com/xxxsen/coscribe/internal/model"
	"github.com/xxxsen/coscribe/internal/protocol"
	"github.com/xxxsen/coscribe/internal/repo"
	"github.com/xxxsen/coscribe/internal/service"
	"github.com/xxxsen/coscribe/internal/stream"
	"github.com/xxxsen/coscribe/test/testutil"
)

func newDispatcher(t *testing.T, docs *service.DocumentService) *service.ToolDispatcher {
	t.Helper()
	registry, err := dockind.NewRegistry(dockind.NewTextHandler(), dockind.NewCodeHandler(), dockind.NewSheetHandler())
	require.NoError(t, err)
	return service.NewToolDispatcher(registry, docs, nil)
}

func TestDispatcherCreateThenUpdate(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := service.NewDocumentService(repo.NewDocumentRepo(db), 200)
	dispatcher := newDispatcher(t, docs)
	ownerID := createTestUser(t, db)

	bridge := stream.NewBridge(nil, nil)
	sink, err := bridge.Open(context.Background(), "run-1")
	require.NoError(t, err)
	feed, err := bridge.Attach(context.Background(), "run-1")
	require.NoError(t, err)

	result, err := dispatcher.CreateDocument(context.Background(), sink, ownerID, "Essay", model.KindText, "Hello")
	require.NoError(t, err)
	require.Empty(t, result.Error)
	require.NotEmpty(t, result.ID)
	require.Equal(t, model.KindText, result.Kind)

	result, err = dispatcher.UpdateDocument(context.Background(), sink, ownerID, result.ID, "Hello world", nil)
	require.NoError(t, err)
	require.Empty(t, result.Error)
	require.NoError(t, sink.Close())

	// Kind and id precede content; the update run ends with data-updated.
	var types []string
	for {
		event, recvErr := feed.Recv(context.Background())
		if recvErr != nil {
			break
		}
		types = append(types, event.Type)
	}
	require.Equal(t, []string{
		protocol.EventKind, protocol.EventID, protocol.EventTitle, protocol.EventContent,
		protocol.EventTitle, protocol.EventContent, protocol.EventUpdated,
	}, types)

	latest, err := docs.GetLatest(context.Background(), ownerID, result.ID)
	require.NoError(t, err)
	require.Equal(t, "Hello world\n", latest.Content)
	require.Equal(t, model.VersionAIUpdate, latest.VersionType)

	versions, err := docs.ListVersions(context.Background(), ownerID, result.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
}

func TestDispatcherUpdateMissingDocument(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := service.NewDocumentService(repo.NewDocumentRepo(db), 200)
	dispatcher := newDispatcher(t, docs)
	ownerID := createTestUser(t, db)

	result, err := dispatcher.UpdateDocument(context.Background(), nil, ownerID, newTestID(), "content", nil)
	require.NoError(t, err)
	require.Equal(t, "Document not found", result.Error)
}

func TestDispatcherCreateUnknownOwnerIsStructured(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := service.NewDocumentService(repo.NewDocumentRepo(db), 200)
	dispatcher := newDispatcher(t, docs)

	result, err := dispatcher.CreateDocument(context.Background(), nil, newTestID(), "Essay", model.KindText, "Hello")
	require.NoError(t, err)
	require.Equal(t, "Write rejected: unknown owner", result.Error)
	require.Empty(t, result.ID)
}

func TestDispatcherCreateUnknownKindIsFatal(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := service.NewDocumentService(repo.NewDocumentRepo(db), 200)
	dispatcher := newDispatcher(t, docs)

	_, err := dispatcher.CreateDocument(context.Background(), nil, createTestUser(t, db), "Essay", "video", "x")
	require.Error(t, err)
}

func TestDispatcherUpdateForeignDocumentIsStructured(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := service.NewDocumentService(repo.NewDocumentRepo(db), 200)
	dispatcher := newDispatcher(t, docs)
	ownerID := createTestUser(t, db)
	otherID := createTestUser(t, db)

	created, err := docs.Save(context.Background(), service.DocumentSaveInput{
		OwnerID: ownerID,
		Title:   "Essay",
		Content: "Hello",
	})
	require.NoError(t, err)

	// A run started by another user cannot write into this document.
	result, err := dispatcher.UpdateDocument(context.Background(), nil, otherID, created.ID, "hijacked", nil)
	require.NoError(t, err)
	require.Equal(t, "Document not found", result.Error)

	versions, err := docs.ListVersions(context.Background(), ownerID, created.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
}

func TestDispatcherUpdateFailureReleasesSession(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	docs := service.NewDocumentService(repo.NewDocumentRepo(db), 200)
	sessions := service.NewSessionManager(docs, time.Hour)
	registry, err := dockind.NewRegistry(dockind.NewSheetHandler())
	require.NoError(t, err)
	dispatcher := service.NewToolDispatcher(registry, docs, sessions)
	ownerID := createTestUser(t, db)

	created, err := docs.Save(context.Background(), service.DocumentSaveInput{
		OwnerID: ownerID,
		Title:   "Budget",
		Content: "a,b\n",
		Kind:    model.KindSheet,
	})
	require.NoError(t, err)
	_, err = sessions.Open(context.Background(), ownerID, created.ID)
	require.NoError(t, err)

	// Malformed CSV fails the update mid-run; the session must come back
	// to accepting edits instead of rejecting them forever.
	_, err = dispatcher.UpdateDocument(context.Background(), nil, ownerID, created.ID, "a,\"unterminated\n", nil)
	require.Error(t, err)

	require.NoError(t, sessions.EditContent(context.Background(), ownerID, created.ID, "a,b\nc,d\n"))
	state, err := sessions.Snapshot(ownerID, created.ID)
	require.NoError(t, err)
	require.Equal(t, "a,b\nc,d\n", state.Content)
}
