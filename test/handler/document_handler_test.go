package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type documentPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Kind        string `json:"kind"`
	VersionType string `json:"version_type"`
}

func createDocument(t *testing.T, router http.Handler, token, title, content string) documentPayload {
	t.Helper()
	recorder, resp := doJSON(t, router, http.MethodPost, "/api/v1/documents", token, gin.H{
		"title":   title,
		"content": content,
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	var doc documentPayload
	require.NoError(t, json.Unmarshal(resp.Data, &doc))
	require.NotEmpty(t, doc.ID)
	return doc
}

func TestDocumentSaveAndVersions(t *testing.T) {
	router, cleanup := setupRouter(t)
	defer cleanup()
	token := registerUser(t, router)

	doc := createDocument(t, router, token, "Essay", "Hello")

	recorder, resp := doJSON(t, router, http.MethodPost, "/api/v1/documents", token, gin.H{
		"id":      doc.ID,
		"title":   "Essay",
		"content": "Hello world",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder, resp = doJSON(t, router, http.MethodGet, "/api/v1/documents/"+doc.ID, token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var latest documentPayload
	require.NoError(t, json.Unmarshal(resp.Data, &latest))
	require.Equal(t, "Hello world", latest.Content)

	recorder, resp = doJSON(t, router, http.MethodGet, "/api/v1/documents/"+doc.ID+"/versions", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var versions []documentPayload
	require.NoError(t, json.Unmarshal(resp.Data, &versions))
	require.Len(t, versions, 2)
	require.Equal(t, "Hello world", versions[0].Content)
	require.Equal(t, "Hello", versions[1].Content)
}

func TestDocumentSaveRequiresTitle(t *testing.T) {
	router, cleanup := setupRouter(t)
	defer cleanup()
	token := registerUser(t, router)

	recorder, _ := doJSON(t, router, http.MethodPost, "/api/v1/documents", token, gin.H{
		"content": "no title",
	})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestDocumentListScopedToOwner(t *testing.T) {
	router, cleanup := setupRouter(t)
	defer cleanup()
	owner := registerUser(t, router)
	other := registerUser(t, router)

	createDocument(t, router, owner, "Mine", "content")

	_, resp := doJSON(t, router, http.MethodGet, "/api/v1/documents", owner, nil)
	var mine []documentPayload
	require.NoError(t, json.Unmarshal(resp.Data, &mine))
	require.Len(t, mine, 1)

	_, resp = doJSON(t, router, http.MethodGet, "/api/v1/documents", other, nil)
	var theirs []documentPayload
	require.NoError(t, json.Unmarshal(resp.Data, &theirs))
	require.Empty(t, theirs)
}

func TestDocumentDelete(t *testing.T) {
	router, cleanup := setupRouter(t)
	defer cleanup()
	token := registerUser(t, router)

	doc := createDocument(t, router, token, "Doomed", "x")
	recorder, _ := doJSON(t, router, http.MethodDelete, "/api/v1/documents/"+doc.ID, token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder, _ = doJSON(t, router, http.MethodGet, "/api/v1/documents/"+doc.ID+"/versions", token, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)

	recorder, _ = doJSON(t, router, http.MethodDelete, "/api/v1/documents/"+doc.ID, token, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestDocumentEditSessionFlow(t *testing.T) {
	router, cleanup := setupRouter(t)
	defer cleanup()
	token := registerUser(t, router)

	doc := createDocument(t, router, token, "Essay", "Hello")

	recorder, resp := doJSON(t, router, http.MethodPut, "/api/v1/documents/"+doc.ID+"/edit", token, gin.H{
		"content": "Hello edited",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	var state struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &state))
	require.Equal(t, "idle", state.Status)

	recorder, _ = doJSON(t, router, http.MethodPost, "/api/v1/documents/"+doc.ID+"/save", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	_, resp = doJSON(t, router, http.MethodGet, "/api/v1/documents/"+doc.ID, token, nil)
	var latest documentPayload
	require.NoError(t, json.Unmarshal(resp.Data, &latest))
	require.Equal(t, "Hello edited", latest.Content)
	require.Equal(t, "explicit", latest.VersionType)

	recorder, _ = doJSON(t, router, http.MethodDelete, "/api/v1/documents/"+doc.ID+"/session", token, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestDocumentHiddenFromOtherUser(t *testing.T) {
	router, cleanup := setupRouter(t)
	defer cleanup()
	owner := registerUser(t, router)
	other := registerUser(t, router)

	doc := createDocument(t, router, owner, "Essay", "Hello")

	// Reads and edits with someone else's token all 404; the id must not
	// even confirm the document exists.
	recorder, _ := doJSON(t, router, http.MethodGet, "/api/v1/documents/"+doc.ID, other, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	recorder, _ = doJSON(t, router, http.MethodGet, "/api/v1/documents/"+doc.ID+"/versions", other, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	recorder, _ = doJSON(t, router, http.MethodPut, "/api/v1/documents/"+doc.ID+"/edit", other, gin.H{
		"content": "hijack",
	})
	require.Equal(t, http.StatusNotFound, recorder.Code)

	recorder, _ = doJSON(t, router, http.MethodGet, "/api/v1/documents/"+doc.ID, owner, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
}
