package handler_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/coscribe/internal/dockind"
	"github.com/xxxsen/coscribe/internal/handler"
	"github.com/xxxsen/coscribe/internal/repo"
	"github.com/xxxsen/coscribe/internal/service"
	"github.com/xxxsen/coscribe/internal/stream"
	"github.com/xxxsen/coscribe/test/testutil"
)

type fixedGenerator struct {
	text string
}

func (g fixedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.text, nil
}

func (g fixedGenerator) StreamGenerate(ctx context.Context, prompt string, emit func(delta string) error) error {
	return emit(g.text)
}

const testJWTSecret = "handler-test-secret"

func newTestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setupRouter(t *testing.T) (http.Handler, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, cleanup := testutil.OpenTestDB(t)
	userRepo := repo.NewUserRepo(db)
	docRepo := repo.NewDocumentRepo(db)
	streamRepo := repo.NewStreamRepo(db)

	authService := service.NewAuthService(userRepo, []byte(testJWTSecret), time.Hour)
	documentService := service.NewDocumentService(docRepo, 200)
	sessionManager := service.NewSessionManager(documentService, time.Hour)
	bridge := stream.NewBridge(service.NewStreamLog(streamRepo), nil)

	registry, err := dockind.NewRegistry(dockind.NewTextHandler(), dockind.NewCodeHandler(), dockind.NewSheetHandler())
	require.NoError(t, err)
	dispatcher := service.NewToolDispatcher(registry, documentService, sessionManager)
	generation := service.NewGenerationService(bridge, streamRepo, fixedGenerator{text: "generated body"}, dispatcher)

	deps := handler.RouterDeps{
		Auth:      handler.NewAuthHandler(authService),
		Documents: handler.NewDocumentHandler(documentService, sessionManager),
		Streams:   handler.NewStreamHandler(generation, bridge),
		JWTSecret: []byte(testJWTSecret),
	}

	engine := gin.New()
	handler.RegisterRoutes(engine.Group("/api/v1"), deps)
	return engine, cleanup
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	var parsed apiResponse
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &parsed))
	}
	return recorder, parsed
}

func registerUser(t *testing.T, router http.Handler) string {
	t.Helper()
	recorder, resp := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":    newTestID() + "@example.com",
		"password": "longenoughpassword",
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}
