package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storyreel/api/internal/auth"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/credential"
	"github.com/storyreel/api/internal/handler"
	"github.com/storyreel/api/internal/middleware"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/playback"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/internal/store"
	"github.com/storyreel/api/internal/worker"
)

const (
	testJWTSecret = "test-secret-for-handlers"
	testUserID    = "test-user-123"
)

// inlineEnqueuer runs queued tasks on the caller's goroutine.
type inlineEnqueuer struct {
	mux *asynq.ServeMux
}

func (e *inlineEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if err := e.mux.ProcessTask(context.Background(), task); err != nil {
		return nil, err
	}
	return &asynq.TaskInfo{ID: uuid.New().String(), Type: task.Type(), Queue: service.QueueRender}, nil
}

// scriptedStoryboards plans storyboards locally unless err is set.
type scriptedStoryboards struct {
	err error
}

func (s *scriptedStoryboards) Generate(_ context.Context, _ string, text string, total int, style string) (*model.Storyboard, error) {
	if s.err != nil {
		return nil, s.err
	}
	return service.PlanStoryboard(text, total, style)
}

// testApp holds all components needed for testing
type testApp struct {
	app         *fiber.App
	registry    *store.Registry
	credentials *credential.MemorySelector
	storyboards *scriptedStoryboards
	storage     *client.MemoryStorage
}

// setupApp wires the app like main.go with in-memory backends and a mock
// render boundary. Render tasks run synchronously inside the request.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	logger := zap.NewNop()
	validate := validator.New()

	registry := store.NewRegistry()
	credentials := credential.NewMemorySelector("server-key")
	storage := client.NewMemoryStorage("http://localhost:8000")
	storyboards := &scriptedStoryboards{}

	veoCfg := &config.VeoConfig{
		FastModel:    "veo-fast",
		ProModel:     "veo-pro",
		PollInterval: time.Millisecond,
		MaxWait:      time.Minute,
	}
	renderer := service.NewSceneRenderer(client.NewMockVeoClient(1), storage, veoCfg, nil, nil, logger)
	orchestrator := service.NewOrchestrator(renderer, credentials, nil, nil, logger)

	mux := asynq.NewServeMux()
	worker.NewRenderWorker(orchestrator, registry, logger).Register(mux)

	studio := service.NewStudioService(registry, storyboards, credentials, &inlineEnqueuer{mux: mux}, playback.StubMerger{}, 0, 0, logger)

	authenticator := auth.NewAuthenticator(nil, testJWTSecret)
	authMiddleware := middleware.NewAuthMiddleware(authenticator)
	authHandler := handler.NewAuthHandler(authenticator)
	studioHandler := handler.NewStudioHandler(studio, validate)
	credentialHandler := handler.NewCredentialHandler(studio, validate)
	clipsHandler := handler.NewClipsHandler(storage)

	app := fiber.New()
	app.Get("/auth/verify", authHandler.Verify)
	app.Get("/clips/*", clipsHandler.Get)

	api := app.Group("/api", authMiddleware.Authenticate())
	api.Get("/options", studioHandler.Options)
	api.Get("/studio", studioHandler.Studio)

	api.Get("/credentials", credentialHandler.Status)
	api.Post("/credentials", credentialHandler.Select)
	api.Delete("/credentials", credentialHandler.Drop)

	api.Post("/projects", studioHandler.CreateProject)
	projects := api.Group("/projects")
	projects.Get("/history", studioHandler.History)
	projects.Get("/current", studioHandler.Current)
	projects.Delete("/current", studioHandler.Reset)
	projects.Patch("/current/scenes/:sceneId", studioHandler.UpdateScene)
	projects.Post("/current/scenes/:sceneId/regenerate", studioHandler.Regenerate)
	projects.Post("/current/render", studioHandler.Render)
	projects.Get("/current/playlist", studioHandler.Playlist)
	projects.Post("/current/merge", studioHandler.Merge)

	return &testApp{
		app:         app,
		registry:    registry,
		credentials: credentials,
		storyboards: storyboards,
		storage:     storage,
	}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	token, err := auth.IssueLegacyToken(testUserID, "test@example.com", testJWTSecret, time.Hour)
	require.NoError(t, err)
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
	require.NoError(t, err)
	return resp
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &result), "body: %s", body)
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	assert.Equal(t, expected, resp.StatusCode)
}

// errorCode returns error.code of an error response.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "expected error object, got %v", body)
	code, _ := errObj["code"].(string)
	return code
}

// selectCredential selects the server default credential for the test user.
func (ta *testApp) selectCredential(t *testing.T) {
	t.Helper()
	require.NoError(t, ta.credentials.Select(context.Background(), testUserID, ""))
}

// createProject creates a 16 second project and returns its JSON.
func (ta *testApp) createProject(t *testing.T) map[string]interface{} {
	t.Helper()
	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/projects",
		`{"text":"A smartwatch in space. Neon reflections.","duration":16,"style":"Futuristic"}`)
	assertStatus(t, resp, http.StatusCreated)
	return parseJSON(t, resp)
}
