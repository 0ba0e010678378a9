package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgroute"
	"github.com/soundprediction/kgroute/pkg/config"
	"github.com/soundprediction/kgroute/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: 8080,
			Mode: gin.TestMode,
		},
	}
}

// contextKG captures the request context of the last Answer call.
type contextKG struct {
	ctx context.Context
}

func (k *contextKG) Answer(ctx context.Context, question string, _ *kgroute.AnswerOptions) (*types.AnswerResult, error) {
	k.ctx = ctx
	return &types.AnswerResult{RunID: "r", Question: question, Answer: "yes", Decision: types.DecisionMajority}, nil
}

func (k *contextKG) EntityTypes(context.Context) ([]string, error) { return []string{"Movie"}, nil }
func (k *contextKG) Ping(context.Context) error                   { return nil }
func (k *contextKG) Close(context.Context) error                  { return nil }

func do(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestNew(t *testing.T) {
	cfg := testConfig()
	server := New(cfg, nil, nil)
	if server == nil {
		t.Fatal("expected non-nil server")
	}
	if server.config != cfg {
		t.Error("expected config to be set")
	}
}

func TestSetup(t *testing.T) {
	server := New(testConfig(), nil, quietLogger)
	server.Setup()

	if server.router == nil {
		t.Error("expected router to be initialized")
	}
	if server.server == nil {
		t.Fatal("expected http.Server to be initialized")
	}
	if server.server.Addr != "localhost:8080" {
		t.Errorf("expected addr localhost:8080, got %s", server.server.Addr)
	}
}

func TestHealthEndpointsWithoutClient(t *testing.T) {
	server := New(testConfig(), nil, quietLogger)
	server.Setup()

	for path, want := range map[string]int{
		"/health":          http.StatusOK,
		"/healthcheck":     http.StatusOK,
		"/live":            http.StatusOK,
		"/ready":           http.StatusServiceUnavailable,
		"/health/detailed": http.StatusServiceUnavailable,
	} {
		w := do(server, http.MethodGet, path, "", nil)
		if w.Code != want {
			t.Errorf("%s: expected status %d, got %d", path, want, w.Code)
		}
	}
}

func TestAnswerRoute(t *testing.T) {
	kg := &contextKG{}
	server := New(testConfig(), kg, quietLogger)
	server.Setup()

	w := do(server, http.MethodPost, "/api/v1/answer", `{"question": "Is Heat a movie?"}`, map[string]string{
		"X-User-ID":    "u-1",
		"X-Session-ID": "s-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"answer": "yes", "decision": "majority", "run_id": "r"}`, w.Body.String())

	require.NotNil(t, kg.ctx)
	assert.Equal(t, "u-1", kg.ctx.Value(types.ContextKeyUserID))
	assert.Equal(t, "s-1", kg.ctx.Value(types.ContextKeySessionID))
	assert.Equal(t, "server", kg.ctx.Value(types.ContextKeyRequestSource))
}

func TestEntityTypesRoute(t *testing.T) {
	server := New(testConfig(), &contextKG{}, quietLogger)
	server.Setup()

	w := do(server, http.MethodGet, "/api/v1/entity-types", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"entity_types": ["Movie"]}`, w.Body.String())

	w = do(server, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	server := New(testConfig(), &contextKG{}, quietLogger)
	server.Setup()

	w := do(server, http.MethodOptions, "/api/v1/answer", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunsRouteWithoutArchive(t *testing.T) {
	server := New(testConfig(), &contextKG{}, quietLogger)
	server.Setup()

	w := do(server, http.MethodGet, "/api/v1/runs/r", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = do(server, http.MethodGet, "/api/v1/runs", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
