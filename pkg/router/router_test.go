package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"lighttavern/backend/pkg/config"
	"lighttavern/backend/pkg/jwt"
	"lighttavern/backend/pkg/logger"
)

func testRouter() *Router {
	gin.SetMode(gin.TestMode)
	r := New(Deps{
		Config:     config.Get(),
		Logger:     logger.New(logger.Config{Level: "error"}),
		JWTService: jwt.NewService("test-secret", time.Hour),
	})
	r.SetupRoutes()
	return r
}

func TestHealthRoute(t *testing.T) {
	r := testRouter()

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestCORSPreflight(t *testing.T) {
	r := testRouter()

	req, _ := http.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestChatRouteRequiresAuth(t *testing.T) {
	r := testRouter()

	req, _ := http.NewRequest(http.MethodPost, "/api/chat", nil)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestModelsRouteRequiresAuth(t *testing.T) {
	r := testRouter()

	req, _ := http.NewRequest(http.MethodPost, "/api/models", nil)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	r := testRouter()

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
