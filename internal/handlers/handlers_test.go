package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/rooms"
	"chat-realtime/internal/ws"
)

func TestLiveness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHealthHandler(nil)
	r.GET("/healthz", handler.Liveness)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, rooms.NewRegistry(), nil, false)

	req := httptest.NewRequest(http.MethodGet, "/debug/rooms", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugRoomsCounts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	registry := rooms.NewRegistry()
	registry.ResolveDirectRoom(1, 2)
	hub := ws.NewHub(registry)
	RegisterDebugRoutes(r, nil, registry, hub, true)

	req := httptest.NewRequest(http.MethodGet, "/debug/rooms", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp["rooms"])
	assert.Equal(t, 2, resp["indexed_users"])
	assert.Equal(t, 0, resp["active_connections"])
}
