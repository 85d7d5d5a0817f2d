package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/aistore-vn/aistore-api/config"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return setupRouter(&config.Config{
		Auth0Domain:   "test.auth0.com",
		Auth0Audience: "https://api.test.com",
	})
}

// TestHealthEndpointIntegration tests the /api/v1/health endpoint with full routing
func TestHealthEndpointIntegration(t *testing.T) {
	router := testRouter()

	req, _ := http.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "Expected status 200 OK")

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err, "Response should be valid JSON")
	assert.Equal(t, true, response["success"])
	assert.Equal(t, "AIStore API is running", response["message"])
}

// TestHealthEndpointMethod tests that only GET method is allowed
func TestHealthEndpointMethod(t *testing.T) {
	router := testRouter()

	req, _ := http.NewRequest("POST", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code, "POST to health endpoint should not be routed")
}

// TestUnknownRoute verifies unmatched paths fall through to 404
func TestUnknownRoute(t *testing.T) {
	router := testRouter()

	req, _ := http.NewRequest("GET", "/api/v1/does-not-exist", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestWebhookRouteIsPublic verifies the provider webhook does not sit behind
// the JWT middleware (it authenticates by signature instead)
func TestWebhookRouteIsPublic(t *testing.T) {
	router := testRouter()

	req, _ := http.NewRequest("POST", "/api/v1/payos/webhook", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Reaches the handler and fails on the payload, not on authentication
	assert.NotEqual(t, http.StatusUnauthorized, w.Code)
}
