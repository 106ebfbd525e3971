package httpserver_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminLogin(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodPost, "/api/admin/login", map[string]any{
		"username": "admin",
		"password": "wrong",
	}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "بيانات الدخول")

	token := e.adminToken(t)
	assert.NotEmpty(t, token)
}

func TestAdminGuard(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodGet, "/api/admin/dashboard", nil, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])

	status, _ = e.do(t, http.MethodGet, "/api/admin/dashboard", nil, bearer("tampered-token"))
	require.Equal(t, http.StatusUnauthorized, status)

	status, body = e.do(t, http.MethodGet, "/api/admin/dashboard", nil, bearer(e.adminToken(t)))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.NotNil(t, body["dashboard"])
}

func TestAdminTierUpdateResetsQuota(t *testing.T) {
	e := newEnv(t)
	userID := e.register(t, "upgrade@test.com", "Pw123456")

	// Exhaust the free analysis.
	status, body := e.do(t, http.MethodPost, "/api/analyze", map[string]any{
		"analysis_type": "quick",
		"user_id":       userID,
	}, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"])

	token := e.adminToken(t)
	status, body = e.do(t, http.MethodPost, "/api/admin/users/update-tier", map[string]any{
		"user_id":  userID,
		"new_tier": "premium",
	}, bearer(token))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"], "tier update failed: %v", body["error"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "basic", data["old_tier"])
	assert.Equal(t, "premium", data["new_tier"])
	assert.EqualValues(t, 5, data["new_daily_limit"])

	// The new limit takes effect immediately.
	status, body = e.do(t, http.MethodGet, fmt.Sprintf("/api/auth/check-analysis-permission/%d", userID), nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["can_analyze"])
	assert.EqualValues(t, 5, body["remaining_analyses"])
}

func TestAdminTierUpdateRejectsUnknownTier(t *testing.T) {
	e := newEnv(t)
	userID := e.register(t, "badtier@test.com", "Pw123456")

	status, body := e.do(t, http.MethodPost, "/api/admin/users/update-tier", map[string]any{
		"user_id":  userID,
		"new_tier": "platinum",
	}, bearer(e.adminToken(t)))
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
}

func TestAdminToggleStatus(t *testing.T) {
	e := newEnv(t)
	userID := e.register(t, "toggle@test.com", "Pw123456")
	token := e.adminToken(t)

	status, body := e.do(t, http.MethodPost, "/api/admin/users/toggle-status", map[string]any{
		"user_id": userID,
	}, bearer(token))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"])
	assert.Equal(t, "inactive", body["new_status"])

	// A deactivated account can no longer log in.
	status, body = e.do(t, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "toggle@test.com",
		"password": "Pw123456",
	}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "غير مفعل")

	status, body = e.do(t, http.MethodPost, "/api/admin/users/toggle-status", map[string]any{
		"user_id": userID,
	}, bearer(token))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "active", body["new_status"])
}

func TestAdminListUsersAndLogs(t *testing.T) {
	e := newEnv(t)
	userID := e.register(t, "list1@test.com", "Pw123456")
	e.register(t, "list2@test.com", "Pw123456")

	status, body := e.do(t, http.MethodPost, "/api/analyze", map[string]any{
		"analysis_type": "quick",
		"user_id":       userID,
	}, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"])

	token := e.adminToken(t)
	status, body = e.do(t, http.MethodGet, "/api/admin/users?page=1&per_page=10", nil, bearer(token))
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 2, data["total"])
	users := data["users"].([]any)
	require.Len(t, users, 2)

	status, body = e.do(t, http.MethodGet, fmt.Sprintf("/api/admin/users/%d", userID), nil, bearer(token))
	require.Equal(t, http.StatusOK, status)
	detail := body["data"].(map[string]any)
	assert.Equal(t, "list1@test.com", detail["user"].(map[string]any)["email"])

	status, body = e.do(t, http.MethodGet, fmt.Sprintf("/api/admin/analysis-logs?user_id=%d", userID), nil, bearer(token))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
}

func TestAdminSystemStatus(t *testing.T) {
	e := newEnv(t)
	status, body := e.do(t, http.MethodGet, "/api/admin/system-status", nil, bearer(e.adminToken(t)))
	require.Equal(t, http.StatusOK, status)
	snapshot := body["status"].(map[string]any)
	assert.Equal(t, true, snapshot["api_running"])
	assert.Equal(t, true, snapshot["claude_ai"])
}

func TestAdminBroadcastGate(t *testing.T) {
	e := newEnv(t)
	e.register(t, "bcast@test.com", "Pw123456")
	token := e.adminToken(t)

	status, body := e.do(t, http.MethodPost, "/api/admin/broadcast", map[string]any{
		"requester_id": "someone-else",
		"message":      "إعلان",
	}, bearer(token))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])

	status, body = e.do(t, http.MethodPost, "/api/admin/broadcast", map[string]any{
		"requester_id": "master-1",
		"message":      "إعلان",
	}, bearer(token))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["recipients"])
}
