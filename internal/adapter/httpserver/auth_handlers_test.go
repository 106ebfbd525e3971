package httpserver_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLoginRoundTrip(t *testing.T) {
	e := newEnv(t)

	status, body := e.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email":      "Ahmed.Hassan@Gmail.com",
		"password":   "Ahmed123456",
		"username":   "ahmed_hassan",
		"first_name": "أحمد",
		"last_name":  "حسن",
	}, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"], "register failed: %v", body["error"])

	user := body["user"].(map[string]any)
	assert.GreaterOrEqual(t, user["user_id"].(float64), 1000.0)
	assert.Equal(t, "ahmed.hassan@gmail.com", user["email"])
	assert.Equal(t, "basic", user["tier"])
	assert.EqualValues(t, 1, user["daily_analyses_remaining"])

	status, body = e.do(t, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "ahmed.hassan@gmail.com",
		"password": "Ahmed123456",
	}, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"])
	assert.Equal(t, user["user_id"], body["user"].(map[string]any)["user_id"])
}

func TestLoginFailures(t *testing.T) {
	e := newEnv(t)
	e.register(t, "login@test.com", "Pw123456")

	// Wrong password surfaces as a business denial, not a transport error.
	status, body := e.do(t, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "login@test.com",
		"password": "Wrong12345",
	}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "كلمة المرور")

	status, body = e.do(t, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "nobody@test.com",
		"password": "Pw123456",
	}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "غير مُسجل")
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)

	cases := []struct {
		name  string
		email string
		pw    string
	}{
		{"malformed email", "not-an-email", "Pw123456"},
		{"short password", "short@test.com", "Pw1"},
		{"password without digits", "nodigit@test.com", "Password"},
		{"password without letters", "noletter@test.com", "12345678"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := e.do(t, http.MethodPost, "/api/auth/register", map[string]any{
				"email":    tc.email,
				"password": tc.pw,
			}, nil)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	e := newEnv(t)
	e.register(t, "dup@test.com", "Pw123456")

	status, body := e.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"email":    "dup@test.com",
		"password": "Pw123456",
	}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "مُسجل مسبقاً")
}

func TestGetUser(t *testing.T) {
	e := newEnv(t)
	e.register(t, "info@test.com", "Pw123456")

	status, body := e.do(t, http.MethodGet, "/api/auth/user/1000", nil, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["success"])

	user := body["user"].(map[string]any)
	assert.Equal(t, "info@test.com", user["email"])
	assert.Equal(t, "active", user["status"])
	assert.EqualValues(t, 0, user["total_analyses"])
	features := user["features"].(map[string]any)
	assert.EqualValues(t, 1, features["daily_analyses"])
	assert.Equal(t, false, features["save_history"])
	assert.NotEmpty(t, user["created_at"])

	status, body = e.do(t, http.MethodGet, "/api/auth/user/99999", nil, nil)
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
}

func TestCheckPermission(t *testing.T) {
	e := newEnv(t)
	e.register(t, "perm@test.com", "Pw123456")

	status, body := e.do(t, http.MethodGet, "/api/auth/check-analysis-permission/1000", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["can_analyze"])
	assert.EqualValues(t, 1, body["remaining_analyses"])

	// Unknown accounts are reported as denied rather than erroring.
	status, body = e.do(t, http.MethodGet, "/api/auth/check-analysis-permission/4242", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["can_analyze"])
	assert.Contains(t, body["message"], "غير موجود")
}
