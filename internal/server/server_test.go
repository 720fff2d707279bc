package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/storage/sqlite"
)

const testSecret = "test-signing-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, nil, testSecret)
}

// doJSON performs a request against the engine, attaching the bearer token
// when one is given, and decodes the JSON response body.
func doJSON(t *testing.T, srv *Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	rec := doRaw(t, srv, method, path, token, body)

	decoded := map[string]any{}
	if len(rec.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	}
	return rec.Code, decoded
}

func doJSONList(t *testing.T, srv *Server, method, path, token string, body any) (int, []map[string]any) {
	t.Helper()
	rec := doRaw(t, srv, method, path, token, body)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	return rec.Code, decoded
}

func doRaw(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
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

	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func registerAndLogin(t *testing.T, srv *Server, username, email string) string {
	t.Helper()
	code, _ := doJSON(t, srv, http.MethodPost, "/api/register", "", h{
		"username": username, "email": email, "password": "password123",
	})
	require.Equal(t, http.StatusCreated, code)

	code, body := doJSON(t, srv, http.MethodPost, "/api/login", "", h{
		"username": username, "password": "password123",
	})
	require.Equal(t, http.StatusOK, code)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

// h mirrors gin.H for request bodies.
type h = map[string]any

func createProject(t *testing.T, srv *Server, token, title string) int64 {
	t.Helper()
	code, body := doJSON(t, srv, http.MethodPost, "/api/projects", token, h{"title": title})
	require.Equal(t, http.StatusCreated, code)
	return int64(body["id"].(float64))
}

func createTask(t *testing.T, srv *Server, token string, projectID int64, fields h) int64 {
	t.Helper()
	code, body := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), token, fields)
	require.Equal(t, http.StatusCreated, code)
	return int64(body["id"].(float64))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	code, body := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestRegister(t *testing.T) {
	srv := newTestServer(t)

	code, body := doJSON(t, srv, http.MethodPost, "/api/register", "", h{
		"username": "alice", "email": "alice@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Registration successful", body["msg"])
}

func TestRegister_DuplicateUsername(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "alice", "alice@example.com")

	code, body := doJSON(t, srv, http.MethodPost, "/api/register", "", h{
		"username": "alice", "email": "other@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Username already exists", body["error"])
}

func TestRegister_DuplicateEmail(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "alice", "alice@example.com")

	code, body := doJSON(t, srv, http.MethodPost, "/api/register", "", h{
		"username": "bob", "email": "alice@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Email already registered", body["error"])
}

func TestLogin_FailureResponsesIndistinguishable(t *testing.T) {
	srv := newTestServer(t)
	registerAndLogin(t, srv, "alice", "alice@example.com")

	wrongPassword := doRaw(t, srv, http.MethodPost, "/api/login", "", h{
		"username": "alice", "password": "wrong",
	})
	unknownUser := doRaw(t, srv, http.MethodPost, "/api/login", "", h{
		"username": "nobody", "password": "password123",
	})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(unknownUser.Body.Bytes(), &body))
	assert.Equal(t, "Invalid username or password", body["error"])
}

func TestGetUser(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "alice", "alice@example.com")

	code, body := doJSON(t, srv, http.MethodGet, "/api/user", token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "alice@example.com", body["email"])
	assert.NotEmpty(t, body["created_at"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	code, _ := doJSON(t, srv, http.MethodGet, "/api/user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = doJSON(t, srv, http.MethodGet, "/api/projects", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestProjectCRUD(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "alice", "alice@example.com")

	code, body := doJSON(t, srv, http.MethodPost, "/api/projects", token, h{
		"title":       "Launch",
		"description": "release prep",
		"due_date":    "2025-06-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Launch", body["title"])
	assert.Equal(t, "2025-06-01T00:00:00+00:00", body["due_date"])
	id := int64(body["id"].(float64))

	code, body = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/projects/%d", id), token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "release prep", body["description"])

	// partial update: title only, due date untouched
	code, body = doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/projects/%d", id), token, h{"title": "Launch v2"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Launch v2", body["title"])
	assert.Equal(t, "2025-06-01T00:00:00+00:00", body["due_date"])

	// explicit null clears the due date
	code, body = doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/projects/%d", id), token, h{"due_date": nil})
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["due_date"])

	code, body = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/projects/%d", id), token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Project successfully deleted", body["msg"])

	code, _ = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/projects/%d", id), token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateProject_MissingTitle(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "alice", "alice@example.com")

	code, _ := doJSON(t, srv, http.MethodPost, "/api/projects", token, h{"description": "no title"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestInvalidDueDateMessage(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "alice", "alice@example.com")
	projectID := createProject(t, srv, token, "Dates")

	const wantMsg = "Invalid date format. Use ISO format (YYYY-MM-DDTHH:MM:SS)"

	code, body := doJSON(t, srv, http.MethodPost, "/api/projects", token, h{
		"title": "Bad", "due_date": "not-a-date",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, wantMsg, body["error"])

	code, body = doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/projects/%d", projectID), token, h{"due_date": "not-a-date"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, wantMsg, body["error"])

	code, body = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), token, h{
		"title": "Bad", "due_date": "not-a-date",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, wantMsg, body["error"])

	taskID := createTask(t, srv, token, projectID, h{"title": "ok"})
	code, body = doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/tasks/%d", taskID), token, h{"due_date": "not-a-date"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, wantMsg, body["error"])
}

func TestProjectSummaryCounters(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "alice", "alice@example.com")
	projectID := createProject(t, srv, token, "Counted")

	code, list := doJSONList(t, srv, http.MethodGet, "/api/projects", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.Equal(t, float64(0), list[0]["total_tasks"])
	assert.Equal(t, float64(0), list[0]["completed_tasks"])

	createTask(t, srv, token, projectID, h{"title": "first"})
	taskID := createTask(t, srv, token, projectID, h{"title": "second"})

	code, _ = doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/tasks/%d", taskID), token, h{"status": "completed"})
	require.Equal(t, http.StatusOK, code)

	code, list = doJSONList(t, srv, http.MethodGet, "/api/projects", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list, 1)
	assert.Equal(t, float64(2), list[0]["total_tasks"])
	assert.Equal(t, float64(1), list[0]["completed_tasks"])
}

func TestTaskCRUD(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "alice", "alice@example.com")
	projectID := createProject(t, srv, token, "Work")

	code, body := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), token, h{
		"title": "write report",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "medium", body["priority"])
	taskID := int64(body["id"].(float64))

	code, body = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/tasks/%d", taskID), token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(projectID), body["project_id"])

	code, list := doJSONList(t, srv, http.MethodGet, fmt.Sprintf("/api/projects/%d/tasks", projectID), token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, list, 1)

	code, body = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", taskID), token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Task successfully deleted", body["msg"])

	code, _ = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/tasks/%d", taskID), token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTaskPartialUpdate(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "alice", "alice@example.com")
	projectID := createProject(t, srv, token, "Work")
	taskID := createTask(t, srv, token, projectID, h{
		"title":       "write report",
		"description": "quarterly numbers",
		"priority":    "high",
		"due_date":    "2025-03-01T00:00:00Z",
	})

	code, body := doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/tasks/%d", taskID), token, h{"status": "completed"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "write report", body["title"])
	assert.Equal(t, "quarterly numbers", body["description"])
	assert.Equal(t, "high", body["priority"])
	assert.Equal(t, "2025-03-01T00:00:00+00:00", body["due_date"])
}

func TestTaskStatusAndPriorityUnvalidated(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "alice", "alice@example.com")
	projectID := createProject(t, srv, token, "Loose")

	code, body := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), token, h{
		"title": "odd one", "status": "on-hold", "priority": "urgent",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "on-hold", body["status"])
	assert.Equal(t, "urgent", body["priority"])
}

func TestCrossUserIsolationIs404(t *testing.T) {
	srv := newTestServer(t)
	aliceToken := registerAndLogin(t, srv, "alice", "alice@example.com")
	bobToken := registerAndLogin(t, srv, "bob", "bob@example.com")

	projectID := createProject(t, srv, aliceToken, "Private")
	taskID := createTask(t, srv, aliceToken, projectID, h{"title": "secret"})

	paths := []struct {
		method, path string
		body         h
	}{
		{http.MethodGet, fmt.Sprintf("/api/projects/%d", projectID), nil},
		{http.MethodPut, fmt.Sprintf("/api/projects/%d", projectID), h{"title": "stolen"}},
		{http.MethodDelete, fmt.Sprintf("/api/projects/%d", projectID), nil},
		{http.MethodGet, fmt.Sprintf("/api/projects/%d/tasks", projectID), nil},
		{http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), h{"title": "intrude"}},
		{http.MethodGet, fmt.Sprintf("/api/tasks/%d", taskID), nil},
		{http.MethodPut, fmt.Sprintf("/api/tasks/%d", taskID), h{"title": "stolen"}},
		{http.MethodDelete, fmt.Sprintf("/api/tasks/%d", taskID), nil},
	}
	for _, p := range paths {
		code, _ := doJSON(t, srv, p.method, p.path, bobToken, p.body)
		assert.Equal(t, http.StatusNotFound, code, "%s %s", p.method, p.path)
	}

	// alice still sees everything
	code, _ := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/tasks/%d", taskID), aliceToken, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestCreateTask_OwnershipCheckedBeforeValidation(t *testing.T) {
	srv := newTestServer(t)
	aliceToken := registerAndLogin(t, srv, "alice", "alice@example.com")
	bobToken := registerAndLogin(t, srv, "bob", "bob@example.com")
	projectID := createProject(t, srv, aliceToken, "Private")

	// a foreign project 404s even when the body would also be rejected
	code, body := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), bobToken, h{
		"title": "intrude", "due_date": "not-a-date",
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Project not found", body["error"])

	code, body = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), bobToken, h{
		"description": "no title",
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Project not found", body["error"])

	// same for a project id that does not exist at all
	code, _ = doJSON(t, srv, http.MethodPost, "/api/projects/9999/tasks", aliceToken, h{
		"title": "lost", "due_date": "not-a-date",
	})
	assert.Equal(t, http.StatusNotFound, code)

	// an owned project still reports the body problems
	code, body = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), aliceToken, h{
		"description": "no title",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "title is required", body["error"])
}

func TestCreateTask_ExplicitEmptyStatusStored(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "alice", "alice@example.com")
	projectID := createProject(t, srv, token, "Loose")

	// defaults kick in only when the key is absent
	code, body := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", projectID), token, h{
		"title": "blank fields", "status": "", "priority": "",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "", body["status"])
	assert.Equal(t, "", body["priority"])
}

func TestDeleteProjectCascades(t *testing.T) {
	srv := newTestServer(t)
	token := registerAndLogin(t, srv, "alice", "alice@example.com")
	projectID := createProject(t, srv, token, "Doomed")
	taskID := createTask(t, srv, token, projectID, h{"title": "goes with it"})

	code, _ := doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/projects/%d", projectID), token, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/tasks/%d", taskID), token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRespondError_NilError(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	srv.respondError(c, http.StatusInternalServerError, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), body["error"])
}
