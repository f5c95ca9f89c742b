package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush/task-manager/internal/events"
	"github.com/ayush/task-manager/internal/store"
)

type captured struct {
	mu  sync.Mutex
	got []events.Event
}

func (c *captured) Publish(_ context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, e)
	return nil
}

func (c *captured) types() []events.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Type, 0, len(c.got))
	for _, e := range c.got {
		out = append(out, e.Type)
	}
	return out
}

type apiUser struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Tasks    []apiTask `json:"tasks"`
}

type apiTask struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	UserID      int64  `json:"user_id"`
}

type harness struct {
	t      *testing.T
	srv    *httptest.Server
	events *captured
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.OpenSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Migrate(context.Background()))

	ev := &captured{}
	srv := httptest.NewServer(NewRouter(Deps{Store: st, Events: ev}))
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv, events: ev}
}

// do sends body (nil for none) and decodes the response into out when out is non-nil.
func (h *harness) do(method, path, body string, out any) int {
	h.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, r)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	if out != nil {
		require.NoError(h.t, json.Unmarshal(raw, out), string(raw))
	}
	return resp.StatusCode
}

func (h *harness) createUser(username, email string) apiUser {
	h.t.Helper()
	var u apiUser
	status := h.do(http.MethodPost, "/users/", fmt.Sprintf(`{"username":%q,"email":%q}`, username, email), &u)
	require.Equal(h.t, http.StatusCreated, status)
	return u
}

func (h *harness) createTask(userID int64, title string) apiTask {
	h.t.Helper()
	var task apiTask
	body := fmt.Sprintf(`{"title":%q,"description":"This is a test task","due_date":"2025-01-01","user_id":%d}`, title, userID)
	require.Equal(h.t, http.StatusCreated, h.do(http.MethodPost, "/tasks/", body, &task))
	return task
}

type detail struct {
	Detail string `json:"detail"`
}

func TestCreateUser(t *testing.T) {
	h := newHarness(t)
	u := h.createUser("alice", "alice@example.com")

	assert.Positive(t, u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.NotNil(t, u.Tasks)
	assert.Empty(t, u.Tasks)
	assert.Equal(t, []events.Type{events.UserCreated}, h.events.types())
}

func TestCreateUserDuplicates(t *testing.T) {
	h := newHarness(t)
	first := h.createUser("alice", "alice@example.com")

	var d detail
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/users/", `{"username":"alice2","email":"alice@example.com"}`, &d))
	assert.Equal(t, "Email already registered", d.Detail)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/users/", `{"username":"alice","email":"other@example.com"}`, &d))
	assert.Equal(t, "Username already registered", d.Detail)

	// no second row landed
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, fmt.Sprintf("/users/%d", first.ID+1), "", nil))
	assert.Len(t, h.events.types(), 1)
}

func TestCreateUserValidation(t *testing.T) {
	h := newHarness(t)
	var body struct {
		Detail []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	status := h.do(http.MethodPost, "/users/", `{"username":"alice","email":"nope"}`, &body)

	assert.Equal(t, http.StatusUnprocessableEntity, status)
	require.Len(t, body.Detail, 1)
	assert.Equal(t, "email", body.Detail[0].Field)
	assert.Empty(t, h.events.types())
}

func TestGetUser(t *testing.T) {
	h := newHarness(t)

	var d detail
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/users/12345", "", &d))
	assert.Equal(t, "User not found", d.Detail)
	assert.Equal(t, http.StatusUnprocessableEntity, h.do(http.MethodGet, "/users/abc", "", nil))
	for _, path := range []string{"/users/0", "/users/-1", "/tasks/0"} {
		method := http.MethodGet
		if strings.HasPrefix(path, "/tasks") {
			method = http.MethodDelete
		}
		assert.Equal(t, http.StatusNotFound, h.do(method, path, "", nil), path)
	}

	created := h.createUser("alice", "alice@example.com")
	task := h.createTask(created.ID, "Test Task")

	var got apiUser
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, fmt.Sprintf("/users/%d", created.ID), "", &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Username, got.Username)
	assert.Equal(t, created.Email, got.Email)
	assert.Equal(t, []apiTask{task}, got.Tasks)
}

func TestCreateAndListTasks(t *testing.T) {
	h := newHarness(t)
	u := h.createUser("alice", "alice@example.com")
	task := h.createTask(u.ID, "Test Task")

	assert.Positive(t, task.ID)
	assert.Equal(t, "Test Task", task.Title)
	assert.Equal(t, "This is a test task", task.Description)
	assert.Equal(t, "2025-01-01", task.DueDate)
	assert.Equal(t, u.ID, task.UserID)

	for _, path := range []string{
		fmt.Sprintf("/tasks/user/%d", u.ID),
		fmt.Sprintf("/users/%d/tasks/", u.ID),
	} {
		var list []apiTask
		require.Equal(t, http.StatusOK, h.do(http.MethodGet, path, "", &list), path)
		assert.Equal(t, []apiTask{task}, list, path)
	}

	var none []apiTask
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/tasks/user/999", "", &none))
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCreateTaskRejectsUnknownUser(t *testing.T) {
	h := newHarness(t)
	status := h.do(http.MethodPost, "/tasks/", `{"title":"t","description":"d","due_date":"2025-01-01","user_id":77}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	var list []apiTask
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/tasks/", "", &list))
	assert.Empty(t, list)
}

func TestCreateTaskAcceptsEmptyText(t *testing.T) {
	h := newHarness(t)
	u := h.createUser("alice", "alice@example.com")

	var task apiTask
	body := fmt.Sprintf(`{"title":"","description":"","due_date":"2025-01-01","user_id":%d}`, u.ID)
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/tasks/", body, &task))
	assert.Equal(t, "", task.Title)
	assert.Equal(t, "", task.Description)

	var list []apiTask
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, fmt.Sprintf("/tasks/user/%d", u.ID), "", &list))
	assert.Equal(t, []apiTask{task}, list)

	var d struct {
		Detail []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	body = fmt.Sprintf(`{"title":"t","due_date":"2025-01-01","user_id":%d}`, u.ID)
	require.Equal(t, http.StatusUnprocessableEntity, h.do(http.MethodPost, "/tasks/", body, &d))
	require.Len(t, d.Detail, 1)
	assert.Equal(t, "description", d.Detail[0].Field)
	assert.Equal(t, "field required", d.Detail[0].Message)
}

func TestCreateTaskBadDateNamesField(t *testing.T) {
	h := newHarness(t)
	u := h.createUser("alice", "alice@example.com")

	var d struct {
		Detail []struct {
			Field string `json:"field"`
		} `json:"detail"`
	}
	body := fmt.Sprintf(`{"title":"t","description":"d","due_date":"2025-13-40","user_id":%d}`, u.ID)
	require.Equal(t, http.StatusUnprocessableEntity, h.do(http.MethodPost, "/tasks/", body, &d))
	require.Len(t, d.Detail, 1)
	assert.Equal(t, "due_date", d.Detail[0].Field)
}

func TestCreateTaskValidation(t *testing.T) {
	h := newHarness(t)
	for _, body := range []string{
		`{"title":"t","description":"d","user_id":1}`,
		`{"title":"t","description":"d","due_date":"01-01-2025","user_id":1}`,
		`{"title":"t","description":"d","due_date":"2025-01-01","user_id":"one"}`,
		`not json`,
	} {
		assert.Equal(t, http.StatusUnprocessableEntity, h.do(http.MethodPost, "/tasks/", body, nil), body)
	}
}

func TestListAllTasksWindow(t *testing.T) {
	h := newHarness(t)
	u := h.createUser("alice", "alice@example.com")
	for _, title := range []string{"a", "b", "c"} {
		h.createTask(u.ID, title)
	}

	var page []apiTask
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/tasks/?skip=1&limit=2", "", &page))
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].Title)
	assert.Equal(t, "c", page[1].Title)

	var empty []apiTask
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/tasks/?limit=0", "", &empty))
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	var all []apiTask
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/tasks/", "", &all))
	assert.Len(t, all, 3)

	assert.Equal(t, http.StatusUnprocessableEntity, h.do(http.MethodGet, "/tasks/?limit=x", "", nil))
}

func TestPartialUpdate(t *testing.T) {
	h := newHarness(t)
	u := h.createUser("alice", "alice@example.com")
	task := h.createTask(u.ID, "Test Task")

	var updated apiTask
	require.Equal(t, http.StatusOK, h.do(http.MethodPut, fmt.Sprintf("/tasks/%d", task.ID), `{"title":"X"}`, &updated))
	assert.Equal(t, "X", updated.Title)
	assert.Equal(t, task.Description, updated.Description)
	assert.Equal(t, task.DueDate, updated.DueDate)
	assert.Equal(t, task.UserID, updated.UserID)

	full := `{"title":"Updated Task","description":"This task has been updated","due_date":"2025-01-02"}`
	require.Equal(t, http.StatusOK, h.do(http.MethodPut, fmt.Sprintf("/tasks/%d", task.ID), full, &updated))
	assert.Equal(t, "Updated Task", updated.Title)
	assert.Equal(t, "This task has been updated", updated.Description)
	assert.Equal(t, "2025-01-02", updated.DueDate)

	var d detail
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPut, "/tasks/999", `{"title":"X"}`, &d))
	assert.Equal(t, "Task not found", d.Detail)
}

func TestDeleteTaskThenAbsent(t *testing.T) {
	h := newHarness(t)
	u := h.createUser("alice", "alice@example.com")
	task := h.createTask(u.ID, "Test Task")
	path := fmt.Sprintf("/tasks/%d", task.ID)

	var deleted apiTask
	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, path, "", &deleted))
	assert.Equal(t, task, deleted)

	var list []apiTask
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, fmt.Sprintf("/tasks/user/%d", u.ID), "", &list))
	assert.Empty(t, list)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, path, "", nil))
		assert.Equal(t, http.StatusNotFound, h.do(http.MethodPut, path, `{"title":"again"}`, nil))
	}

	assert.Equal(t, []events.Type{events.UserCreated, events.TaskCreated, events.TaskDeleted}, h.events.types())
}

func TestDeleteUserCascades(t *testing.T) {
	h := newHarness(t)
	u := h.createUser("alice", "alice@example.com")
	t1 := h.createTask(u.ID, "one")
	t2 := h.createTask(u.ID, "two")

	var snapshot apiUser
	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, fmt.Sprintf("/users/%d", u.ID), "", &snapshot))
	assert.ElementsMatch(t, []apiTask{t1, t2}, snapshot.Tasks)

	var list []apiTask
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, fmt.Sprintf("/tasks/user/%d", u.ID), "", &list))
	assert.Empty(t, list)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPut, fmt.Sprintf("/tasks/%d", t1.ID), `{"title":"X"}`, nil))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, fmt.Sprintf("/users/%d", u.ID), "", nil))
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, fmt.Sprintf("/users/%d", u.ID), "", nil))

	// email and username are free again
	h.createUser("alice", "alice@example.com")
}

func TestRoundTrip(t *testing.T) {
	h := newHarness(t)
	for i, name := range []string{"bob", "carol", "dave"} {
		created := h.createUser(name, name+"@example.com")
		var read apiUser
		require.Equal(t, http.StatusOK, h.do(http.MethodGet, fmt.Sprintf("/users/%d", created.ID), "", &read))
		assert.Equal(t, created, read, "user %d", i)

		task := h.createTask(created.ID, "task for "+name)
		var tasks []apiTask
		require.Equal(t, http.StatusOK, h.do(http.MethodGet, fmt.Sprintf("/tasks/user/%d", created.ID), "", &tasks))
		assert.Equal(t, []apiTask{task}, tasks)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	var status map[string]string
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health", "", &status))
	assert.Equal(t, "ok", status["status"])

	h.createUser("alice", "alice@example.com")

	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Regexp(t, `http_requests_total\{method="POST",route="/users/?",status="201"\} 1`, string(raw))
}
