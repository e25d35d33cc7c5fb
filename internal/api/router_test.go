package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/isdelr/todo-api/internal/auth"
	"github.com/isdelr/todo-api/internal/config"
	"github.com/isdelr/todo-api/internal/models"
	"github.com/isdelr/todo-api/internal/services"
	"github.com/isdelr/todo-api/internal/testutil"
	"github.com/isdelr/todo-api/internal/websocket"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testAPI struct {
	t      *testing.T
	server *httptest.Server
	db     *sqlx.DB
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db := testutil.NewTestDB(t)
	secret := []byte("router-test-secret")

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	users := services.NewUserService(db)
	events := services.NewEventService(db, hub)

	router := NewRouter(Deps{
		Config: config.Config{
			CORSAllowedOrigins: []string{"http://localhost:3000"},
			TokenTTL:           time.Hour,
		},
		Hub:          hub,
		Hasher:       auth.NewHasher(bcrypt.MinCost),
		Issuer:       auth.NewIssuer(secret, time.Hour, users),
		Verifier:     auth.NewVerifier(secret, users),
		DB:           db,
		UserService:  users,
		TodoService:  services.NewTodoService(db, events),
		TagService:   services.NewTagService(db),
		EventService: events,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testAPI{t: t, server: server, db: db}
}

func (a *testAPI) do(method, path, token string, body interface{}) (*http.Response, []byte) {
	a.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(a.t, err)
	return resp, buf.Bytes()
}

func (a *testAPI) register(username, email, password string) int64 {
	a.t.Helper()
	resp, body := a.do(http.MethodPost, "/api/users/register", "", map[string]string{
		"username": username, "email": email, "password": password,
	})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode, string(body))

	var out struct {
		Message string `json:"message"`
		UserID  int64  `json:"userId"`
	}
	require.NoError(a.t, json.Unmarshal(body, &out))
	assert.Equal(a.t, "User created successfully", out.Message)
	return out.UserID
}

func (a *testAPI) login(email, password string) string {
	a.t.Helper()
	resp, body := a.do(http.MethodPost, "/api/users/login", "", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(a.t, http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(a.t, json.Unmarshal(body, &out))
	require.NotEmpty(a.t, out.Token)
	return out.Token
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestSessionScenario(t *testing.T) {
	api := newTestAPI(t)

	userA := api.register("a", "a@x.com", "p1")
	assert.NotZero(t, userA)
	userB := api.register("b", "b@x.com", "p2")

	t1 := api.login("a@x.com", "p1")
	tb := api.login("b@x.com", "p2")

	resp, body := api.do(http.MethodPost, "/api/todos", t1, map[string]interface{}{"title": "A's todo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	resp, body = api.do(http.MethodPost, "/api/todos", tb, map[string]interface{}{"title": "B's todo"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = api.do(http.MethodGet, "/api/todos", t1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	todos := decode[[]models.Todo](t, body)
	require.Len(t, todos, 1)
	assert.Equal(t, "A's todo", todos[0].Title)
	assert.Equal(t, userA, todos[0].UserID)
	assert.NotEqual(t, userB, todos[0].UserID)

	resp, body = api.do(http.MethodPost, "/api/users/logout", t1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, string(body))

	for _, path := range []string{"/api/todos", "/api/tags", "/api/users/me", "/api/events"} {
		resp, body = api.do(http.MethodGet, path, t1, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		assert.JSONEq(t, `{"error":"Please authenticate."}`, string(body))
	}
	resp, _ = api.do(http.MethodPost, "/api/users/logout", t1, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// B's session is untouched by A's logout.
	resp, _ = api.do(http.MethodGet, "/api/todos", tb, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterValidationAndConflict(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "a@x.com", "p1")

	resp, body := api.do(http.MethodPost, "/api/users/register", "", map[string]string{
		"username": "again", "email": "a@x.com", "password": "p",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	conflict := decode[map[string]string](t, body)
	assert.Equal(t, "Error registering user", conflict["error"])
	assert.Equal(t, "email already registered", conflict["details"])

	resp, body = api.do(http.MethodPost, "/api/users/register", "", map[string]string{
		"username": "c", "email": "c@x.com",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "password", decode[map[string]string](t, body)["field"])

	resp, _ = api.do(http.MethodPost, "/api/users/register", "", "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "a@x.com", "p1")

	respWrongPass, bodyWrongPass := api.do(http.MethodPost, "/api/users/login", "", map[string]string{
		"email": "a@x.com", "password": "nope",
	})
	respNoUser, bodyNoUser := api.do(http.MethodPost, "/api/users/login", "", map[string]string{
		"email": "ghost@x.com", "password": "p1",
	})

	assert.Equal(t, http.StatusUnauthorized, respWrongPass.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, respNoUser.StatusCode)
	assert.Equal(t, string(bodyWrongPass), string(bodyNoUser))
	assert.JSONEq(t, `{"error":"Invalid credentials"}`, string(bodyNoUser))
}

func TestCreateTodoWithMissingTagIsAllOrNothing(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "a@x.com", "p1")
	token := api.login("a@x.com", "p1")

	resp, body := api.do(http.MethodPost, "/api/tags", token, map[string]string{"name": "work"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	tag := decode[models.Tag](t, body)

	resp, body = api.do(http.MethodPost, "/api/todos", token, map[string]interface{}{
		"title": "linked", "tags": []int64{tag.ID, tag.ID + 1},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "One or more tags do not exist", decode[map[string]string](t, body)["error"])

	var count int
	require.NoError(t, api.db.Get(&count, "SELECT COUNT(*) FROM todos"))
	assert.Zero(t, count)

	resp, body = api.do(http.MethodPost, "/api/todos", token, map[string]interface{}{
		"title": "linked", "description": "d", "dueDate": "2031-05-01", "tags": []int64{tag.ID},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	todo := decode[models.Todo](t, body)
	require.Len(t, todo.Tags, 1)
	assert.Equal(t, "work", todo.Tags[0].Name)
	require.NotNil(t, todo.DueDate)
	assert.Equal(t, 2031, todo.DueDate.Year())
}

func TestTodoValidation(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "a@x.com", "p1")
	token := api.login("a@x.com", "p1")

	resp, body := api.do(http.MethodPost, "/api/todos", token, map[string]interface{}{"description": "no title"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Title is required","field":"title"}`, string(body))

	resp, body = api.do(http.MethodPost, "/api/todos", token, map[string]interface{}{"title": "x", "dueDate": "someday"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "dueDate", decode[map[string]string](t, body)["field"])

	resp, body = api.do(http.MethodPost, "/api/tags", token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Tag name is required", decode[map[string]string](t, body)["error"])

	resp, _ = api.do(http.MethodGet, "/api/todos?completed=maybe", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestForeignTodoIsNotFound(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "a@x.com", "p1")
	api.register("b", "b@x.com", "p2")
	ta := api.login("a@x.com", "p1")
	tb := api.login("b@x.com", "p2")

	resp, body := api.do(http.MethodPost, "/api/todos", ta, map[string]interface{}{"title": "secret"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	todo := decode[models.Todo](t, body)
	path := fmt.Sprintf("/api/todos/%d", todo.ID)

	resp, body = api.do(http.MethodGet, path, tb, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Todo not found"}`, string(body))

	resp, _ = api.do(http.MethodPut, path, tb, map[string]interface{}{"title": "mine now"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(http.MethodDelete, path, tb, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(http.MethodGet, "/api/todos/not-a-number", tb, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = api.do(http.MethodGet, path, ta, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "secret", decode[models.Todo](t, body).Title)
}

func TestUpdateAndDeleteTodo(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "a@x.com", "p1")
	token := api.login("a@x.com", "p1")

	resp, body := api.do(http.MethodPost, "/api/todos", token, map[string]interface{}{"title": "draft"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	todo := decode[models.Todo](t, body)
	path := fmt.Sprintf("/api/todos/%d", todo.ID)

	resp, body = api.do(http.MethodPut, path, token, map[string]interface{}{"isCompleted": true})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	updated := decode[models.Todo](t, body)
	assert.True(t, updated.IsCompleted)
	assert.Equal(t, "draft", updated.Title)

	resp, body = api.do(http.MethodGet, "/api/todos?completed=true", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.Todo](t, body), 1)

	resp, _ = api.do(http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = api.do(http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = api.do(http.MethodGet, "/api/events?limit=2", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := decode[[]models.Event](t, body)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventTodoDelete, events[0].Type)
	assert.Equal(t, models.EventTodoUpdate, events[1].Type)
}

func TestLogoutAllAndMe(t *testing.T) {
	api := newTestAPI(t)
	api.register("alice", "a@x.com", "p1")
	phone := api.login("a@x.com", "p1")
	laptop := api.login("a@x.com", "p1")

	resp, body := api.do(http.MethodGet, "/api/users/me", laptop, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[map[string]interface{}](t, body)
	assert.Equal(t, "alice", me["username"])
	assert.NotContains(t, me, "passwordHash")
	assert.NotContains(t, string(body), "$2a$")

	resp, body = api.do(http.MethodPost, "/api/users/logout-all", phone, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, decode[map[string]interface{}](t, body)["revoked"])

	resp, _ = api.do(http.MethodGet, "/api/todos", laptop, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[map[string]interface{}](t, body)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "ok", health["database"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestWebSocketFeedDeliversOwnEvents(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "a@x.com", "p1")
	token := api.login("a@x.com", "p1")

	wsURL := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/api/ws"

	_, resp, err := gws.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := gws.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(websocket.Message{Action: websocket.ActionPing}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong websocket.Message
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, websocket.ActionPong, pong.Action)

	resp2, _ := api.do(http.MethodPost, "/api/todos", token, map[string]interface{}{"title": "live"})
	require.Equal(t, http.StatusCreated, resp2.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg websocket.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, websocket.ActionEvent, msg.Action)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, models.EventTodoCreate, payload["type"])
}

func (a *testAPI) dialFeed(token string) *gws.Conn {
	a.t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(a.server.URL, "http")+"/api/ws", header)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { conn.Close() })

	// A pong proves the hub has registered the connection.
	require.NoError(a.t, conn.WriteJSON(websocket.Message{Action: websocket.ActionPing}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong websocket.Message
	require.NoError(a.t, conn.ReadJSON(&pong))
	require.Equal(a.t, websocket.ActionPong, pong.Action)
	return conn
}

func TestLogoutClosesLiveFeedOfThatToken(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "a@x.com", "p1")
	t1 := api.login("a@x.com", "p1")
	t2 := api.login("a@x.com", "p1")

	revokedFeed := api.dialFeed(t1)
	liveFeed := api.dialFeed(t2)

	resp, _ := api.do(http.MethodPost, "/api/users/logout", t1, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = api.do(http.MethodPost, "/api/todos", t2, map[string]interface{}{"title": "private after logout"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	revokedFeed.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := revokedFeed.ReadMessage()
	require.Error(t, err, "revoked feed received %s", raw)
	assert.True(t, gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseNoStatusReceived), err.Error())

	liveFeed.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg websocket.Message
	require.NoError(t, liveFeed.ReadJSON(&msg))
	assert.Equal(t, websocket.ActionEvent, msg.Action)
}

func TestLogoutAllClosesEveryLiveFeed(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "a@x.com", "p1")
	phone := api.login("a@x.com", "p1")
	laptop := api.login("a@x.com", "p1")

	phoneFeed := api.dialFeed(phone)
	laptopFeed := api.dialFeed(laptop)

	resp, _ := api.do(http.MethodPost, "/api/users/logout-all", phone, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, conn := range []*gws.Conn{phoneFeed, laptopFeed} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		require.Error(t, err)
		assert.True(t, gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseNoStatusReceived), err.Error())
	}
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(http.MethodPost, "/api/users/register", "", map[string]string{
		"username": "a", "email": "a@x.com", "password": strings.Repeat("p", 80),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Password must be at most 72 bytes","field":"password"}`, string(body))

	var count int
	require.NoError(t, api.db.Get(&count, "SELECT COUNT(*) FROM users"))
	assert.Zero(t, count)
}

func TestUpdateTodoNullClearsFields(t *testing.T) {
	api := newTestAPI(t)
	api.register("a", "a@x.com", "p1")
	token := api.login("a@x.com", "p1")

	resp, body := api.do(http.MethodPost, "/api/todos", token, map[string]interface{}{
		"title": "t", "description": "d", "dueDate": "2031-05-01",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	path := fmt.Sprintf("/api/todos/%d", decode[models.Todo](t, body).ID)

	// Omitted fields stay.
	resp, body = api.do(http.MethodPut, path, token, map[string]interface{}{"title": "renamed"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	kept := decode[models.Todo](t, body)
	require.NotNil(t, kept.Description)
	require.NotNil(t, kept.DueDate)

	resp, body = api.do(http.MethodPut, path, token, map[string]interface{}{"description": nil, "dueDate": nil})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	cleared := decode[models.Todo](t, body)
	assert.Nil(t, cleared.Description)
	assert.Nil(t, cleared.DueDate)
	assert.Equal(t, "renamed", cleared.Title)

	resp, _ = api.do(http.MethodPut, path, token, map[string]interface{}{"description": 5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
