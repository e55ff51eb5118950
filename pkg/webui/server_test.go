package webui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostwriter/pkg/config"
	"ghostwriter/pkg/llm"
	"ghostwriter/pkg/persistence"
	"ghostwriter/pkg/proto"
	"ghostwriter/pkg/session"
)

type testServer struct {
	http   *httptest.Server
	store  *persistence.Store
	server *Server
}

func newTestServer(t *testing.T, client llm.Client) *testServer {
	t.Helper()

	db, err := persistence.InitializeDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := persistence.NewStore(db)

	cfg := config.Default()
	manager := session.NewManager(session.Deps{Cfg: cfg, Store: store, Client: client})
	t.Cleanup(manager.Shutdown)

	s := NewServer(cfg, store, manager, client)
	ts := httptest.NewServer(s.router())
	t.Cleanup(ts.Close)

	return &testServer{http: ts, store: store, server: s}
}

func (ts *testServer) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.http.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (ts *testServer) getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(ts.http.URL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, llm.NewMockClient(nil, nil))

	var body map[string]string
	status := ts.getJSON(t, "/api/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateUserWithTimeline(t *testing.T) {
	ts := newTestServer(t, llm.NewMockClient(nil, nil))

	resp := ts.postJSON(t, "/api/users", map[string]any{
		"name": "Margaret",
		"bio":  "Schoolteacher, retired.",
		"timeline": []map[string]any{
			{"location": "Denver", "date_start": "1972-06-01", "date_end": "1990-08-15"},
			{"location": "Chicago", "date_start": "1951-03-12", "date_end": "1972-05-30"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var user persistence.User
	decodeBody(t, resp, &user)
	require.NotEmpty(t, user.ID)
	assert.Equal(t, "Margaret", user.Name)

	var fetched struct {
		User     persistence.User            `json:"user"`
		Timeline []persistence.TimelineEntry `json:"timeline"`
	}
	status := ts.getJSON(t, "/api/users/"+user.ID, &fetched)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Schoolteacher, retired.", fetched.User.Bio)

	// Chronological regardless of submission order
	require.Len(t, fetched.Timeline, 2)
	assert.Equal(t, "Chicago", fetched.Timeline[0].Location)
	assert.Equal(t, "Denver", fetched.Timeline[1].Location)
}

func TestCreateUserValidation(t *testing.T) {
	ts := newTestServer(t, llm.NewMockClient(nil, nil))

	resp := ts.postJSON(t, "/api/users", map[string]any{"bio": "no name"})
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.postJSON(t, "/api/users", map[string]any{
		"name":     "Bad Dates",
		"timeline": []map[string]any{{"location": "Nowhere", "date_start": "March 1951"}},
	})
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDocumentsRequireExistingUser(t *testing.T) {
	ts := newTestServer(t, llm.NewMockClient(nil, nil))

	resp := ts.postJSON(t, "/api/users/missing/documents", map[string]any{
		"title":   "Letters",
		"content": "Dear all...",
	})
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateBookBootstrapsOutline(t *testing.T) {
	mock := llm.NewMockClient([]llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{
			ID:   "t1",
			Name: "add_chapters",
			Parameters: map[string]any{
				"chapters": []any{
					map[string]any{"title": "Roots", "summary": "Childhood in Chicago."},
					map[string]any{"title": "The Move West", "summary": "Starting over in Denver."},
				},
			},
		}}},
	}, nil)
	ts := newTestServer(t, mock)

	user := seedUser(t, ts.store)
	resp := ts.postJSON(t, "/api/books", map[string]any{
		"user_id": user.ID,
		"title":   "A Life in Chalk",
		"premise": "A schoolteacher's life across two cities",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Book    persistence.Book              `json:"book"`
		Outline []*persistence.OutlineChapter `json:"outline"`
	}
	decodeBody(t, resp, &created)
	require.Len(t, created.Outline, 2)
	assert.Equal(t, 1, created.Outline[0].Index)
	assert.Equal(t, "Roots", created.Outline[0].Title)

	outline, err := ts.store.GetOutline(created.Book.ID)
	require.NoError(t, err)
	assert.Len(t, outline, 2)
}

// A planner failure still yields a usable book with an empty outline.
func TestCreateBookSurvivesPlannerFailure(t *testing.T) {
	mock := llm.NewMockClient([]llm.CompletionResponse{
		{Content: "I have no plan."},
	}, nil)
	ts := newTestServer(t, mock)

	user := seedUser(t, ts.store)
	resp := ts.postJSON(t, "/api/books", map[string]any{
		"user_id": user.ID,
		"title":   "Unplanned",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Book    persistence.Book              `json:"book"`
		Outline []*persistence.OutlineChapter `json:"outline"`
	}
	decodeBody(t, resp, &created)
	assert.Empty(t, created.Outline)

	status := ts.getJSON(t, "/api/books/"+created.Book.ID, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestGetBookNotFound(t *testing.T) {
	ts := newTestServer(t, llm.NewMockClient(nil, nil))
	assert.Equal(t, http.StatusNotFound, ts.getJSON(t, "/api/books/nope", nil))
}

func TestLogsEndpointRejectsBadSince(t *testing.T) {
	ts := newTestServer(t, llm.NewMockClient(nil, nil))
	assert.Equal(t, http.StatusBadRequest, ts.getJSON(t, "/api/logs?since=yesterday", nil))
	assert.Equal(t, http.StatusOK, ts.getJSON(t, "/api/logs", nil))
}

func TestBookCostsWithoutPrometheus(t *testing.T) {
	ts := newTestServer(t, llm.NewMockClient(nil, nil))
	assert.Equal(t, http.StatusServiceUnavailable, ts.getJSON(t, "/api/books/any/costs", nil))
}

// Full transport round trip: dial the socket, init, and read the resync
// frames plus the opening assistant turn off the wire.
func TestBookWebSocketInitRoundTrip(t *testing.T) {
	ts := newTestServer(t, llm.NewMockClient(nil, nil))

	user := seedUser(t, ts.store)
	book := &persistence.Book{ID: persistence.GenerateID(), UserID: user.ID, Title: "A Life in Chalk"}
	require.NoError(t, ts.store.UpsertBook(book))
	_, err := ts.store.AppendOutlineChapters(book.ID, []*persistence.OutlineChapter{
		{Title: "Roots", Summary: "Childhood in Chicago."},
	})
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws/books/" + book.ID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = conn.Close() }()

	init := proto.NewMsg(proto.MsgTypeInit).SetPayload(proto.KeyBookID, book.ID)
	data, err := init.ToJSON()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	seen := map[proto.MsgType]bool{}
	var greeting string
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)

		msg, err := proto.FromJSON(frame)
		require.NoError(t, err)
		seen[msg.Type] = true
		if msg.Type == proto.MsgTypeResponse {
			greeting, _ = msg.GetString(proto.KeyContent)
			break
		}
	}

	for _, want := range []proto.MsgType{
		proto.MsgTypeOutline,
		proto.MsgTypeModeSync,
		proto.MsgTypeChapterIndexSync,
		proto.MsgTypeHistory,
		proto.MsgTypeNotesSync,
		proto.MsgTypeResponse,
	} {
		assert.True(t, seen[want], "missing %s frame", want)
	}
	assert.Contains(t, greeting, "Roots")
}

func TestBookWebSocketUnknownBook(t *testing.T) {
	ts := newTestServer(t, llm.NewMockClient(nil, nil))

	wsURL := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws/books/missing"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil) //nolint:bodyclose // closed below
	if conn != nil {
		_ = conn.Close()
	}
	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	assert.Error(t, err)
}

func seedUser(t *testing.T, store *persistence.Store) *persistence.User {
	t.Helper()
	user := &persistence.User{ID: persistence.GenerateID(), Name: fmt.Sprintf("Margaret-%d", time.Now().UnixNano())}
	require.NoError(t, store.UpsertUser(user))
	return user
}
