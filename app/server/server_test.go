package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b1506704/Live2D-AI-Agent/app/agent"
	"github.com/b1506704/Live2D-AI-Agent/app/models"
)

// staticGenerator answers every round with the same text.
type staticGenerator string

func (g staticGenerator) Generate(context.Context, models.GenerateRequest) (*models.Generation, error) {
	response, calls := models.ParseDirectives(string(g))
	return &models.Generation{Response: response, ToolCalls: calls}, nil
}

type staticLogs []string

func (l staticLogs) GetLastLogs(n int) []string {
	if n > len(l) {
		n = len(l)
	}
	return l[len(l)-n:]
}

type fakeArchive []agent.ExecutionRecord

func (a fakeArchive) ListExecutions(_ context.Context, limit int) ([]agent.ExecutionRecord, error) {
	if limit > 0 && limit < len(a) {
		return a[:limit], nil
	}
	return a, nil
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	executor := agent.NewExecutor(staticGenerator("All done."), agent.Options{Workspace: t.TempDir()})
	s := New(Config{}, executor, opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestExecuteTaskEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp, err := http.Post(ts.URL+"/api/execute-task", "application/json",
		strings.NewReader(`{"task": "say hi", "language": "ja"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Task      string       `json:"task"`
		Result    agent.Result `json:"result"`
		Timestamp string       `json:"timestamp"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "say hi", body.Task)
	assert.True(t, body.Result.Completed)
	assert.Equal(t, agent.StateCompleted, body.Result.State)
	assert.Equal(t, "All done.", body.Result.Response)
	_, err = time.Parse(time.RFC3339, body.Timestamp)
	assert.NoError(t, err)

	resp, err = http.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	var history struct {
		History []agent.ExecutionRecord `json:"history"`
	}
	decode(t, resp, &history)
	require.Len(t, history.History, 1)
	assert.Equal(t, "ja", history.History[0].Language)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/history", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/history")
	require.NoError(t, err)
	decode(t, resp, &history)
	assert.Empty(t, history.History)
}

func TestExecuteTaskRejectsBadInput(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	for _, body := range []string{`not json`, `{"task": 3}`, ``} {
		resp, err := http.Post(ts.URL+"/api/execute-task", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		var out map[string]string
		decode(t, resp, &out)
		assert.NotEmpty(t, out["error"])
	}

	resp, err := http.Get(ts.URL + "/api/execute-task")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestExecuteTaskAcceptsEmptyTask(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	for _, body := range []string{`{"task": ""}`, `{"task": "   "}`, `{}`} {
		resp, err := http.Post(ts.URL+"/api/execute-task", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, body)

		var out struct {
			Result agent.Result `json:"result"`
		}
		decode(t, resp, &out)
		assert.Equal(t, 1, out.Result.Iterations, body)
		assert.Equal(t, agent.StateCompleted, out.Result.State, body)
	}
}

func TestChatEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp, err := http.Post(ts.URL+"/api/chat", "application/json",
		strings.NewReader(`{"message": "hello", "language": "ja", "live2d_model": "Hiyori"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Response    string `json:"response"`
		Language    string `json:"language"`
		Live2DModel string `json:"live2d_model"`
		Timestamp   string `json:"timestamp"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "All done.", body.Response)
	assert.Equal(t, "ja", body.Language)
	assert.Equal(t, "Hiyori", body.Live2DModel)
	_, err = time.Parse(time.RFC3339, body.Timestamp)
	assert.NoError(t, err)

	resp, err = http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(`{"message": " "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInfoEndpoints(t *testing.T) {
	_, ts := newTestServer(t, Options{
		Languages: []string{"en", "ja", "xx"},
		Logs:      staticLogs{"a", "b", "c"},
	})

	resp, err := http.Get(ts.URL + "/api/tools")
	require.NoError(t, err)
	var toolsBody struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	decode(t, resp, &toolsBody)
	require.NotEmpty(t, toolsBody.Tools)
	assert.Equal(t, "web_search", toolsBody.Tools[0].Name)

	resp, err = http.Get(ts.URL + "/api/logs?n=2")
	require.NoError(t, err)
	var logsBody map[string][]string
	decode(t, resp, &logsBody)
	assert.Equal(t, []string{"b", "c"}, logsBody["logs"])

	resp, err = http.Get(ts.URL + "/api/languages")
	require.NoError(t, err)
	var langs struct {
		Languages []language `json:"languages"`
		Default   string     `json:"default"`
	}
	decode(t, resp, &langs)
	assert.Equal(t, []language{{"en", "English"}, {"ja", "Japanese"}, {"xx", "xx"}}, langs.Languages)
	assert.Equal(t, "en", langs.Default)

	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	var health map[string]any
	decode(t, resp, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.EqualValues(t, 7, health["tools"])
}

func TestArchiveHistory(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	resp, err := http.Get(ts.URL + "/api/history?source=archive")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, ts = newTestServer(t, Options{Archive: fakeArchive{{ID: "1"}, {ID: "2"}}})
	resp, err = http.Get(ts.URL + "/api/history?source=archive&limit=1")
	require.NoError(t, err)
	var history struct {
		History []agent.ExecutionRecord `json:"history"`
	}
	decode(t, resp, &history)
	require.Len(t, history.History, 1)
	assert.Equal(t, "1", history.History[0].ID)
}

func TestWebSocketFrames(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var reply struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "pong", reply.Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "task", "data": map[string]any{"task": "hello"}}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "task_response", reply.Type)
	var task taskResponse
	require.NoError(t, json.Unmarshal(reply.Data, &task))
	assert.Equal(t, "hello", task.Task)
	assert.True(t, task.Result.Completed)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, string(reply.Data), "unknown frame type")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "task", "data": "not an object"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, string(reply.Data), "invalid task payload")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "task", "data": map[string]any{}}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "task_response", reply.Type)

	for _, msg := range []map[string]any{
		{"type": "chat", "data": map[string]any{"message": "hi", "language": "ja"}},
		{"data": map[string]any{"message": "hi", "language": "ja"}},
	} {
		require.NoError(t, conn.WriteJSON(msg))
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, "chat_response", reply.Type)
		var chat struct {
			Response string `json:"response"`
			Language string `json:"language"`
		}
		require.NoError(t, json.Unmarshal(reply.Data, &chat))
		assert.Equal(t, "All done.", chat.Response)
		assert.Equal(t, "ja", chat.Language)
	}

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat", "data": map[string]any{}}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, string(reply.Data), "message is required")
}

func TestCheckOrigin(t *testing.T) {
	allowAll := checkOrigin(nil)
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://evil.example")
	assert.True(t, allowAll(r))

	only := checkOrigin([]string{"http://localhost:3000"})
	assert.False(t, only(r))
	r.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, only(r))
}
