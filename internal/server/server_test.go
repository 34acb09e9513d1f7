package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openboard/internal/board"
	"openboard/internal/bus"
	"openboard/internal/store"
)

func testServer(t *testing.T) (*Server, *httptest.Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	cfg := LoadConfig()
	srv := New(cfg, st, bus.NewMemory(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts, st
}

func TestHealthEndpoint(t *testing.T) {
	_, ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestObjectCRUD(t *testing.T) {
	_, ts, _ := testServer(t)
	client := ts.Client()

	// Create without an id; the server assigns one.
	payload := `{"type":"sticky","x":100,"y":100,"width":160,"height":160,"text":"hello"}`
	resp, err := client.Post(ts.URL+"/boards/b1/objects", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created board.Object
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.NotEmpty(t, created.ID)
	assert.Equal(t, board.TypeSticky, created.Type)

	// List sees it.
	resp, err = client.Get(ts.URL + "/boards/b1/objects")
	require.NoError(t, err)
	var listed []board.Object
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	resp.Body.Close()
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	// Whole-object update.
	created.X = 250
	body, _ := json.Marshal(created)
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/boards/b1/objects/"+created.ID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Delete.
	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/boards/b1/objects/"+created.ID, nil)
	resp, err = client.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = client.Get(ts.URL + "/boards/b1/objects")
	require.NoError(t, err)
	var after []board.Object
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&after))
	resp.Body.Close()
	assert.Empty(t, after)
}

func TestUpdateRejectsIDMismatch(t *testing.T) {
	_, ts, _ := testServer(t)

	body := `{"id":"other","type":"sticky"}`
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/boards/b1/objects/mine", strings.NewReader(body))
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDiagramEndpoint(t *testing.T) {
	_, ts, _ := testServer(t)

	payload := `{
		"prompt": "flowchart of the release process",
		"nodes": [{"id":"a","label":"Plan"},{"id":"b","label":"Build"},{"id":"c","label":"Release"}],
		"edges": [{"from":"a","to":"b"},{"from":"b","to":"c"}],
		"center": {"x": 400, "y": 300}
	}`
	resp, err := ts.Client().Post(ts.URL+"/boards/b1/diagram", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created []board.Object
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Len(t, created, 5)

	var rects, connectors int
	for _, o := range created {
		switch o.Type {
		case board.TypeRectangle:
			rects++
		case board.TypeConnector:
			connectors++
			assert.NotEmpty(t, o.StartObjectID)
			assert.NotEmpty(t, o.EndObjectID)
		}
	}
	assert.Equal(t, 3, rects)
	assert.Equal(t, 2, connectors)
}

func TestDiagramRefusesTemplateArchetype(t *testing.T) {
	_, ts, _ := testServer(t)

	payload := `{"prompt":"swot analysis of the project","nodes":[{"id":"a","label":"Strengths"}]}`
	resp, err := ts.Client().Post(ts.URL+"/boards/b1/diagram", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCORSHeadersOnPreflight(t *testing.T) {
	_, ts, _ := testServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/boards/b1/objects", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func dialWS(t *testing.T, ts *httptest.Server, boardID, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/boards/" + boardID + "?name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env wsEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

// waitForEnvelope reads frames until one of the wanted type arrives.
func waitForEnvelope(t *testing.T, conn *websocket.Conn, msgType string) wsEnvelope {
	t.Helper()
	for i := 0; i < 20; i++ {
		env := readEnvelope(t, conn)
		if env.Type == msgType {
			return env
		}
	}
	t.Fatalf("no %q frame received", msgType)
	return wsEnvelope{}
}

func TestWebsocketInitSnapshot(t *testing.T) {
	_, ts, st := testServer(t)
	require.NoError(t, st.UpsertObject(context.Background(), "b1",
		board.Object{ID: "o1", Type: board.TypeSticky, X: 1, Y: 2}))

	conn := dialWS(t, ts, "b1", "Ada")
	env := waitForEnvelope(t, conn, "init")

	var init struct {
		SessionID string         `json:"sessionId"`
		Objects   []board.Object `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &init))
	assert.NotEmpty(t, init.SessionID)
	require.Len(t, init.Objects, 1)
	assert.Equal(t, "o1", init.Objects[0].ID)
}

func TestWebsocketPresenceRelay(t *testing.T) {
	_, ts, _ := testServer(t)

	a := dialWS(t, ts, "b1", "Ada")
	b := dialWS(t, ts, "b1", "Grace")
	waitForEnvelope(t, a, "init")
	waitForEnvelope(t, b, "init")

	frame := `{"type":"presence","payload":{"kind":"cursor","x":12,"y":34,"sessionId":"spoofed"}}`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(frame)))

	env := waitForEnvelope(t, b, "presence")
	var m bus.Message
	require.NoError(t, json.Unmarshal(env.Payload, &m))
	assert.Equal(t, bus.KindCursor, m.Kind)
	assert.Equal(t, 12.0, m.X)
	assert.Equal(t, "Ada", m.Name)
	assert.NotEqual(t, "spoofed", m.SessionID, "relay stamps the real session id")
}

func TestWebsocketUpsertFansOutAsChange(t *testing.T) {
	_, ts, _ := testServer(t)

	a := dialWS(t, ts, "b1", "Ada")
	b := dialWS(t, ts, "b1", "Grace")
	waitForEnvelope(t, a, "init")
	waitForEnvelope(t, b, "init")

	frame := `{"type":"upsert","payload":{"id":"o9","type":"rectangle","x":5,"y":6,"width":50,"height":40}}`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(frame)))

	env := waitForEnvelope(t, b, "change")
	var ev store.ChangeEvent
	require.NoError(t, json.Unmarshal(env.Payload, &ev))
	assert.Equal(t, store.EventInsert, ev.Type)
	assert.Equal(t, "o9", ev.Object.ID)

	// The writer gets the echo too; its reconciler swallows it client-side.
	echo := waitForEnvelope(t, a, "change")
	var echoEv store.ChangeEvent
	require.NoError(t, json.Unmarshal(echo.Payload, &echoEv))
	assert.Equal(t, "o9", echoEv.Object.ID)
}

func TestWebsocketLeaveBroadcastOnDisconnect(t *testing.T) {
	_, ts, _ := testServer(t)

	a := dialWS(t, ts, "b1", "Ada")
	b := dialWS(t, ts, "b1", "Grace")
	waitForEnvelope(t, a, "init")
	waitForEnvelope(t, b, "init")

	require.NoError(t, a.Close())

	env := waitForEnvelope(t, b, "presence")
	var m bus.Message
	require.NoError(t, json.Unmarshal(env.Payload, &m))
	assert.Equal(t, bus.KindLeave, m.Kind)
	assert.Equal(t, "Ada", m.Name)
}
