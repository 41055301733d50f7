package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"markdraft/internal/document/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCoordinator serves a fixed document set and records autosave calls.
type stubCoordinator struct {
	mu    sync.Mutex
	docs  map[string]model.Document
	saved []model.Document
}

func (s *stubCoordinator) Get(id string) (model.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	return d, ok
}

func (s *stubCoordinator) AutoSave(_ context.Context, _ string, doc model.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, doc)
}

func (s *stubCoordinator) savedDocs() []model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Document(nil), s.saved...)
}

func newTestSession(t *testing.T) (*Hub, *stubCoordinator, *httptest.Server) {
	t.Helper()
	coord := &stubCoordinator{docs: map[string]model.Document{
		"doc-1": {ID: "doc-1", Title: "Shared Notes", Content: "# Start", OwnerID: "user1"},
	}}
	hub := NewHub(coord)
	go hub.Run()
	t.Cleanup(hub.Stop)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, r.URL.Query().Get("user_id"))
	}))
	t.Cleanup(server.Close)
	return hub, coord, server
}

func dial(t *testing.T, server *httptest.Server, docID, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?docId=" + docID + "&user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestJoinReceivesDraftAndMetadata(t *testing.T) {
	_, _, server := newTestSession(t)

	conn := dial(t, server, "doc-1", "user1")

	update := readMessage(t, conn)
	assert.Equal(t, UpdateType, update.Type)
	assert.Equal(t, "doc-1", update.DocID)
	var content string
	require.NoError(t, json.Unmarshal(update.Payload, &content))
	assert.Equal(t, "# Start", content)

	meta := readMessage(t, conn)
	assert.Equal(t, MetadataType, meta.Type)
	var metaPayload map[string]string
	require.NoError(t, json.Unmarshal(meta.Payload, &metaPayload))
	assert.Equal(t, "Shared Notes", metaPayload["title"])

	presence := readMessage(t, conn)
	assert.Equal(t, PresenceUpdateType, presence.Type)
	var statuses []UserStatus
	require.NoError(t, json.Unmarshal(presence.Payload, &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "user1", statuses[0].UserID)
}

func TestUpdateBroadcastsToOtherSessions(t *testing.T) {
	_, _, server := newTestSession(t)

	// Same owner on two devices; both pass the ownership check.
	conn1 := dial(t, server, "doc-1", "user1")
	for i := 0; i < 3; i++ {
		readMessage(t, conn1) // drain join messages
	}

	conn2 := dial(t, server, "doc-1", "user1")
	for i := 0; i < 3; i++ {
		readMessage(t, conn2)
	}
	presence := readMessage(t, conn1) // conn2's arrival
	assert.Equal(t, PresenceUpdateType, presence.Type)

	require.NoError(t, conn2.WriteJSON(WSMessage{
		Type:    UpdateType,
		Payload: json.RawMessage(`"# Edited"`),
	}))

	got := readMessage(t, conn1)
	assert.Equal(t, UpdateType, got.Type)
	assert.Equal(t, "doc-1", got.DocID)
	assert.Equal(t, "user1", got.UserID)
	var content string
	require.NoError(t, json.Unmarshal(got.Payload, &content))
	assert.Equal(t, "# Edited", content)
}

func TestUnknownMessageTypesAreDropped(t *testing.T) {
	_, _, server := newTestSession(t)

	conn1 := dial(t, server, "doc-1", "user1")
	for i := 0; i < 3; i++ {
		readMessage(t, conn1)
	}
	conn2 := dial(t, server, "doc-1", "user1")
	for i := 0; i < 3; i++ {
		readMessage(t, conn2)
	}
	readMessage(t, conn1) // presence for conn2

	require.NoError(t, conn2.WriteJSON(WSMessage{Type: "EVIL", Payload: json.RawMessage(`"x"`)}))
	require.NoError(t, conn2.WriteJSON(WSMessage{Type: TitleType, Payload: json.RawMessage(`"New Title"`)}))

	// Only the TITLE broadcast arrives; the unknown type never did.
	got := readMessage(t, conn1)
	assert.Equal(t, TitleType, got.Type)
}

func TestLastSessionOutFlushesDirtyDraft(t *testing.T) {
	hub, coord, server := newTestSession(t)

	conn := dial(t, server, "doc-1", "user1")
	for i := 0; i < 3; i++ {
		readMessage(t, conn)
	}

	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:    UpdateType,
		Payload: json.RawMessage(`"# Final content"`),
	}))

	// Wait for the hub to apply the update before disconnecting.
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		d := hub.drafts["doc-1"]
		return d != nil && d.doc.Content == "# Final content"
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return len(coord.savedDocs()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	saved := coord.savedDocs()
	assert.Equal(t, "doc-1", saved[0].ID)
	assert.Equal(t, "# Final content", saved[0].Content)
}

func TestServeWsRejections(t *testing.T) {
	_, _, server := newTestSession(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"missing docId", "?user_id=user1", http.StatusBadRequest},
		{"unknown document", "?docId=nope&user_id=user1", http.StatusNotFound},
		{"not the owner", "?docId=doc-1&user_id=intruder", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(server.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestRemoveDocumentDisconnectsSessions(t *testing.T) {
	hub, _, server := newTestSession(t)

	conn := dial(t, server, "doc-1", "user1")
	for i := 0; i < 3; i++ {
		readMessage(t, conn)
	}

	hub.RemoveDocument("doc-1")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection should be closed by the hub")
}

func TestLaggingClientIsDroppedWithoutStallingHub(t *testing.T) {
	hub, _, server := newTestSession(t)

	conn := dial(t, server, "doc-1", "user1")
	for i := 0; i < 3; i++ {
		readMessage(t, conn)
	}

	// A session whose send buffer is already full: the two join messages
	// exhaust it, so the next broadcast cannot be delivered.
	laggard := &Client{Hub: hub, DocID: "doc-1", UserID: "user1-tablet", Send: make(chan []byte, 2)}
	hub.Register <- laggard
	presence := readMessage(t, conn) // laggard's arrival
	require.Equal(t, PresenceUpdateType, presence.Type)

	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:    UpdateType,
		Payload: json.RawMessage(`"# Edited"`),
	}))

	// The hub drops the laggard and keeps serving the healthy session.
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.Rooms["doc-1"]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	departure := readMessage(t, conn)
	assert.Equal(t, PresenceUpdateType, departure.Type)
	var statuses []UserStatus
	require.NoError(t, json.Unmarshal(departure.Payload, &statuses))
	assert.Len(t, statuses, 1)
}

func TestConcurrentRemoveDocumentAndDisconnect(t *testing.T) {
	hub, _, server := newTestSession(t)

	conn1 := dial(t, server, "doc-1", "user1")
	conn2 := dial(t, server, "doc-1", "user1")

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); hub.RemoveDocument("doc-1") }()
	go func() { defer wg.Done(); conn1.Close() }()
	go func() { defer wg.Done(); conn2.Close() }()
	wg.Wait()

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.Rooms["doc-1"]) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	hub := NewHub(&stubCoordinator{docs: map[string]model.Document{}})
	done := make(chan struct{})
	go func() {
		hub.AutoSaveWorker()
		close(done)
	}()

	hub.Stop()
	assert.NotPanics(t, hub.Stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("autosave worker did not stop")
	}
}
