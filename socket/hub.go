package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"markdraft/internal/document/model"
	"markdraft/pkg/logger"
)

const (
	UpdateType         = "UPDATE"          // Markdown content changed
	TitleType          = "TITLE"           // Document title changed
	CursorType         = "CURSOR"          // User moved their cursor
	PresenceUpdateType = "PRESENCE_UPDATE" // A session joined or left
	MetadataType       = "METADATA"        // Document title/info on join
)

// AutoSaveInterval is how often dirty drafts are flushed through the
// coordinator. Sessions that stop ticking leak saves against stale state,
// so Stop must be called on teardown.
const AutoSaveInterval = 30 * time.Second

// Coordinator is the slice of the document service the hub needs: the
// cache for the initial draft, and the non-throwing autosave for the
// periodic flush.
type Coordinator interface {
	Get(id string) (model.Document, bool)
	AutoSave(ctx context.Context, ownerID string, doc model.Document)
}

type WSMessage struct {
	Type    string          `json:"type"`
	DocID   string          `json:"document_id"`
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`

	// sender is excluded from the broadcast. Tracked by connection, not
	// user id, so the same owner editing on two devices still syncs.
	sender *Client
}

type UserStatus struct {
	UserID    string    `json:"user_id"`
	CursorPos int       `json:"cursor_pos"`
	LastSeen  time.Time `json:"last_seen"`
}

// draft is the in-flight editing state of one open document. It shadows
// the coordinator's cache until the next autosave flush.
type draft struct {
	ownerID string
	doc     model.Document
	dirty   bool
}

type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client

	coordinator Coordinator

	mu       sync.Mutex
	drafts   map[string]*draft
	Presence map[string]map[string]UserStatus // docID -> userID -> status

	stop     chan struct{}
	stopOnce sync.Once
}

func NewHub(coordinator Coordinator) *Hub {
	return &Hub{
		Rooms:       make(map[string]map[*Client]bool),
		Broadcast:   make(chan WSMessage),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		coordinator: coordinator,
		drafts:      make(map[string]*draft),
		Presence:    make(map[string]map[string]UserStatus),
		stop:        make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.DocID] == nil {
				h.Rooms[client.DocID] = make(map[*Client]bool)
				h.Presence[client.DocID] = make(map[string]UserStatus)

				// First session on this document seeds the draft from the
				// coordinator's cache. ServeWs already verified the
				// document exists and belongs to this user.
				doc, ok := h.coordinator.Get(client.DocID)
				if !ok {
					doc = model.Document{ID: client.DocID}
				}
				h.drafts[client.DocID] = &draft{ownerID: client.UserID, doc: doc}
			}
			h.Rooms[client.DocID][client] = true
			h.Presence[client.DocID][client.UserID] = UserStatus{UserID: client.UserID, LastSeen: time.Now()}
			current := h.drafts[client.DocID].doc
			h.mu.Unlock()

			// Send the full draft so the joining editor is up to date.
			contentPayload, _ := json.Marshal(current.Content)
			initialMsg, _ := json.Marshal(WSMessage{Type: UpdateType, DocID: client.DocID, Payload: contentPayload})
			client.Send <- initialMsg

			metaPayload, _ := json.Marshal(map[string]string{"title": current.Title})
			metaMsg, _ := json.Marshal(WSMessage{Type: MetadataType, DocID: client.DocID, UserID: client.UserID, Payload: metaPayload})
			client.Send <- metaMsg

			h.broadcastPresenceUpdate(client.DocID)

		case client := <-h.Unregister:
			h.mu.Lock()
			docID := client.DocID
			var flush *draft
			if _, ok := h.Rooms[client.DocID][client]; ok {
				delete(h.Rooms[client.DocID], client)
				delete(h.Presence[client.DocID], client.UserID)
				close(client.Send)

				// Last session out flushes the draft and releases the room.
				if len(h.Rooms[client.DocID]) == 0 {
					if d := h.drafts[client.DocID]; d != nil && d.dirty {
						copied := *d
						flush = &copied
					}
					delete(h.Rooms, client.DocID)
					delete(h.Presence, client.DocID)
					delete(h.drafts, client.DocID)
					logger.Sugar.Infof("Closed and cleaned up empty room: %s", client.DocID)
				}
			}
			// RemoveDocument mutates Rooms from other goroutines, so the
			// "room still open" answer must come from under the lock.
			roomOpen := h.Rooms[docID] != nil
			h.mu.Unlock()

			if flush != nil {
				h.coordinator.AutoSave(context.Background(), flush.ownerID, flush.doc)
			}
			if roomOpen {
				h.broadcastPresenceUpdate(docID)
			}

		case msg := <-h.Broadcast:
			h.mu.Lock()
			if d := h.drafts[msg.DocID]; d != nil {
				switch msg.Type {
				case UpdateType:
					var content string
					if err := json.Unmarshal(msg.Payload, &content); err == nil {
						d.doc.Content = content
						d.dirty = true
					}
				case TitleType:
					var title string
					if err := json.Unmarshal(msg.Payload, &title); err == nil {
						d.doc.Title = title
						d.dirty = true
					}
				}
				// CURSOR and friends broadcast without touching the draft.
			}

			payload, err := json.Marshal(msg)
			if err != nil {
				logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
				h.mu.Unlock()
				continue
			}

			// Collect recipients under the lock, send outside it.
			clientsToSend := make([]*Client, 0, len(h.Rooms[msg.DocID]))
			for client := range h.Rooms[msg.DocID] {
				if client != msg.sender {
					clientsToSend = append(clientsToSend, client)
				}
			}
			h.mu.Unlock()

			for _, client := range clientsToSend {
				select {
				case client.Send <- payload:
				default:
					// Full send buffer means a lagging session; drop it
					// rather than blocking the hub. The unregister must go
					// through a goroutine: Run is the only receiver on the
					// channel and would deadlock sending to itself.
					logger.Sugar.Warnf("Client %s's send buffer is full. Unregistering.", client.UserID)
					go func(c *Client) { h.Unregister <- c }(client)
				}
			}
		}
	}
}

// AutoSaveWorker periodically flushes dirty drafts through the
// coordinator's non-throwing autosave. Run it in its own goroutine; Stop
// tears it down.
func (h *Hub) AutoSaveWorker() {
	ticker := time.NewTicker(AutoSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.flushDirty()
		}
	}
}

// Stop cancels the autosave worker. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) flushDirty() {
	type pending struct {
		ownerID string
		doc     model.Document
	}

	h.mu.Lock()
	toSave := make([]pending, 0, len(h.drafts))
	for _, d := range h.drafts {
		if d.dirty {
			toSave = append(toSave, pending{ownerID: d.ownerID, doc: d.doc})
		}
	}
	h.mu.Unlock()

	for _, p := range toSave {
		// AutoSave swallows its own failures; a flaky backend must not
		// stop the ticker.
		h.coordinator.AutoSave(context.Background(), p.ownerID, p.doc)

		h.mu.Lock()
		// Only mark clean if the draft hasn't moved since the snapshot.
		if d := h.drafts[p.doc.ID]; d != nil &&
			d.doc.Content == p.doc.Content && d.doc.Title == p.doc.Title {
			d.dirty = false
		}
		h.mu.Unlock()
	}
}

// RemoveDocument forcefully drops a document's room and disconnects its
// sessions. Called by the coordinator when the document is deleted, so a
// stale draft cannot autosave it back into existence.
func (h *Hub) RemoveDocument(docID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.drafts, docID)
	delete(h.Presence, docID)

	if clients, ok := h.Rooms[docID]; ok {
		for client := range clients {
			client.Conn.Close() // readPump exits and unregisters safely
		}
		delete(h.Rooms, docID)
	}
}

func (h *Hub) broadcastPresenceUpdate(docID string) {
	var userStatuses []UserStatus
	var clientsToSend []*Client

	h.mu.Lock()
	if _, ok := h.Presence[docID]; ok {
		userStatuses = make([]UserStatus, 0, len(h.Presence[docID]))
		for _, status := range h.Presence[docID] {
			userStatuses = append(userStatuses, status)
		}
		clientsToSend = make([]*Client, 0, len(h.Rooms[docID]))
		for client := range h.Rooms[docID] {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.mu.Unlock()

	if len(clientsToSend) == 0 {
		return
	}

	payload, err := json.Marshal(userStatuses)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}
	broadcastPayload, _ := json.Marshal(WSMessage{Type: PresenceUpdateType, DocID: docID, Payload: payload})

	for _, client := range clientsToSend {
		select {
		case client.Send <- broadcastPayload:
		default:
			logger.Sugar.Warnf("Client %s's send buffer was full during presence update.", client.UserID)
		}
	}
}
