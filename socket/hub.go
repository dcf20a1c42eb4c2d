package socket

import (
	"encoding/json"
	"math/rand"
	"sync"

	"syncspace/internal/document/model"
	"syncspace/pkg/logger"
)

// MetadataLoader is the slice of the document store the hub needs at join
// time. Access control happens before a join is attempted; the hub only
// rejects documents that do not exist.
type MetadataLoader interface {
	LoadMetadata(docID string) (*model.Metadata, error)
}

// Publisher fans a message out to other relay instances. Implemented by
// the Redis bridge; nil when running a single instance.
type Publisher interface {
	Publish(msg WSMessage)
}

// memberColors is the palette cursors and avatars are tinted with. A color
// is picked at random per join with no collision avoidance, so the same
// user may look different across sessions.
var memberColors = []string{
	"#e06c75", "#61afef", "#98c379", "#c678dd",
	"#e5c07b", "#56b6c2", "#d19a66", "#be5046",
}

type Hub struct {
	Rooms      map[string]map[*Client]bool
	Broadcast  chan WSMessage
	Register   chan *Client
	Unregister chan *Client

	// inject carries messages republished by other relay instances; they
	// are routed locally but never re-published to the bridge.
	inject chan WSMessage

	meta   MetadataLoader
	bridge Publisher
	mu     sync.Mutex

	Presence map[string]map[string]Member // docID -> sessionID -> tuple
}

func NewHub(meta MetadataLoader) *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Broadcast:  make(chan WSMessage),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		inject:     make(chan WSMessage, 64),
		meta:       meta,
		Presence:   make(map[string]map[string]Member),
	}
}

// SetBridge attaches a cross-instance publisher. Must be called before Run.
func (h *Hub) SetBridge(b Publisher) {
	h.bridge = b
}

// InjectRemote routes a message that originated on another relay instance.
func (h *Hub) InjectRemote(msg WSMessage) {
	h.inject <- msg
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.Rooms[client.DocID] == nil {
				h.Rooms[client.DocID] = make(map[*Client]bool)
				h.Presence[client.DocID] = make(map[string]Member)
			}
			// Re-join with the same session id replaces the prior membership.
			// The stale socket is closed too, so its readPump stops speaking
			// for the reused session id.
			for existing := range h.Rooms[client.DocID] {
				if existing.SessionID == client.SessionID {
					delete(h.Rooms[client.DocID], existing)
					delete(h.Presence[client.DocID], existing.SessionID)
					close(existing.Send)
					existing.Conn.Close()
				}
			}
			h.Rooms[client.DocID][client] = true
			h.Presence[client.DocID][client.SessionID] = client.Member
			h.mu.Unlock()

			// Send the document metadata and the session's own tuple so the
			// client learns its server-assigned session id.
			metaPayload, _ := json.Marshal(MetadataPayload{
				Title:   client.Title,
				Icon:    client.Icon,
				InTrash: client.InTrash,
				Self:    client.Member,
			})
			metaMsg, _ := json.Marshal(WSMessage{
				Type:      MetadataType,
				DocID:     client.DocID,
				SessionID: client.SessionID,
				Payload:   metaPayload,
			})
			client.Send <- metaMsg

			// Everyone, the new session included, gets the full member list.
			h.broadcastPresenceUpdate(client.DocID)

		case client := <-h.Unregister:
			h.mu.Lock()
			docID := client.DocID
			if _, ok := h.Rooms[client.DocID][client]; ok {
				delete(h.Rooms[client.DocID], client)
				delete(h.Presence[client.DocID], client.SessionID)
				close(client.Send)

				if len(h.Rooms[client.DocID]) == 0 {
					delete(h.Rooms, client.DocID)
					delete(h.Presence, client.DocID)
					logger.Sugar.Infof("Closed empty room: %s", client.DocID)
				}
			}
			h.mu.Unlock()

			if h.roomExists(docID) {
				h.broadcastPresenceUpdate(docID)
			}

		case msg := <-h.Broadcast:
			h.fanOut(msg)
			if h.bridge != nil {
				h.bridge.Publish(msg)
			}

		case msg := <-h.inject:
			h.fanOut(msg)
		}
	}
}

// fanOut delivers a message to every session in the room except its
// source. Only the Run goroutine may call it: its sends must stay
// serialized with the Send closes Run performs on unregister.
func (h *Hub) fanOut(msg WSMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling broadcast message: %v", err)
		return
	}

	h.mu.Lock()
	clientsToSend := make([]*Client, 0, len(h.Rooms[msg.DocID]))
	for client := range h.Rooms[msg.DocID] {
		if client.SessionID != msg.SessionID {
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.mu.Unlock()

	// Send outside the lock; per-client channels keep per-source order.
	for _, client := range clientsToSend {
		select {
		case client.Send <- payload:
		default:
			// Full send buffer means the client is lagging. Drop it so the
			// hub never blocks; it will resync from the store on reload.
			logger.Sugar.Warnf("Session %s's send buffer is full. Unregistering.", client.SessionID)
			go func(c *Client) { h.Unregister <- c }(client)
		}
	}
}

func (h *Hub) roomExists(docID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Rooms[docID] != nil
}

// CloseRoom disconnects every session in a document's room. Called when a
// document is purged so no one keeps editing a deleted document.
func (h *Hub) CloseRoom(docID string) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.Rooms[docID]))
	for client := range h.Rooms[docID] {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.Conn.Close() // readPump exits and unregisters safely
	}
}

// BroadcastMetadata pushes updated document metadata to a room, e.g. after
// a title change or a trash/restore. It is called from handler goroutines,
// so the message goes through the hub loop: only that loop may send on a
// Send channel it also closes.
func (h *Hub) BroadcastMetadata(docID string, meta *model.Metadata) {
	payload, err := json.Marshal(meta)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling metadata broadcast: %v", err)
		return
	}
	h.Broadcast <- WSMessage{Type: MetadataType, DocID: docID, Payload: payload}
}

func (h *Hub) broadcastPresenceUpdate(docID string) {
	var members []Member
	var clientsToSend []*Client

	h.mu.Lock()
	if _, ok := h.Presence[docID]; ok {
		members = make([]Member, 0, len(h.Presence[docID]))
		for _, m := range h.Presence[docID] {
			members = append(members, m)
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

	payload, err := json.Marshal(members)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling presence broadcast: %v", err)
		return
	}
	broadcastPayload, _ := json.Marshal(WSMessage{Type: PresenceType, DocID: docID, Payload: payload})

	for _, client := range clientsToSend {
		select {
		case client.Send <- broadcastPayload:
		default:
			// Don't unregister here, just log. The pumps handle unresponsive clients.
			logger.Sugar.Warnf("Session %s's send buffer was full during presence update.", client.SessionID)
		}
	}
}

func pickColor() string {
	return memberColors[rand.Intn(len(memberColors))]
}
