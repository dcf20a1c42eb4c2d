package socket

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"syncspace/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows connections from the web client's dev server
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	DocID     string
	SessionID string
	Member    Member
	Send      chan []byte

	// document metadata captured at join time, echoed to the client
	Title   string
	Icon    string
	InTrash string
}

// displayName derives a presence name from the email local-part, falling
// back to the user id when no email claim was present.
func displayName(userID, email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	if email != "" {
		return email
	}
	return userID
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID, email string) {
	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId", http.StatusBadRequest)
		return
	}

	// A join against a missing document is rejected before the upgrade.
	// Trashed documents still accept joins: they stay open and editable
	// behind the client's restore banner.
	meta, err := hub.meta.LoadMetadata(docID)
	if err == sql.ErrNoRows {
		logger.Sugar.Warnf("Connection rejected: Document %s not found", docID)
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	} else if err != nil {
		logger.Sugar.Errorf("Database error loading metadata for %s: %v", docID, err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	sessionID := uuid.NewString()
	client := &Client{
		Hub:       hub,
		Conn:      conn,
		DocID:     docID,
		SessionID: sessionID,
		Member: Member{
			SessionID:   sessionID,
			UserID:      userID,
			DisplayName: displayName(userID, email),
			Color:       pickColor(),
			AvatarRef:   r.URL.Query().Get("avatar"),
		},
		Send:    make(chan []byte, 256),
		Title:   meta.Title,
		Icon:    meta.Icon,
		InTrash: meta.InTrash,
	}

	client.Hub.Register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, rawMessage, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(rawMessage, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}

		switch msg.Type {
		case ChangesType, CursorType:
		default:
			logger.Sugar.Warnf("Session %s sent unsupported message type %q", c.SessionID, msg.Type)
			continue
		}

		// Overwrite routing fields with server-authoritative values so a
		// client cannot speak for another session or another room.
		msg.DocID = c.DocID
		msg.SessionID = c.SessionID

		c.Hub.Broadcast <- msg
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second) // keepalive ping
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.Conn.WriteMessage(websocket.TextMessage, message)
		case <-ticker.C:
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // connection is dead
			}
		}
	}
}
