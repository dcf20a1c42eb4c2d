package socket

import "encoding/json"

const (
	ChangesType  = "CHANGES"         // an editing delta from one session
	CursorType   = "CURSOR"          // a cursor/selection move
	PresenceType = "PRESENCE_UPDATE" // full member list of a room
	MetadataType = "METADATA"        // document title/icon/trash info
)

// WSMessage is the wire envelope for every realtime event. SessionID is
// server-authoritative: the hub stamps it on everything a client sends.
type WSMessage struct {
	Type      string          `json:"type"`
	DocID     string          `json:"document_id"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
}

// Member is one participant's presence tuple. The color is assigned
// pseudo-randomly at join time and is not stable across sessions.
type Member struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

// MetadataPayload is sent to a session right after it joins, carrying the
// document metadata and the session's own identity tuple.
type MetadataPayload struct {
	Title   string `json:"title"`
	Icon    string `json:"icon"`
	InTrash string `json:"in_trash,omitempty"`
	Self    Member `json:"self"`
}
