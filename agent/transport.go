package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"syncspace/delta"
	"syncspace/pkg/logger"
	"syncspace/socket"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
)

type EventType int

const (
	EventDelta EventType = iota
	EventCursor
	EventPresence
	EventMetadata
)

// Event is one inbound realtime notification, decoded from the wire
// envelope. Only the field matching Type is populated.
type Event struct {
	Type      EventType
	SessionID string
	Delta     delta.Delta
	Range     delta.Range
	Members   []socket.Member
	Meta      socket.MetadataPayload
}

// Transport carries the realtime traffic for one joined room.
type Transport interface {
	Events() <-chan Event
	SendDelta(d delta.Delta) error
	SendCursor(r delta.Range) error
	Close() error
}

// WSTransport talks to the relay over a websocket. Joining the room is
// implicit in the dial: the docId query parameter selects the room.
type WSTransport struct {
	conn   *websocket.Conn
	docID  string
	events chan Event

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the relay and joins docID's room, retrying transient
// dial failures with exponential backoff.
func Dial(baseURL, docID, token string) (*WSTransport, error) {
	wsURL := fmt.Sprintf("%s/ws?docId=%s&token=%s",
		baseURL, url.QueryEscape(docID), url.QueryEscape(token))

	var conn *websocket.Conn
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 15 * time.Second
	err := backoff.Retry(func() error {
		var resp *http.Response
		var dialErr error
		conn, resp, dialErr = websocket.DefaultDialer.Dial(wsURL, nil)
		if dialErr != nil && resp != nil {
			// The relay answered and refused, e.g. an unknown document.
			// Retrying will not help.
			return backoff.Permanent(dialErr)
		}
		return dialErr
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("agent: dial %s: %w", baseURL, err)
	}

	t := &WSTransport{
		conn:   conn,
		docID:  docID,
		events: make(chan Event, 64),
	}
	go t.readLoop()
	return t, nil
}

func (t *WSTransport) Events() <-chan Event {
	return t.events
}

func (t *WSTransport) readLoop() {
	defer close(t.events)
	for {
		var msg socket.WSMessage
		if err := t.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Sugar.Warnf("transport read error: %v", err)
			}
			return
		}
		if msg.DocID != t.docID {
			continue
		}

		ev := Event{SessionID: msg.SessionID}
		var err error
		switch msg.Type {
		case socket.ChangesType:
			ev.Type = EventDelta
			err = json.Unmarshal(msg.Payload, &ev.Delta)
		case socket.CursorType:
			ev.Type = EventCursor
			err = json.Unmarshal(msg.Payload, &ev.Range)
		case socket.PresenceType:
			ev.Type = EventPresence
			err = json.Unmarshal(msg.Payload, &ev.Members)
		case socket.MetadataType:
			ev.Type = EventMetadata
			err = json.Unmarshal(msg.Payload, &ev.Meta)
		default:
			continue
		}
		if err != nil {
			logger.Sugar.Errorf("bad %s payload: %v", msg.Type, err)
			continue
		}
		t.events <- ev
	}
}

func (t *WSTransport) SendDelta(d delta.Delta) error {
	return t.send(socket.ChangesType, d)
}

func (t *WSTransport) SendCursor(r delta.Range) error {
	return t.send(socket.CursorType, r)
}

func (t *WSTransport) send(msgType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(socket.WSMessage{
		Type:    msgType,
		DocID:   t.docID,
		Payload: raw,
	})
}

func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
	})
	return err
}
