package agent

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"syncspace/delta"
	"syncspace/internal/document/model"
	"syncspace/socket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubMeta serves the hub's join-time metadata lookup without a database.
type stubMeta struct {
	docs map[string]*model.Metadata
}

func (s *stubMeta) LoadMetadata(docID string) (*model.Metadata, error) {
	meta, ok := s.docs[docID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return meta, nil
}

// startRelay spins up a hub behind an httptest server. The test transport
// smuggles the user id through the token parameter since auth middleware
// is exercised separately.
func startRelay(t *testing.T, docs map[string]*model.Metadata) string {
	t.Helper()
	hub := socket.NewHub(&stubMeta{docs: docs})
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("token")
		socket.ServeWs(hub, w, r, userID, userID+"@example.com")
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func startWiredAgent(t *testing.T, wsURL, docID, user string, store Store, window time.Duration) *Agent {
	t.Helper()
	transport, err := Dial(wsURL, docID, user)
	require.NoError(t, err)

	a := New(docID, store, transport, Options{DebounceWindow: window})
	go a.Run(context.Background())
	require.Eventually(t, func() bool { return a.State() != StateLoading },
		time.Second, 5*time.Millisecond)
	t.Cleanup(a.Close)
	return a
}

func TestTwoAgentsOverWebsocket(t *testing.T) {
	docID := "doc1"
	docs := map[string]*model.Metadata{
		docID: {ID: docID, Title: "Shared", ParentID: "ws-1"},
	}
	wsURL := startRelay(t, docs)

	storeA := newMemStore()
	storeA.put(docID, "ws-1", []byte(delta.EmptySnapshot))
	storeB := newMemStore()
	storeB.put(docID, "ws-1", []byte(delta.EmptySnapshot))

	agentA := startWiredAgent(t, wsURL, docID, "alice", storeA, 80*time.Millisecond)
	agentB := startWiredAgent(t, wsURL, docID, "bob", storeB, 80*time.Millisecond)

	// The join handshake assigns both agents their session ids, and both
	// end up with the same two-member presence snapshot.
	require.Eventually(t, func() bool {
		return agentA.SessionID() != "" && agentB.SessionID() != ""
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(agentA.Members()) == 2 && len(agentB.Members()) == 2
	}, time.Second, 5*time.Millisecond)

	// Alice types "hello" as a burst of single-rune edits.
	for i, r := range "hello" {
		require.NoError(t, agentA.Edit(delta.Insert(i, string(r))))
	}

	// Bob's document converges without Bob ever saving.
	require.Eventually(t, func() bool { return agentB.Text() == "hello" },
		time.Second, 5*time.Millisecond)
	assert.Zero(t, storeB.saveCount(), "remote deltas must not trigger a save")

	// Alice's burst persists as exactly one snapshot equal to "hello".
	require.Eventually(t, func() bool { return storeA.saveCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "hello", textOf(t, storeA.content(docID)))

	// Cursor moves travel independently of the save path.
	agentA.MoveCursor(delta.Range{Anchor: 0, Head: 5})
	require.Eventually(t, func() bool {
		r, ok := agentB.Cursors()[agentA.SessionID()]
		return ok && r == delta.Range{Anchor: 0, Head: 5}
	}, time.Second, 5*time.Millisecond)

	// Alice leaves: Bob's presence list shrinks within one sync cycle and
	// her cursor indicator is dropped with it.
	aliceSession := agentA.SessionID()
	agentA.Close()
	require.Eventually(t, func() bool {
		members := agentB.Members()
		return len(members) == 1 && members[0].SessionID != aliceSession
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := agentB.Cursors()[aliceSession]
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestAgentJoinUnknownDocumentFailsDial(t *testing.T) {
	wsURL := startRelay(t, map[string]*model.Metadata{})

	_, err := Dial(wsURL, "missing", "alice")
	require.Error(t, err, "the relay rejects rooms for unknown documents")
}
