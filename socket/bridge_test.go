package socket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"syncspace/delta"
	"syncspace/internal/document/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startBridgedInstance builds one relay instance wired to the shared
// Redis, mirroring the production setup order: bridge before Run.
func startBridgedInstance(t *testing.T, redisAddr string) (sqlmock.Sqlmock, string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hub := NewHub(repository.NewDocumentRepository(db))
	bridge, err := NewBridge(redisAddr, hub)
	require.NoError(t, err)
	t.Cleanup(bridge.Close)
	hub.SetBridge(bridge)
	go bridge.Run()
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		email := r.URL.Query().Get("email")
		ServeWs(hub, w, r, userID, email)
	}))
	t.Cleanup(server.Close)

	return mock, "ws" + strings.TrimPrefix(server.URL, "http")
}

// Two relay instances share a Redis; a delta emitted on one instance must
// reach sessions joined on the other, and never echo back to its source.
func TestBridgeRelaysAcrossInstances(t *testing.T) {
	rds := miniredis.RunT(t)
	docID := "doc-bridge"

	mockA, wsURLA := startBridgedInstance(t, rds.Addr())
	mockB, wsURLB := startBridgedInstance(t, rds.Addr())

	mockA.ExpectQuery(metadataQuery).WithArgs(docID).WillReturnRows(metadataRows(docID, "Shared"))
	connA := dialSession(t, wsURLA, docID, "user1", "alice@example.com")
	metaA := drainJoin(t, connA)

	mockB.ExpectQuery(metadataQuery).WithArgs(docID).WillReturnRows(metadataRows(docID, "Shared"))
	connB := dialSession(t, wsURLB, docID, "user2", "bob@example.com")
	drainJoin(t, connB)

	// Give both subscriptions time to become active.
	time.Sleep(100 * time.Millisecond)

	sendWS(t, connA, ChangesType, docID, delta.Insert(0, "X"))

	msg := readMessage(t, connB)
	require.Equal(t, ChangesType, msg.Type)
	assert.Equal(t, metaA.Self.SessionID, msg.SessionID)
	var got delta.Delta
	require.NoError(t, json.Unmarshal(msg.Payload, &got))
	assert.Equal(t, delta.Insert(0, "X"), got)

	// The originating session hears nothing back through its own bridge.
	expectNoMessage(t, connA)

	assert.NoError(t, mockA.ExpectationsWereMet())
	assert.NoError(t, mockB.ExpectationsWereMet())
}
