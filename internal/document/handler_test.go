package document

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"syncspace/internal/document/model"
	"syncspace/internal/document/repository"
	"syncspace/internal/document/service"
	"syncspace/middleware"
	"syncspace/pkg/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

func newHandler(t *testing.T) (*DocumentHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	svc := service.NewDocumentService(repository.NewDocumentRepository(db), nil)
	return NewDocumentHandler(svc), mock
}

func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, "user1")
	ctx = context.WithValue(ctx, middleware.EmailKey, "alice@example.com")
	return req.WithContext(ctx)
}

const metadataQuery = `SELECT id, title, icon, banner_ref, in_trash, parent_id, updated_at FROM documents WHERE id = \$1`

func metadataRows(inTrash string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "icon", "banner_ref", "in_trash", "parent_id", "updated_at"}).
		AddRow("doc-1", "Notes", "", "", inTrash, "ws-1", time.Now())
}

func TestSaveDocumentEndpoint(t *testing.T) {
	h, mock := newHandler(t)

	mock.ExpectQuery(metadataQuery).WithArgs("doc-1").WillReturnRows(metadataRows(""))
	mock.ExpectExec(`UPDATE documents SET content = \$1, updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs(`{"ops":[{"insert":"hello"}]}`, "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(model.SaveDocRequest{
		DocID:   "doc-1",
		Content: json.RawMessage(`{"ops":[{"insert":"hello"}]}`),
	})
	rec := httptest.NewRecorder()
	h.SaveDocument(rec, authedRequest(http.MethodPost, "/api/documents/save", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDocumentAllowedWhenTrashed(t *testing.T) {
	h, mock := newHandler(t)

	// A trashed document keeps autosaving while open behind the restore
	// banner; the marker never blocks writes.
	mock.ExpectQuery(metadataQuery).WithArgs("doc-1").
		WillReturnRows(metadataRows("Deleted by bob@example.com"))
	mock.ExpectExec(`UPDATE documents SET content = \$1, updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs(`{"ops":[]}`, "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(model.SaveDocRequest{
		DocID:   "doc-1",
		Content: json.RawMessage(`{"ops":[]}`),
	})
	rec := httptest.NewRecorder()
	h.SaveDocument(rec, authedRequest(http.MethodPost, "/api/documents/save", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocumentNotFound(t *testing.T) {
	h, mock := newHandler(t)

	mock.ExpectQuery(`SELECT id, title, icon, banner_ref, in_trash, parent_id, content, updated_at FROM documents WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := httptest.NewRecorder()
	h.GetDocument(rec, authedRequest(http.MethodGet, "/api/documents?docId=missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrashDefaultsReasonToUserEmail(t *testing.T) {
	h, mock := newHandler(t)

	mock.ExpectExec(`UPDATE documents SET in_trash = \$1, updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs("Deleted by alice@example.com", "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(model.TrashRequest{DocID: "doc-1"})
	rec := httptest.NewRecorder()
	h.TrashDocument(rec, authedRequest(http.MethodPost, "/api/documents/trash", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreClearsTrashMarker(t *testing.T) {
	h, mock := newHandler(t)

	mock.ExpectExec(`UPDATE documents SET in_trash = \$1, updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs("", "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(model.TrashRequest{DocID: "doc-1"})
	rec := httptest.NewRecorder()
	h.RestoreDocument(rec, authedRequest(http.MethodPost, "/api/documents/restore", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMetadataRequiresAField(t *testing.T) {
	h, _ := newHandler(t)

	body, _ := json.Marshal(model.UpdateDocRequest{DocID: "doc-1"})
	rec := httptest.NewRecorder()
	h.UpdateDocument(rec, authedRequest(http.MethodPut, "/api/documents/update", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDocument(t *testing.T) {
	h, mock := newHandler(t)

	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs(sqlmock.AnyArg(), `{"ops":[]}`, "Untitled Document", "ws-1", "user1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(model.CreateDocRequest{ParentID: "ws-1"})
	rec := httptest.NewRecorder()
	h.CreateDocument(rec, authedRequest(http.MethodPost, "/api/documents/create", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp model.CreateDocResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.DocID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
