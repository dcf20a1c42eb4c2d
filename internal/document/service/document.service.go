package service

import (
	"database/sql"
	"errors"

	"syncspace/delta"
	"syncspace/internal/document/model"
	"syncspace/internal/document/repository"
	"syncspace/socket"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("document not found")

type DocumentService struct {
	Repo *repository.DocumentRepository
	Hub  *socket.Hub
}

func NewDocumentService(repo *repository.DocumentRepository, hub *socket.Hub) *DocumentService {
	return &DocumentService{Repo: repo, Hub: hub}
}

func (s *DocumentService) CreateDocument(userID, title, parentID string) (string, error) {
	docID := uuid.NewString()
	if title == "" {
		title = "Untitled Document"
	}
	err := s.Repo.Create(docID, delta.EmptySnapshot, title, parentID, userID)
	return docID, err
}

func (s *DocumentService) LoadDocument(docID string) (*model.Document, error) {
	doc, err := s.Repo.Load(docID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *DocumentService) LoadMetadata(docID string) (*model.Metadata, error) {
	meta, err := s.Repo.LoadMetadata(docID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return meta, err
}

// SaveDocument overwrites the persisted snapshot wholesale. Concurrent
// saves from different sessions race and the last write wins; deltas were
// already relayed live, so no merge happens here. Trashed documents still
// save: trash is a view state, not a write lock.
func (s *DocumentService) SaveDocument(req model.SaveDocRequest) error {
	if _, err := s.LoadMetadata(req.DocID); err != nil {
		return err
	}
	return s.Repo.UpdateContent(req.DocID, string(req.Content))
}

// UpdateMetadata applies each present field as its own atomic column
// update, never touching the content snapshot.
func (s *DocumentService) UpdateMetadata(req model.UpdateDocRequest) error {
	apply := func(set func(string, string) (int64, error), value *string) error {
		if value == nil {
			return nil
		}
		rows, err := set(req.DocID, *value)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNotFound
		}
		return nil
	}
	if err := apply(s.Repo.SetTitle, req.Title); err != nil {
		return err
	}
	if err := apply(s.Repo.SetIcon, req.Icon); err != nil {
		return err
	}
	if err := apply(s.Repo.SetBanner, req.BannerRef); err != nil {
		return err
	}
	s.notifyMetadata(req.DocID)
	return nil
}

// TrashDocument soft-deletes: a non-empty marker flags the document as
// trashed, the row itself stays.
func (s *DocumentService) TrashDocument(docID, reason string) error {
	if reason == "" {
		reason = "Deleted"
	}
	rows, err := s.Repo.SetTrash(docID, reason)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	s.notifyMetadata(docID)
	return nil
}

func (s *DocumentService) RestoreDocument(docID string) error {
	rows, err := s.Repo.SetTrash(docID, "")
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	s.notifyMetadata(docID)
	return nil
}

// PurgeDocument hard-deletes and kicks every live session out of the room.
func (s *DocumentService) PurgeDocument(docID string) error {
	if err := s.Repo.Purge(docID); err != nil {
		return err
	}
	if s.Hub != nil {
		s.Hub.CloseRoom(docID)
	}
	return nil
}

func (s *DocumentService) notifyMetadata(docID string) {
	if s.Hub == nil {
		return
	}
	meta, err := s.Repo.LoadMetadata(docID)
	if err != nil {
		return
	}
	s.Hub.BroadcastMetadata(docID, meta)
}
