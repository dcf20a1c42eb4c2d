package repository

import (
	"database/sql"

	"syncspace/internal/document/model"
	"syncspace/pkg/logger"
)

type DocumentRepository struct {
	DB *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

func (r *DocumentRepository) Create(id, content, title, parentID, createdBy string) error {
	_, err := r.DB.Exec(`INSERT INTO documents (id, content, title, parent_id, created_by, updated_at) VALUES ($1, $2, $3, $4, $5, NOW())`,
		id, content, title, parentID, createdBy)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
	}
	return err
}

func (r *DocumentRepository) Load(docID string) (*model.Document, error) {
	var doc model.Document
	var content []byte
	err := r.DB.QueryRow(`SELECT id, title, icon, banner_ref, in_trash, parent_id, content, updated_at FROM documents WHERE id = $1`, docID).
		Scan(&doc.ID, &doc.Title, &doc.Icon, &doc.BannerRef, &doc.InTrash, &doc.ParentID, &content, &doc.UpdatedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to load document %s: %v", docID, err)
		}
		return nil, err
	}
	doc.Content = content
	return &doc, nil
}

func (r *DocumentRepository) LoadMetadata(docID string) (*model.Metadata, error) {
	var meta model.Metadata
	err := r.DB.QueryRow(`SELECT id, title, icon, banner_ref, in_trash, parent_id, updated_at FROM documents WHERE id = $1`, docID).
		Scan(&meta.ID, &meta.Title, &meta.Icon, &meta.BannerRef, &meta.InTrash, &meta.ParentID, &meta.UpdatedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to load metadata for doc %s: %v", docID, err)
		}
		return nil, err
	}
	return &meta, nil
}

// UpdateContent overwrites the snapshot wholesale. Last write wins.
func (r *DocumentRepository) UpdateContent(docID, content string) error {
	_, err := r.DB.Exec(`UPDATE documents SET content = $1, updated_at = NOW() WHERE id = $2`, content, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to update content for doc %s: %v", docID, err)
	}
	return err
}

func (r *DocumentRepository) SetTitle(docID, title string) (int64, error) {
	return r.setField(docID, "title", title)
}

func (r *DocumentRepository) SetIcon(docID, icon string) (int64, error) {
	return r.setField(docID, "icon", icon)
}

func (r *DocumentRepository) SetBanner(docID, bannerRef string) (int64, error) {
	return r.setField(docID, "banner_ref", bannerRef)
}

// SetTrash stores the trash marker; an empty marker restores the document.
func (r *DocumentRepository) SetTrash(docID, marker string) (int64, error) {
	return r.setField(docID, "in_trash", marker)
}

func (r *DocumentRepository) setField(docID, column, value string) (int64, error) {
	// column names come from the fixed call sites above, never from input
	result, err := r.DB.Exec(`UPDATE documents SET `+column+` = $1, updated_at = NOW() WHERE id = $2`, value, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to update %s for doc %s: %v", column, docID, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (r *DocumentRepository) Purge(docID string) error {
	_, err := r.DB.Exec(`DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to purge doc %s: %v", docID, err)
	}
	return err
}
