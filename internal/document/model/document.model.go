package model

import (
	"encoding/json"
	"time"
)

type Document struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Icon      string          `json:"icon"`
	BannerRef string          `json:"banner_ref,omitempty"`
	InTrash   string          `json:"in_trash,omitempty"`
	ParentID  string          `json:"parent_id"`
	Content   json.RawMessage `json:"content"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Metadata struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Icon      string    `json:"icon"`
	BannerRef string    `json:"banner_ref,omitempty"`
	InTrash   string    `json:"in_trash,omitempty"`
	ParentID  string    `json:"parent_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateDocRequest struct {
	Title    string `json:"title"`
	ParentID string `json:"parent_id"`
}

type CreateDocResponse struct {
	DocID string `json:"document_id"`
}

type SaveDocRequest struct {
	DocID   string          `json:"document_id"`
	Content json.RawMessage `json:"content"`
}

// UpdateDocRequest carries independently settable metadata fields.
// Nil fields are left untouched.
type UpdateDocRequest struct {
	DocID     string  `json:"document_id"`
	Title     *string `json:"title,omitempty"`
	Icon      *string `json:"icon,omitempty"`
	BannerRef *string `json:"banner_ref,omitempty"`
}

type TrashRequest struct {
	DocID  string `json:"document_id"`
	Reason string `json:"reason"`
}
