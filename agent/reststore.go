package agent

import (
	"context"
	"fmt"
	"net/http"

	"syncspace/internal/document/model"

	"github.com/go-resty/resty/v2"
)

// RestStore implements Store against the document API.
type RestStore struct {
	client *resty.Client
}

func NewRestStore(baseURL, token string) *RestStore {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token)
	return &RestStore{client: client}
}

func (s *RestStore) Load(ctx context.Context, docID string) (*model.Document, error) {
	var doc model.Document
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("docId", docID).
		SetResult(&doc).
		Get("/api/documents")
	if err != nil {
		return nil, fmt.Errorf("agent: load %s: %w", docID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("agent: load %s: status %d", docID, resp.StatusCode())
	}
	return &doc, nil
}

func (s *RestStore) Save(ctx context.Context, docID string, snapshot []byte) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(model.SaveDocRequest{DocID: docID, Content: snapshot}).
		Post("/api/documents/save")
	if err != nil {
		return fmt.Errorf("agent: save %s: %w", docID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.IsError() {
		return fmt.Errorf("agent: save %s: status %d: %s", docID, resp.StatusCode(), resp.String())
	}
	return nil
}
