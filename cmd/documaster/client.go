package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/documaster/internal/models"
)

// apiClient talks to a running documaster server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Minute},
	}
}

// apiError is a non-2xx reply from the server.
type apiError struct {
	Status   int
	Class    string
	Messages []string
}

func (e *apiError) Error() string {
	if e.Class == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Class, strings.Join(e.Messages, "; "))
}

func (c *apiClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{Status: resp.StatusCode}
		var er struct {
			Error    string   `json:"error"`
			Messages []string `json:"messages"`
		}
		if b, _ := io.ReadAll(resp.Body); json.Unmarshal(b, &er) == nil {
			apiErr.Class, apiErr.Messages = er.Error, er.Messages
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	return c.do(ctx, method, path, "application/json", body, out)
}

func (c *apiClient) Ask(ctx context.Context, req models.QARequest) (*models.QAResult, error) {
	var res models.QAResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/qa", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *apiClient) Chunks(ctx context.Context, documentID, collection string) ([]models.DocumentChunk, error) {
	path := "/api/v1/documents/" + url.PathEscape(documentID) + "/chunks"
	if collection != "" {
		path += "?collection=" + url.QueryEscape(collection)
	}
	var out struct {
		Chunks []models.DocumentChunk `json:"chunks"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Chunks, nil
}

func (c *apiClient) Documents(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	var out struct {
		Documents []*models.Document `json:"documents"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/documents?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

func (c *apiClient) Delete(ctx context.Context, documentID, collection string) (int, error) {
	path := "/api/v1/documents/" + url.PathEscape(documentID)
	if collection != "" {
		path += "?collection=" + url.QueryEscape(collection)
	}
	var out struct {
		DeletedChunks int `json:"deleted_chunks"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return 0, err
	}
	return out.DeletedChunks, nil
}

func (c *apiClient) Status(ctx context.Context) (*statusResponse, error) {
	var s statusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/status", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Upload sends a file to the server and returns the new document id and chunk count.
func (c *apiClient) Upload(ctx context.Context, path, collection string) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", 0, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", 0, err
	}
	if collection != "" {
		if err := mw.WriteField("collection", collection); err != nil {
			return "", 0, err
		}
	}
	if err := mw.Close(); err != nil {
		return "", 0, err
	}
	var out struct {
		DocumentID string `json:"document_id"`
		Chunks     int    `json:"chunks"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents", mw.FormDataContentType(), &buf, &out); err != nil {
		return "", 0, err
	}
	return out.DocumentID, out.Chunks, nil
}

func (c *apiClient) WatchList(ctx context.Context) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/watch/directories", nil, &out); err != nil {
		return nil, err
	}
	return out.Directories, nil
}

func (c *apiClient) WatchAdd(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/watch/directories", map[string]any{"path": path, "sync": true}, nil)
}

func (c *apiClient) WatchRemove(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(path), nil, nil)
}
