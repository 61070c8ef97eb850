package manuscript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Error kinds reported by the client. Transport failures surface as
// ErrKindNetwork; everything else comes from the server's error envelope.
const (
	ErrKindNetwork        = "NETWORK_ERROR"
	ErrKindSessionExpired = "SESSION_EXPIRED"
	ErrKindUnauthorized   = "UNAUTHORIZED"
	ErrKindForbidden      = "FORBIDDEN"
	ErrKindNotFound       = "NOT_FOUND"
	ErrKindServer         = "SERVER_ERROR"
	ErrKindInvalidFormat  = "INVALID_FORMAT"
)

// Error is a classified client error.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ErrKind classifies an error returned by the client; non-client errors
// report as SERVER_ERROR.
func ErrKind(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ErrKindServer
}

// Document is a document read projection.
type Document struct {
	ID        string          `json:"id"`
	Content   json.RawMessage `json:"content"`
	WordCount int             `json:"wordCount"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Snapshot is a snapshot read projection.
type Snapshot struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"documentId"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	WordCount   int               `json:"wordCount"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// RestoreResult reports a completed restore.
type RestoreResult struct {
	Success      bool      `json:"success"`
	DocumentID   string    `json:"documentId"`
	RestoredFrom string    `json:"restoredFrom"`
	RestoredAt   time.Time `json:"restoredAt"`
}

// Client talks to the manuscript REST API.
type Client struct {
	baseURL string
	token   string
	userID  string
	http    *http.Client
}

func NewClient(baseURL, token, userID string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		userID:  userID,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) docPath(id DocID) string {
	if id.Worldbuilding {
		return fmt.Sprintf("/v1/projects/%s/%s/worldbuilding/%s",
			url.PathEscape(id.Owner), url.PathEscape(id.Project), url.PathEscape(id.Doc))
	}
	return fmt.Sprintf("/v1/projects/%s/%s/documents/%s",
		url.PathEscape(id.Owner), url.PathEscape(id.Project), url.PathEscape(id.Doc))
}

// GetDocument fetches one document with its content.
func (c *Client) GetDocument(ctx context.Context, id DocID) (*Document, error) {
	var doc Document
	if err := c.do(ctx, http.MethodGet, c.docPath(id), nil, "", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments lists a project's documents, without content.
func (c *Client) ListDocuments(ctx context.Context, owner, project string) ([]*Document, error) {
	var out struct {
		Documents []*Document `json:"documents"`
	}
	path := fmt.Sprintf("/v1/projects/%s/%s/documents", url.PathEscape(owner), url.PathEscape(project))
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// DeleteDocument removes a document.
func (c *Client) DeleteDocument(ctx context.Context, id DocID) error {
	return c.do(ctx, http.MethodDelete, c.docPath(id), nil, "", nil)
}

// PushState merges a full binary state log into the server document.
func (c *Client) PushState(ctx context.Context, id DocID, state []byte) error {
	return c.do(ctx, http.MethodPut, c.docPath(id)+"/state", bytes.NewReader(state), "application/octet-stream", nil)
}

// CreateSnapshot captures a named snapshot of the document.
func (c *Client) CreateSnapshot(ctx context.Context, id DocID, name, description string, metadata map[string]string) (*Snapshot, error) {
	body, err := json.Marshal(map[string]interface{}{
		"name":        name,
		"description": description,
		"metadata":    metadata,
	})
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := c.do(ctx, http.MethodPost, c.docPath(id)+"/snapshots", bytes.NewReader(body), "application/json", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListSnapshots pages through the document's snapshots.
func (c *Client) ListSnapshots(ctx context.Context, id DocID, limit, offset int) ([]*Snapshot, int64, error) {
	var out struct {
		Snapshots []*Snapshot `json:"snapshots"`
		Total     int64       `json:"total"`
	}
	path := c.docPath(id) + "/snapshots?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, 0, err
	}
	return out.Snapshots, out.Total, nil
}

// DeleteSnapshot removes one snapshot.
func (c *Client) DeleteSnapshot(ctx context.Context, id DocID, snapshotID string) error {
	return c.do(ctx, http.MethodDelete, c.docPath(id)+"/snapshots/"+url.PathEscape(snapshotID), nil, "", nil)
}

// RestoreSnapshot restores the document to a snapshot's content.
func (c *Client) RestoreSnapshot(ctx context.Context, id DocID, snapshotID string) (*RestoreResult, error) {
	var result RestoreResult
	path := c.docPath(id) + "/snapshots/" + url.PathEscape(snapshotID) + "/restore"
	if err := c.do(ctx, http.MethodPost, path, nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-User-ID", c.userID)

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: ErrKindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.classify(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: ErrKindInvalidFormat, Message: "failed to decode response: " + err.Error()}
	}
	return nil
}

// classify maps an error response onto the client taxonomy. The server's
// envelope kind wins when present; otherwise the status code decides. A
// 401 on an authenticated client means the session expired.
func (c *Client) classify(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}

	kind := ""
	message := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Kind != "" {
		kind = envelope.Error.Kind
		message = envelope.Error.Message
	}

	if kind == "" {
		switch resp.StatusCode {
		case http.StatusBadRequest:
			kind = ErrKindInvalidFormat
		case http.StatusUnauthorized:
			kind = ErrKindUnauthorized
		case http.StatusForbidden:
			kind = ErrKindForbidden
		case http.StatusNotFound:
			kind = ErrKindNotFound
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			kind = ErrKindNetwork
		default:
			kind = ErrKindServer
		}
	}
	if kind == ErrKindUnauthorized && c.token != "" {
		kind = ErrKindSessionExpired
	}

	return &Error{Kind: kind, Message: message}
}
