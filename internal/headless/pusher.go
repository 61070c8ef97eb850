package headless

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	manuscript "github.com/emrgen/manuscript"
	"github.com/emrgen/manuscript/internal/transport"
)

// HTTPStatePusher delivers document state over the REST state endpoint.
type HTTPStatePusher struct {
	client *http.Client
	userID string
}

func NewHTTPStatePusher(userID string) *HTTPStatePusher {
	return &HTTPStatePusher{
		client: &http.Client{Timeout: 30 * time.Second},
		userID: userID,
	}
}

func (p *HTTPStatePusher) Push(ctx context.Context, endpoint *transport.Endpoint, id manuscript.DocID, state []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint.PushURL, bytes.NewReader(state))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-User-ID", p.userID)
	if endpoint.Token != "" {
		req.Header.Set("Authorization", "Bearer "+endpoint.Token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push state for %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("state push for %s rejected with status %d", id, resp.StatusCode)
	}
	return nil
}
