package mayan

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Client is a thin document-existence check against the Mayan EDMS REST API.
// The document store itself is an external collaborator; this service never
// touches document content.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

func NewClient(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Exists(ctx context.Context, documentID int) (bool, error) {
	url := fmt.Sprintf("%s/api/v4/documents/%d/", c.baseURL, documentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("mayan document check: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("mayan document check: unexpected status %d", resp.StatusCode)
	}
}
