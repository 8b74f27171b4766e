package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MediaAPI is the consumed platform contract for attachment retrieval.
type MediaAPI interface {
	// ResolveDownloadURL exchanges a media id for a time-limited download
	// location.
	ResolveDownloadURL(ctx context.Context, mediaID, accessToken string) (string, error)
	// Download fetches the bytes behind a resolved location.
	Download(ctx context.Context, url, accessToken string) ([]byte, error)
}

// Client talks to the platform's Graph API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Graph API client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// ResolveDownloadURL asks the Graph API for the media's download location.
func (c *Client) ResolveDownloadURL(ctx context.Context, mediaID, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+mediaID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve media url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolve media url: status %d", resp.StatusCode)
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("resolve media url: %w", err)
	}
	if body.URL == "" {
		return "", fmt.Errorf("resolve media url: empty url for media %s", mediaID)
	}
	return body.URL, nil
}

// Download fetches the attachment bytes.
func (c *Client) Download(ctx context.Context, url, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download media: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
