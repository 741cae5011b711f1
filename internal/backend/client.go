// Package backend speaks the download API's HTTP contract: session creation,
// status polling, and artifact retrieval. It is the only place that knows the
// wire shapes; everything above it works with internal/model types.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

const apiKeyHeader = "X-API-Key"

// StatusResponse is the JSON shape returned by both POST /download and
// GET /status/{id}. Unknown fields are ignored.
type StatusResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	URL       string `json:"url"`
	Filename  string `json:"filename,omitempty"`
	Error     string `json:"error,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"` // unix seconds
}

// ExpiresAtTime converts the wire expiry into a time.Time, zero when unset.
func (r *StatusResponse) ExpiresAtTime() time.Time {
	if r.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(r.ExpiresAt, 0)
}

// FileStream is an open artifact download. The caller owns Body.
type FileStream struct {
	Body          io.ReadCloser
	ContentLength int64 // -1 when the backend did not declare one
	ContentType   string
	Filename      string // from Content-Disposition when present
}

type downloadRequest struct {
	URL      string `json:"url"`
	Platform string `json:"platform"`
	Quality  string `json:"quality"`
}

// Client calls the backend API. The API key, when set, is attached to every
// request as an opaque credential.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: http.DefaultClient,
	}
}

// CreateDownload starts a session for the given video URL.
func (c *Client) CreateDownload(ctx context.Context, videoURL, platform, quality string) (*StatusResponse, error) {
	body, err := json.Marshal(downloadRequest{URL: videoURL, Platform: platform, Quality: quality})
	if err != nil {
		return nil, fmt.Errorf("backend: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/download", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.setAuth(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: create download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}
	return decodeStatus(resp.Body)
}

// GetStatus polls the current state of a session.
func (c *Client) GetStatus(ctx context.Context, sessionID string) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/status/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.setAuth(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: get status %s: %w", sessionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}
	return decodeStatus(resp.Body)
}

// FetchFile opens the artifact stream for a completed session.
func (c *Client) FetchFile(ctx context.Context, sessionID string) (*FileStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/file/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "video/mp4")
	c.setAuth(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: fetch file %s: %w", sessionID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	fs := &FileStream{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		ContentType:   resp.Header.Get("Content-Type"),
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			fs.Filename = params["filename"]
		}
	}
	return fs, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.APIKey)
	}
}

func decodeStatus(r io.Reader) (*StatusResponse, error) {
	var sr StatusResponse
	if err := json.NewDecoder(r).Decode(&sr); err != nil {
		return nil, fmt.Errorf("backend: decode status response: %w", err)
	}
	return &sr, nil
}
