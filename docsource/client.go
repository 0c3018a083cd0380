package docsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the document platform's HTTP API. It implements
// MetadataFetcher and ContentFetcher with a fixed attempt count and a
// short delay between attempts rather than a per-call timeout race.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	attempts   int
	retryDelay time.Duration
}

func NewClient(baseURL, token string, attempts int, retryDelay time.Duration) *Client {
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		attempts:   attempts,
		retryDelay: retryDelay,
	}
}

type metadataResponse struct {
	Title            string `json:"title"`
	OwnerID          string `json:"owner_id"`
	LastModifiedUser string `json:"latest_modify_user"`
	LastModifiedTime int64  `json:"latest_modify_time"`
}

type contentResponse struct {
	Content string `json:"content"`
}

// FetchMetadata returns the document's current metadata, or nil when the
// platform reports the document as gone (404).
func (c *Client) FetchMetadata(ctx context.Context, docToken, docType string) (*Metadata, error) {
	endpoint := fmt.Sprintf("%s/open-apis/doc/v2/meta/%s?doc_type=%s",
		c.baseURL, url.PathEscape(docToken), url.QueryEscape(docType))

	body, status, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata for %s: %w", docToken, err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("fetch metadata for %s: platform returned %d", docToken, status)
	}

	var meta metadataResponse
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", docToken, err)
	}

	return &Metadata{
		Title:            meta.Title,
		OwnerID:          meta.OwnerID,
		LastModifiedUser: meta.LastModifiedUser,
		LastModifiedTime: meta.LastModifiedTime,
	}, nil
}

// FetchContent downloads the document's raw content. Documents the platform
// no longer knows about yield an empty string and no error.
func (c *Client) FetchContent(ctx context.Context, docToken, docType string) (string, error) {
	endpoint := fmt.Sprintf("%s/open-apis/doc/v2/%s/raw_content?doc_type=%s",
		c.baseURL, url.PathEscape(docToken), url.QueryEscape(docType))

	body, status, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		return "", fmt.Errorf("fetch content for %s: %w", docToken, err)
	}
	if status == http.StatusNotFound {
		return "", nil
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("fetch content for %s: platform returned %d", docToken, status)
	}

	var content contentResponse
	if err := json.Unmarshal(body, &content); err != nil {
		return "", fmt.Errorf("decode content for %s: %w", docToken, err)
	}
	return content.Content, nil
}

type sendMessageRequest struct {
	ChatID  string `json:"chat_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Notify sends a change announcement to a chat. Card layout and richer
// formatting are the chat platform's concern; this posts title and body.
func (c *Client) Notify(ctx context.Context, chatID, title, content string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: chatID, Title: title, Content: content})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	endpoint := c.baseURL + "/open-apis/message/v4/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification to %s: %w", chatID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification to %s returned %d", chatID, resp.StatusCode)
	}
	return nil
}

// getWithRetry performs a GET with a fixed number of attempts. Only
// transport errors and 5xx responses are retried; 4xx is returned to the
// caller immediately since retrying cannot change the outcome.
func (c *Client) getWithRetry(ctx context.Context, endpoint string) ([]byte, int, error) {
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		body, status, err := c.get(ctx, endpoint)
		if err != nil {
			lastErr = err
			log.Printf("docsource: attempt %d/%d failed for %s: %v", attempt, c.attempts, endpoint, err)
			continue
		}
		if status >= 500 {
			lastErr = fmt.Errorf("server returned %d", status)
			log.Printf("docsource: attempt %d/%d got %d from %s", attempt, c.attempts, status, endpoint)
			continue
		}
		return body, status, nil
	}

	return nil, 0, fmt.Errorf("all %d attempts failed: %w", c.attempts, lastErr)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}
