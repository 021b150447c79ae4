package webclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "oooz-bot (+https://github.com/oooz/oooz-bot)"

// NewDefault returns an HTTP client with a sane timeout.
func NewDefault(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// StatusError is returned for a final non-2xx response.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %.200s", e.URL, e.Status, e.Body)
}

// GetJSON fetches url, retrying transient failures, and decodes the body into
// out.
func GetJSON(ctx context.Context, client *http.Client, url string, attempts int, out any) error {
	body, _, err := get(ctx, client, url, attempts, "application/json", 32<<20)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", url, err)
	}
	return nil
}

// GetBytes downloads at most limit bytes from url and returns them with the
// response content type. A longer body is an error.
func GetBytes(ctx context.Context, client *http.Client, url string, attempts int, limit int64) ([]byte, string, error) {
	return get(ctx, client, url, attempts, "*/*", limit)
}

func get(ctx context.Context, client *http.Client, url string, attempts int, accept string, limit int64) ([]byte, string, error) {
	var contentType string
	status, body, err := DoWithRetry(ctx, attempts, 0, func() (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", accept)
		resp, err := client.Do(req)
		if err != nil {
			return 0, nil, err
		}
		defer resp.Body.Close()
		contentType = resp.Header.Get("Content-Type")
		body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		return resp.StatusCode, body, err
	})
	if err != nil {
		return nil, "", fmt.Errorf("GET %s: %w", url, err)
	}
	if status < 200 || status >= 300 {
		return nil, "", &StatusError{URL: url, Status: status, Body: string(body)}
	}
	if int64(len(body)) > limit {
		return nil, "", fmt.Errorf("GET %s: body exceeds %d bytes", url, limit)
	}
	return body, contentType, nil
}
