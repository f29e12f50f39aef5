// Package facerestore is a thin client for an external face-restoration
// service. The service sharpens low-quality avatars before face matching;
// when unconfigured or unreachable the caller falls back to the original
// image.
package facerestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"
)

// defaultFidelity trades identity preservation against smoothing.
const defaultFidelity = 0.7

// Client talks to the restoration endpoint. A nil Client is a valid
// no-op restorer.
type Client struct {
	url      string
	fidelity float64
	http     *http.Client
}

// New builds a client for the given endpoint; empty url yields nil.
func New(url string, timeout time.Duration) *Client {
	if url == "" {
		return nil
	}
	return &Client{
		url:      url,
		fidelity: defaultFidelity,
		http:     &http.Client{Timeout: timeout, Transport: cleanhttp.DefaultPooledTransport()},
	}
}

// Restore sends the encoded image and returns the restored bytes. One
// retry covers transient failures; anything else reports an error so the
// caller can fall back to the original image.
func (c *Client) Restore(ctx context.Context, image []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("restorer not configured")
	}
	payload, err := json.Marshal(map[string]any{
		"image":    base64.StdEncoding.EncodeToString(image),
		"fidelity": c.fidelity,
		"task":     "face_restoration",
	})
	if err != nil {
		return nil, err
	}

	var out []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("restore status %d", resp.StatusCode)
		}
		var reply struct {
			Image string `json:"image"`
		}
		if err := json.Unmarshal(body, &reply); err != nil || reply.Image == "" {
			return backoff.Permanent(fmt.Errorf("unexpected restore response"))
		}
		decoded, err := base64.StdEncoding.DecodeString(reply.Image)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("restore payload not base64"))
		}
		out = decoded
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return out, nil
}
