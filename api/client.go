package api

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// response is the envelope every endpoint replies with.
type response[T any] struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// gatewayIndexData is the payload of a successful index lookup.
type gatewayIndexData struct {
	URL string `json:"url"`
}

// Client looks up the gateway URL a bot should connect to, authenticating
// with the same bot token used for the websocket handshake.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a Client against baseURL (no trailing slash expected)
// authenticating requests with token.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// GatewayURL fetches the websocket URL a new connection should dial,
// requesting compression.
func (c *Client) GatewayURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/gateway/index?compress=1", nil)
	if err != nil {
		return "", fmt.Errorf("build gateway index request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway index request failed: %w", err)
	}
	defer resp.Body.Close()

	reader, err := decodingReader(resp)
	if err != nil {
		return "", fmt.Errorf("gateway index response encoding: %w", err)
	}
	if rc, ok := reader.(io.Closer); ok {
		defer rc.Close()
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read gateway index response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var r response[gatewayIndexData]
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("decode gateway index response: %w", err)
	}
	if r.Code != 0 {
		return "", &CodeNotZeroError{Code: r.Code, Message: r.Message}
	}

	c.logger.Debug("fetched gateway url", "url", r.Data.URL)
	return r.Data.URL, nil
}

// decodingReader wraps resp.Body according to its Content-Encoding. The
// http.Transport only auto-decompresses gzip when the caller never sets
// Accept-Encoding itself, so setting it to advertise deflate support means
// both encodings have to be unwrapped by hand.
func decodingReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return flate.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}
