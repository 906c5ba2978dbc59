// Package peerhttp sends protocol messages to other nodes over HTTP.
package peerhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/synapse/internal/domain/message"
	"github.com/kailas-cloud/synapse/internal/logger"
)

const defaultTimeout = 5 * time.Second

// StatusError is a non-2xx answer from a peer.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Path, e.StatusCode, e.Body)
}

// Client posts protocol messages to http://<address>/v1/...
type Client struct {
	http   *http.Client
	scheme string
}

// New creates a client. A nil httpClient gets a default one.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{http: httpClient, scheme: "http"}
}

// Forward delivers a FIND to its destination node.
func (c *Client) Forward(ctx context.Context, m message.Find) error {
	return c.post(ctx, m.Destination, "/v1/find", m, nil)
}

// Invite asks the node at address to accept m.Peer. Returns its decision.
func (c *Client) Invite(ctx context.Context, address string, m message.Invite) (bool, error) {
	var resp struct {
		Accepted bool `json:"accepted"`
	}
	if err := c.post(ctx, address, "/v1/invite", m, &resp); err != nil {
		return false, err
	}
	return resp.Accepted, nil
}

// Join tells the node at address that m.Peer joined.
func (c *Client) Join(ctx context.Context, address string, m message.Join) error {
	return c.post(ctx, address, "/v1/join", m, nil)
}

func (c *Client) post(ctx context.Context, address, path string, body, out any) error {
	if address == "" {
		return fmt.Errorf("%s: empty address", path)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(address, path), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s to %s: %w", path, address, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	logger.FromContext(ctx).Debug("Peer message delivered",
		zap.String("path", path),
		zap.String("address", address),
	)

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) url(address, path string) string {
	if strings.Contains(address, "://") {
		return strings.TrimRight(address, "/") + path
	}
	return c.scheme + "://" + address + path
}
