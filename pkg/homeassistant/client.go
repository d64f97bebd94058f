// Package homeassistant is the REST client for the Home Assistant hub.
package homeassistant

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/urmzd/hass-mcp/pkg/config"
	"github.com/urmzd/hass-mcp/pkg/device"
)

// maxBodySize bounds how much of a hub response is read.
const maxBodySize = 32 << 20

// Client talks to the Home Assistant REST API. Every method issues one
// live HTTP request; nothing is cached and nothing is retried.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  zerolog.Logger
}

var _ device.Hub = (*Client)(nil)

// NewClient creates a client for conn. TLS verification and the timeout
// are fixed for the lifetime of the client.
func NewClient(conn config.HubConnection, logger zerolog.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: !conn.VerifyTLS, //nolint:gosec // opt-out via VERIFY_SSL=false
	}

	return &Client{
		baseURL: conn.BaseURL,
		token:   conn.Token,
		http: &http.Client{
			Transport: transport,
			Timeout:   conn.Timeout,
		},
		logger: logger.With().Str("component", "homeassistant").Logger(),
	}
}

// ListStates returns every entity. Entities whose id has no domain are skipped.
func (c *Client) ListStates(ctx context.Context) ([]device.State, error) {
	var states []device.State
	if err := c.do(ctx, http.MethodGet, "/api/states", nil, &states); err != nil {
		return nil, err
	}

	out := make([]device.State, 0, len(states))
	for _, s := range states {
		if s.Domain() == "" {
			c.logger.Warn().Str("entity_id", s.EntityID).Msg("Skipping entity without domain")
			continue
		}
		out = append(out, s)
	}

	c.logger.Debug().Int("count", len(out)).Msg("Retrieved device states")
	return out, nil
}

// GetState returns a single entity, or device.ErrNotFound.
func (c *Client) GetState(ctx context.Context, entityID string) (*device.State, error) {
	var state device.State
	err := c.do(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil, &state)
	var statusErr *device.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil, device.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// CallService invokes <domain>.<service> and returns the states Home Assistant reports as changed.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) ([]device.State, error) {
	c.logger.Info().
		Str("service", domain+"."+service).
		Interface("entity_id", data["entity_id"]).
		Msg("Calling service")

	path := fmt.Sprintf("/api/services/%s/%s", url.PathEscape(domain), url.PathEscape(service))
	var changed []device.State
	if err := c.do(ctx, http.MethodPost, path, data, &changed); err != nil {
		return nil, err
	}
	if changed == nil {
		changed = []device.State{}
	}
	return changed, nil
}

// Ping checks that the API is reachable and the token is accepted.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/", nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		reason := classify(err)
		c.logger.Error().Err(err).Str("method", method).Str("path", path).Msg("Hub request failed")
		return &device.UnreachableError{Reason: reason}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Hub request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &device.StatusError{StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("Failed to decode hub response")
		return fmt.Errorf("%w: %s", device.ErrBadResponse, "invalid JSON")
	}
	return nil
}

// classify reduces a transport error to a message that carries neither the URL nor the token.
func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "connection failed"
}
