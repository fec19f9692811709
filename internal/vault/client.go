// Package vault translates abstract vault operations into calls against the
// Obsidian Local REST API and maps its heterogeneous failure signals into a
// uniform error taxonomy.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/obsidian-tools/vaultbridge/internal/apperrors"
)

const (
	// HTTP client configuration.
	defaultTimeout = 30 * time.Second // Timeout for HTTP requests

	// Rate limiting configuration (~20 requests/second; the remote runs
	// inside the Obsidian process and degrades under bursts).
	rateLimitInterval = 50 * time.Millisecond

	// maxErrorBody caps how much of an error response is kept as a message.
	maxErrorBody = 4 << 10
)

// Client is a gateway to the Obsidian Local REST API with rate limiting.
// All methods are safe for concurrent use; each call owns its transport
// resources for exactly the lifetime of that call.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = l
	}
}

// WithTimeout sets the transport timeout for remote calls.
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// NewClient creates a new gateway client for the remote API at baseURL.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	client := &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		token:       token,
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitInterval), 1),
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// do performs a rate-limited HTTP request against the remote. Transport
// failures surface as BadGateway errors attributed to vaultPath. The caller
// owns the returned response body.
func (c *Client) do(
	ctx context.Context, method, wirePath, vaultPath string, body io.Reader, header http.Header,
) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+wirePath, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for key, values := range header {
		req.Header[key] = values
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	c.logger.DebugContext(ctx, "remote request", "method", method, "path", wirePath)
	startTime := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperrors.VaultError{
			Kind:    apperrors.KindBadGateway,
			Path:    vaultPath,
			Message: "failed to connect to Obsidian API",
			Err:     err,
		}
	}

	c.logger.DebugContext(ctx, "remote response",
		"method", method,
		"path", wirePath,
		"status", resp.StatusCode,
		"duration_ms", time.Since(startTime).Milliseconds())

	return resp, nil
}

// closeBody closes a response body, logging close failures.
func (c *Client) closeBody(ctx context.Context, resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		c.logger.WarnContext(ctx, "failed to close response body", "error", err)
	}
}

// statusError maps a non-2xx remote response to a VaultError. It consumes
// (part of) the response body for the attached message.
func (c *Client) statusError(resp *http.Response, vaultPath string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(body))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return &apperrors.VaultError{Kind: apperrors.KindNotFound, Path: vaultPath}
	case http.StatusBadRequest:
		return &apperrors.VaultError{Kind: apperrors.KindBadRequest, Path: vaultPath, Message: message}
	case http.StatusMethodNotAllowed:
		return &apperrors.VaultError{Kind: apperrors.KindMethodNotAllowed, Path: vaultPath}
	case http.StatusConflict:
		return &apperrors.VaultError{Kind: apperrors.KindConflict, Path: vaultPath}
	case http.StatusNotImplemented:
		return &apperrors.VaultError{Kind: apperrors.KindNotImplemented, Path: vaultPath, Message: message}
	default:
		// Unrecognized remote status: propagate verbatim as internal.
		return &apperrors.VaultError{
			Kind:         apperrors.KindInternal,
			Path:         vaultPath,
			Message:      message,
			RemoteStatus: resp.StatusCode,
		}
	}
}

// Health checks the connection to the remote API. A transport failure is
// reported through the Connected flag rather than as an error.
func (c *Client) Health(ctx context.Context) *Health {
	resp, err := c.do(ctx, http.MethodGet, "/", "", nil, nil)
	if err != nil {
		return &Health{Connected: false, Error: err.Error()}
	}
	defer c.closeBody(ctx, resp)

	if resp.StatusCode >= http.StatusBadRequest {
		return &Health{Connected: false, Error: c.statusError(resp, "").Error()}
	}

	var payload struct {
		Versions struct {
			Obsidian string `json:"obsidian"`
			Self     string `json:"self"`
		} `json:"versions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return &Health{Connected: false, Error: fmt.Sprintf("decode health response: %v", err)}
	}

	return &Health{
		Connected:       true,
		ObsidianVersion: payload.Versions.Obsidian,
		PluginVersion:   payload.Versions.Self,
	}
}
