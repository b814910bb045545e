package remote

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/bandsync/internal/domain/errors"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/tracing"
)

// Client is a RemoteStore that talks JSON over HTTP. Subscriptions poll the
// items endpoint and push when the collection changes.
type Client struct {
	httpClient *http.Client
	config     Config
	tracer     *tracing.Tracer
	logger     *logging.Logger

	mu   sync.Mutex
	subs map[ports.SubscriptionHandle]context.CancelFunc
	wg   sync.WaitGroup
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.config.Token = token
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.config.Timeout = timeout
		c.httpClient.Timeout = timeout
	}
}

// WithPollInterval sets how often subscriptions poll for changes.
func WithPollInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		c.config.PollInterval = interval
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tracer *tracing.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the store served at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	config := DefaultConfig(strings.TrimRight(baseURL, "/"))

	client := &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
		tracer: tracing.Default(),
		logger: logging.Discard(),
		subs:   make(map[ports.SubscriptionHandle]context.CancelFunc),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Fetch returns the current collection for scope.
func (c *Client) Fetch(ctx context.Context, scope offline.ScopeKey) ([]offline.Entity, error) {
	ctx, span := c.tracer.StartRemoteSpan(ctx, "fetch", scope.String())

	items, err := c.fetch(ctx, scope, span)
	if err != nil {
		span.EndWithError(err)
		return nil, err
	}
	span.End()
	return items, nil
}

func (c *Client) fetch(ctx context.Context, scope offline.ScopeKey, span *tracing.RemoteSpan) ([]offline.Entity, error) {
	path := fmt.Sprintf("/v1/scopes/%s/%s/items",
		url.PathEscape(scope.EntityType), url.PathEscape(scope.OwnerID))

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domainerrors.Transient("fetch request failed", err)
	}
	defer resp.Body.Close()
	span.SetStatusCode(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp)
	}

	var result ItemsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, domainerrors.NewError(domainerrors.CodeSerialization, "failed to decode items response", err)
	}
	if result.Items == nil {
		result.Items = []offline.Entity{}
	}
	return result.Items, nil
}

// Apply sends m to the store. The mutation id is sent as the idempotency key.
func (c *Client) Apply(ctx context.Context, m offline.PendingMutation) error {
	ctx, span := c.tracer.StartRemoteSpan(ctx, "apply", m.Scope.String())

	if err := c.apply(ctx, m, span); err != nil {
		span.EndWithError(err)
		return err
	}
	span.End()
	return nil
}

func (c *Client) apply(ctx context.Context, m offline.PendingMutation, span *tracing.RemoteSpan) error {
	body, err := json.Marshal(toRequest(m))
	if err != nil {
		return domainerrors.NewError(domainerrors.CodeSerialization, "failed to marshal mutation", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, EndpointMutations, body)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderIdempotencyKey, m.ID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domainerrors.Transient("apply request failed", err)
	}
	defer resp.Body.Close()
	span.SetStatusCode(resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	default:
		return c.handleErrorResponse(resp)
	}
}

// Subscribe polls scope every PollInterval and calls onPush when the
// collection differs from the last one seen. The first poll runs before
// Subscribe returns and sets the baseline.
func (c *Client) Subscribe(ctx context.Context, scope offline.ScopeKey, onPush ports.PushFunc) (ports.SubscriptionHandle, error) {
	if onPush == nil {
		return "", fmt.Errorf("subscribe %s: push callback is required", scope)
	}
	if c.config.PollInterval <= 0 {
		return "", fmt.Errorf("subscribe %s: poll interval must be positive", scope)
	}

	var baseline string
	if items, err := c.Fetch(ctx, scope); err == nil {
		baseline = digest(items)
	} else {
		c.logger.DebugContext(ctx, "initial subscription poll failed", "scope", scope.String(), "error", err.Error())
	}

	handle := ports.SubscriptionHandle(uuid.New().String())
	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.subs[handle] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.poll(pollCtx, scope, baseline, onPush)

	return handle, nil
}

func (c *Client) poll(ctx context.Context, scope offline.ScopeKey, last string, onPush ports.PushFunc) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			items, err := c.Fetch(ctx, scope)
			if err != nil {
				if ctx.Err() == nil {
					c.logger.DebugContext(ctx, "subscription poll failed", "scope", scope.String(), "error", err.Error())
				}
				continue
			}
			if d := digest(items); d != last {
				last = d
				onPush(items)
			}
		}
	}
}

// Unsubscribe stops a subscription's polling. Unknown handles are ignored.
func (c *Client) Unsubscribe(handle ports.SubscriptionHandle) error {
	c.mu.Lock()
	cancel, ok := c.subs[handle]
	delete(c.subs, handle)
	c.mu.Unlock()

	if ok {
		cancel()
	}
	return nil
}

// Close stops every subscription and waits for the pollers to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	for handle, cancel := range c.subs {
		cancel()
		delete(c.subs, handle)
	}
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// HealthCheck verifies the store is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, EndpointHealth, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domainerrors.Transient("health check failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}
	return nil
}

// newRequest creates a new HTTP request with required headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return nil, domainerrors.NewError(domainerrors.CodeConfiguration, "failed to create request", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	if id := logging.CorrelationID(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	return req, nil
}

// handleErrorResponse maps a non-2xx response onto the error taxonomy.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	code := StatusCode(resp.StatusCode)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return domainerrors.NewError(code,
			fmt.Sprintf("HTTP %d: failed to read error response", resp.StatusCode), err)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		// If we can't parse the error, return the raw body
		return domainerrors.NewError(code,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	// The body's code is more specific than the status; several codes share 400.
	if known, ok := remoteCode(errResp.Error.Code); ok {
		code = known
	}

	return domainerrors.NewError(code,
		fmt.Sprintf("HTTP %d: %s", resp.StatusCode, errResp.Error.Message), nil)
}

// StatusCode maps an HTTP status onto an error code. Anything not listed,
// including every 5xx, is transient.
func StatusCode(status int) domainerrors.ErrorCode {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domainerrors.CodeAuthorization
	case http.StatusNotFound, http.StatusGone:
		return domainerrors.CodeNotFound
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return domainerrors.CodeValidation
	default:
		return domainerrors.CodeTransient
	}
}

// remoteCode parses an error code a remote store may report. Codes that
// only the local engine produces are not accepted.
func remoteCode(s string) (domainerrors.ErrorCode, bool) {
	switch code := domainerrors.ErrorCode(s); code {
	case domainerrors.CodeTransient,
		domainerrors.CodeSerialization,
		domainerrors.CodeAuthorization,
		domainerrors.CodeNotFound,
		domainerrors.CodeValidation:
		return code, true
	default:
		return "", false
	}
}

// digest fingerprints a collection for change detection.
func digest(items []offline.Entity) string {
	data, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Ensure Client implements RemoteStorePort
var _ ports.RemoteStorePort = (*Client)(nil)
