// Package remote provides RemoteStore implementations: an in-process
// authoritative store, a JSON/HTTP client and the HTTP handler that serves
// a store over the same API.
package remote

import (
	"encoding/json"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// API endpoints
const (
	EndpointItems     = "/v1/scopes/{type}/{owner}/items"
	EndpointMutations = "/v1/mutations"
	EndpointHealth    = "/healthz"
)

// HeaderIdempotencyKey carries the mutation id on apply requests.
const HeaderIdempotencyKey = "Idempotency-Key"

// ItemsResponse is the body returned by the items endpoint.
type ItemsResponse struct {
	Scope string           `json:"scope"`
	Items []offline.Entity `json:"items"`
}

// MutationRequest is the body of an apply request.
type MutationRequest struct {
	ID       string          `json:"id"`
	Scope    string          `json:"scope"`
	Kind     string          `json:"kind"`
	EntityID string          `json:"entity_id"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// MutationResponse acknowledges an applied mutation.
type MutationResponse struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Config holds configuration for the HTTP client.
type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	PollInterval time.Duration
}

// DefaultConfig returns the default client configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		Timeout:      10 * time.Second,
		PollInterval: 15 * time.Second,
	}
}

func toRequest(m offline.PendingMutation) MutationRequest {
	return MutationRequest{
		ID:       m.ID,
		Scope:    m.Scope.String(),
		Kind:     string(m.Kind),
		EntityID: m.EntityID,
		Payload:  m.Payload,
	}
}

func fromRequest(req MutationRequest) (offline.PendingMutation, error) {
	scope, err := offline.ParseScopeKey(req.Scope)
	if err != nil {
		return offline.PendingMutation{}, err
	}
	kind, err := offline.ParseOperationKind(req.Kind)
	if err != nil {
		return offline.PendingMutation{}, err
	}
	return offline.PendingMutation{
		ID:       req.ID,
		Scope:    scope,
		Kind:     kind,
		EntityID: req.EntityID,
		Payload:  req.Payload,
		Status:   offline.MutationPending,
	}, nil
}
