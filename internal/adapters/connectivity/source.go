// Package connectivity observes network reachability and reports Online and
// Offline transitions to the sync engine.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
)

// Source reports the current reachability of the remote store.
type Source interface {
	Probe(ctx context.Context) (offline.ConnectivityState, error)
}

// Notifier is implemented by sources that can tell when their state may have
// changed, so the monitor probes immediately instead of waiting for the next tick.
type Notifier interface {
	Changes() <-chan struct{}
}

// Initializer is implemented by sources that need setup before probing.
type Initializer interface {
	Init(ctx context.Context) error
}

// StaticSource reports a fixed state until Set changes it.
type StaticSource struct {
	mu      sync.RWMutex
	state   offline.ConnectivityState
	changes chan struct{}
}

// NewStaticSource creates a source that always reports state.
func NewStaticSource(state offline.ConnectivityState) *StaticSource {
	return &StaticSource{
		state:   state,
		changes: make(chan struct{}, 1),
	}
}

// ParseState parses "online" or "offline".
func ParseState(s string) (offline.ConnectivityState, error) {
	switch s {
	case "online":
		return offline.Online, nil
	case "offline":
		return offline.Offline, nil
	default:
		return offline.Offline, fmt.Errorf("invalid connectivity state %q: must be online or offline", s)
	}
}

// Probe returns the configured state.
func (s *StaticSource) Probe(context.Context) (offline.ConnectivityState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, nil
}

// Set changes the reported state and notifies the monitor.
func (s *StaticSource) Set(state offline.ConnectivityState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Changes implements Notifier.
func (s *StaticSource) Changes() <-chan struct{} {
	return s.changes
}

// HTTPProbe considers the remote reachable when a HEAD request to URL gets
// any HTTP response at all.
type HTTPProbe struct {
	url    string
	client *http.Client
}

// NewHTTPProbe creates a probe. A zero timeout uses 3 seconds.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProbe{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Probe sends a HEAD request.
func (p *HTTPProbe) Probe(ctx context.Context) (offline.ConnectivityState, error) {
	if p.url == "" {
		return offline.Offline, errors.New("probe url is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return offline.Offline, fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return offline.Offline, err
	}
	resp.Body.Close()

	return offline.Online, nil
}
