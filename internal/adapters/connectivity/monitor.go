package connectivity

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/jbctechsolutions/bandsync/internal/application/ports"
	"github.com/jbctechsolutions/bandsync/internal/domain/offline"
	"github.com/jbctechsolutions/bandsync/internal/infrastructure/logging"
)

// MonitorConfig holds configuration for the connectivity monitor.
type MonitorConfig struct {
	Interval     time.Duration // Time between probes
	ProbeTimeout time.Duration // Bound on a single probe
	BufferSize   int           // Per-subscriber channel capacity
	Logger       *logging.Logger
}

// DefaultMonitorConfig returns sensible default configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:     5 * time.Second,
		ProbeTimeout: 3 * time.Second,
		BufferSize:   16,
	}
}

// Monitor polls a Source and reports state changes. It starts Offline and
// emits a state only when it differs from the last one emitted.
type Monitor struct {
	source Source
	config MonitorConfig
	logger *logging.Logger

	mu           sync.RWMutex
	state        offline.ConnectivityState
	onTransition ports.TransitionFunc
	subscribers  map[int]chan offline.ConnectivityState
	nextSubID    int
	initErr      error

	// emitMu serializes probes so transitions are delivered in order.
	emitMu sync.Mutex

	// Lifecycle
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// NewMonitor creates a monitor for source.
func NewMonitor(source Source, config MonitorConfig) *Monitor {
	defaults := DefaultMonitorConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = defaults.ProbeTimeout
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Monitor{
		source:      source,
		config:      config,
		logger:      logger,
		state:       offline.Offline,
		subscribers: make(map[int]chan offline.ConnectivityState),
	}
}

// Start probes once synchronously, then keeps observing in the background
// until ctx is done or Stop is called. If the source cannot be initialized
// the monitor stays Offline. onTransition runs on the probing goroutine and
// must not call ProbeNow.
func (m *Monitor) Start(ctx context.Context, onTransition ports.TransitionFunc) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("connectivity monitor already started")
	}
	m.started = true
	m.onTransition = onTransition
	m.mu.Unlock()

	if init, ok := m.source.(Initializer); ok {
		if err := init.Init(ctx); err != nil {
			m.mu.Lock()
			m.initErr = err
			m.mu.Unlock()
			m.logger.ErrorContext(ctx, "connectivity source unavailable, staying offline",
				"error", err.Error(),
			)
			return nil
		}
	}

	m.ProbeNow(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(runCtx)

	return nil
}

// Stop ends observation and closes every subscriber channel.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	if c, ok := m.source.(io.Closer); ok {
		_ = c.Close()
	}

	m.mu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.mu.Unlock()
}

// Current returns the last observed state.
func (m *Monitor) Current() offline.ConnectivityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// InitErr returns the source initialization error, if any.
func (m *Monitor) InitErr() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initErr
}

// Subscribe returns a channel that receives every transition and a function
// that cancels the subscription. Slow subscribers miss transitions rather
// than block the monitor.
func (m *Monitor) Subscribe() (<-chan offline.ConnectivityState, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan offline.ConnectivityState, m.config.BufferSize)
	if m.stopped {
		close(ch)
		return ch, func() {}
	}

	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subscribers[id]; ok {
			close(sub)
			delete(m.subscribers, id)
		}
	}
}

// ProbeNow probes the source immediately and returns the resulting state.
func (m *Monitor) ProbeNow(ctx context.Context) offline.ConnectivityState {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, m.config.ProbeTimeout)
	state, err := m.source.Probe(probeCtx)
	cancel()
	if err != nil {
		m.logger.DebugContext(ctx, "connectivity probe failed", "error", err.Error())
		state = offline.Offline
	}

	m.observe(ctx, state)
	return state
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	var changes <-chan struct{}
	if n, ok := m.source.(Notifier); ok {
		changes = n.Changes()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeNow(ctx)
		case <-changes:
			m.ProbeNow(ctx)
		}
	}
}

// observe records state and emits it if it is an edge. Callers hold emitMu.
func (m *Monitor) observe(ctx context.Context, state offline.ConnectivityState) {
	m.mu.Lock()
	prev := m.state
	if prev == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	onTransition := m.onTransition
	for _, ch := range m.subscribers {
		select {
		case ch <- state:
		default:
			m.logger.WarnContext(ctx, "dropping connectivity transition for slow subscriber")
		}
	}
	m.mu.Unlock()

	logging.LogTransition(ctx, m.logger, prev.String(), state.String())

	if onTransition != nil {
		onTransition(state)
	}
}

// Ensure Monitor implements ConnectivityPort
var _ ports.ConnectivityPort = (*Monitor)(nil)
