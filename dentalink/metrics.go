package dentalink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/DentaMind/dentalink-sdk-go/dentalink/store"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const (
	latencyWindow       = 100
	syncFailureCap      = 50
	defaultSyncInterval = 5 * time.Minute
)

// Snapshot is the serializable state of a Monitor.
type Snapshot struct {
	TotalConnections  int64 `json:"total_connections"`
	ConnectionDrops   int64 `json:"connection_drops"`
	ReconnectAttempts int64 `json:"reconnect_attempts"`
	Reconnections     int64 `json:"reconnections"`

	MessagesSent     int64 `json:"messages_sent"`
	MessagesReceived int64 `json:"messages_received"`
	MessagesQueued   int64 `json:"messages_queued"`
	MessagesErrored  int64 `json:"messages_errored"`

	LastLatencyMillis    float64   `json:"last_latency_ms"`
	AverageLatencyMillis float64   `json:"average_latency_ms"`
	LatencySamplesMillis []float64 `json:"latency_samples_ms,omitempty"`

	LastError string    `json:"last_error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TelemetrySink receives periodic metric snapshots. RESTSink is the
// standard implementation.
type TelemetrySink interface {
	UploadMetrics(ctx context.Context, clientID string, snap Snapshot) error
}

// SyncFailure is one failed telemetry upload, kept for later inspection.
type SyncFailure struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	// Store persists the snapshot and the client id. Defaults to memory.
	Store store.Store
	// Sink receives periodic uploads. nil disables uploading.
	Sink TelemetrySink
	// SyncInterval defaults to 5 minutes.
	SyncInterval time.Duration
	Logger       Logger
}

// Monitor aggregates connection and traffic metrics across every Client
// it observes. Build one at the composition root and pass it to each
// Client via Config.Observer; there is deliberately no process-wide
// instance. It also implements prometheus.Collector.
type Monitor struct {
	mu       sync.Mutex
	snap     Snapshot
	store    store.Store
	sink     TelemetrySink
	logger   Logger
	interval time.Duration
	clientID string
	cancel   context.CancelFunc
}

// NewMonitor builds a monitor, restoring any persisted snapshot and the
// per-installation client id (generating and persisting one if absent).
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = defaultSyncInterval
	}
	m := &Monitor{
		store:    cfg.Store,
		sink:     cfg.Sink,
		logger:   cfg.Logger,
		interval: cfg.SyncInterval,
	}
	m.snap.StartedAt = time.Now().UTC()
	m.hydrate()
	m.clientID = m.loadClientID()
	return m
}

// ClientID returns the persisted per-installation identifier.
func (m *Monitor) ClientID() string { return m.clientID }

// Start launches the periodic telemetry upload. Stop releases it. Safe to
// call when no sink is configured.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil || m.sink == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.syncLoop(ctx)
}

// Stop cancels the periodic upload.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Snapshot returns a copy of the current metrics.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snap
	snap.LatencySamplesMillis = append([]float64(nil), m.snap.LatencySamplesMillis...)
	return snap
}

// Reset zeroes all counters and the latency window.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = Snapshot{StartedAt: time.Now().UTC()}
	m.persistLocked()
}

// Flush uploads the current snapshot immediately.
func (m *Monitor) Flush(ctx context.Context) error {
	if m.sink == nil {
		return nil
	}
	return m.sink.UploadMetrics(ctx, m.clientID, m.Snapshot())
}

// SyncFailures returns the persisted log of failed uploads.
func (m *Monitor) SyncFailures() []SyncFailure {
	data, err := m.store.Load(store.KeySyncFailures)
	if err != nil {
		return nil
	}
	var failures []SyncFailure
	if err := json.Unmarshal(data, &failures); err != nil {
		return nil
	}
	return failures
}

// Observer implementation.

func (m *Monitor) ConnectionOpened(reconnected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.TotalConnections++
	if reconnected {
		m.snap.Reconnections++
	}
	m.persistLocked()
}

func (m *Monitor) ConnectionClosed(code websocket.StatusCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if code != websocket.StatusNormalClosure && code != websocket.StatusGoingAway {
		m.snap.ConnectionDrops++
	}
	m.persistLocked()
}

func (m *Monitor) ReconnectScheduled(int, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.ReconnectAttempts++
	m.persistLocked()
}

func (m *Monitor) MessageSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.MessagesSent++
	m.persistLocked()
}

func (m *Monitor) MessageReceived() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.MessagesReceived++
	m.persistLocked()
}

func (m *Monitor) MessageQueued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.MessagesQueued++
	m.persistLocked()
}

func (m *Monitor) MessageErrored(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.MessagesErrored++
	if err != nil {
		m.snap.LastError = err.Error()
	}
	m.persistLocked()
}

func (m *Monitor) LatencySample(rtt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms := float64(rtt) / float64(time.Millisecond)
	samples := append(m.snap.LatencySamplesMillis, ms)
	if len(samples) > latencyWindow {
		samples = samples[len(samples)-latencyWindow:]
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	m.snap.LatencySamplesMillis = samples
	m.snap.LastLatencyMillis = ms
	m.snap.AverageLatencyMillis = sum / float64(len(samples))
	m.persistLocked()
}

func (m *Monitor) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Flush(ctx); err != nil {
				m.logger.Warn("telemetry upload failed", map[string]any{"error": err.Error()})
				m.recordSyncFailure(err)
			}
		}
	}
}

// recordSyncFailure appends to the store-backed failure log, capped at
// syncFailureCap entries. Failed uploads are not retried automatically.
func (m *Monitor) recordSyncFailure(cause error) {
	failures := m.SyncFailures()
	failures = append(failures, SyncFailure{Timestamp: time.Now().UTC(), Error: cause.Error()})
	if len(failures) > syncFailureCap {
		failures = failures[len(failures)-syncFailureCap:]
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return
	}
	if err := m.store.Save(store.KeySyncFailures, data); err != nil {
		m.logger.Warn("sync failure log persist failed", map[string]any{"error": err.Error()})
	}
}

func (m *Monitor) hydrate() {
	data, err := m.store.Load(store.KeyMetrics)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		m.logger.Warn("metrics load failed", map[string]any{"error": err.Error()})
		return
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		m.logger.Warn("discarding corrupt metrics snapshot", map[string]any{"error": err.Error()})
		return
	}
	snap.UpdatedAt = time.Now().UTC()
	m.snap = snap
}

func (m *Monitor) loadClientID() string {
	data, err := m.store.Load(store.KeyClientID)
	if err == nil && len(data) > 0 {
		return string(data)
	}
	id := uuid.NewString()
	if err := m.store.Save(store.KeyClientID, []byte(id)); err != nil {
		m.logger.Warn("client id persist failed", map[string]any{"error": err.Error()})
	}
	return id
}

func (m *Monitor) persistLocked() {
	m.snap.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(m.snap)
	if err != nil {
		return
	}
	if err := m.store.Save(store.KeyMetrics, data); err != nil {
		m.logger.Warn("metrics persist failed", map[string]any{"error": err.Error()})
	}
}
