package dentalink

import (
	"time"

	"github.com/DentaMind/dentalink-sdk-go/dentalink/store"
)

// Config controls how a Client connects and recovers.
type Config struct {
	// URL is the WebSocket endpoint. Feature hooks treat it as the
	// platform base URL and append their own path.
	URL string

	// Token is appended to the endpoint as a query parameter when set.
	Token string

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // 0 disables; notification sockets idle for long stretches
	WriteTimeout     time.Duration

	// AutoReconnect enables backoff-driven redial on abnormal closure.
	AutoReconnect bool
	// ReconnectInterval is the base backoff delay; the factor grows 1.5x
	// per failed attempt, capped at 10x the base.
	ReconnectInterval time.Duration
	// MaxReconnectTries bounds consecutive failed attempts. The budget
	// refills on every successful open.
	MaxReconnectTries int

	// QueueEnabled buffers outbound messages while the socket is not open.
	QueueEnabled bool
	MaxQueueSize int
	// OpenDrainDelay is the settling delay between open and the first
	// queue drain.
	OpenDrainDelay time.Duration
	// DrainSweepInterval is the period of the recovery drain sweep.
	DrainSweepInterval time.Duration
	// SendPacing spaces out queued sends during a drain.
	SendPacing time.Duration

	// PingInterval is the period of latency sampling pings. 0 disables.
	PingInterval time.Duration

	// Store persists the offline queue. Defaults to an in-memory store.
	Store store.Store

	// Observer receives lifecycle and traffic events, typically a
	// *Monitor. Defaults to a no-op.
	Observer Observer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:   10 * time.Second,
		WriteTimeout:       10 * time.Second,
		AutoReconnect:      true,
		ReconnectInterval:  time.Second,
		MaxReconnectTries:  5,
		QueueEnabled:       true,
		MaxQueueSize:       50,
		OpenDrainDelay:     100 * time.Millisecond,
		DrainSweepInterval: 10 * time.Second,
		SendPacing:         50 * time.Millisecond,
		PingInterval:       30 * time.Second,
	}
}
