package dentalink

import (
	"time"

	"github.com/coder/websocket"
)

// Observer receives connection lifecycle and traffic events from a Client.
// One observer is typically shared by every Client in the process; see
// Monitor. Implementations must be safe for concurrent use.
type Observer interface {
	// ConnectionOpened fires on every successful open; reconnected is
	// true when the open recovered from an unexpected closure.
	ConnectionOpened(reconnected bool)

	// ConnectionClosed fires with the close status code. Codes other
	// than 1000/1001 count as drops.
	ConnectionClosed(code websocket.StatusCode)

	// ReconnectScheduled fires when a redial timer is armed.
	ReconnectScheduled(attempt int, delay time.Duration)

	MessageSent()
	MessageReceived()
	MessageQueued()
	MessageErrored(err error)

	// LatencySample reports one measured ping round-trip.
	LatencySample(rtt time.Duration)
}

// noopObserver ignores all events.
type noopObserver struct{}

func (noopObserver) ConnectionOpened(bool)                 {}
func (noopObserver) ConnectionClosed(websocket.StatusCode) {}
func (noopObserver) ReconnectScheduled(int, time.Duration) {}
func (noopObserver) MessageSent()                          {}
func (noopObserver) MessageReceived()                      {}
func (noopObserver) MessageQueued()                        {}
func (noopObserver) MessageErrored(error)                  {}
func (noopObserver) LatencySample(time.Duration)           {}
