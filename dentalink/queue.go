package dentalink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/DentaMind/dentalink-sdk-go/dentalink/store"
)

// maxSendAttempts is the retry ceiling for a queued message. An entry
// that has failed this many times is dropped on the next drain.
const maxSendAttempts = 3

// QueuedMessage is one pending outbound envelope.
type QueuedMessage struct {
	Envelope  json.RawMessage `json:"envelope"`
	Timestamp time.Time       `json:"timestamp"`
	Attempts  int             `json:"attempts"`
}

// offlineQueue buffers outbound envelopes while the socket is not open.
// Every mutation mirrors the whole queue to the store, so pending
// messages survive a restart.
type offlineQueue struct {
	mu      sync.Mutex
	entries []QueuedMessage
	max     int
	pacing  time.Duration
	store   store.Store
	logger  Logger
}

func newOfflineQueue(st store.Store, max int, pacing time.Duration, logger Logger) *offlineQueue {
	q := &offlineQueue{
		max:    max,
		pacing: pacing,
		store:  st,
		logger: logger,
	}
	q.hydrate()
	return q
}

// hydrate restores the persisted queue. A missing or corrupt snapshot
// starts the queue empty.
func (q *offlineQueue) hydrate() {
	data, err := q.store.Load(store.KeyQueue)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		q.logger.Warn("queue load failed", map[string]any{"error": err.Error()})
		return
	}
	var entries []QueuedMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		q.logger.Warn("discarding corrupt queue snapshot", map[string]any{"error": err.Error()})
		return
	}
	q.entries = entries
}

// enqueue appends an envelope with attempts=0 and persists.
func (q *offlineQueue) enqueue(envelope []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) >= q.max {
		return NewError(ErrorQueueFull, "offline queue full")
	}
	q.entries = append(q.entries, QueuedMessage{
		Envelope:  append(json.RawMessage(nil), envelope...),
		Timestamp: time.Now().UTC(),
	})
	q.persistLocked()
	return nil
}

func (q *offlineQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// snapshot returns a copy of the pending entries, oldest first.
func (q *offlineQueue) snapshot() []QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueuedMessage(nil), q.entries...)
}

// drain sends pending entries oldest-first through send. Entries past the
// retry ceiling are dropped, failures are kept with attempts incremented.
// Draining an empty queue performs no store write.
func (q *offlineQueue) drain(ctx context.Context, send func(context.Context, []byte) error) {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return
	}
	pending := q.entries
	q.entries = nil
	q.mu.Unlock()

	var kept []QueuedMessage
	for i, entry := range pending {
		if ctx.Err() != nil {
			kept = append(kept, pending[i:]...)
			break
		}
		if entry.Attempts >= maxSendAttempts {
			q.logger.Warn("dropping queued message past retry ceiling", map[string]any{
				"attempts": entry.Attempts,
				"queued":   entry.Timestamp,
			})
			continue
		}
		if err := send(ctx, entry.Envelope); err != nil {
			entry.Attempts++
			kept = append(kept, entry)
		}
		if q.pacing > 0 && i < len(pending)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(q.pacing):
			}
		}
	}

	q.mu.Lock()
	// Entries enqueued while draining are newer than anything kept.
	q.entries = append(kept, q.entries...)
	q.persistLocked()
	q.mu.Unlock()
}

func (q *offlineQueue) persistLocked() {
	entries := q.entries
	if entries == nil {
		entries = []QueuedMessage{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		q.logger.Error("queue marshal failed", map[string]any{"error": err.Error()})
		return
	}
	if err := q.store.Save(store.KeyQueue, data); err != nil {
		q.logger.Warn("queue persist failed", map[string]any{"error": err.Error()})
	}
}
