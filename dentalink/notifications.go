package dentalink

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/DentaMind/dentalink-sdk-go/dentalink/rest"

	"github.com/google/uuid"
)

// maxFeedSize caps the notification list kept in memory.
const maxFeedSize = 100

// Notification is the feed's view model of one alert, newest first.
type Notification struct {
	ID        string
	Title     string
	Message   string
	Severity  string
	PatientID string
	Timestamp time.Time
	Read      bool
}

// NotificationFeed wraps one Client on the global notifications endpoint.
// Alert and appointment envelopes are projected into Notifications; mark
// and dismiss mutate local state immediately and fire a best-effort REST
// call whose failure is logged, not rolled back.
type NotificationFeed struct {
	client *Client
	api    *rest.Client
	logger Logger

	mu     sync.Mutex
	items  []Notification
	onItem func(Notification)
}

// NewNotificationFeed builds the feed. cfg.URL must be the platform base
// URL; the notifications path is appended. api may be nil, which limits
// the feed to local-only mark/dismiss.
func NewNotificationFeed(cfg Config, api *rest.Client) *NotificationFeed {
	cfg.URL = strings.TrimRight(cfg.URL, "/") + "/ws/notifications"
	f := &NotificationFeed{
		client: NewClient(cfg),
		api:    api,
		logger: noopLogger{},
	}
	f.client.OnNotificationAlert(f.handleAlert)
	f.client.OnAppointmentCreated(f.handleAppointment)
	return f
}

// SetLogger overrides the logger for the hook and its client.
func (f *NotificationFeed) SetLogger(l Logger) {
	if l == nil {
		return
	}
	f.logger = l
	f.client.SetLogger(l)
}

// Client exposes the underlying connection.
func (f *NotificationFeed) Client() *Client { return f.client }

// OnNotification registers a callback fired for every new item.
func (f *NotificationFeed) OnNotification(fn func(Notification)) { f.onItem = fn }

// Connect opens the feed connection.
func (f *NotificationFeed) Connect(ctx context.Context) error {
	return f.client.Connect(ctx)
}

// Close releases the connection.
func (f *NotificationFeed) Close() error { return f.client.Close() }

// Notifications returns the current items, newest first.
func (f *NotificationFeed) Notifications() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.items...)
}

// UnreadCount returns the number of unread items.
func (f *NotificationFeed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, item := range f.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// Refresh replaces local state with the server's notification list.
func (f *NotificationFeed) Refresh(ctx context.Context) error {
	if f.api == nil {
		return NewError(ErrorInvalidConfig, "no REST client configured")
	}
	resp, err := f.api.ListNotifications(ctx, maxFeedSize)
	if err != nil {
		return WrapError(ErrorRest, "list notifications", err)
	}
	items := make([]Notification, 0, len(resp.Notifications))
	for _, n := range resp.Notifications {
		items = append(items, Notification{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			Severity:  n.Severity,
			PatientID: n.PatientID,
			Timestamp: n.CreatedAt,
			Read:      n.Read,
		})
	}
	f.mu.Lock()
	f.items = items
	f.mu.Unlock()
	return nil
}

// MarkRead marks one item read locally, then notifies the server
// best-effort.
func (f *NotificationFeed) MarkRead(ctx context.Context, id string) {
	f.mu.Lock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].Read = true
			break
		}
	}
	f.mu.Unlock()

	if f.api == nil {
		return
	}
	if err := f.api.MarkNotificationRead(ctx, id); err != nil {
		f.logger.Warn("mark-read sync failed", map[string]any{"id": id, "error": err.Error()})
	}
}

// MarkAllRead marks every item read locally, syncing each best-effort.
func (f *NotificationFeed) MarkAllRead(ctx context.Context) {
	f.mu.Lock()
	ids := make([]string, 0, len(f.items))
	for i := range f.items {
		if !f.items[i].Read {
			f.items[i].Read = true
			ids = append(ids, f.items[i].ID)
		}
	}
	f.mu.Unlock()

	if f.api == nil {
		return
	}
	for _, id := range ids {
		if err := f.api.MarkNotificationRead(ctx, id); err != nil {
			f.logger.Warn("mark-read sync failed", map[string]any{"id": id, "error": err.Error()})
		}
	}
}

// Dismiss removes one item locally, then notifies the server best-effort.
func (f *NotificationFeed) Dismiss(ctx context.Context, id string) {
	f.mu.Lock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			break
		}
	}
	f.mu.Unlock()

	if f.api == nil {
		return
	}
	if err := f.api.DismissNotification(ctx, id); err != nil {
		f.logger.Warn("dismiss sync failed", map[string]any{"id": id, "error": err.Error()})
	}
}

func (f *NotificationFeed) handleAlert(ev NotificationAlertEvent) {
	id := ev.ID
	if id == "" {
		id = uuid.NewString()
	}
	f.push(Notification{
		ID:        id,
		Title:     ev.Title,
		Message:   ev.Message,
		Severity:  ev.Severity,
		PatientID: ev.PatientID,
		Timestamp: ev.Timestamp,
	})
}

func (f *NotificationFeed) handleAppointment(ev AppointmentCreatedEvent) {
	f.push(Notification{
		ID:        uuid.NewString(),
		Title:     "Appointment created",
		Message:   ev.Title,
		PatientID: ev.PatientID,
		Timestamp: ev.Timestamp,
	})
}

func (f *NotificationFeed) push(item Notification) {
	f.mu.Lock()
	f.items = append([]Notification{item}, f.items...)
	if len(f.items) > maxFeedSize {
		f.items = f.items[:maxFeedSize]
	}
	cb := f.onItem
	f.mu.Unlock()
	if cb != nil {
		cb(item)
	}
}
