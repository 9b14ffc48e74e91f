package dentalink

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChatEntry is the chat hook's view of one message.
type ChatEntry struct {
	ID            string
	RoomID        string
	UserID        string
	User          string
	Content       string
	Timestamp     time.Time
	IsCurrentUser bool
}

// ChatRoom wraps one Client scoped to a single chat room. It joins the
// room on every open, keeps the ordered message list, and tags entries
// sent by the current user. Close tears down the underlying connection.
type ChatRoom struct {
	client *Client
	logger Logger
	roomID string
	userID string

	mu      sync.Mutex
	entries []ChatEntry
	joined  bool
	onEntry func(ChatEntry)
}

// NewChatRoom builds a chat hook. cfg.URL must be the platform base URL,
// e.g. "wss://api.example.com"; the room path is appended. currentUserID
// drives the IsCurrentUser tag.
func NewChatRoom(cfg Config, roomID, currentUserID string) *ChatRoom {
	cfg.URL = strings.TrimRight(cfg.URL, "/") + "/ws/chat/" + roomID
	r := &ChatRoom{
		client: NewClient(cfg),
		logger: noopLogger{},
		roomID: roomID,
		userID: currentUserID,
	}
	r.client.OnStateChanged(r.handleState)
	r.client.OnChatMessage(r.handleChat)
	r.client.OnRoomJoined(r.handleJoined)
	return r
}

// SetLogger overrides the logger for the hook and its client.
func (r *ChatRoom) SetLogger(l Logger) {
	if l == nil {
		return
	}
	r.logger = l
	r.client.SetLogger(l)
}

// Client exposes the underlying connection for status and callbacks.
func (r *ChatRoom) Client() *Client { return r.client }

// OnMessage registers a callback fired for every appended entry.
func (r *ChatRoom) OnMessage(fn func(ChatEntry)) { r.onEntry = fn }

// Connect opens the room connection.
func (r *ChatRoom) Connect(ctx context.Context) error {
	return r.client.Connect(ctx)
}

// Close leaves the room best-effort and releases the connection.
func (r *ChatRoom) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if r.client.Status() == StatusOpen {
		if _, err := r.client.Send(ctx, LeaveRoom{RoomID: r.roomID}); err != nil {
			r.logger.Debug("leave on close failed", map[string]any{"error": err.Error()})
		}
	}
	return r.client.Close()
}

// Joined reports whether the server has confirmed the room subscription.
func (r *ChatRoom) Joined() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joined
}

// Messages returns the room's messages in arrival order.
func (r *ChatRoom) Messages() []ChatEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChatEntry(nil), r.entries...)
}

// SendText publishes a chat message. Returns (false, nil) when the
// message was queued for later delivery.
func (r *ChatRoom) SendText(ctx context.Context, content string) (bool, error) {
	return r.client.Send(ctx, ChatPost{RoomID: r.roomID, Content: content})
}

func (r *ChatRoom) handleState(ev StateEvent) {
	switch ev.New {
	case StatusOpen:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := r.client.Send(ctx, JoinRoom{RoomID: r.roomID}); err != nil {
			r.logger.Warn("room join failed", map[string]any{"room": r.roomID, "error": err.Error()})
		}
	case StatusClosed, StatusError:
		r.mu.Lock()
		r.joined = false
		r.mu.Unlock()
	}
}

func (r *ChatRoom) handleJoined(ev RoomJoinedEvent) {
	if ev.RoomID != r.roomID {
		return
	}
	r.mu.Lock()
	r.joined = true
	r.mu.Unlock()
}

func (r *ChatRoom) handleChat(ev ChatMessageEvent) {
	if ev.RoomID != r.roomID {
		return
	}
	entry := ChatEntry{
		ID:            uuid.NewString(),
		RoomID:        ev.RoomID,
		UserID:        ev.UserID,
		User:          ev.User,
		Content:       ev.Content,
		Timestamp:     ev.Timestamp,
		IsCurrentUser: ev.UserID != "" && ev.UserID == r.userID,
	}
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	cb := r.onEntry
	r.mu.Unlock()
	if cb != nil {
		cb(entry)
	}
}
