package dentalink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DentaMind/dentalink-sdk-go/dentalink/rest"
)

func TestChatRoomProjectsMessagesInOrder(t *testing.T) {
	room := NewChatRoom(testClientConfig("ws://example.invalid"), "r1", "me")

	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i, body := range []string{"hi", "how are you", "bye"} {
		user := "them"
		if i == 2 {
			user = "me"
		}
		room.client.dispatcher.Dispatch(ChatMessageEvent{
			RoomID:    "r1",
			UserID:    user,
			Content:   body,
			Timestamp: at.Add(time.Duration(i) * time.Second),
		})
	}
	// A message for a different room is discarded.
	room.client.dispatcher.Dispatch(ChatMessageEvent{RoomID: "r2", Content: "elsewhere"})

	msgs := room.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Content != "hi" || msgs[1].Content != "how are you" || msgs[2].Content != "bye" {
		t.Fatalf("order = %v", msgs)
	}
	if msgs[0].IsCurrentUser || msgs[1].IsCurrentUser || !msgs[2].IsCurrentUser {
		t.Fatalf("IsCurrentUser tags wrong: %+v", msgs)
	}
	if msgs[0].ID == "" || msgs[0].ID == msgs[1].ID {
		t.Fatalf("client-side ids missing or duplicated")
	}
}

func TestChatRoomJoinedFlag(t *testing.T) {
	room := NewChatRoom(testClientConfig("ws://example.invalid"), "r1", "me")
	if room.Joined() {
		t.Fatalf("joined before confirmation")
	}
	room.client.dispatcher.Dispatch(RoomJoinedEvent{RoomID: "r1"})
	if !room.Joined() {
		t.Fatalf("join confirmation not applied")
	}
}

func TestChatRoomJoinsOnOpen(t *testing.T) {
	s := newWSServer(t)
	room := NewChatRoom(testClientConfig(s.url()), "r9", "me")
	defer room.Close()

	if err := room.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return len(s.received()) >= 1 })

	first := string(s.received()[0])
	if !contains(first, `"type":"join_room"`) || !contains(first, `"room_id":"r9"`) {
		t.Fatalf("first envelope = %s, want join_room for r9", first)
	}
}

func TestNotificationFeedCapAndUnread(t *testing.T) {
	feed := NewNotificationFeed(testClientConfig("ws://example.invalid"), nil)

	for i := 0; i < maxFeedSize+20; i++ {
		feed.client.dispatcher.Dispatch(NotificationAlertEvent{
			Title:     "alert",
			Timestamp: time.Now().UTC(),
		})
	}

	items := feed.Notifications()
	if len(items) != maxFeedSize {
		t.Fatalf("feed len = %d, want %d", len(items), maxFeedSize)
	}
	if feed.UnreadCount() != maxFeedSize {
		t.Fatalf("unread = %d, want %d", feed.UnreadCount(), maxFeedSize)
	}

	feed.MarkRead(context.Background(), items[0].ID)
	if feed.UnreadCount() != maxFeedSize-1 {
		t.Fatalf("unread after mark = %d", feed.UnreadCount())
	}

	feed.Dismiss(context.Background(), items[1].ID)
	if got := len(feed.Notifications()); got != maxFeedSize-1 {
		t.Fatalf("len after dismiss = %d", got)
	}
}

func TestNotificationFeedProjectsAppointments(t *testing.T) {
	feed := NewNotificationFeed(testClientConfig("ws://example.invalid"), nil)
	feed.client.dispatcher.Dispatch(AppointmentCreatedEvent{
		AppointmentID: "a1",
		PatientID:     "p1",
		Title:         "Cleaning with Dr. Lee",
		Timestamp:     time.Now().UTC(),
	})

	items := feed.Notifications()
	if len(items) != 1 || items[0].Message != "Cleaning with Dr. Lee" || items[0].PatientID != "p1" {
		t.Fatalf("projection = %+v", items)
	}
}

func TestNotificationFeedOptimisticMarkReadSurvivesRESTFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	feed := NewNotificationFeed(testClientConfig("ws://example.invalid"), rest.NewClient(srv.URL))
	feed.client.dispatcher.Dispatch(NotificationAlertEvent{ID: "n1", Title: "x", Timestamp: time.Now().UTC()})

	feed.MarkRead(context.Background(), "n1")
	// Local state keeps the optimistic update despite the failed call.
	if feed.UnreadCount() != 0 {
		t.Fatalf("unread = %d, want 0 after optimistic mark", feed.UnreadCount())
	}
}

func TestNotificationFeedRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"notifications":[{"id":"n1","title":"Recall due","message":"m","read":true,"created_at":"2026-08-01T10:00:00Z"}],"has_more":false}`))
	}))
	defer srv.Close()

	feed := NewNotificationFeed(testClientConfig("ws://example.invalid"), rest.NewClient(srv.URL))
	if err := feed.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	items := feed.Notifications()
	if len(items) != 1 || items[0].ID != "n1" || !items[0].Read {
		t.Fatalf("items = %+v", items)
	}
	if feed.UnreadCount() != 0 {
		t.Fatalf("unread = %d", feed.UnreadCount())
	}
}

func TestPatientFeedFiltersOtherPatients(t *testing.T) {
	feed := NewPatientFeed(testClientConfig("ws://example.invalid"), "p1")

	feed.client.dispatcher.Dispatch(AppointmentCreatedEvent{AppointmentID: "a1", PatientID: "p1"})
	feed.client.dispatcher.Dispatch(AppointmentCreatedEvent{AppointmentID: "a2", PatientID: "p2"})
	feed.client.dispatcher.Dispatch(NotificationAlertEvent{Title: "broadcast"}) // no patient id passes through

	if got := feed.Appointments(); len(got) != 1 || got[0].AppointmentID != "a1" {
		t.Fatalf("appointments = %+v", got)
	}
	if got := feed.Alerts(); len(got) != 1 {
		t.Fatalf("alerts = %+v", got)
	}
}

func TestRESTSinkPostsTelemetry(t *testing.T) {
	var mu sync.Mutex
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = buf
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := RESTSink{API: rest.NewClient(srv.URL)}
	err := sink.UploadMetrics(context.Background(), "client-1", Snapshot{MessagesSent: 3})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !contains(string(body), `"client_id":"client-1"`) || !contains(string(body), `"messages_sent":3`) {
		t.Fatalf("telemetry body = %s", body)
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
