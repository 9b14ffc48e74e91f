package dentalink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DentaMind/dentalink-sdk-go/dentalink/store"

	"github.com/coder/websocket"
)

// wsServer accepts one connection at a time, records inbound envelopes,
// and lets tests push envelopes to the client.
type wsServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	inbound  [][]byte
	gotToken string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.gotToken = r.URL.Query().Get("token")
		s.mu.Unlock()

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			s.mu.Lock()
			s.inbound = append(s.inbound, data)
			s.mu.Unlock()
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) push(t *testing.T, payload string) {
	t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		t.Fatal("no server-side connection")
	}
	if err := conn.Write(context.Background(), websocket.MessageText, []byte(payload)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (s *wsServer) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.inbound...)
}

func (s *wsServer) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gotToken
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func testClientConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.URL = url
	cfg.AutoReconnect = false
	cfg.PingInterval = 0
	cfg.OpenDrainDelay = 10 * time.Millisecond
	cfg.SendPacing = 0
	return cfg
}

func TestConnectAndSend(t *testing.T) {
	s := newWSServer(t)
	cfg := testClientConfig(s.url())
	cfg.Token = "jwt-abc"
	c := NewClient(cfg)
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if c.Status() != StatusOpen {
		t.Fatalf("status = %s, want open", c.Status())
	}
	if s.token() != "jwt-abc" {
		t.Fatalf("token query param = %q", s.token())
	}

	sent, err := c.Send(context.Background(), ChatPost{RoomID: "r1", Content: "hi"})
	if err != nil || !sent {
		t.Fatalf("send = (%v, %v), want (true, nil)", sent, err)
	}

	waitFor(t, 2*time.Second, func() bool { return len(s.received()) == 1 })
	var env struct {
		Type    string `json:"type"`
		RoomID  string `json:"room_id"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(s.received()[0], &env); err != nil {
		t.Fatalf("unmarshal sent envelope: %v", err)
	}
	if env.Type != "chat_message" || env.RoomID != "r1" || env.Content != "hi" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestConnectIsNoOpWhileOpen(t *testing.T) {
	s := newWSServer(t)
	c := NewClient(testClientConfig(s.url()))
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("second connect should be a no-op, got %v", err)
	}
	if c.Status() != StatusOpen {
		t.Fatalf("status = %s", c.Status())
	}
}

func TestInboundMessagesArriveInOrder(t *testing.T) {
	s := newWSServer(t)
	c := NewClient(testClientConfig(s.url()))
	defer c.Close()

	var mu sync.Mutex
	var contents []string
	c.OnChatMessage(func(ev ChatMessageEvent) {
		mu.Lock()
		contents = append(contents, ev.Content)
		mu.Unlock()
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	for _, body := range []string{"hi", "how are you", "bye"} {
		s.push(t, `{"type":"chat_message","room_id":"r1","user_id":"u1","content":"`+body+`","timestamp":"2026-08-01T10:00:00Z"}`)
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(contents) == 3
	})
	mu.Lock()
	defer mu.Unlock()
	if contents[0] != "hi" || contents[1] != "how are you" || contents[2] != "bye" {
		t.Fatalf("delivery order = %v", contents)
	}
	if c.LastMessage() == nil {
		t.Fatalf("last message not recorded")
	}
}

func TestUndecodableMessageForwardedRaw(t *testing.T) {
	s := newWSServer(t)
	c := NewClient(testClientConfig(s.url()))
	defer c.Close()

	var mu sync.Mutex
	var raw []byte
	c.OnRaw(func(data []byte) {
		mu.Lock()
		raw = data
		mu.Unlock()
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	s.push(t, `this is not json`)

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return raw != nil
	})
	if c.Status() != StatusOpen {
		t.Fatalf("decode failure killed the connection: %s", c.Status())
	}
}

func TestSendWhileClosedQueuesAndPersists(t *testing.T) {
	st := store.NewMemory()
	cfg := testClientConfig("ws://127.0.0.1:0")
	cfg.Store = st
	c := NewClient(cfg)

	sent, err := c.Send(context.Background(), ChatPost{RoomID: "r1", Content: "offline"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent {
		t.Fatalf("send reported delivery while closed")
	}
	if c.QueueLen() != 1 {
		t.Fatalf("queue len = %d, want 1", c.QueueLen())
	}

	data, err := st.Load(store.KeyQueue)
	if err != nil {
		t.Fatalf("load queue snapshot: %v", err)
	}
	var entries []QueuedMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(entries) != 1 || entries[0].Attempts != 0 {
		t.Fatalf("snapshot = %+v", entries)
	}
}

func TestSendWhileClosedQueueDisabled(t *testing.T) {
	cfg := testClientConfig("ws://127.0.0.1:0")
	cfg.QueueEnabled = false
	c := NewClient(cfg)

	sent, err := c.Send(context.Background(), ChatPost{RoomID: "r1", Content: "x"})
	if sent || err == nil {
		t.Fatalf("send = (%v, %v), want (false, error)", sent, err)
	}
}

func TestQueueDrainsAfterOpen(t *testing.T) {
	s := newWSServer(t)
	cfg := testClientConfig(s.url())
	c := NewClient(cfg)
	defer c.Close()

	for i := 0; i < 3; i++ {
		if sent, err := c.Send(context.Background(), ChatPost{RoomID: "r1", Content: "queued"}); sent || err != nil {
			t.Fatalf("expected enqueue, got (%v, %v)", sent, err)
		}
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return len(s.received()) == 3 })
	if c.QueueLen() != 0 {
		t.Fatalf("queue len = %d after drain", c.QueueLen())
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	s := newWSServer(t)
	c := NewClient(testClientConfig(s.url()))

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
	if c.Status() != StatusClosed {
		t.Fatalf("status = %s", c.Status())
	}
}

func TestDisconnectDuringDialLeavesClosed(t *testing.T) {
	dialing := make(chan struct{})
	release := make(chan struct{})
	var handshakes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Hold the first handshake until the test has disconnected.
		if handshakes.Add(1) == 1 {
			close(dialing)
			<-release
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewClient(testClientConfig("ws" + strings.TrimPrefix(srv.URL, "http")))
	defer c.Close()

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()

	<-dialing
	if err := c.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("connect: %v", err)
	}

	if c.Status() != StatusClosed {
		t.Fatalf("status after disconnect = %s, want closed", c.Status())
	}

	// The client must still be able to open a fresh connection.
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if c.Status() != StatusOpen {
		t.Fatalf("status after reconnect = %s, want open", c.Status())
	}
}

// recordingObserver counts observer events.
type recordingObserver struct {
	mu         sync.Mutex
	opens      int
	reconnects int
	scheduled  int
}

func (r *recordingObserver) ConnectionOpened(reconnected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens++
	if reconnected {
		r.reconnects++
	}
}
func (r *recordingObserver) ConnectionClosed(websocket.StatusCode) {}
func (r *recordingObserver) ReconnectScheduled(int, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled++
}
func (r *recordingObserver) MessageSent()                {}
func (r *recordingObserver) MessageReceived()            {}
func (r *recordingObserver) MessageQueued()              {}
func (r *recordingObserver) MessageErrored(error)        {}
func (r *recordingObserver) LatencySample(time.Duration) {}

func (r *recordingObserver) scheduledCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scheduled
}

func TestReconnectBudgetExhaustionSchedulesNothing(t *testing.T) {
	rec := &recordingObserver{}
	cfg := testClientConfig("ws://127.0.0.1:0")
	cfg.AutoReconnect = true
	cfg.MaxReconnectTries = 5
	cfg.ReconnectInterval = time.Hour // timers never fire within the test
	cfg.Observer = rec
	c := NewClient(cfg)

	c.mu.Lock()
	c.runCtx, c.runCancel = context.WithCancel(context.Background())
	c.mu.Unlock()
	defer c.Close()

	// Simulate six consecutive abnormal closes.
	for i := 0; i < 6; i++ {
		c.scheduleReconnect()
	}

	if got := rec.scheduledCount(); got != 5 {
		t.Fatalf("scheduled %d reconnects, want 5", got)
	}
	if c.ReconnectAttemptsLeft() != 0 {
		t.Fatalf("attempts left = %d, want 0", c.ReconnectAttemptsLeft())
	}
	if c.Status() != StatusClosed {
		t.Fatalf("status = %s, want closed", c.Status())
	}
}

func TestOpenResetsReconnectBudget(t *testing.T) {
	s := newWSServer(t)
	cfg := testClientConfig(s.url())
	cfg.AutoReconnect = true
	cfg.MaxReconnectTries = 5
	c := NewClient(cfg)
	defer c.Close()

	// Burn part of the budget before connecting.
	c.mu.Lock()
	c.policy.next()
	c.policy.next()
	c.mu.Unlock()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := c.ReconnectAttemptsLeft(); got != 5 {
		t.Fatalf("attempts left = %d after open, want full budget", got)
	}
}
