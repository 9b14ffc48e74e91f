package dentalink

import (
	"context"
	"errors"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/DentaMind/dentalink-sdk-go/dentalink/internal"
	"github.com/DentaMind/dentalink-sdk-go/dentalink/store"

	"github.com/coder/websocket"
)

// Client owns one logical WebSocket endpoint: it dials, decodes inbound
// envelopes, queues outbound messages while offline, and redials with
// backoff on unexpected closure. Disconnect releases the socket and every
// timer the client armed.
type Client struct {
	cfg        Config
	logger     Logger
	obs        Observer
	queue      *offlineQueue
	dispatcher Dispatcher

	mu        sync.Mutex
	status    Status
	conn      *internal.Conn
	policy    *reconnectPolicy
	last      ServerMessage
	runCtx    context.Context
	runCancel context.CancelFunc
	sweeping  bool
	onState   func(StateEvent)
}

// NewClient constructs a client from cfg. Use DefaultConfig() as a
// starting point and modify as needed.
func NewClient(cfg Config) *Client {
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	logger := Logger(noopLogger{})
	c := &Client{
		cfg:    cfg,
		logger: logger,
		obs:    cfg.Observer,
		policy: newReconnectPolicy(cfg.ReconnectInterval, cfg.MaxReconnectTries),
	}
	c.queue = newOfflineQueue(cfg.Store, cfg.MaxQueueSize, cfg.SendPacing, logger)
	return c
}

// SetLogger overrides the logger (optional).
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		return
	}
	c.logger = l
	c.queue.logger = l
}

// OnStateChanged registers a callback for status transitions.
func (c *Client) OnStateChanged(fn func(StateEvent)) { c.onState = fn }

// OnMessage registers a tap for every decoded server message.
func (c *Client) OnMessage(fn func(ServerMessage)) { c.dispatcher.SetOnMessage(fn) }

// OnChatMessage registers a callback for chat messages.
func (c *Client) OnChatMessage(fn func(ChatMessageEvent)) { c.dispatcher.SetOnChatMessage(fn) }

// OnRoomJoined registers a callback for room join confirmations.
func (c *Client) OnRoomJoined(fn func(RoomJoinedEvent)) { c.dispatcher.SetOnRoomJoined(fn) }

// OnAppointmentCreated registers a callback for appointment events.
func (c *Client) OnAppointmentCreated(fn func(AppointmentCreatedEvent)) {
	c.dispatcher.SetOnAppointmentCreated(fn)
}

// OnNotificationAlert registers a callback for notification alerts.
func (c *Client) OnNotificationAlert(fn func(NotificationAlertEvent)) {
	c.dispatcher.SetOnNotificationAlert(fn)
}

// OnRaw registers a callback for payloads that failed to decode.
func (c *Client) OnRaw(fn func([]byte)) { c.dispatcher.SetOnRaw(fn) }

// OnError registers a callback for errors.
func (c *Client) OnError(fn func(error)) { c.dispatcher.SetOnError(fn) }

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastMessage returns the most recently decoded server message, or nil.
func (c *Client) LastMessage() ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// QueueLen returns the number of pending outbound messages.
func (c *Client) QueueLen() int { return c.queue.len() }

// QueuedMessages returns a copy of the pending outbound messages.
func (c *Client) QueuedMessages() []QueuedMessage { return c.queue.snapshot() }

// Connect dials the endpoint. A no-op when already open or connecting.
// Network failures after a successful first dial surface only as status
// transitions and callbacks, never as panics.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusOpen || c.status == StatusConnecting {
		c.mu.Unlock()
		return nil
	}
	if c.cfg.URL == "" {
		c.mu.Unlock()
		return NewError(ErrorInvalidConfig, "empty URL")
	}
	c.policy.reset()
	if c.runCancel == nil {
		c.runCtx, c.runCancel = context.WithCancel(context.Background())
	}
	notify := c.setStatusLocked(StatusConnecting, nil)
	c.mu.Unlock()
	notify()

	if err := c.dial(ctx, false); err != nil {
		return err
	}

	c.mu.Lock()
	startSweep := !c.sweeping && c.runCtx != nil
	if startSweep {
		c.sweeping = true
	}
	run := c.runCtx
	c.mu.Unlock()
	if startSweep {
		go c.drainSweeper(run)
	}
	return nil
}

// Disconnect closes the socket if present, cancels any pending reconnect
// timer and background loop, and sets the status to closed. Idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	cancel := c.runCancel
	c.runCancel = nil
	c.runCtx = nil
	c.sweeping = false
	conn := c.conn
	c.conn = nil
	notify := c.setStatusLocked(StatusClosed, nil)
	c.mu.Unlock()
	notify()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// Close releases the client. Alias for Disconnect; the connection and its
// timers are acquired together and released together.
func (c *Client) Close() error { return c.Disconnect() }

// Send transmits msg when the socket is open, returning (true, nil) on a
// successful write. When the socket is not open and queueing is enabled
// the message is enqueued and (false, nil) is returned. (false, err)
// means the message was neither sent nor queued.
func (c *Client) Send(ctx context.Context, msg ClientMessage) (bool, error) {
	data, err := encodeClientMessage(msg, time.Now().UTC())
	if err != nil {
		c.obs.MessageErrored(err)
		return false, err
	}

	c.mu.Lock()
	conn := c.conn
	open := c.status == StatusOpen
	c.mu.Unlock()

	if open && conn != nil {
		err := conn.WriteRaw(ctx, data)
		if err == nil {
			c.obs.MessageSent()
			return true, nil
		}
		c.logger.Warn("send failed, falling back to queue", map[string]any{"error": err.Error()})
		c.obs.MessageErrored(err)
	}

	if !c.cfg.QueueEnabled {
		return false, NewError(ErrorQueueDisabled, "socket not open and queueing disabled")
	}
	if err := c.queue.enqueue(data); err != nil {
		c.obs.MessageErrored(err)
		return false, err
	}
	c.obs.MessageQueued()
	return false, nil
}

// ReconnectAttemptsLeft returns the unconsumed reconnect budget.
func (c *Client) ReconnectAttemptsLeft() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy.remaining()
}

// dial establishes the socket and starts the per-connection loops. On
// failure during a reconnect cycle it schedules the next attempt itself.
func (c *Client) dial(ctx context.Context, reconnect bool) error {
	target, err := c.endpointURL()
	if err != nil {
		c.mu.Lock()
		notify := c.setStatusLocked(StatusError, err)
		c.mu.Unlock()
		notify()
		return err
	}

	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	ws, _, err := websocket.Dial(dialCtx, target, nil)
	if err != nil {
		werr := WrapError(ErrorConnection, "dial "+c.cfg.URL, err)
		c.mu.Lock()
		notify := c.setStatusLocked(StatusClosed, werr)
		c.mu.Unlock()
		notify()
		c.dispatcher.fireError(werr)
		if reconnect {
			c.scheduleReconnect()
		}
		return werr
	}

	conn := internal.NewConn(ws, c.cfg.ReadTimeout, c.cfg.WriteTimeout)

	c.mu.Lock()
	run := c.runCtx
	if run == nil {
		// Disconnect raced the dial; release the fresh socket and keep
		// the closed status Disconnect already set.
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
		return nil
	}
	c.conn = conn
	c.policy.reset()
	notify := c.setStatusLocked(StatusOpen, nil)
	c.mu.Unlock()
	notify()
	c.obs.ConnectionOpened(reconnect)

	go c.readLoop(run, conn)
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(run, conn)
	}
	if c.cfg.QueueEnabled {
		go func() {
			select {
			case <-run.Done():
				return
			case <-time.After(c.cfg.OpenDrainDelay):
			}
			c.queue.drain(run, c.sendRaw)
		}()
	}
	return nil
}

// endpointURL appends the auth token as a query parameter when configured.
func (c *Client) endpointURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", WrapError(ErrorInvalidConfig, "parse URL", err)
	}
	if c.cfg.Token != "" {
		q := u.Query()
		q.Set("token", c.cfg.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) readLoop(ctx context.Context, conn *internal.Conn) {
	for {
		data, err := conn.ReadRaw(ctx)
		if err != nil {
			c.handleClosed(ctx, err)
			return
		}
		c.obs.MessageReceived()

		msg, derr := DecodeServerMessage(data)
		if derr != nil {
			// Decode failure drops the message, not the connection.
			c.obs.MessageErrored(derr)
			c.logger.Warn("undecodable message", map[string]any{"error": derr.Error()})
			c.dispatcher.DispatchRaw(data)
			continue
		}

		c.mu.Lock()
		c.last = msg
		c.mu.Unlock()
		c.dispatcher.Dispatch(msg)
	}
}

// handleClosed runs when the read loop exits. It records the closure and,
// for unexpected closures with budget remaining, schedules a reconnect.
func (c *Client) handleClosed(ctx context.Context, err error) {
	code := websocket.CloseStatus(err)
	if code == -1 {
		code = websocket.StatusAbnormalClosure
	}

	c.mu.Lock()
	if c.conn == nil && c.status == StatusClosed {
		// Disconnect already ran.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	var notify func()
	expected := ctx.Err() != nil || isExpectedDisconnect(err)
	if expected {
		notify = c.setStatusLocked(StatusClosed, nil)
	} else {
		notify = c.setStatusLocked(StatusError, err)
	}
	c.mu.Unlock()
	notify()
	c.obs.ConnectionClosed(code)

	if expected {
		return
	}

	werr := WrapError(ErrorDisconnected, "connection lost", err)
	c.logger.Warn("connection lost", map[string]any{"code": int(code), "error": err.Error()})
	c.dispatcher.fireError(werr)

	c.mu.Lock()
	notify = c.setStatusLocked(StatusClosed, werr)
	c.mu.Unlock()
	notify()

	if c.cfg.AutoReconnect {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms a backoff timer for the next dial. Exhausted
// budget leaves the client closed until an explicit Connect.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	run := c.runCtx
	delay, ok := c.policy.next()
	attempt := c.policy.tried
	c.mu.Unlock()

	if run == nil {
		return
	}
	if !ok {
		c.logger.Warn("reconnect budget exhausted", map[string]any{"url": c.cfg.URL})
		return
	}

	c.obs.ReconnectScheduled(attempt, delay)
	c.logger.Info("reconnect scheduled", map[string]any{"attempt": attempt, "delay": delay.String()})

	go func() {
		select {
		case <-run.Done():
			return
		case <-time.After(delay):
		}
		c.mu.Lock()
		if c.status == StatusOpen || c.status == StatusConnecting {
			c.mu.Unlock()
			return
		}
		notify := c.setStatusLocked(StatusConnecting, nil)
		c.mu.Unlock()
		notify()
		_ = c.dial(run, true)
	}()
}

// drainSweeper periodically retries the queue while the socket is open,
// catching messages enqueued after the post-open drain.
func (c *Client) drainSweeper(ctx context.Context) {
	if !c.cfg.QueueEnabled || c.cfg.DrainSweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.DrainSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.Status() == StatusOpen {
				c.queue.drain(ctx, c.sendRaw)
			}
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *internal.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rtt, err := conn.Ping(ctx)
			if err != nil {
				return
			}
			c.obs.LatencySample(rtt)
		}
	}
}

// sendRaw writes an already-encoded envelope; used by queue drains.
func (c *Client) sendRaw(ctx context.Context, data []byte) error {
	c.mu.Lock()
	conn := c.conn
	open := c.status == StatusOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return NewError(ErrorNotConnected, "socket not open")
	}
	if err := conn.WriteRaw(ctx, data); err != nil {
		return WrapError(ErrorConnection, "queued send", err)
	}
	c.obs.MessageSent()
	return nil
}

// setStatusLocked records the transition and returns the callback to run
// after the mutex is released.
func (c *Client) setStatusLocked(s Status, err error) func() {
	if c.status == s {
		return func() {}
	}
	ev := StateEvent{Old: c.status, New: s, Err: err}
	c.status = s
	cb := c.onState
	return func() {
		if cb != nil {
			cb(ev)
		}
	}
}

func isExpectedDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
