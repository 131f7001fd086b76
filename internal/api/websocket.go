package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/printwatch/internal/infrastructure/config"
	"github.com/nerrad567/printwatch/internal/infrastructure/logging"
	"github.com/nerrad567/printwatch/internal/printer"
)

// Frame kinds. Clients send ping, state, mute and unmute; the server sends
// the rest.
const (
	FramePing       = "ping"
	FramePong       = "pong"
	FrameState      = "state"
	FrameTransition = "transition"
	FrameMute       = "mute"
	FrameUnmute     = "unmute"
	FrameAck        = "ack"
	FrameError      = "error"
)

// feedQueueSize is how many frames may wait for a slow reader before
// further frames to it are dropped.
const feedQueueSize = 32

// Frame is one message on the state feed.
type Frame struct {
	Kind     string         `json:"kind"`
	Ref      string         `json:"ref,omitempty"`
	At       time.Time      `json:"at,omitzero"`
	Observed *bool          `json:"observed,omitempty"`
	State    *printer.State `json:"state,omitempty"`
	Previous *printer.State `json:"previous,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// Feed streams printer state transitions to WebSocket connections. It is a
// watcher observer. Each connection receives the current state when it
// opens and every transition after that unless it mutes the feed.
//
// Thread Safety: All methods are safe for concurrent use.
type Feed struct {
	cfg    config.WebSocketConfig
	state  StateSource
	logger *logging.Logger
	now    func() time.Time

	mu    sync.Mutex
	conns map[*feedConn]struct{}
}

// feedConn is one WebSocket connection on the feed.
type feedConn struct {
	feed   *Feed
	ws     *websocket.Conn
	userID int64

	mu     sync.Mutex
	queue  chan []byte
	closed bool
	muted  bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The CORS middleware and bearer token already gate the request.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewFeed creates a feed that reads the current state from state.
func NewFeed(cfg config.WebSocketConfig, state StateSource, logger *logging.Logger) *Feed {
	return &Feed{
		cfg:    withWebSocketDefaults(cfg),
		state:  state,
		logger: logger,
		now:    time.Now,
		conns:  make(map[*feedConn]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes every connection.
func (f *Feed) Run(ctx context.Context) {
	<-ctx.Done()

	f.mu.Lock()
	conns := make([]*feedConn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()

	for _, c := range conns {
		f.drop(c)
	}
}

// OnPoll implements the watcher observer. Unchanged polls are not streamed.
func (f *Feed) OnPoll(context.Context, printer.State) error {
	return nil
}

// OnChange sends a transition frame to every unmuted connection.
func (f *Feed) OnChange(_ context.Context, prev, st printer.State) error {
	data, err := json.Marshal(Frame{Kind: FrameTransition, At: f.now().UTC(), State: &st, Previous: &prev})
	if err != nil {
		return err
	}

	sent := 0
	for _, c := range f.snapshot() {
		if c.deliver(data, true) {
			sent++
		}
	}
	f.logger.Debug("state transition streamed", "connections", sent)
	return nil
}

// Connections returns the number of open connections.
func (f *Feed) Connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *Feed) snapshot() []*feedConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	conns := make([]*feedConn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	return conns
}

func (f *Feed) add(c *feedConn) {
	f.mu.Lock()
	f.conns[c] = struct{}{}
	n := len(f.conns)
	f.mu.Unlock()
	f.logger.Debug("feed connection opened", "user_id", c.userID, "connections", n)
}

// drop removes c and closes its queue. It is safe to call more than once.
func (f *Feed) drop(c *feedConn) {
	f.mu.Lock()
	delete(f.conns, c)
	f.mu.Unlock()

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()
}

// stateFrame describes the current state, or that none was observed yet.
func (f *Feed) stateFrame(ref string) Frame {
	st, ok := f.state.Current()
	frame := Frame{Kind: FrameState, Ref: ref, At: f.now().UTC(), Observed: &ok}
	if ok {
		frame.State = &st
	}
	return frame
}

// handleWebSocket upgrades an authenticated request onto the feed.
// Authentication and the monitor-level check run in middleware.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &feedConn{
		feed:   s.feed,
		ws:     ws,
		userID: userIDFromContext(r.Context()),
		queue:  make(chan []byte, feedQueueSize),
	}
	s.feed.add(c)
	c.reply(s.feed.stateFrame(""))

	go c.writeLoop()
	go c.readLoop()
}

// deliver queues data without blocking. Transitions skip muted connections.
// It reports whether the frame was queued.
func (c *feedConn) deliver(data []byte, transition bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || (transition && c.muted) {
		return false
	}
	select {
	case c.queue <- data:
		return true
	default:
		return false
	}
}

func (c *feedConn) reply(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.deliver(data, false)
}

func (c *feedConn) setMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
}

func (c *feedConn) readLoop() {
	defer func() {
		c.feed.drop(c)
		c.ws.Close()
	}()

	cfg := c.feed.cfg
	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	c.ws.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // a failed deadline surfaces on the next read
	c.ws.SetReadDeadline(time.Now().Add(wait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.feed.logger.Warn("feed read failed", "user_id", c.userID, "error", err)
			}
			return
		}
		//nolint:errcheck // a failed deadline surfaces on the next read
		c.ws.SetReadDeadline(time.Now().Add(wait))
		c.handleFrame(data)
	}
}

func (c *feedConn) writeLoop() {
	cfg := c.feed.cfg
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.queue:
			//nolint:errcheck // write errors are caught below
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				//nolint:errcheck // connection is going away
				c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // write errors are caught below
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *feedConn) handleFrame(data []byte) {
	var in Frame
	if err := json.Unmarshal(data, &in); err != nil {
		c.reply(Frame{Kind: FrameError, Message: "invalid JSON frame"})
		return
	}

	switch in.Kind {
	case FramePing:
		c.reply(Frame{Kind: FramePong, Ref: in.Ref})
	case FrameState:
		c.reply(c.feed.stateFrame(in.Ref))
	case FrameMute, FrameUnmute:
		c.setMuted(in.Kind == FrameMute)
		c.reply(Frame{Kind: FrameAck, Ref: in.Ref, Message: in.Kind})
	default:
		c.reply(Frame{Kind: FrameError, Ref: in.Ref, Message: "unknown frame kind: " + in.Kind})
	}
}
