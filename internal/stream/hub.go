package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/coinboard/internal/metrics"
	"github.com/rickgao/coinboard/internal/model"
)

// maxCommandSize bounds inbound client frames.
const maxCommandSize = 4096

// CommandHandler executes client commands.
type CommandHandler interface {
	OnSortChange(ctx context.Context, sortKey string) error
	OnSelect(ctx context.Context, code string) (model.Selection, error)
}

// HubConfig holds stream hub settings.
type HubConfig struct {
	SendQueue      int           // Frames buffered per client before dropping the oldest
	PingInterval   time.Duration // Server ping cadence; clients must pong within twice this
	WriteTimeout   time.Duration
	CommandTimeout time.Duration
	AllowedOrigins []string // Empty allows any origin
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendQueue:      16,
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		CommandTimeout: 10 * time.Second,
	}
}

// Hub fans boards out to WebSocket clients.
type Hub struct {
	cfg      HubConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	handler CommandHandler
	clients map[string]*hubConn
	latest  []byte
	closed  bool

	wg sync.WaitGroup
}

// NewHub creates a hub. handler may be nil, in which case commands are rejected.
func NewHub(cfg HubConfig, handler CommandHandler, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		clients: make(map[string]*hubConn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetHandler sets the command handler.
func (h *Hub) SetHandler(handler CommandHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// Name implements session.BoardSink.
func (h *Hub) Name() string {
	return "stream"
}

// PublishBoard queues the board for every client and keeps it as the
// greeting for clients that connect later.
func (h *Hub) PublishBoard(ctx context.Context, board model.Board) error {
	data, err := json.Marshal(Message{Type: TypeBoard, Board: &board})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}

	h.latest = data
	for _, c := range h.clients {
		if c.queue.push(data) {
			metrics.StreamDropped.Inc()
			h.logger.Debug("client queue full, dropped oldest frame", "client", c.id)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &hubConn{
		id:    uuid.NewString(),
		hub:   h,
		ws:    ws,
		queue: newSendQueue(h.cfg.SendQueue),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ws.Close()
		return
	}
	h.clients[c.id] = c
	if h.latest != nil {
		c.queue.push(h.latest)
	}
	n := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()

	metrics.StreamClients.Set(float64(n))
	h.logger.Info("stream client connected", "client", c.id, "remote", r.RemoteAddr, "clients", n)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) unregister(c *hubConn) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.StreamClients.Set(float64(n))
		h.logger.Info("stream client disconnected", "client", c.id, "clients", n)
	}
}

// Close disconnects every client and waits for their pumps to exit.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	conns := make([]*hubConn, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("stream hub closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

func (h *Hub) writeDeadline() time.Time {
	if h.cfg.WriteTimeout <= 0 {
		return time.Now().Add(10 * time.Second)
	}
	return time.Now().Add(h.cfg.WriteTimeout)
}

func (h *Hub) commandHandler() CommandHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// hubConn is one connected client.
type hubConn struct {
	id    string
	hub   *Hub
	ws    *websocket.Conn
	queue *sendQueue

	closeOnce sync.Once
	done      chan struct{}
}

func (c *hubConn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.queue.close()
		deadline := time.Now().Add(time.Second)
		c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		c.ws.Close()
	})
}

// readPump reads commands until the connection fails or closes.
func (c *hubConn) readPump() {
	defer c.hub.wg.Done()
	defer func() {
		c.hub.unregister(c)
		c.close(websocket.CloseNormalClosure, "")
	}()

	pongWait := 2 * c.hub.cfg.PingInterval
	c.ws.SetReadLimit(maxCommandSize)
	if pongWait > 0 {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("stream read error", "client", c.id, "err", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.reply(Message{Type: TypeError, Error: "invalid command"})
			continue
		}
		c.reply(c.execute(cmd))
	}
}

func (c *hubConn) execute(cmd Command) Message {
	handler := c.hub.commandHandler()
	if handler == nil {
		return Message{Type: TypeError, Op: cmd.Op, Error: "commands not supported"}
	}

	ctx := context.Background()
	if c.hub.cfg.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.hub.cfg.CommandTimeout)
		defer cancel()
	}

	switch cmd.Op {
	case OpSort:
		if err := handler.OnSortChange(ctx, cmd.Sort); err != nil {
			return Message{Type: TypeError, Op: cmd.Op, Error: err.Error()}
		}
		return Message{Type: TypeAck, Op: cmd.Op}
	case OpSelect:
		sel, err := handler.OnSelect(ctx, cmd.Code)
		if err != nil {
			return Message{Type: TypeError, Op: cmd.Op, Error: err.Error()}
		}
		return Message{Type: TypeAck, Op: cmd.Op, Selection: &sel}
	default:
		return Message{Type: TypeError, Op: cmd.Op, Error: "unknown op"}
	}
}

func (c *hubConn) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.queue.push(data)
}

// writePump writes queued frames and pings until the connection closes.
func (c *hubConn) writePump() {
	defer c.hub.wg.Done()

	var ping <-chan time.Time
	if c.hub.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.hub.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case <-c.queue.notify:
			for _, frame := range c.queue.drain() {
				c.ws.SetWriteDeadline(c.hub.writeDeadline())
				if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
					c.hub.logger.Debug("stream write failed", "client", c.id, "err", err)
					c.close(websocket.CloseGoingAway, "")
					return
				}
			}
		case <-ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, c.hub.writeDeadline()); err != nil {
				c.close(websocket.CloseGoingAway, "")
				return
			}
		}
	}
}
