// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package switchboard

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/consult/lib/clock"
	"github.com/bureau-foundation/consult/lib/netutil"
)

// HandlerConfig holds the parameters for NewHandler. Zero durations and
// sizes take the defaults below.
type HandlerConfig struct {
	Server  *Server
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics

	// SendQueue is the outbound frame buffer per connection. A
	// connection whose buffer is full when the loop notifies it is
	// closed.
	SendQueue int

	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64

	// RatePerSecond <= 0 disables inbound rate limiting.
	RatePerSecond float64
	RateBurst     int

	// CheckOrigin restricts browser upgrades to same-host origins and
	// AllowedOrigins. Requests without an Origin header are always
	// accepted.
	CheckOrigin    bool
	AllowedOrigins []string
}

const (
	defaultSendQueue       = 64
	defaultPingInterval    = 20 * time.Second
	defaultPongTimeout     = 60 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultMaxMessageBytes = 64 * 1024
)

// Handler upgrades HTTP requests to WebSocket connections and feeds
// their frames to a Server.
type Handler struct {
	config   HandlerConfig
	upgrader websocket.Upgrader
}

// NewHandler returns a WebSocket handler for config.Server.
func NewHandler(config HandlerConfig) *Handler {
	if config.Server == nil {
		panic("switchboard.Handler: Server is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.SendQueue <= 0 {
		config.SendQueue = defaultSendQueue
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaultPingInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = defaultPongTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	if config.MaxMessageBytes <= 0 {
		config.MaxMessageBytes = defaultMaxMessageBytes
	}

	handler := &Handler{config: config}
	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     handler.checkOrigin,
	}
	return handler
}

// ServeHTTP upgrades the request and serves the connection until
// either side closes it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.config.Logger.Debug("websocket upgrade failed",
			"remote", r.RemoteAddr,
			"error", err,
		)
		return
	}

	conn := &wsConn{
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan []byte, h.config.SendQueue),
		closed: make(chan struct{}),
	}
	conn.logger = h.config.Logger.With("connection", conn.id)
	conn.logger.Info("client connected", "remote", r.RemoteAddr)

	go h.writeLoop(conn)
	h.readLoop(r, conn)
}

func (h *Handler) readLoop(r *http.Request, conn *wsConn) {
	defer func() {
		conn.close()
		h.config.Server.Disconnect(conn)
		conn.logger.Info("client disconnected")
	}()

	ws := conn.ws
	ws.SetReadLimit(h.config.MaxMessageBytes)
	extend := func() error {
		return ws.SetReadDeadline(h.config.Clock.Now().Add(h.config.PongTimeout))
	}
	if err := extend(); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error { return extend() })

	var limiter *rate.Limiter
	if h.config.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.config.RatePerSecond), max(h.config.RateBurst, 1))
	}

	for {
		messageType, frame, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				conn.logger.Debug("read failed", "error", err)
			}
			return
		}
		if err := extend(); err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			conn.logger.Warn("dropping non-text frame", "frame_type", messageType)
			h.config.Metrics.drop("protocol")
			continue
		}
		if limiter != nil && !limiter.AllowN(h.config.Clock.Now(), 1) {
			conn.logger.Warn("rate limit exceeded, dropping message", "bytes", len(frame))
			h.config.Metrics.drop("rate_limited")
			continue
		}
		if err := h.config.Server.Deliver(r.Context(), conn, frame); err != nil {
			return
		}
	}
}

func (h *Handler) writeLoop(conn *wsConn) {
	ticker := h.config.Clock.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case frame := <-conn.send:
			if err := conn.ws.SetWriteDeadline(h.config.Clock.Now().Add(h.config.WriteTimeout)); err != nil {
				conn.close()
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				if netutil.IsExpectedCloseError(err) {
					conn.logger.Debug("peer gone before write", "error", err)
				} else {
					conn.logger.Warn("write failed", "error", err)
				}
				conn.close()
				return
			}
		case <-ticker.C:
			deadline := h.config.Clock.Now().Add(h.config.WriteTimeout)
			if err := conn.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				conn.logger.Debug("ping failed", "error", err)
				conn.close()
				return
			}
		case <-conn.closed:
			deadline := h.config.Clock.Now().Add(h.config.WriteTimeout)
			message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := conn.ws.WriteControl(websocket.CloseMessage, message, deadline); err != nil &&
				!errors.Is(err, websocket.ErrCloseSent) {
				conn.logger.Debug("close frame failed", "error", err)
			}
			return
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if !h.config.CheckOrigin {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(h.config.AllowedOrigins, origin) {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(parsed.Host, r.Host) {
		return true
	}
	h.config.Logger.Warn("rejecting cross-origin upgrade", "origin", origin, "host", r.Host)
	return false
}

// wsConn is the Conn the loop sees for a WebSocket client. Notify is
// called from the loop; the writer goroutine drains send.
type wsConn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	closed    chan struct{}
	closeOnce sync.Once
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Notify(frame []byte) {
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.send <- frame:
	default:
		c.logger.Warn("outbound queue full, closing slow client", "queued", len(c.send))
		c.close()
	}
}

// close stops the writer, which closes the socket and so unblocks the
// reader.
func (c *wsConn) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}
