package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/room"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// NewUpgrader returns an upgrader accepting the given origins. An empty
// list or "*" accepts any origin.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(allowed) == 0 || origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
				return true
			}
		}
		return false
	}
}

// WSHandler serves the bidding protocol over WebSocket. The first message
// must be a join.
type WSHandler struct {
	Hub          *room.Hub
	Auth         Authenticator
	Limits       Limits
	PingInterval time.Duration
	PongTimeout  time.Duration
	Upgrader     websocket.Upgrader
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := identify(h.Auth, r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugw("ws upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}

	pingInterval, pongTimeout := h.PingInterval, h.PongTimeout
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if pongTimeout <= pingInterval {
		pongTimeout = 2 * pingInterval
	}

	conn := &wsConn{ws: ws}
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	ctx, cancel := context.WithCancel(context.Background())
	session := NewSession(h.Hub, conn, identity, h.Limits)
	defer func() {
		cancel()
		session.Close()
	}()

	go conn.keepalive(ctx, pingInterval)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugw("ws read failed", "err", err, "remote", r.RemoteAddr)
			}
			return
		}
		if err := session.Handle(ctx, data); err != nil {
			if !errors.Is(err, errLeft) {
				log.Debugw("ws session ended", "err", err, "remote", r.RemoteAddr)
			}
			return
		}
	}
}

func identify(auth Authenticator, r *http.Request) (string, bool) {
	if auth == nil {
		return "", true
	}
	return auth.Bidder(r)
}

// wsConn serializes writes to a websocket. gorilla connections allow only
// one concurrent writer.
type wsConn struct {
	mu        sync.Mutex
	ws        *websocket.Conn
	closeOnce sync.Once
}

func (c *wsConn) Send(ev auction.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(ev)
}

// Close sends a close frame when no write is in flight and then closes the
// socket, which fails any write still blocked in Send.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.mu.TryLock() {
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			c.mu.Unlock()
		}
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) keepalive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				_ = c.Close()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
