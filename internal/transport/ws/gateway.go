package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-notify-core/internal/application/notify"
	"github.com/go-notify-core/internal/domain"
	jwtinfra "github.com/go-notify-core/internal/infrastructure/jwt"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// EngineProvider resolves the live notification handle for a user.
type EngineProvider func(ctx context.Context, userID string) *notify.Service

// Frame is one outbound WebSocket message: the dispatcher event name and its
// payload (a notification or an action descriptor).
type Frame struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Gateway bridges the in-process notification dispatcher onto WebSocket
// connections, so a connected UI sees received/clicked/action events as they
// happen. Identity comes from the Bearer header or a `token` query parameter;
// anonymous connections ride the guest session.
type Gateway struct {
	provider EngineProvider
	jwt      *jwtinfra.Provider
	upgrader websocket.Upgrader
}

func NewGateway(provider EngineProvider, jwt *jwtinfra.Provider, allowedOrigins []string) *Gateway {
	return &Gateway{
		provider: provider,
		jwt:      jwt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

func (g *Gateway) userID(r *http.Request) string {
	if g.jwt == nil {
		return domain.GuestUserID
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return domain.GuestUserID
	}
	claims, err := g.jwt.Verify(token)
	if err != nil {
		return domain.GuestUserID
	}
	return claims.UserID
}

// ServeHTTP upgrades the connection and relays dispatcher events until the
// client goes away.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := g.userID(r)
	svc := g.provider(r.Context(), userID)

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan Frame, sendBuffer)}
	d := svc.Dispatcher()

	events := []string{
		notify.EventReceived,
		notify.EventReceivedLocal,
		notify.EventClicked,
		notify.EventAction,
	}
	subs := make([]notify.Subscription, 0, len(events))
	for _, event := range events {
		ev := event
		subs = append(subs, d.On(ev, func(payload interface{}) {
			c.enqueue(Frame{Event: ev, Payload: payload})
		}))
	}

	// A pending action from before the connection opened is replayed first,
	// so a tap on a cold-started app is never lost.
	if a := d.ConsumePendingAction(); a != nil {
		c.enqueue(Frame{Event: notify.EventAction, Payload: *a})
	}

	go c.writePump()
	c.readPump() // blocks until the peer disconnects

	for _, sub := range subs {
		d.Off(sub)
	}
}

// client wraps one connection. All writes go through the send channel; the
// gorilla connection allows a single writer.
type client struct {
	conn *websocket.Conn
	send chan Frame
}

// enqueue drops the frame when the client cannot keep up. The HTTP surface
// remains the source of truth; the socket is a live hint, not a queue.
func (c *client) enqueue(f Frame) {
	select {
	case c.send <- f:
	default:
		slog.Warn("dropping websocket frame, client too slow", "event", f.Event)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound messages; the socket is one-way. It exists to
// process control frames and detect the peer closing.
func (c *client) readPump() {
	defer func() { _ = c.conn.Close() }()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
