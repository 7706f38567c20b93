// Package gateway exposes a WebSocket console for operators: a live feed of
// conversation events plus the ability to send a message to any user
// directly, bypassing the assistant.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hybridz/shipdesk-whatsapp/internal/whatsapp"
)

// Event is one item on the console feed.
type Event struct {
	Type   string    `json:"type"`
	Phone  string    `json:"phone,omitempty"`
	Name   string    `json:"name,omitempty"`
	Action string    `json:"action,omitempty"`
	Text   string    `json:"text,omitempty"`
	At     time.Time `json:"at"`
}

// command is what a connected operator may send.
type command struct {
	Type string `json:"type"`
	To   string `json:"to,omitempty"`
	Text string `json:"text,omitempty"`
}

// Messenger sends WhatsApp messages on behalf of operators.
type Messenger interface {
	SendText(ctx context.Context, to, text string) (*whatsapp.SendMessageResponse, error)
}

// Console is the operator WebSocket server.
type Console struct {
	Addr      string
	Token     string
	Messenger Messenger
	Log       *zap.Logger

	upgrader websocket.Upgrader
	mu       sync.Mutex
	conns    map[*websocket.Conn]chan Event
	http     *http.Server
}

func NewConsole(addr, token string, messenger Messenger, log *zap.Logger) *Console {
	if log == nil {
		log = zap.NewNop()
	}
	return &Console{
		Addr:      addr,
		Token:     token,
		Messenger: messenger,
		Log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]chan Event),
	}
}

// Publish fans an event out to every connected operator. Slow consumers are
// skipped rather than blocking message handling.
func (c *Console) Publish(ev Event) {
	if c == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for conn, ch := range c.conns {
		select {
		case ch <- ev:
		default:
			c.Log.Warn("console client too slow, dropping event",
				zap.String("remote", conn.RemoteAddr().String()))
		}
	}
}

// Start runs the console server until ctx is cancelled. No-op when no
// address is configured.
func (c *Console) Start(ctx context.Context) error {
	if c.Addr == "" {
		<-ctx.Done()
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/console", c.handleWS)
	c.http = &http.Server{
		Addr:              c.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.Log.Info("operator console listening", zap.String("addr", c.Addr))
		errCh <- c.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.http.Shutdown(shutCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (c *Console) authorized(r *http.Request) bool {
	if c.Token == "" {
		return true
	}
	if r.Header.Get("Authorization") == "Bearer "+c.Token {
		return true
	}
	return r.URL.Query().Get("token") == c.Token
}

func (c *Console) handleWS(w http.ResponseWriter, r *http.Request) {
	if !c.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.Log.Warn("console upgrade failed", zap.Error(err))
		return
	}

	feed := make(chan Event, 64)
	c.mu.Lock()
	c.conns[conn] = feed
	c.mu.Unlock()
	c.Log.Info("operator connected", zap.String("remote", conn.RemoteAddr().String()))

	done := make(chan struct{})
	go c.writeLoop(conn, feed, done)
	c.readLoop(r.Context(), conn)

	close(done)
	c.mu.Lock()
	delete(c.conns, conn)
	c.mu.Unlock()
	conn.Close()
	c.Log.Info("operator disconnected", zap.String("remote", conn.RemoteAddr().String()))
}

func (c *Console) writeLoop(conn *websocket.Conn, feed chan Event, done chan struct{}) {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case ev := <-feed:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (c *Console) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.Log.Warn("undecodable console command", zap.Error(err))
			continue
		}
		switch cmd.Type {
		case "send":
			if cmd.To == "" || cmd.Text == "" || c.Messenger == nil {
				continue
			}
			if _, err := c.Messenger.SendText(ctx, cmd.To, cmd.Text); err != nil {
				c.Log.Warn("console send failed", zap.String("to", cmd.To), zap.Error(err))
				continue
			}
			c.Publish(Event{Type: "operator_message", Phone: cmd.To, Text: cmd.Text})
		default:
			c.Log.Debug("unknown console command", zap.String("type", cmd.Type))
		}
	}
}
