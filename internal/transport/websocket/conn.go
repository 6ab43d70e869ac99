// Package websocket implements the Communication Layer over a plain
// WebSocket carrying one JSON wire message per text frame.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bhandras/devpanel/internal/protocol/wire"
	"github.com/bhandras/devpanel/internal/transport"
	"github.com/bhandras/devpanel/pkg/logger"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Conn is a Messenger over one WebSocket connection.
type Conn struct {
	transport.Router

	name string
	ws   *websocket.Conn

	writeMu sync.Mutex

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	once   sync.Once
}

var _ transport.Messenger = (*Conn)(nil)

// Dial connects to a WebSocket endpoint. A non-empty token is sent as a
// bearer Authorization header.
func Dial(ctx context.Context, url, token string) (*Conn, error) {
	header := http.Header{}
	if token != "" {
		transport.WarnIfExpired(token, time.Now())
		header.Set("Authorization", "Bearer "+token)
	}
	logger.Debugf("Connecting to WebSocket: %s", url)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return newConn("client", ws), nil
}

// Accept upgrades an HTTP request and returns the server side of the
// connection.
func Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return newConn("server", ws), nil
}

func newConn(name string, ws *websocket.Conn) *Conn {
	c := &Conn{name: name, ws: ws, done: make(chan struct{})}
	go c.readLoop()
	return c
}

// readLoop delivers frames on a single goroutine, which keeps arrival order.
func (c *Conn) readLoop() {
	defer c.shutdown()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.isClosed() {
				logger.Warnf("websocket %s: read error: %v", c.name, err)
			}
			return
		}
		var msg wire.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("websocket %s: dropping malformed frame: %v", c.name, err)
			continue
		}
		if msg.Type == "" {
			logger.Warnf("websocket %s: dropping frame without type", c.name)
			continue
		}
		logger.Tracef("Received %s", msg.Type)
		c.Deliver(msg)
	}
}

// Send implements transport.Messenger.
func (c *Conn) Send(msg wire.Message) error {
	if c.isClosed() {
		return transport.ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// Close sends a close frame and tears the connection down.
func (c *Conn) Close() error {
	if c.isClosed() {
		return nil
	}
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	c.shutdown()
	return nil
}

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) shutdown() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		_ = c.ws.Close()
		close(c.done)
	})
}

func (c *Conn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
