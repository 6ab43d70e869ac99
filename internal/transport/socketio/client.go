// Package socketio implements the Communication Layer over a Socket.IO relay.
//
// Every wire message travels as the single argument of one configurable
// Socket.IO event. The relay forwards panel messages to the observed runtimes
// and runtime messages back to the panel.
package socketio

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/bhandras/devpanel/internal/protocol/wire"
	"github.com/bhandras/devpanel/internal/transport"
	"github.com/bhandras/devpanel/pkg/logger"
)

const (
	// DefaultPath is the Socket.IO endpoint path.
	DefaultPath = "/devtools"
	// DefaultEvent is the Socket.IO event carrying wire messages.
	DefaultEvent = "devtools-message"
)

// Config holds connection settings.
type Config struct {
	ServerURL string
	Path      string
	Event     string
	Token     string
}

// Client is a Messenger backed by a Socket.IO connection.
type Client struct {
	transport.Router

	cfg    Config
	queue  *transport.Queue
	mu     sync.RWMutex
	socket *socket.Socket

	connected bool
	closeOnce sync.Once
}

var _ transport.Messenger = (*Client)(nil)

// NewClient creates a client. Call Connect to dial.
func NewClient(cfg Config) *Client {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Event == "" {
		cfg.Event = DefaultEvent
	}
	return &Client{
		cfg:   cfg,
		queue: transport.NewQueue(0),
	}
}

// Connect starts the Socket.IO connection. It returns once the connection is
// initiated; use WaitForConnect to block until it is up.
func (c *Client) Connect() error {
	logger.Debugf("Connecting to Socket.IO: %s (path: %s)", c.cfg.ServerURL, c.cfg.Path)
	transport.WarnIfExpired(c.cfg.Token, time.Now())

	opts := socket.DefaultOptions()
	opts.SetPath(c.cfg.Path)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	if c.cfg.Token != "" {
		opts.SetAuth(map[string]interface{}{
			"token":      c.cfg.Token,
			"clientType": "devpanel",
		})
	}

	sock, err := socket.Connect(c.cfg.ServerURL, opts)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.mu.Lock()
	c.socket = sock
	c.mu.Unlock()

	sock.On(types.EventName("connect"), func(args ...any) {
		c.setConnected(true)
		logger.Debugf("Socket.IO connected! ID: %s", sock.Id())
	})

	sock.On(types.EventName("disconnect"), func(args ...any) {
		c.setConnected(false)
		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		logger.Debugf("Socket.IO disconnected: %s", reason)
	})

	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			logger.Warnf("Socket.IO connection error: %v", args[0])
		}
	})

	sock.On(types.EventName(c.cfg.Event), func(args ...any) {
		c.handle(args)
	})
	return nil
}

// handle decodes one inbound event and queues it for delivery. The Socket.IO
// client may call listeners from several goroutines, so delivery goes through
// the queue to keep arrival order.
func (c *Client) handle(args []any) {
	msg, err := decodeArgs(args)
	if err != nil {
		logger.Warnf("socketio: dropping inbound event: %v", err)
		return
	}
	logger.Tracef("Received %s", msg.Type)
	if err := c.queue.Do(func() { c.Deliver(msg) }); err != nil {
		logger.Debugf("socketio: client closed, dropping %s", msg.Type)
	}
}

// WaitForConnect waits for the socket to report connected or times out.
func (c *Client) WaitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsConnected() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return c.IsConnected()
}

// Send implements transport.Messenger.
func (c *Client) Send(msg wire.Message) error {
	c.mu.RLock()
	sock := c.socket
	c.mu.RUnlock()
	if sock == nil {
		return transport.ErrNotConnected
	}

	data, err := encode(msg)
	if err != nil {
		return err
	}
	logger.Tracef("Sending %s", msg.Type)
	sock.Emit(c.cfg.Event, data)
	return nil
}

// Close closes the connection and stops delivery.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.queue.Close()
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.socket != nil {
		c.socket.Disconnect()
		c.socket = nil
	}
	c.connected = false
	return nil
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	sock := c.socket
	connected := c.connected
	c.mu.RUnlock()

	if connected {
		return true
	}
	if sock != nil && sock.Connected() {
		c.setConnected(true)
		return true
	}
	return false
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// encode turns a message into the generic map the Socket.IO parser
// serializes.
func encode(msg wire.Message) (map[string]interface{}, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to convert message: %w", err)
	}
	return data, nil
}

// decodeArgs reads a wire message from Socket.IO listener arguments. The
// message may arrive as a decoded object, a JSON string or raw bytes.
func decodeArgs(args []any) (wire.Message, error) {
	var msg wire.Message
	if len(args) == 0 {
		return msg, fmt.Errorf("event has no arguments")
	}

	var raw []byte
	switch v := args[0].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case map[string]interface{}:
		encoded, err := json.Marshal(v)
		if err != nil {
			return msg, fmt.Errorf("failed to marshal event: %w", err)
		}
		raw = encoded
	default:
		return msg, fmt.Errorf("unexpected event argument %T", args[0])
	}

	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if msg.Type == "" {
		return msg, fmt.Errorf("event has no type")
	}
	return msg, nil
}
