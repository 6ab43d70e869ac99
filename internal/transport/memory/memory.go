// Package memory provides an in-process Messenger pair backed by a watermill
// Go channel pub/sub. One end plays the panel, the other the observed
// runtime.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/bhandras/devpanel/internal/protocol/wire"
	"github.com/bhandras/devpanel/internal/transport"
	"github.com/bhandras/devpanel/pkg/logger"
)

const (
	// TopicToRuntime carries requests from the panel.
	TopicToRuntime = "devpanel.to-runtime"
	// TopicToPanel carries events and responses from the runtime.
	TopicToPanel = "devpanel.to-panel"
)

// Bus owns the shared pub/sub and both endpoints.
type Bus struct {
	pubSub *gochannel.GoChannel
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	panel   *Endpoint
	runtime *Endpoint
}

// Endpoint is one side of a Bus.
type Endpoint struct {
	transport.Router

	name    string
	bus     *Bus
	publish string
	queue   *transport.Queue

	mu     sync.RWMutex
	closed bool
}

var _ transport.Messenger = (*Endpoint)(nil)

// NewBus creates a connected endpoint pair.
//
// Publishing blocks until the peer has taken the message, so messages on
// each direction arrive in send order.
func NewBus() (*Bus, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NewStdLogger(false, false),
	)
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{pubSub: pubSub, ctx: ctx, cancel: cancel}

	var err error
	if b.panel, err = b.endpoint("panel", TopicToRuntime, TopicToPanel); err != nil {
		b.Close()
		return nil, err
	}
	if b.runtime, err = b.endpoint("runtime", TopicToPanel, TopicToRuntime); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Panel returns the panel side.
func (b *Bus) Panel() *Endpoint { return b.panel }

// Runtime returns the runtime side.
func (b *Bus) Runtime() *Endpoint { return b.runtime }

// Close shuts down both endpoints. Sends after Close fail with
// transport.ErrNotConnected.
func (b *Bus) Close() error {
	var err error
	b.once.Do(func() {
		for _, ep := range []*Endpoint{b.panel, b.runtime} {
			if ep != nil {
				ep.markClosed()
			}
		}
		b.cancel()
		err = b.pubSub.Close()
		for _, ep := range []*Endpoint{b.panel, b.runtime} {
			if ep != nil {
				ep.queue.Close()
			}
		}
	})
	return err
}

func (b *Bus) endpoint(name, publish, subscribe string) (*Endpoint, error) {
	messages, err := b.pubSub.Subscribe(b.ctx, subscribe)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subscribe, err)
	}
	ep := &Endpoint{
		name:    name,
		bus:     b,
		publish: publish,
		queue:   transport.NewQueue(0),
	}
	go ep.consume(messages)
	return ep, nil
}

// Send implements transport.Messenger.
func (e *Endpoint) Send(msg wire.Message) error {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return transport.ErrNotConnected
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := e.bus.pubSub.Publish(e.publish, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	return nil
}

func (e *Endpoint) consume(messages <-chan *message.Message) {
	for m := range messages {
		var msg wire.Message
		err := json.Unmarshal(m.Payload, &msg)
		m.Ack()
		if err != nil {
			logger.Warnf("memory: %s dropped malformed message: %v", e.name, err)
			continue
		}
		if err := e.queue.Do(func() { e.Deliver(msg) }); err != nil {
			return
		}
	}
}

func (e *Endpoint) markClosed() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}
