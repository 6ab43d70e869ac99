// Package transport defines the Communication Layer the panel talks through
// and the pieces shared by its implementations.
//
// A Messenger sends wire messages and delivers inbound ones to subscribed
// handlers, in the order the underlying channel delivered them. Nothing here
// retries, reorders or acknowledges.
package transport

import (
	"errors"

	"github.com/bhandras/devpanel/internal/protocol/wire"
)

// Wildcard is the subscription pattern that matches every message type.
const Wildcard = "*"

var (
	// ErrNotConnected is returned by Send when the channel is closed or not
	// yet established.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrSealed is returned when a sealed payload cannot be opened.
	ErrSealed = errors.New("transport: cannot open sealed payload")
)

// Handler receives one inbound message.
type Handler func(msg wire.Message)

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID uint64

// Messenger is the send/subscribe/unsubscribe contract every transport
// satisfies.
type Messenger interface {
	// Send transmits msg. A nil error means the message was handed to the
	// channel, not that it was delivered.
	Send(msg wire.Message) error
	// Subscribe registers h for inbound messages whose type matches pattern.
	// Handlers run one message at a time, in delivery order.
	Subscribe(pattern string, h Handler) SubscriptionID
	// Unsubscribe removes a subscription. Unknown ids are ignored.
	Unsubscribe(id SubscriptionID)
}
