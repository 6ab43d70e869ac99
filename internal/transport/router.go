package transport

import (
	"path"
	"sync"

	"github.com/bhandras/devpanel/internal/protocol/wire"
	"github.com/bhandras/devpanel/pkg/logger"
)

type subscription struct {
	id      SubscriptionID
	pattern string
	handler Handler
}

// Router fans inbound messages out to subscriptions by type pattern.
//
// Patterns use path.Match syntax, so "*" matches every type and "player-*"
// matches every event tag. The zero value is ready to use.
type Router struct {
	mu     sync.RWMutex
	nextID SubscriptionID
	subs   []subscription
}

// Subscribe implements Messenger.Subscribe.
func (r *Router) Subscribe(pattern string, h Handler) SubscriptionID {
	if pattern == "" {
		pattern = Wildcard
	}
	if _, err := path.Match(pattern, ""); err != nil {
		logger.Warnf("transport: bad subscription pattern %q: %v", pattern, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.subs = append(r.subs, subscription{id: r.nextID, pattern: pattern, handler: h})
	return r.nextID
}

// Unsubscribe implements Messenger.Unsubscribe.
func (r *Router) Unsubscribe(id SubscriptionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return
		}
	}
}

// Deliver runs every matching handler for msg, in subscription order, on the
// calling goroutine. It reports whether any handler matched.
func (r *Router) Deliver(msg wire.Message) bool {
	r.mu.RLock()
	subs := r.subs
	r.mu.RUnlock()

	matched := false
	for _, s := range subs {
		if !Match(s.pattern, msg.Type) || s.handler == nil {
			continue
		}
		matched = true
		s.handler(msg)
	}
	return matched
}

// Len returns the number of live subscriptions.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Match reports whether a message type matches a subscription pattern.
func Match(pattern, typ string) bool {
	if pattern == Wildcard {
		return true
	}
	ok, err := path.Match(pattern, typ)
	return err == nil && ok
}
