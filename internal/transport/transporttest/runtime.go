// Package transporttest provides a scripted observed runtime for tests.
package transporttest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bhandras/devpanel/internal/protocol/wire"
	"github.com/bhandras/devpanel/internal/transport"
	"github.com/bhandras/devpanel/internal/transport/memory"
)

// Responder produces the result for one request. A non-nil error is sent
// back as an error response.
type Responder func(req wire.Message) (any, error)

// Runtime answers panel requests and emits events on one side of a
// Messenger. Kinds without a responder are recorded and left unanswered.
type Runtime struct {
	m   transport.Messenger
	sub transport.SubscriptionID

	mu         sync.Mutex
	responders map[string]Responder
	requests   []wire.Message
	omitID     bool
	notify     chan struct{}
}

// NewRuntime attaches a runtime to m.
func NewRuntime(m transport.Messenger) *Runtime {
	r := &Runtime{
		m:          m,
		responders: make(map[string]Responder),
		notify:     make(chan struct{}, 1),
	}
	r.sub = m.Subscribe(transport.Wildcard, r.handle)
	return r
}

// Start wires a runtime to a fresh in-memory bus and returns the panel side.
func Start(tb testing.TB) (transport.Messenger, *Runtime) {
	tb.Helper()
	bus, err := memory.NewBus()
	if err != nil {
		tb.Fatalf("memory bus: %v", err)
	}
	tb.Cleanup(func() { _ = bus.Close() })
	return bus.Panel(), NewRuntime(bus.Runtime())
}

// Handle installs a responder for a request kind.
func (r *Runtime) Handle(kind wire.Kind, fn Responder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responders[string(kind)] = fn
}

// Reply installs a responder that always returns result.
func (r *Runtime) Reply(kind wire.Kind, result any) {
	r.Handle(kind, func(wire.Message) (any, error) { return result, nil })
}

// Fail installs a responder that always fails with msg.
func (r *Runtime) Fail(kind wire.Kind, msg string) {
	r.Handle(kind, func(wire.Message) (any, error) { return nil, errors.New(msg) })
}

// OmitIDs makes responses leave the correlation id empty, like runtimes
// that predate correlation.
func (r *Runtime) OmitIDs(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.omitID = v
}

// Emit sends an event to the panel.
func (r *Runtime) Emit(t wire.EventType, payload any) error {
	msg, err := wire.NewEvent(t, payload)
	if err != nil {
		return err
	}
	return r.m.Send(msg)
}

// Send sends an arbitrary message to the panel.
func (r *Runtime) Send(msg wire.Message) error {
	return r.m.Send(msg)
}

// Respond answers req with result.
func (r *Runtime) Respond(req wire.Message, result any) error {
	resp, err := wire.NewResponse(req, result)
	if err != nil {
		return err
	}
	return r.m.Send(r.stripID(resp))
}

// Requests returns every request received so far.
func (r *Runtime) Requests() []wire.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wire.Message(nil), r.requests...)
}

// WaitRequests blocks until at least n requests arrived or timeout passes.
func (r *Runtime) WaitRequests(n int, timeout time.Duration) ([]wire.Message, bool) {
	deadline := time.After(timeout)
	for {
		reqs := r.Requests()
		if len(reqs) >= n {
			return reqs, true
		}
		select {
		case <-r.notify:
		case <-deadline:
			return r.Requests(), false
		}
	}
}

// Detach stops answering.
func (r *Runtime) Detach() {
	r.m.Unsubscribe(r.sub)
}

func (r *Runtime) handle(req wire.Message) {
	if !wire.IsKind(req.Type) || len(req.Payload) > 0 || req.Error != "" {
		return
	}
	r.mu.Lock()
	r.requests = append(r.requests, req)
	fn := r.responders[req.Type]
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}

	if fn == nil {
		return
	}
	result, err := fn(req)
	if err != nil {
		_ = r.m.Send(r.stripID(wire.NewErrorResponse(req, err.Error())))
		return
	}
	_ = r.Respond(req, result)
}

func (r *Runtime) stripID(msg wire.Message) wire.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.omitID {
		msg.ID = ""
	}
	return msg
}
