// Package rpc sends typed requests to observed runtimes and correlates their
// responses.
//
// Every call moves through observable phases: pending when it is issued,
// then fulfilled or rejected. Requests carry a generated correlation id and
// responses are matched by it. A response without an id resolves the oldest
// pending call of its kind. There is no built-in timeout; callers bound the
// wait with their context.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bhandras/devpanel/internal/clock"
	"github.com/bhandras/devpanel/internal/protocol/wire"
	"github.com/bhandras/devpanel/internal/transport"
	"github.com/bhandras/devpanel/pkg/logger"
)

// Phase is a call lifecycle phase.
type Phase int

const (
	PhasePending Phase = iota
	PhaseFulfilled
	PhaseRejected
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseFulfilled:
		return "fulfilled"
	case PhaseRejected:
		return "rejected"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// MarshalText renders the phase name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Signal is a lifecycle notification for one call.
type Signal struct {
	Kind   wire.Kind       `json:"kind"`
	ID     string          `json:"id"`
	Phase  Phase           `json:"phase"`
	Params json.RawMessage `json:"params,omitempty"`
	// Result is set when fulfilled.
	Result json.RawMessage `json:"result,omitempty"`
	// Err is set when rejected.
	Err error `json:"-"`
	// Latency is the time since the call was issued. Zero while pending.
	Latency time.Duration `json:"latency"`
}

// Observer receives lifecycle signals. It runs synchronously on the goroutine
// that caused the transition and must not block.
type Observer func(Signal)

type outcome struct {
	payload json.RawMessage
	err     error
}

type call struct {
	id      string
	kind    wire.Kind
	params  json.RawMessage
	started time.Time
	done    chan outcome
}

// Dispatcher issues calls over a Messenger.
type Dispatcher struct {
	m         transport.Messenger
	clock     clock.Clock
	newID     func() string
	observers []Observer

	mu      sync.Mutex
	closed  bool
	pending map[string]*call
	byKind  map[wire.Kind][]string
	subs    []transport.SubscriptionID
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver adds a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, o) }
}

// WithClock sets the clock used for latency.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithIDGenerator replaces the correlation id source.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) { d.newID = fn }
}

// New creates a dispatcher listening for responses of every kind on m.
func New(m transport.Messenger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		m:       m,
		clock:   clock.Real{},
		newID:   uuid.NewString,
		pending: make(map[string]*call),
		byKind:  make(map[wire.Kind][]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, kind := range wire.Kinds {
		kind := kind
		d.subs = append(d.subs, m.Subscribe(string(kind), func(msg wire.Message) {
			d.handleResponse(kind, msg)
		}))
	}
	return d
}

// Close stops listening and rejects every pending call with ErrClosed.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	subs := d.subs
	d.subs = nil
	calls := make([]*call, 0, len(d.pending))
	for _, c := range d.pending {
		calls = append(calls, c)
	}
	d.pending = make(map[string]*call)
	d.byKind = make(map[wire.Kind][]string)
	d.mu.Unlock()

	for _, id := range subs {
		d.m.Unsubscribe(id)
	}
	for _, c := range calls {
		d.settle(c, outcome{err: ErrClosed})
	}
}

// Pending returns the number of calls awaiting a response.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Call sends a request of the given kind and waits for its response. params
// may be nil, a json.RawMessage, or any JSON-encodable value.
//
// Validation failures are rejected without sending anything. If ctx ends
// first the call is forgotten and ctx.Err() is returned.
func (d *Dispatcher) Call(ctx context.Context, kind wire.Kind, params any) (json.RawMessage, error) {
	c := &call{
		id:      d.newID(),
		kind:    kind,
		started: d.clock.Now(),
		done:    make(chan outcome, 1),
	}

	raw, err := encodeParams(params)
	c.params = raw
	d.emit(Signal{Kind: kind, ID: c.id, Phase: PhasePending, Params: raw})
	logger.Debugf("Requesting %s %s", kind, raw)

	if err == nil && !wire.IsKind(string(kind)) {
		err = fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err == nil {
		err = validate(kind, raw)
	}
	if err != nil {
		d.reject(c, err)
		return nil, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.reject(c, ErrClosed)
		return nil, ErrClosed
	}
	d.pending[c.id] = c
	d.byKind[kind] = append(d.byKind[kind], c.id)
	d.mu.Unlock()

	req := wire.Message{Type: string(kind), ID: c.id, Params: raw}
	if err := d.m.Send(req); err != nil {
		if d.forget(c) {
			err = fmt.Errorf("send %s: %w", kind, err)
			d.reject(c, err)
			return nil, err
		}
	}

	select {
	case out := <-c.done:
		return out.payload, out.err
	case <-ctx.Done():
		d.forget(c)
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) handleResponse(kind wire.Kind, msg wire.Message) {
	// Requests echoed back by a relay carry neither result nor error.
	if len(msg.Payload) == 0 && msg.Error == "" {
		return
	}

	d.mu.Lock()
	c := d.match(kind, msg.ID)
	if c != nil {
		d.remove(c)
	}
	d.mu.Unlock()

	if c == nil {
		logger.Debugf("Dropping unmatched %s response (id %q)", kind, msg.ID)
		return
	}

	if msg.Error != "" {
		d.settle(c, outcome{err: &RemoteError{Kind: kind, Message: msg.Error}})
		return
	}
	d.settle(c, outcome{payload: msg.Payload})
}

// match finds the call a response belongs to. Caller holds d.mu.
func (d *Dispatcher) match(kind wire.Kind, id string) *call {
	if id != "" {
		c, ok := d.pending[id]
		if !ok || c.kind != kind {
			return nil
		}
		return c
	}
	ids := d.byKind[kind]
	if len(ids) == 0 {
		return nil
	}
	return d.pending[ids[0]]
}

// remove drops a call from the pending set. Caller holds d.mu.
func (d *Dispatcher) remove(c *call) {
	delete(d.pending, c.id)
	ids := d.byKind[c.kind]
	for i, id := range ids {
		if id == c.id {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(d.byKind, c.kind)
	} else {
		d.byKind[c.kind] = ids
	}
}

// forget removes a call that is no longer awaited. It reports whether the
// call was still pending.
func (d *Dispatcher) forget(c *call) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[c.id]; !ok {
		return false
	}
	d.remove(c)
	return true
}

func (d *Dispatcher) settle(c *call, out outcome) {
	if out.err != nil {
		d.reject(c, out.err)
	} else {
		latency := d.clock.Now().Sub(c.started)
		logger.Debugf("Response from %s %s (%s)", c.kind, out.payload, latency)
		d.emit(Signal{
			Kind:    c.kind,
			ID:      c.id,
			Phase:   PhaseFulfilled,
			Params:  c.params,
			Result:  out.payload,
			Latency: latency,
		})
	}
	c.done <- out
}

func (d *Dispatcher) reject(c *call, err error) {
	latency := d.clock.Now().Sub(c.started)
	logger.Debugf("Response from %s failed: %v", c.kind, err)
	d.emit(Signal{
		Kind:    c.kind,
		ID:      c.id,
		Phase:   PhaseRejected,
		Params:  c.params,
		Err:     err,
		Latency: latency,
	})
}

func (d *Dispatcher) emit(s Signal) {
	for _, o := range d.observers {
		o(s)
	}
}

func encodeParams(params any) (json.RawMessage, error) {
	switch v := params.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return v, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	return raw, nil
}
