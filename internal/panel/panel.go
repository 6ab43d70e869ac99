// Package panel wires a Communication Layer to the state store, the flow diff
// engine and a renderer.
//
// Inbound messages are normalized into events and applied to the panel's own
// store in delivery order. Each change of the selected flow is reconciled
// against what is on screen: nothing, a data patch through the captured
// DataController, or a full restart of the renderer.
package panel

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bhandras/devpanel/internal/actor"
	"github.com/bhandras/devpanel/internal/events"
	"github.com/bhandras/devpanel/internal/flow"
	"github.com/bhandras/devpanel/internal/protocol/wire"
	"github.com/bhandras/devpanel/internal/rpc"
	"github.com/bhandras/devpanel/internal/store"
	"github.com/bhandras/devpanel/internal/transport"
	"github.com/bhandras/devpanel/pkg/logger"
)

// Renderer displays flows.
type Renderer interface {
	// Start tears down whatever is displayed and starts f. A renderer that
	// can patch data in place captures its DataController in h.
	Start(f *flow.Flow, h *ControllerHandle) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(f *flow.Flow, h *ControllerHandle) error

// Start implements Renderer.
func (fn RendererFunc) Start(f *flow.Flow, h *ControllerHandle) error { return fn(f, h) }

// Panel is one observer session.
type Panel struct {
	m        transport.Messenger
	renderer Renderer
	store    *store.Store
	rpc      *rpc.Dispatcher
	handle   ControllerHandle

	echoLogs    bool
	onReconcile []func(flow.Reconciliation)

	sub transport.SubscriptionID

	mu       sync.Mutex
	rendered *flow.Flow
}

type options struct {
	storeOpts   []store.Option
	rpcOpts     []rpc.Option
	echoLogs    bool
	onReconcile []func(flow.Reconciliation)
}

// Option configures a Panel.
type Option func(*options)

// WithStoreOptions passes options to the panel's store.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) { o.storeOpts = append(o.storeOpts, opts...) }
}

// WithRPCOptions passes options to the panel's RPC dispatcher.
func WithRPCOptions(opts ...rpc.Option) Option {
	return func(o *options) { o.rpcOpts = append(o.rpcOpts, opts...) }
}

// WithEchoLogs re-emits runtime log lines through the panel logger.
func WithEchoLogs(enabled bool) Option {
	return func(o *options) { o.echoLogs = enabled }
}

// WithReconcileObserver registers fn to see every reconciliation decision.
func WithReconcileObserver(fn func(flow.Reconciliation)) Option {
	return func(o *options) { o.onReconcile = append(o.onReconcile, fn) }
}

// New creates a panel. Call Start to begin processing messages.
func New(m transport.Messenger, r Renderer, opts ...Option) *Panel {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	p := &Panel{
		m:           m,
		renderer:    r,
		echoLogs:    o.echoLogs,
		onReconcile: o.onReconcile,
	}
	storeOpts := append([]store.Option{store.WithRuntime(p)}, o.storeOpts...)
	p.store = store.New(storeOpts...)
	p.rpc = rpc.New(m, o.rpcOpts...)
	return p
}

// Start renders the initial flow and subscribes to inbound messages.
func (p *Panel) Start() {
	p.store.Start()
	p.reconcile(nil)
	p.sub = p.m.Subscribe(transport.Wildcard, p.receive)
}

// Close unsubscribes, rejects pending calls and stops the store.
func (p *Panel) Close() {
	p.m.Unsubscribe(p.sub)
	p.rpc.Close()
	p.store.Stop()
	p.handle.Revoke()
}

// Store returns the panel's state store.
func (p *Panel) Store() *store.Store { return p.store }

// RPC returns the panel's RPC dispatcher.
func (p *Panel) RPC() *rpc.Dispatcher { return p.rpc }

// Controller returns the handle of the rendered flow's DataController.
func (p *Panel) Controller() *ControllerHandle { return &p.handle }

// Rendered returns the flow currently on screen.
func (p *Panel) Rendered() *flow.Flow {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rendered
}

// SelectInstance selects a runtime instance.
func (p *Panel) SelectInstance(ctx context.Context, id string) error {
	return p.store.SelectInstance(ctx, id)
}

// SelectPlugin selects a plugin of the selected instance.
func (p *Panel) SelectPlugin(ctx context.Context, id string) error {
	return p.store.SelectPlugin(ctx, id)
}

// receive normalizes one inbound message. It runs on the transport's
// delivery goroutine, so events reach the store in delivery order.
func (p *Panel) receive(msg wire.Message) {
	ev, err := events.Decode(msg)
	switch {
	case errors.Is(err, events.ErrUnknownType):
		if !wire.IsKind(msg.Type) {
			logger.Tracef("panel: ignoring message type %q", msg.Type)
		}
		return
	case err != nil:
		logger.Warnf("panel: dropping %s: %v", msg.Type, err)
		return
	}
	if err := p.store.Apply(context.Background(), ev); err != nil {
		logger.Debugf("panel: %s not applied: %v", msg.Type, err)
	}
}

// HandleEffects implements actor.Runtime for the store.
func (p *Panel) HandleEffects(_ context.Context, effects []actor.Effect) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case store.RenderSelected:
			p.reconcile(e.View)
		case store.LogRecorded:
			if p.echoLogs {
				echo(e.Entry)
			}
		}
	}
}

// reconcile brings the screen in line with view. A nil view shows the
// initial flow. The first render always restarts.
func (p *Panel) reconcile(view *flow.Flow) {
	next := view
	if next == nil {
		next = flow.Initial
	}

	p.mu.Lock()
	r := flow.Diff(p.rendered, next, p.handle.Get())
	switch r.Action {
	case flow.ActionDataPatch:
		if err := p.handle.Get().Set(r.Data); err != nil {
			logger.Warnf("panel: data patch failed, restarting: %v", err)
			r = flow.Reconciliation{Action: flow.ActionFlowRestart, Flow: next}
			p.restart(next)
		}
	case flow.ActionFlowRestart:
		p.restart(next)
	}
	p.rendered = next
	p.mu.Unlock()
	logger.Debugf("panel: %s %s", r.Action, next.ID())

	for _, fn := range p.onReconcile {
		fn(r)
	}
}

// restart starts f from scratch. Caller holds p.mu.
func (p *Panel) restart(f *flow.Flow) {
	p.handle.Revoke()
	if p.renderer == nil {
		return
	}
	if err := p.renderer.Start(f, &p.handle); err != nil {
		logger.Errorf("panel: render %s: %v", f.ID(), err)
	}
}

func echo(e store.LogEntry) {
	format := "[%s] %s"
	switch strings.ToLower(e.Severity) {
	case "error", "fatal":
		logger.Errorf(format, e.PlayerID, e.Message)
	case "warn", "warning":
		logger.Warnf(format, e.PlayerID, e.Message)
	case "debug":
		logger.Debugf(format, e.PlayerID, e.Message)
	case "trace":
		logger.Tracef(format, e.PlayerID, e.Message)
	default:
		logger.Infof(format, e.PlayerID, e.Message)
	}
}
