// Package store tracks the runtime instances known to a panel, their plugins,
// and the panel's current selection.
//
// State changes only through Reduce, driven by normalized events and selection
// commands, on a single actor loop. Readers see whole snapshots.
package store

import (
	"context"

	"github.com/bhandras/devpanel/internal/actor"
	"github.com/bhandras/devpanel/internal/events"
	"github.com/bhandras/devpanel/internal/flow"
	"github.com/bhandras/devpanel/pkg/logger"
)

// Store is an owned state container. Each panel creates its own.
type Store struct {
	loop *actor.Actor[State]
}

type options struct {
	settings Settings
	runtime  actor.Runtime
	mailbox  int
}

// Option configures a Store.
type Option func(*options)

// WithMaxLogs bounds the retained log buffer.
func WithMaxLogs(n int) Option {
	return func(o *options) { o.settings.MaxLogs = n }
}

// WithAutoSelect selects the first instance that appears while nothing is
// selected.
func WithAutoSelect(enabled bool) Option {
	return func(o *options) { o.settings.AutoSelect = enabled }
}

// WithRuntime sets the interpreter for RenderSelected and LogRecorded effects.
func WithRuntime(rt actor.Runtime) Option {
	return func(o *options) { o.runtime = rt }
}

// WithMailboxSize sets the number of inputs that may queue ahead of the loop.
func WithMailboxSize(n int) Option {
	return func(o *options) { o.mailbox = n }
}

// New creates a store. Call Start before applying inputs.
func New(opts ...Option) *Store {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	actorOpts := []actor.Option[State]{
		actor.WithHooks(actor.Hooks[State]{
			OnInput: func(in actor.Input) {
				if logger.Enabled(logger.LevelTrace) {
					logger.Tracef("store: input %T", in)
				}
			},
			OnPanic: func(r any) {
				logger.Errorf("store: reducer panic: %v", r)
			},
		}),
	}
	if o.runtime != nil {
		actorOpts = append(actorOpts, actor.WithRuntime[State](o.runtime))
	}
	if o.mailbox > 0 {
		actorOpts = append(actorOpts, actor.WithMailboxSize[State](o.mailbox))
	}
	return &Store{loop: actor.New(NewState(o.settings), Reduce, actorOpts...)}
}

// Start launches the store loop.
func (s *Store) Start() { s.loop.Start() }

// Stop stops the store loop.
func (s *Store) Stop() { s.loop.Stop() }

// Apply applies a normalized event and waits until it is visible to readers.
func (s *Store) Apply(ctx context.Context, ev events.Event) error {
	return s.loop.Send(ctx, ev)
}

// Enqueue queues a normalized event without waiting.
func (s *Store) Enqueue(ev events.Event) error {
	return s.loop.Enqueue(ev)
}

// SelectInstance selects a runtime instance. Unknown ids leave the selection
// unchanged.
func (s *Store) SelectInstance(ctx context.Context, id string) error {
	return s.loop.Send(ctx, SelectInstance{ID: id})
}

// SelectPlugin selects a plugin of the selected instance. Unknown ids leave
// the selection unchanged.
func (s *Store) SelectPlugin(ctx context.Context, id string) error {
	return s.loop.Send(ctx, SelectPlugin{ID: id})
}

// ClearLogs drops the retained log buffer.
func (s *Store) ClearLogs(ctx context.Context) error {
	return s.loop.Send(ctx, ClearLogs{})
}

// Reset drops all tracked instances and the selection.
func (s *Store) Reset(ctx context.Context) error {
	return s.loop.Send(ctx, Reset{})
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State { return s.loop.State() }

// Selection returns the current selection.
func (s *Store) Selection() Selection { return s.loop.State().Selection }

// InstanceIDs returns the known instance ids in the order they appeared.
func (s *Store) InstanceIDs() []string {
	return append([]string(nil), s.loop.State().Order...)
}

// PluginIDs returns the plugin ids of an instance in the order they appeared.
func (s *Store) PluginIDs(instanceID string) []string {
	return s.loop.State().PluginIDs(instanceID)
}

// Current returns the selected plugin's flow and data snapshot.
func (s *Store) Current() (*flow.Flow, map[string]any, bool) {
	p, ok := s.loop.State().SelectedPlugin()
	if !ok {
		return nil, nil, false
	}
	return p.Flow, copyData(p.Data), true
}

// SelectedView returns the selected plugin's effective flow, or nil.
func (s *Store) SelectedView() *flow.Flow {
	return s.loop.State().SelectedView()
}

// Logs returns the retained runtime log lines, oldest first.
func (s *Store) Logs() []LogEntry {
	return append([]LogEntry(nil), s.loop.State().Logs...)
}
