// Package actor provides a single-goroutine event loop that owns a piece of
// state and transforms it with a pure reducer.
//
// The loop is the only writer. Readers take snapshots via State, which are
// swapped in only after a reduction completes, so no reader ever observes a
// partially applied input. Effects returned by the reducer are handed to a
// Runtime on the loop goroutine, in input order.
package actor

import (
	"context"
	"errors"
	"sync"
)

// Input is an item delivered to an actor mailbox.
type Input interface {
	isActorInput()
}

// Effect is a declarative side-effect produced by a reducer.
type Effect interface {
	isActorEffect()
}

// InputBase can be embedded into input structs to satisfy Input.
type InputBase struct{}

func (InputBase) isActorInput() {}

// EffectBase can be embedded into effect structs to satisfy Effect.
type EffectBase struct{}

func (EffectBase) isActorEffect() {}

// ReducerFunc is a pure state transition function.
//
// Reducers must not perform I/O, spawn goroutines or read clocks. They must
// not mutate anything reachable from the state they receive; the previous
// state may still be held by readers.
type ReducerFunc[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime interprets effects.
type Runtime interface {
	// HandleEffects runs on the loop goroutine after each reduction. It must
	// not call Send on the same actor, which would deadlock.
	HandleEffects(ctx context.Context, effects []Effect)
}

// RuntimeFunc adapts a function to Runtime.
type RuntimeFunc func(ctx context.Context, effects []Effect)

// HandleEffects implements Runtime.
func (f RuntimeFunc) HandleEffects(ctx context.Context, effects []Effect) { f(ctx, effects) }

// Hooks provide optional observability into an actor's execution.
type Hooks[S any] struct {
	// OnInput is called after an input is dequeued, before reducing.
	OnInput func(input Input)
	// OnTransition is called after the new state is published.
	OnTransition func(prev S, next S, input Input)
	// OnPanic is called when the reducer or runtime panics. If nil, panics
	// propagate.
	OnPanic func(recovered any)
}

// ErrStopped is returned when the actor has been stopped.
var ErrStopped = errors.New("actor stopped")

// ErrMailboxFull is returned by Enqueue when the mailbox has no room.
var ErrMailboxFull = errors.New("actor mailbox full")

type envelope struct {
	input Input
	done  chan struct{}
}

// Actor runs a single-threaded event loop that owns state of type S.
type Actor[S any] struct {
	reduce  ReducerFunc[S]
	runtime Runtime
	hooks   Hooks[S]

	mu    sync.RWMutex
	state S

	inbox  chan envelope
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithHooks attaches hooks for observability.
func WithHooks[S any](hooks Hooks[S]) Option[S] {
	return func(a *Actor[S]) { a.hooks = hooks }
}

// WithRuntime sets the effect interpreter.
func WithRuntime[S any](rt Runtime) Option[S] {
	return func(a *Actor[S]) { a.runtime = rt }
}

// WithMailboxSize sets the mailbox buffer size.
func WithMailboxSize[S any](n int) Option[S] {
	return func(a *Actor[S]) {
		if n > 0 {
			a.inbox = make(chan envelope, n)
		}
	}
}

// New creates an actor. Call Start to run its loop.
func New[S any](initial S, reducer ReducerFunc[S], opts ...Option[S]) *Actor[S] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor[S]{
		reduce: reducer,
		state:  initial,
		inbox:  make(chan envelope, 256),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the loop. It is idempotent.
func (a *Actor[S]) Start() {
	a.once.Do(func() { go a.loop() })
}

// Stop cancels the loop. It is safe to call multiple times.
func (a *Actor[S]) Stop() {
	a.cancel()
}

// Done returns a channel that closes when the loop exits.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// State returns the most recently published state.
func (a *Actor[S]) State() S {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Enqueue delivers an input without waiting for it to be applied.
func (a *Actor[S]) Enqueue(input Input) error {
	if input == nil {
		return nil
	}
	if a.ctx.Err() != nil {
		return ErrStopped
	}
	select {
	case a.inbox <- envelope{input: input}:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Send delivers an input and blocks until it has been reduced and its effects
// handled, or until ctx or the actor is done.
func (a *Actor[S]) Send(ctx context.Context, input Input) error {
	if input == nil {
		return nil
	}
	if a.ctx.Err() != nil {
		return ErrStopped
	}
	env := envelope{input: input, done: make(chan struct{})}
	select {
	case a.inbox <- env:
	case <-a.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-env.done:
		return nil
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor[S]) loop() {
	defer close(a.done)
	for {
		select {
		case <-a.ctx.Done():
			return
		case env := <-a.inbox:
			a.step(env)
		}
	}
}

func (a *Actor[S]) step(env envelope) {
	if env.done != nil {
		defer close(env.done)
	}
	if a.hooks.OnPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				a.hooks.OnPanic(r)
			}
		}()
	}

	if a.hooks.OnInput != nil {
		a.hooks.OnInput(env.input)
	}

	prev := a.State()
	next, effects := a.reduce(prev, env.input)

	a.mu.Lock()
	a.state = next
	a.mu.Unlock()

	if a.hooks.OnTransition != nil {
		a.hooks.OnTransition(prev, next, env.input)
	}
	if a.runtime != nil && len(effects) > 0 {
		a.runtime.HandleEffects(a.ctx, effects)
	}
}

// Step applies a reducer to a single (state, input) pair. It is a helper for
// reducer-level unit tests and does not execute effects.
func Step[S any](state S, input Input, reducer ReducerFunc[S]) (S, []Effect) {
	return reducer(state, input)
}
