// Package actortest provides test helpers for the actor loop.
package actortest

import (
	"context"
	"sync"

	"github.com/bhandras/devpanel/internal/actor"
)

// FakeRuntime is a Runtime that records every effect it is handed.
type FakeRuntime struct {
	mu      sync.Mutex
	effects []actor.Effect

	// OnEffect, when non-nil, is invoked for each effect during HandleEffects.
	OnEffect func(ctx context.Context, eff actor.Effect)
}

var _ actor.Runtime = (*FakeRuntime)(nil)

// HandleEffects implements actor.Runtime.
func (r *FakeRuntime) HandleEffects(ctx context.Context, effects []actor.Effect) {
	r.mu.Lock()
	r.effects = append(r.effects, effects...)
	onEffect := r.OnEffect
	r.mu.Unlock()

	if onEffect != nil {
		for _, eff := range effects {
			onEffect(ctx, eff)
		}
	}
}

// Effects returns a snapshot of recorded effects.
func (r *FakeRuntime) Effects() []actor.Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]actor.Effect, len(r.effects))
	copy(out, r.effects)
	return out
}

// Reset clears recorded effects.
func (r *FakeRuntime) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = nil
}
