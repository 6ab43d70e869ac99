package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bhandras/devpanel/internal/protocol/wire"
)

// Invoke issues a call and decodes its result into R.
func Invoke[R any](ctx context.Context, d *Dispatcher, kind wire.Kind, params any) (R, error) {
	var out R
	raw, err := d.Call(ctx, kind, params)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s result: %w", kind, err)
	}
	return out, nil
}

// GetState fetches the runtime's opaque state dump.
func (d *Dispatcher) GetState(ctx context.Context) (map[string]any, error) {
	return Invoke[map[string]any](ctx, d, wire.KindGetState, nil)
}

// RuntimeInfo fetches version and plugin information for a player.
func (d *Dispatcher) RuntimeInfo(ctx context.Context, playerID string) (wire.RuntimeInfoResult, error) {
	return Invoke[wire.RuntimeInfoResult](ctx, d, wire.KindRuntimeInfo, wire.PlayerParams{PlayerID: playerID})
}

// Config fetches a player's configuration.
func (d *Dispatcher) Config(ctx context.Context, playerID string) (wire.ConfigResult, error) {
	return Invoke[wire.ConfigResult](ctx, d, wire.KindConfig, wire.PlayerParams{PlayerID: playerID})
}

// DataBinding resolves one data binding.
func (d *Dispatcher) DataBinding(ctx context.Context, playerID, binding string) (wire.DataBindingResult, error) {
	return Invoke[wire.DataBindingResult](ctx, d, wire.KindDataBinding, wire.DataBindingParams{
		PlayerID: playerID,
		Binding:  binding,
	})
}

// ViewDetails fetches the resolved view.
func (d *Dispatcher) ViewDetails(ctx context.Context, playerID string) (wire.ViewDetailsResult, error) {
	return Invoke[wire.ViewDetailsResult](ctx, d, wire.KindViewDetails, wire.PlayerParams{PlayerID: playerID})
}

// RunExpression evaluates an expression in the player. An evaluation failure
// is reported in the result, not as an error.
func (d *Dispatcher) RunExpression(ctx context.Context, playerID, expression string) (wire.RunExpressionResult, error) {
	return Invoke[wire.RunExpressionResult](ctx, d, wire.KindRunExpression, wire.RunExpressionParams{
		PlayerID:   playerID,
		Expression: expression,
	})
}

// StartProfiler starts the player's profiler.
func (d *Dispatcher) StartProfiler(ctx context.Context, playerID string) (wire.StartProfilerResult, error) {
	return Invoke[wire.StartProfilerResult](ctx, d, wire.KindStartProfiler, wire.PlayerParams{PlayerID: playerID})
}

// StopProfiler stops the player's profiler and returns the profile.
func (d *Dispatcher) StopProfiler(ctx context.Context, playerID string) (wire.StopProfilerResult, error) {
	return Invoke[wire.StopProfilerResult](ctx, d, wire.KindStopProfiler, wire.PlayerParams{PlayerID: playerID})
}
