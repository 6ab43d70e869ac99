package store

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/bhandras/devpanel/internal/actor"
	"github.com/bhandras/devpanel/internal/events"
	"github.com/bhandras/devpanel/internal/flow"
	"github.com/stretchr/testify/require"
)

func mustFlow(t *testing.T, raw string) *flow.Flow {
	t.Helper()
	f, err := flow.Parse([]byte(raw))
	require.NoError(t, err)
	return f
}

func initWith(playerID string, pluginIDs ...string) events.PlayerInit {
	plugins := make(map[string]events.PluginState, len(pluginIDs))
	for _, id := range pluginIDs {
		plugins[id] = events.PluginState{}
	}
	return events.NewPlayerInit(playerID, "1.0", plugins)
}

func apply(state State, inputs ...actor.Input) (State, []actor.Effect) {
	var all []actor.Effect
	for _, in := range inputs {
		var effects []actor.Effect
		state, effects = actor.Step(state, in, Reduce)
		all = append(all, effects...)
	}
	return state, all
}

func TestInstanceSetMatchesReplay(t *testing.T) {
	t.Parallel()

	ids := []string{"p1", "p2", "p3", "p4"}
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		state := NewState(Settings{})
		want := map[string]bool{}
		var wantOrder []string

		for step := 0; step < 30; step++ {
			id := ids[rng.Intn(len(ids))]
			if rng.Intn(2) == 0 {
				state, _ = apply(state, initWith(id, "core"))
				if !want[id] {
					want[id] = true
					wantOrder = append(wantOrder, id)
				}
			} else {
				state, _ = apply(state, events.NewPlayerRemoved(id))
				if want[id] {
					delete(want, id)
					for i, o := range wantOrder {
						if o == id {
							wantOrder = append(wantOrder[:i:i], wantOrder[i+1:]...)
							break
						}
					}
				}
			}
		}

		require.Len(t, state.Instances, len(want), "round %d", round)
		for id := range want {
			require.Contains(t, state.Instances, id, "round %d", round)
		}
		if len(wantOrder) == 0 {
			require.Empty(t, state.Order)
		} else {
			require.Equal(t, wantOrder, state.Order, "round %d", round)
		}
	}
}

func TestSelectionInvariant(t *testing.T) {
	t.Parallel()

	state, _ := apply(NewState(Settings{}),
		initWith("p1", "core"),
		initWith("p2", "core", "profiler"),
	)

	tests := []struct {
		name   string
		inputs []actor.Input
		want   Selection
	}{
		{
			name:   "single plugin auto-selected",
			inputs: []actor.Input{SelectInstance{ID: "p1"}},
			want:   Selection{InstanceID: "p1", PluginID: "core"},
		},
		{
			name:   "multiple plugins leave plugin unset",
			inputs: []actor.Input{SelectInstance{ID: "p2"}},
			want:   Selection{InstanceID: "p2"},
		},
		{
			name:   "valid plugin",
			inputs: []actor.Input{SelectInstance{ID: "p2"}, SelectPlugin{ID: "profiler"}},
			want:   Selection{InstanceID: "p2", PluginID: "profiler"},
		},
		{
			name:   "invalid plugin keeps selection",
			inputs: []actor.Input{SelectInstance{ID: "p2"}, SelectPlugin{ID: "core"}, SelectPlugin{ID: "nope"}},
			want:   Selection{InstanceID: "p2", PluginID: "core"},
		},
		{
			name:   "unknown instance is a no-op",
			inputs: []actor.Input{SelectInstance{ID: "p1"}, SelectInstance{ID: "ghost"}},
			want:   Selection{InstanceID: "p1", PluginID: "core"},
		},
		{
			name:   "plugin without instance is a no-op",
			inputs: []actor.Input{SelectPlugin{ID: "core"}},
			want:   Selection{},
		},
		{
			name:   "plugin of another instance is rejected",
			inputs: []actor.Input{SelectInstance{ID: "p1"}, SelectPlugin{ID: "profiler"}},
			want:   Selection{InstanceID: "p1", PluginID: "core"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := apply(state, tt.inputs...)
			require.Equal(t, tt.want, got.Selection)
			if got.Selection.PluginID != "" {
				inst, ok := got.Instances[got.Selection.InstanceID]
				require.True(t, ok)
				require.Contains(t, inst.Plugins, got.Selection.PluginID)
			}
		})
	}
}

func TestRemovingSelectedInstanceClearsSelection(t *testing.T) {
	t.Parallel()

	state, _ := apply(NewState(Settings{}), initWith("p1", "core"), SelectInstance{ID: "p1"})
	state, effects := apply(state, events.NewPlayerRemoved("p1"))

	require.Equal(t, Selection{}, state.Selection)
	require.Empty(t, state.Order)
	require.Equal(t, []actor.Effect{RenderSelected{}}, effects)
}

func TestRepeatInitIsIdempotent(t *testing.T) {
	t.Parallel()

	f := mustFlow(t, `{"id":"f1","data":{"a":1}}`)
	first := events.NewPlayerInit("p1", "1.0", map[string]events.PluginState{
		"core": {Flow: f},
	})
	state, _ := apply(NewState(Settings{}), first,
		events.NewDataChange("p1", "core", map[string]any{"a": 2}),
	)
	again := events.NewPlayerInit("p1", "2.0", map[string]events.PluginState{
		"core":     {Flow: mustFlow(t, `{"id":"other"}`)},
		"profiler": {},
	})
	state, _ = apply(state, again)

	inst := state.Instances["p1"]
	require.Equal(t, "1.0", inst.Version)
	require.Equal(t, []string{"core", "profiler"}, inst.PluginOrder)
	require.Same(t, f, inst.Plugins["core"].Flow)
	require.Equal(t, map[string]any{"a": 2}, inst.Plugins["core"].Data)
	require.Equal(t, []string{"p1"}, state.Order)
}

func TestFlowStartAndDataChange(t *testing.T) {
	t.Parallel()

	f1 := mustFlow(t, `{"id":"f1","views":[{"id":"v"}]}`)
	state, _ := apply(NewState(Settings{}), initWith("p1", "core"), SelectInstance{ID: "p1"})

	state, effects := apply(state, events.NewFlowStart("p1", "core", f1))
	p := state.Instances["p1"].Plugins["core"]
	require.Same(t, f1, p.Flow)
	require.Len(t, effects, 1)
	render := effects[0].(RenderSelected)
	require.Same(t, p.View, render.View)
	require.Equal(t, "f1", render.View.ID())

	before := state
	state, effects = apply(state, events.NewDataChange("p1", "core", map[string]any{"x": 1}))
	p = state.Instances["p1"].Plugins["core"]
	require.Same(t, f1, p.Flow, "data change must not replace the flow")
	require.Equal(t, map[string]any{"x": 1}, p.Data)
	require.Equal(t, map[string]any{}, before.Instances["p1"].Plugins["core"].Data, "previous snapshot must be untouched")
	require.Len(t, effects, 1)

	reconciled := flow.Diff(before.SelectedView(), state.SelectedView(), nopController{})
	require.Equal(t, flow.ActionDataPatch, reconciled.Action)
	require.Equal(t, map[string]any{"x": 1}, reconciled.Data)

	state, _ = apply(state, events.NewDataChange("p1", "core", map[string]any{"y": 2}))
	require.Equal(t, map[string]any{"x": 1, "y": 2}, state.Instances["p1"].Plugins["core"].Data)
}

func TestEventsCreateUnknownInstancesAndPlugins(t *testing.T) {
	t.Parallel()

	state, effects := apply(NewState(Settings{}),
		events.NewFlowStart("p9", "core", mustFlow(t, `{"id":"f"}`)),
		events.NewDataChange("p9", "extra", map[string]any{"k": "v"}),
	)
	require.Equal(t, []string{"p9"}, state.Order)
	require.Equal(t, []string{"core", "extra"}, state.PluginIDs("p9"))
	require.Nil(t, state.Instances["p9"].Plugins["extra"].Flow)
	require.Nil(t, state.Instances["p9"].Plugins["extra"].View)
	require.Empty(t, effects, "background updates are not rendered")
}

func TestBackgroundUpdatesRenderOnSelection(t *testing.T) {
	t.Parallel()

	f := mustFlow(t, `{"id":"bg"}`)
	state, effects := apply(NewState(Settings{}),
		initWith("p1", "core"),
		events.NewFlowStart("p1", "core", f),
	)
	require.Empty(t, effects)

	_, effects = apply(state, SelectInstance{ID: "p1"})
	require.Len(t, effects, 1)
	require.Equal(t, "bg", effects[0].(RenderSelected).View.ID())
}

func TestLogsAndViewUpdates(t *testing.T) {
	t.Parallel()

	state := NewState(Settings{MaxLogs: 3})
	var effects []actor.Effect
	for i := 0; i < 5; i++ {
		var eff []actor.Effect
		state, eff = apply(state, events.NewLog("p1", "info", fmt.Sprintf("line %d", i), int64(i)))
		effects = append(effects, eff...)
	}
	require.Len(t, state.Logs, 3)
	require.Equal(t, "line 2", state.Logs[0].Message)
	require.Equal(t, "line 4", state.Logs[2].Message)
	require.Len(t, effects, 5)
	require.IsType(t, LogRecorded{}, effects[0])
	require.Empty(t, state.Instances, "log lines do not create instances")

	state, _ = apply(state, events.NewViewUpdate("p1", "core", []byte(`{"id":"v1"}`)))
	require.JSONEq(t, `{"id":"v1"}`, string(state.Instances["p1"].LastView))
	require.Empty(t, state.Instances["p1"].Plugins)

	state, _ = apply(state, ClearLogs{})
	require.Empty(t, state.Logs)
}

func TestAutoSelectAndReset(t *testing.T) {
	t.Parallel()

	state, effects := apply(NewState(Settings{AutoSelect: true}),
		initWith("p1", "core"),
		initWith("p2", "core"),
	)
	require.Equal(t, Selection{InstanceID: "p1", PluginID: "core"}, state.Selection)
	require.Len(t, effects, 1)

	state, effects = apply(state, Reset{})
	require.Empty(t, state.Instances)
	require.Equal(t, Selection{}, state.Selection)
	require.True(t, state.Settings.AutoSelect)
	require.Equal(t, defaultMaxLogs, state.Settings.MaxLogs)
	require.Len(t, effects, 1)
}

func TestUnknownInputIsIgnored(t *testing.T) {
	t.Parallel()

	type stray struct{ actor.InputBase }
	state := NewState(Settings{})
	next, effects := apply(state, stray{})
	require.Equal(t, state, next)
	require.Empty(t, effects)
}

type nopController struct{}

func (nopController) Set(map[string]any) error { return nil }
