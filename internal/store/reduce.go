package store

import (
	"sort"

	"github.com/bhandras/devpanel/internal/actor"
	"github.com/bhandras/devpanel/internal/events"
	"github.com/bhandras/devpanel/internal/flow"
)

// Commands issued by the panel.

// SelectInstance selects a runtime instance. Unknown ids are ignored.
type SelectInstance struct {
	actor.InputBase
	ID string
}

// SelectPlugin selects a plugin of the selected instance. Unknown ids, or no
// selected instance, are ignored.
type SelectPlugin struct {
	actor.InputBase
	ID string
}

// ClearLogs drops the retained log buffer.
type ClearLogs struct {
	actor.InputBase
}

// Reset drops all tracked state but keeps settings.
type Reset struct {
	actor.InputBase
}

// Effects emitted by the reducer.

// RenderSelected is emitted whenever the selection or the selected plugin's
// effective flow changes.
type RenderSelected struct {
	actor.EffectBase
	Selection Selection
	// View is the selected plugin's effective flow, or nil when nothing
	// renderable is selected.
	View *flow.Flow
}

// LogRecorded is emitted for every runtime log line.
type LogRecorded struct {
	actor.EffectBase
	Entry LogEntry
}

// Reduce is the store reducer.
func Reduce(state State, input actor.Input) (State, []actor.Effect) {
	var (
		next    State
		effects []actor.Effect
	)
	switch in := input.(type) {
	case events.PlayerInit:
		next = reducePlayerInit(state, in)
	case events.PlayerRemoved:
		next = reducePlayerRemoved(state, in)
	case events.FlowStart:
		next = reduceFlowStart(state, in)
	case events.DataChange:
		next = reduceDataChange(state, in)
	case events.Log:
		entry := LogEntry{
			PlayerID:  in.PlayerID,
			Severity:  in.Severity,
			Message:   in.Message,
			Timestamp: in.Timestamp,
		}
		next = appendLog(state, entry)
		effects = append(effects, LogRecorded{Entry: entry})
	case events.ViewUpdate:
		next = reduceViewUpdate(state, in)
	case SelectInstance:
		next = selectInstance(state, in.ID)
	case SelectPlugin:
		next = selectPlugin(state, in.ID)
	case ClearLogs:
		next = state
		next.Logs = nil
	case Reset:
		next = NewState(state.Settings)
	default:
		return state, nil
	}

	if next.Selection != state.Selection || next.SelectedView() != state.SelectedView() {
		effects = append(effects, RenderSelected{
			Selection: next.Selection,
			View:      next.SelectedView(),
		})
	}
	return next, effects
}

func reducePlayerInit(state State, ev events.PlayerInit) State {
	next := state.withInstances()
	inst, known := next.Instances[ev.PlayerID]
	if !known {
		inst = Instance{ID: ev.PlayerID, Plugins: map[string]Plugin{}}
		next.Order = append(append([]string(nil), state.Order...), ev.PlayerID)
	} else {
		inst = inst.withPlugins()
	}
	if inst.Version == "" {
		inst.Version = ev.Version
	}

	ids := make([]string, 0, len(ev.Plugins))
	for id := range ev.Plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	order := append([]string(nil), inst.PluginOrder...)
	for _, id := range ids {
		if _, exists := inst.Plugins[id]; exists {
			continue
		}
		seed := ev.Plugins[id]
		data := seed.Data
		if data == nil && seed.Flow != nil {
			data = seed.Flow.Data()
		}
		inst.Plugins[id] = newPlugin(id, seed.Flow, data)
		order = append(order, id)
	}
	inst.PluginOrder = order
	next.Instances[ev.PlayerID] = inst

	if next.Settings.AutoSelect && next.Selection.InstanceID == "" {
		next = selectInstance(next, ev.PlayerID)
	}
	return next
}

func reducePlayerRemoved(state State, ev events.PlayerRemoved) State {
	if _, ok := state.Instances[ev.PlayerID]; !ok {
		return state
	}
	next := state.withInstances()
	delete(next.Instances, ev.PlayerID)

	order := make([]string, 0, len(state.Order))
	for _, id := range state.Order {
		if id != ev.PlayerID {
			order = append(order, id)
		}
	}
	next.Order = order

	if next.Selection.InstanceID == ev.PlayerID {
		next.Selection = Selection{}
	}
	return next
}

// upsertPlugin returns a state in which the addressed instance and plugin
// exist, creating either when absent, with the plugin replaced by update.
func upsertPlugin(state State, playerID, pluginID string, update func(Plugin, bool) Plugin) State {
	next := state.withInstances()
	inst, known := next.Instances[playerID]
	if !known {
		inst = Instance{ID: playerID, Plugins: map[string]Plugin{}}
		next.Order = append(append([]string(nil), state.Order...), playerID)
	} else {
		inst = inst.withPlugins()
	}

	p, exists := inst.Plugins[pluginID]
	if !exists {
		p = Plugin{ID: pluginID, Data: map[string]any{}}
		inst.PluginOrder = append(append([]string(nil), inst.PluginOrder...), pluginID)
	}
	inst.Plugins[pluginID] = update(p, exists)
	next.Instances[playerID] = inst
	return next
}

func reduceFlowStart(state State, ev events.FlowStart) State {
	return upsertPlugin(state, ev.PlayerID, ev.PluginID, func(p Plugin, _ bool) Plugin {
		return newPlugin(p.ID, ev.Flow, ev.Flow.Data())
	})
}

func reduceDataChange(state State, ev events.DataChange) State {
	return upsertPlugin(state, ev.PlayerID, ev.PluginID, func(p Plugin, _ bool) Plugin {
		data := copyData(p.Data)
		for k, v := range ev.Data {
			data[k] = v
		}
		p.Data = data
		p.View = buildView(p.Flow, data)
		return p
	})
}

func reduceViewUpdate(state State, ev events.ViewUpdate) State {
	next := state.withInstances()
	inst, known := next.Instances[ev.PlayerID]
	if !known {
		inst = Instance{ID: ev.PlayerID, Plugins: map[string]Plugin{}}
		next.Order = append(append([]string(nil), state.Order...), ev.PlayerID)
	}
	inst.LastView = ev.View
	next.Instances[ev.PlayerID] = inst
	return next
}

func appendLog(state State, entry LogEntry) State {
	limit := state.Settings.MaxLogs
	if limit <= 0 {
		limit = defaultMaxLogs
	}
	logs := make([]LogEntry, 0, min(len(state.Logs)+1, limit))
	start := 0
	if over := len(state.Logs) + 1 - limit; over > 0 {
		start = over
	}
	logs = append(logs, state.Logs[start:]...)
	logs = append(logs, entry)
	state.Logs = logs
	return state
}

func selectInstance(state State, id string) State {
	inst, ok := state.Instances[id]
	if !ok {
		return state
	}
	state.Selection = Selection{InstanceID: id}
	if len(inst.PluginOrder) == 1 {
		state.Selection.PluginID = inst.PluginOrder[0]
	}
	return state
}

func selectPlugin(state State, id string) State {
	if state.Selection.InstanceID == "" {
		return state
	}
	inst, ok := state.Instances[state.Selection.InstanceID]
	if !ok {
		return state
	}
	if _, ok := inst.Plugins[id]; !ok {
		return state
	}
	state.Selection.PluginID = id
	return state
}
