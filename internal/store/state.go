package store

import (
	"encoding/json"

	"github.com/bhandras/devpanel/internal/flow"
)

const defaultMaxLogs = 500

// Plugin is the latest known state of one plugin of a runtime instance.
type Plugin struct {
	ID string `json:"id"`
	// Flow is the payload of the most recent flow-start for this plugin, or
	// the flow announced at init. Nil until one arrives.
	Flow *flow.Flow `json:"flow,omitempty"`
	// Data is the plugin's data snapshot.
	Data map[string]any `json:"data"`
	// View is Flow with Data applied as its data layer. It is rebuilt only
	// when Flow or Data change, so an unchanged plugin keeps the same pointer.
	View *flow.Flow `json:"-"`
}

// Instance is one tracked runtime instance.
type Instance struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
	// Plugins maps plugin ids to their state.
	Plugins map[string]Plugin `json:"plugins"`
	// PluginOrder lists plugin ids in the order they became known.
	PluginOrder []string `json:"pluginOrder"`
	// LastView is the payload of the most recent view update.
	LastView json.RawMessage `json:"lastView,omitempty"`
}

// Selection is the panel's current (instance, plugin) pair.
//
// If PluginID is set, InstanceID is set and that instance owns the plugin.
type Selection struct {
	InstanceID string `json:"instanceID,omitempty"`
	PluginID   string `json:"pluginID,omitempty"`
}

// LogEntry is a runtime log line retained for the panel.
type LogEntry struct {
	PlayerID  string `json:"playerID"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Settings tune reducer behavior. They survive Reset.
type Settings struct {
	// MaxLogs bounds the retained log buffer.
	MaxLogs int `json:"maxLogs"`
	// AutoSelect selects the first instance that appears while nothing is
	// selected.
	AutoSelect bool `json:"autoSelect"`
}

// State is the loop-owned store state.
//
// The reducer never mutates maps or slices reachable from a published State,
// so snapshots handed to readers stay valid indefinitely.
type State struct {
	Instances map[string]Instance `json:"instances"`
	// Order lists instance ids in the order they became known.
	Order     []string   `json:"order"`
	Selection Selection  `json:"selection"`
	Logs      []LogEntry `json:"logs"`
	Settings  Settings   `json:"settings"`
}

// NewState returns an empty state with the given settings.
func NewState(settings Settings) State {
	if settings.MaxLogs <= 0 {
		settings.MaxLogs = defaultMaxLogs
	}
	return State{
		Instances: map[string]Instance{},
		Settings:  settings,
	}
}

// SelectedPlugin returns the selected plugin, if any.
func (s State) SelectedPlugin() (Plugin, bool) {
	if s.Selection.InstanceID == "" || s.Selection.PluginID == "" {
		return Plugin{}, false
	}
	inst, ok := s.Instances[s.Selection.InstanceID]
	if !ok {
		return Plugin{}, false
	}
	p, ok := inst.Plugins[s.Selection.PluginID]
	return p, ok
}

// SelectedView returns the effective flow of the selection, or nil when
// nothing renderable is selected.
func (s State) SelectedView() *flow.Flow {
	p, ok := s.SelectedPlugin()
	if !ok {
		return nil
	}
	return p.View
}

// PluginIDs returns the plugin ids of an instance in insertion order.
func (s State) PluginIDs(instanceID string) []string {
	inst, ok := s.Instances[instanceID]
	if !ok {
		return nil
	}
	return append([]string(nil), inst.PluginOrder...)
}

func (s State) withInstances() State {
	out := make(map[string]Instance, len(s.Instances)+1)
	for k, v := range s.Instances {
		out[k] = v
	}
	s.Instances = out
	return s
}

func (inst Instance) withPlugins() Instance {
	out := make(map[string]Plugin, len(inst.Plugins)+1)
	for k, v := range inst.Plugins {
		out[k] = v
	}
	inst.Plugins = out
	return inst
}

func newPlugin(id string, f *flow.Flow, data map[string]any) Plugin {
	p := Plugin{ID: id, Flow: f, Data: copyData(data)}
	p.View = buildView(p.Flow, p.Data)
	return p
}

func buildView(f *flow.Flow, data map[string]any) *flow.Flow {
	if f == nil {
		return nil
	}
	return f.WithData(data)
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
