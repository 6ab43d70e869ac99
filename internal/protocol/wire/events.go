package wire

import "encoding/json"

// PluginPayload is the initial state of a plugin announced by player-init.
type PluginPayload struct {
	// Flow is the plugin's current flow document, if any.
	Flow json.RawMessage `json:"flow,omitempty"`
	// Data is the plugin's current data, if any.
	Data map[string]any `json:"data,omitempty"`
}

// PlayerInitPayload is the payload of a "player-init" event.
type PlayerInitPayload struct {
	// PlayerID identifies the runtime instance.
	PlayerID string `json:"playerID"`
	// Version is the runtime version string.
	Version string `json:"version,omitempty"`
	// Plugins maps plugin ids to their initial state.
	Plugins map[string]PluginPayload `json:"plugins,omitempty"`
}

// PlayerRemovedPayload is the payload of a "player-removed" event.
type PlayerRemovedPayload struct {
	// PlayerID identifies the runtime instance.
	PlayerID string `json:"playerID"`
}

// FlowStartPayload is the payload of a "player-flow-start" event.
type FlowStartPayload struct {
	PlayerID string          `json:"playerID"`
	PluginID string          `json:"pluginID"`
	Flow     json.RawMessage `json:"flow"`
}

// DataChangePayload is the payload of a "player-data-change" event.
type DataChangePayload struct {
	PlayerID string         `json:"playerID"`
	PluginID string         `json:"pluginID"`
	Data     map[string]any `json:"data"`
}

// LogPayload is the payload of a "player-log" event.
type LogPayload struct {
	PlayerID string `json:"playerID"`
	// Severity is one of trace, debug, info, warn, error.
	Severity string `json:"severity"`
	// Message is the rendered log line.
	Message string `json:"message"`
	// Timestamp is milliseconds since epoch on the runtime side.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// ViewUpdatePayload is the payload of a "player-view-update" event.
type ViewUpdatePayload struct {
	PlayerID string          `json:"playerID"`
	PluginID string          `json:"pluginID,omitempty"`
	View     json.RawMessage `json:"view"`
}
