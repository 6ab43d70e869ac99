// Package events normalizes inbound wire messages into typed events.
//
// Event is a closed sum type: only this package can implement it, and every
// recognized wire.EventType has exactly one constructor. Decoding is a pure
// mapping step with no buffering or reordering.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bhandras/devpanel/internal/actor"
	"github.com/bhandras/devpanel/internal/flow"
	"github.com/bhandras/devpanel/internal/protocol/wire"
)

// ErrUnknownType is returned by Decode for tags outside the event set.
var ErrUnknownType = errors.New("unknown event type")

// Event is a normalized runtime lifecycle notification.
type Event interface {
	actor.Input
	// Type returns the wire tag of the event.
	Type() wire.EventType
	// Player returns the runtime instance the event addresses.
	Player() string
	isEvent()
}

type base struct {
	actor.InputBase
	PlayerID string `json:"playerID"`
}

func (b base) Player() string { return b.PlayerID }
func (base) isEvent()          {}

// PluginState is the initial state of a plugin announced by PlayerInit.
type PluginState struct {
	Flow *flow.Flow     `json:"flow,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// PlayerInit announces a runtime instance.
type PlayerInit struct {
	base
	Version string                 `json:"version,omitempty"`
	Plugins map[string]PluginState `json:"plugins,omitempty"`
}

// Type implements Event.
func (PlayerInit) Type() wire.EventType { return wire.EventPlayerInit }

// PlayerRemoved announces that a runtime instance went away.
type PlayerRemoved struct {
	base
}

// Type implements Event.
func (PlayerRemoved) Type() wire.EventType { return wire.EventPlayerRemoved }

// FlowStart carries a new flow for a plugin.
type FlowStart struct {
	base
	PluginID string     `json:"pluginID"`
	Flow     *flow.Flow `json:"flow"`
}

// Type implements Event.
func (FlowStart) Type() wire.EventType { return wire.EventFlowStart }

// DataChange carries data to merge into a plugin's data snapshot.
type DataChange struct {
	base
	PluginID string         `json:"pluginID"`
	Data     map[string]any `json:"data"`
}

// Type implements Event.
func (DataChange) Type() wire.EventType { return wire.EventDataChange }

// Log carries a runtime log line.
type Log struct {
	base
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Type implements Event.
func (Log) Type() wire.EventType { return wire.EventLog }

// ViewUpdate carries the view currently rendered by a runtime instance.
type ViewUpdate struct {
	base
	PluginID string          `json:"pluginID,omitempty"`
	View     json.RawMessage `json:"view"`
}

// Type implements Event.
func (ViewUpdate) Type() wire.EventType { return wire.EventViewUpdate }

// NewPlayerInit builds a PlayerInit event.
func NewPlayerInit(playerID, version string, plugins map[string]PluginState) PlayerInit {
	return PlayerInit{base: base{PlayerID: playerID}, Version: version, Plugins: plugins}
}

// NewPlayerRemoved builds a PlayerRemoved event.
func NewPlayerRemoved(playerID string) PlayerRemoved {
	return PlayerRemoved{base: base{PlayerID: playerID}}
}

// NewFlowStart builds a FlowStart event.
func NewFlowStart(playerID, pluginID string, f *flow.Flow) FlowStart {
	return FlowStart{base: base{PlayerID: playerID}, PluginID: pluginID, Flow: f}
}

// NewDataChange builds a DataChange event.
func NewDataChange(playerID, pluginID string, data map[string]any) DataChange {
	return DataChange{base: base{PlayerID: playerID}, PluginID: pluginID, Data: data}
}

// NewLog builds a Log event.
func NewLog(playerID, severity, message string, timestamp int64) Log {
	return Log{base: base{PlayerID: playerID}, Severity: severity, Message: message, Timestamp: timestamp}
}

// NewViewUpdate builds a ViewUpdate event.
func NewViewUpdate(playerID, pluginID string, view json.RawMessage) ViewUpdate {
	return ViewUpdate{base: base{PlayerID: playerID}, PluginID: pluginID, View: view}
}

// Decode converts a wire message into an Event. Messages whose tag is not an
// event return ErrUnknownType; malformed payloads return a decode error.
func Decode(msg wire.Message) (Event, error) {
	ev, err := decode(msg)
	if err != nil {
		return nil, err
	}
	if ev.Player() == "" {
		return nil, fmt.Errorf("%s: missing playerID", msg.Type)
	}
	return ev, nil
}

func decode(msg wire.Message) (Event, error) {
	switch wire.EventType(msg.Type) {
	case wire.EventPlayerInit:
		var p wire.PlayerInitPayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		plugins := make(map[string]PluginState, len(p.Plugins))
		for id, plugin := range p.Plugins {
			f, err := flow.Parse(plugin.Flow)
			if err != nil {
				return nil, fmt.Errorf("%s plugin %q: %w", msg.Type, id, err)
			}
			plugins[id] = PluginState{Flow: f, Data: plugin.Data}
		}
		return NewPlayerInit(p.PlayerID, p.Version, plugins), nil

	case wire.EventPlayerRemoved:
		var p wire.PlayerRemovedPayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		return NewPlayerRemoved(p.PlayerID), nil

	case wire.EventFlowStart:
		var p wire.FlowStartPayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		f, err := flow.Parse(p.Flow)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", msg.Type, err)
		}
		if f == nil {
			return nil, fmt.Errorf("%s: missing flow", msg.Type)
		}
		if p.PluginID == "" {
			return nil, fmt.Errorf("%s: missing pluginID", msg.Type)
		}
		return NewFlowStart(p.PlayerID, p.PluginID, f), nil

	case wire.EventDataChange:
		var p wire.DataChangePayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		if p.PluginID == "" {
			return nil, fmt.Errorf("%s: missing pluginID", msg.Type)
		}
		return NewDataChange(p.PlayerID, p.PluginID, p.Data), nil

	case wire.EventLog:
		var p wire.LogPayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		return NewLog(p.PlayerID, p.Severity, p.Message, p.Timestamp), nil

	case wire.EventViewUpdate:
		var p wire.ViewUpdatePayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		return NewViewUpdate(p.PlayerID, p.PluginID, p.View), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

func decodePayload(msg wire.Message, dst any) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		return fmt.Errorf("%s: decode payload: %w", msg.Type, err)
	}
	return nil
}
