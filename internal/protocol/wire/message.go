// Package wire defines the JSON shapes exchanged between the panel and the
// observed runtimes.
//
// Every message travels in the same envelope. Events use Payload, requests use
// Params, and responses use Payload or Error. The set of valid Type values is
// closed: it is the union of EventTypes and Kinds.
package wire

import (
	"encoding/json"
	"fmt"
)

// Message is the envelope for every message on the Communication Layer.
type Message struct {
	// Type is the event tag, request kind or response kind.
	Type string `json:"type"`
	// ID correlates a request with its response. Events leave it empty.
	ID string `json:"id,omitempty"`
	// Payload carries the event payload or the response result.
	Payload json.RawMessage `json:"payload,omitempty"`
	// Params carries the request parameters.
	Params json.RawMessage `json:"params,omitempty"`
	// Error is set on a response when the runtime failed to serve the request.
	Error string `json:"error,omitempty"`
}

// EventType tags a runtime lifecycle notification.
type EventType string

const (
	// EventPlayerInit announces a runtime instance and its plugins.
	EventPlayerInit EventType = "player-init"
	// EventPlayerRemoved announces that a runtime instance went away.
	EventPlayerRemoved EventType = "player-removed"
	// EventFlowStart carries a new flow for a plugin.
	EventFlowStart EventType = "player-flow-start"
	// EventDataChange carries data updates for a plugin.
	EventDataChange EventType = "player-data-change"
	// EventLog carries a runtime log line.
	EventLog EventType = "player-log"
	// EventViewUpdate carries the currently rendered view.
	EventViewUpdate EventType = "player-view-update"
)

// EventTypes lists every recognized event tag.
var EventTypes = []EventType{
	EventPlayerInit,
	EventPlayerRemoved,
	EventFlowStart,
	EventDataChange,
	EventLog,
	EventViewUpdate,
}

// IsEventType reports whether t is a recognized event tag.
func IsEventType(t string) bool {
	for _, et := range EventTypes {
		if string(et) == t {
			return true
		}
	}
	return false
}

// Kind tags an RPC request and its response.
type Kind string

const (
	// KindGetState fetches an opaque state dump from the runtime.
	KindGetState Kind = "getState"
	// KindRuntimeInfo fetches version and plugin information for a player.
	KindRuntimeInfo Kind = "getRuntimeInfo"
	// KindConfig fetches the player configuration.
	KindConfig Kind = "getConfig"
	// KindDataBinding resolves a single data binding.
	KindDataBinding Kind = "getDataBinding"
	// KindViewDetails fetches the resolved view.
	KindViewDetails Kind = "getViewDetails"
	// KindRunExpression evaluates an expression inside the player.
	KindRunExpression Kind = "runExpression"
	// KindStartProfiler starts the player profiler.
	KindStartProfiler Kind = "startProfiler"
	// KindStopProfiler stops the player profiler and returns the profile.
	KindStopProfiler Kind = "stopProfiler"
)

// Kinds lists every supported RPC kind.
var Kinds = []Kind{
	KindGetState,
	KindRuntimeInfo,
	KindConfig,
	KindDataBinding,
	KindViewDetails,
	KindRunExpression,
	KindStartProfiler,
	KindStopProfiler,
}

// IsKind reports whether k is a supported RPC kind.
func IsKind(k string) bool {
	for _, kind := range Kinds {
		if string(kind) == k {
			return true
		}
	}
	return false
}

// NewEvent builds an event message with a JSON-encoded payload.
func NewEvent(t EventType, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Message{Type: string(t), Payload: raw}, nil
}

// NewResponse builds a successful response to a request.
func NewResponse(req Message, result any) (Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s result: %w", req.Type, err)
	}
	return Message{Type: req.Type, ID: req.ID, Payload: raw}, nil
}

// NewErrorResponse builds a failed response to a request.
func NewErrorResponse(req Message, msg string) Message {
	if msg == "" {
		msg = "request failed"
	}
	return Message{Type: req.Type, ID: req.ID, Error: msg}
}
