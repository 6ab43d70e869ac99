package rpc

import (
	"encoding/json"

	"github.com/bhandras/devpanel/internal/protocol/wire"
)

// requiredParams lists the non-empty string fields each kind needs.
var requiredParams = map[wire.Kind][]string{
	wire.KindGetState:      nil,
	wire.KindRuntimeInfo:   {"playerID"},
	wire.KindConfig:        {"playerID"},
	wire.KindDataBinding:   {"playerID", "binding"},
	wire.KindViewDetails:   {"playerID"},
	wire.KindRunExpression: {"playerID", "expression"},
	wire.KindStartProfiler: {"playerID"},
	wire.KindStopProfiler:  {"playerID"},
}

// RequiredParams returns the parameter names a kind requires.
func RequiredParams(kind wire.Kind) []string {
	return append([]string(nil), requiredParams[kind]...)
}

func validate(kind wire.Kind, params json.RawMessage) error {
	var fields map[string]any
	if err := json.Unmarshal(params, &fields); err != nil || fields == nil {
		return &ValidationError{Kind: kind, Reason: "params must be a JSON object"}
	}
	for _, name := range requiredParams[kind] {
		v, ok := fields[name]
		if !ok {
			return &ValidationError{Kind: kind, Field: name, Reason: "is required"}
		}
		s, isString := v.(string)
		if !isString {
			return &ValidationError{Kind: kind, Field: name, Reason: "must be a string"}
		}
		if s == "" {
			return &ValidationError{Kind: kind, Field: name, Reason: "must not be empty"}
		}
	}
	return nil
}
