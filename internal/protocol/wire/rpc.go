package wire

import "encoding/json"

// Panel -> runtime RPC payloads. Each kind has a params struct and a result
// struct; getState is untyped on both sides.

// PlayerParams addresses a single runtime instance.
type PlayerParams struct {
	// PlayerID identifies the runtime instance.
	PlayerID string `json:"playerID"`
}

// RuntimeInfoResult is the result of "getRuntimeInfo".
type RuntimeInfoResult struct {
	PlayerID string   `json:"playerID"`
	Version  string   `json:"version"`
	Plugins  []string `json:"plugins"`
}

// ConfigResult is the result of "getConfig".
type ConfigResult struct {
	Plugins     []string        `json:"plugins"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Expressions []string        `json:"expressions,omitempty"`
}

// DataBindingParams is the request of "getDataBinding".
type DataBindingParams struct {
	PlayerID string `json:"playerID"`
	// Binding is a dotted data path such as "foo.bar".
	Binding string `json:"binding"`
}

// DataBindingResult is the result of "getDataBinding".
type DataBindingResult struct {
	Binding   string `json:"binding"`
	Value     any    `json:"value"`
	Formatted any    `json:"formatted,omitempty"`
}

// ViewDetailsResult is the result of "getViewDetails".
type ViewDetailsResult struct {
	View json.RawMessage `json:"view"`
}

// RunExpressionParams is the request of "runExpression".
type RunExpressionParams struct {
	PlayerID   string `json:"playerID"`
	Expression string `json:"expression"`
}

// RunExpressionResult is the result of "runExpression".
type RunExpressionResult struct {
	Expression string `json:"expression"`
	Result     any    `json:"result"`
	// Error is set when the expression failed to evaluate. The call itself
	// still succeeds.
	Error string `json:"error,omitempty"`
}

// StartProfilerResult is the result of "startProfiler".
type StartProfilerResult struct {
	Started bool `json:"started"`
}

// StopProfilerResult is the result of "stopProfiler".
type StopProfilerResult struct {
	Profile json.RawMessage `json:"profile"`
}

// ErrorResponse is a generic JSON payload with an "error" key.
type ErrorResponse struct {
	// Error contains an error message.
	Error string `json:"error"`
}
