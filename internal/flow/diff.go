package flow

import (
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Action is the reconciliation the rendering layer must perform.
type Action int

const (
	// ActionNoOp means the rendered flow is already current.
	ActionNoOp Action = iota
	// ActionDataPatch means only the data layer changed; push Data into the
	// live DataController.
	ActionDataPatch
	// ActionFlowRestart means the flow definition changed; re-initialize the
	// renderer with Flow and drop prior render state.
	ActionFlowRestart
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionNoOp:
		return "no-op"
	case ActionDataPatch:
		return "data-patch"
	case ActionFlowRestart:
		return "flow-restart"
	default:
		return "unknown"
	}
}

// MarshalText encodes the action name.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// DataController pushes data into a running flow without restarting it.
type DataController interface {
	Set(data map[string]any) error
}

// Reconciliation is the diff engine's output.
type Reconciliation struct {
	Action Action `json:"action"`
	// Flow is the flow to render. Set for every action.
	Flow *Flow `json:"flow,omitempty"`
	// Data holds the changed data keys for ActionDataPatch. Keys dropped from
	// the data layer map to nil.
	Data map[string]any `json:"data,omitempty"`
}

// ChangedKeys returns the sorted keys carried by a data patch.
func (r Reconciliation) ChangedKeys() []string {
	keys := make([]string, 0, len(r.Data))
	for k := range r.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var equalOpts = []cmp.Option{cmpopts.EquateEmpty()}

// Diff classifies the change from the rendered flow prev to the selected flow
// next.
//
// A nil prev always restarts. A nil ctrl turns a would-be data patch into a
// restart, since there is nothing to patch into.
func Diff(prev, next *Flow, ctrl DataController) Reconciliation {
	if next == nil {
		return Reconciliation{Action: ActionNoOp, Flow: prev}
	}
	if prev == nil {
		return Reconciliation{Action: ActionFlowRestart, Flow: next}
	}
	if prev == next || cmp.Equal(prev.doc, next.doc, equalOpts...) {
		return Reconciliation{Action: ActionNoOp, Flow: next}
	}
	if !definitionEqual(prev.doc, next.doc) {
		return Reconciliation{Action: ActionFlowRestart, Flow: next}
	}

	changed := changedData(prev.Data(), next.Data())
	if len(changed) == 0 {
		return Reconciliation{Action: ActionNoOp, Flow: next}
	}
	if ctrl == nil {
		return Reconciliation{Action: ActionFlowRestart, Flow: next}
	}
	return Reconciliation{Action: ActionDataPatch, Flow: next, Data: changed}
}

// definitionEqual compares two documents ignoring the top-level data layer.
func definitionEqual(a, b map[string]any) bool {
	for k, av := range a {
		if k == dataKey {
			continue
		}
		bv, ok := b[k]
		if !ok || !cmp.Equal(av, bv, equalOpts...) {
			return false
		}
	}
	for k := range b {
		if k == dataKey {
			continue
		}
		if _, ok := a[k]; !ok {
			return false
		}
	}
	return true
}

func changedData(prev, next map[string]any) map[string]any {
	changed := make(map[string]any)
	for k, nv := range next {
		pv, ok := prev[k]
		if !ok || !cmp.Equal(pv, nv, equalOpts...) {
			changed[k] = nv
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			changed[k] = nil
		}
	}
	return changed
}
