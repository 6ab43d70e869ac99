// Package flow holds the Flow value type and the diff engine that decides how
// a newly selected flow is reconciled with the one currently rendered.
package flow

import (
	"encoding/json"
	"fmt"

	"github.com/mohae/deepcopy"
)

// dataKey is the top-level key holding a flow's data layer.
const dataKey = "data"

// Flow is an immutable flow document.
//
// Every constructor copies its input, and accessors return copies, so a *Flow
// never changes after creation. Pointer identity therefore implies structural
// identity.
type Flow struct {
	doc map[string]any
}

// Initial is rendered before any runtime instance has been selected.
var Initial = MustParse([]byte(`{
	"id": "devpanel-initial-flow",
	"views": [
		{
			"id": "waiting",
			"type": "text",
			"value": "No Player-UI instance or devtools plugin detected."
		}
	],
	"navigation": {
		"BEGIN": "FLOW_1",
		"FLOW_1": {
			"startState": "VIEW_1",
			"VIEW_1": {"state_type": "VIEW", "ref": "waiting", "transitions": {}}
		}
	}
}`))

// New returns a Flow holding a copy of doc.
func New(doc map[string]any) *Flow {
	return &Flow{doc: cloneMap(doc)}
}

// Parse decodes a JSON flow document. An empty or null document yields a nil
// Flow and no error.
func Parse(raw []byte) (*Flow, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode flow: %w", err)
	}
	return &Flow{doc: doc}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(raw []byte) *Flow {
	f, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return f
}

// ID returns the flow's "id" field, if present.
func (f *Flow) ID() string {
	if f == nil {
		return ""
	}
	id, _ := f.doc["id"].(string)
	return id
}

// Doc returns a copy of the whole document.
func (f *Flow) Doc() map[string]any {
	if f == nil {
		return nil
	}
	return cloneMap(f.doc)
}

// Data returns a copy of the flow's data layer. It is never nil.
func (f *Flow) Data() map[string]any {
	if f == nil {
		return map[string]any{}
	}
	data, ok := f.doc[dataKey].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return cloneMap(data)
}

// WithData returns a new Flow whose data layer is replaced by data.
func (f *Flow) WithData(data map[string]any) *Flow {
	if f == nil {
		return &Flow{doc: map[string]any{dataKey: cloneMap(data)}}
	}
	doc := make(map[string]any, len(f.doc)+1)
	for k, v := range f.doc {
		if k == dataKey {
			continue
		}
		doc[k] = v
	}
	doc[dataKey] = cloneMap(data)
	// Values other than the data layer are shared with f; neither side ever
	// mutates them.
	return &Flow{doc: doc}
}

// MarshalJSON encodes the flow document.
func (f *Flow) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	return json.Marshal(f.doc)
}

// String returns a short description for logs.
func (f *Flow) String() string {
	if f == nil {
		return "<nil flow>"
	}
	if id := f.ID(); id != "" {
		return id
	}
	return "<anonymous flow>"
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out, ok := deepcopy.Copy(m).(map[string]any)
	if !ok || out == nil {
		return map[string]any{}
	}
	return out
}
