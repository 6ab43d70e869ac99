package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/bhandras/devpanel/internal/flow"
	"github.com/bhandras/devpanel/internal/panel"
)

// printer writes values in the selected output format. It is safe for
// concurrent use.
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format {
	case "json", "yaml":
	default:
		return nil, fmt.Errorf("invalid output %q (expected json or yaml)", format)
	}
	return &printer{w: w, format: format}, nil
}

// Print writes v. Raw JSON is decoded first so YAML output stays readable.
func (p *printer) Print(v any) error {
	if raw, ok := v.(json.RawMessage); ok {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		v = decoded
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.format == "yaml" {
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(toPlain(v)); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// toPlain round-trips v through JSON so yaml sees the same field names and
// shapes as the JSON output.
func toPlain(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// renderEvent is what the watch command prints for each screen change.
type renderEvent struct {
	Action string         `json:"action"`
	FlowID string         `json:"flowID"`
	Flow   *flow.Flow     `json:"flow,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// printRenderer shows flows by printing them. It captures a controller that
// prints data patches, so unchanged flows are never re-printed whole.
type printRenderer struct {
	out      *printer
	withFlow bool
}

var _ panel.Renderer = (*printRenderer)(nil)

func (r *printRenderer) Start(f *flow.Flow, h *panel.ControllerHandle) error {
	ev := renderEvent{Action: flow.ActionFlowRestart.String(), FlowID: f.ID(), Data: f.Data()}
	if r.withFlow {
		ev.Flow = f
	}
	if err := r.out.Print(ev); err != nil {
		return err
	}
	h.Capture(&printController{out: r.out, flowID: f.ID()})
	return nil
}

type printController struct {
	out    *printer
	flowID string
}

func (c *printController) Set(data map[string]any) error {
	return c.out.Print(renderEvent{
		Action: flow.ActionDataPatch.String(),
		FlowID: c.flowID,
		Data:   data,
	})
}
