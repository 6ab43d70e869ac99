package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bhandras/devpanel/internal/flow"
	"github.com/bhandras/devpanel/internal/panel"
)

func TestBuildParams(t *testing.T) {
	t.Parallel()

	params, err := buildParams(`{"binding":"a.b"}`, "p1", []string{"expression=1 + 1"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"binding":    "a.b",
		"playerID":   "p1",
		"expression": "1 + 1",
	}, params)

	params, err = buildParams("", "", nil)
	require.NoError(t, err)
	require.Empty(t, params)

	_, err = buildParams(`[1]`, "", nil)
	require.ErrorContains(t, err, "params must be a JSON object")

	_, err = buildParams("", "", []string{"novalue"})
	require.EqualError(t, err, `invalid --set "novalue" (expected key=value)`)
}

func TestPrinterFormats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p, err := newPrinter(&buf, "yaml")
	require.NoError(t, err)
	require.NoError(t, p.Print(json.RawMessage(`{"version":"1.2.3","plugins":["core"]}`)))
	require.Contains(t, buf.String(), "version: 1.2.3\n")
	require.Contains(t, buf.String(), "- core\n")
	require.NotContains(t, buf.String(), "{")

	buf.Reset()
	p, err = newPrinter(&buf, "json")
	require.NoError(t, err)
	require.NoError(t, p.Print(map[string]int{"n": 1}))
	require.JSONEq(t, `{"n":1}`, buf.String())

	_, err = newPrinter(&buf, "xml")
	require.EqualError(t, err, `invalid output "xml" (expected json or yaml)`)
}

func TestPrintRenderer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	out, err := newPrinter(&buf, "json")
	require.NoError(t, err)
	r := &printRenderer{out: out}

	var h panel.ControllerHandle
	f := flow.MustParse([]byte(`{"id":"F1","data":{"x":1}}`))
	require.NoError(t, r.Start(f, &h))
	require.NotNil(t, h.Get())
	require.NoError(t, h.Get().Set(map[string]any{"x": 2}))

	dec := json.NewDecoder(strings.NewReader(buf.String()))
	var first, second renderEvent
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	require.Equal(t, "flow-restart", first.Action)
	require.Equal(t, "F1", first.FlowID)
	require.Equal(t, map[string]any{"x": float64(1)}, first.Data)
	require.Equal(t, "data-patch", second.Action)
	require.Equal(t, map[string]any{"x": float64(2)}, second.Data)
}

func TestKindsCommand(t *testing.T) {
	var buf bytes.Buffer
	kindsCmd.SetOut(&buf)
	kindsCmd.Run(kindsCmd, nil)

	out := buf.String()
	require.Contains(t, out, "getDataBinding")
	require.Contains(t, out, "playerID, binding")
}
