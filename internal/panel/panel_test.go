package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bhandras/devpanel/internal/flow"
	"github.com/bhandras/devpanel/internal/protocol/wire"
	"github.com/bhandras/devpanel/internal/store"
	"github.com/bhandras/devpanel/internal/transport/transporttest"
	"github.com/bhandras/devpanel/pkg/logger"
)

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeController struct {
	mu      sync.Mutex
	patches []map[string]any
	err     error
}

func (c *fakeController) Set(data map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.patches = append(c.patches, data)
	return nil
}

func (c *fakeController) Patches() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.patches...)
}

type fakeRenderer struct {
	mu      sync.Mutex
	started []string
	ctrl    *fakeController
}

func (r *fakeRenderer) Start(f *flow.Flow, h *ControllerHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, f.ID())
	if r.ctrl != nil {
		h.Capture(r.ctrl)
	}
	return nil
}

func (r *fakeRenderer) Started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

type harness struct {
	panel    *Panel
	rt       *transporttest.Runtime
	renderer *fakeRenderer
	ctrl     *fakeController

	mu      sync.Mutex
	actions []flow.Action
}

func newHarness(t *testing.T, capture bool, opts ...Option) *harness {
	t.Helper()
	m, rt := transporttest.Start(t)
	h := &harness{rt: rt, renderer: &fakeRenderer{}}
	if capture {
		h.ctrl = &fakeController{}
		h.renderer.ctrl = h.ctrl
	}
	opts = append(opts, WithReconcileObserver(func(r flow.Reconciliation) {
		h.mu.Lock()
		h.actions = append(h.actions, r.Action)
		h.mu.Unlock()
	}))
	h.panel = New(m, h.renderer, opts...)
	h.panel.Start()
	t.Cleanup(h.panel.Close)
	return h
}

func (h *harness) Actions() []flow.Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]flow.Action(nil), h.actions...)
}

func (h *harness) emit(t *testing.T, typ wire.EventType, payload string) {
	t.Helper()
	require.NoError(t, h.rt.Send(wire.Message{Type: string(typ), Payload: json.RawMessage(payload)}))
}

func (h *harness) waitActions(t *testing.T, n int) []flow.Action {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.Actions()) >= n }, waitFor, tick)
	return h.Actions()
}

func (h *harness) waitInstances(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.panel.Store().InstanceIDs()) == n
	}, waitFor, tick)
}

func TestFirstRenderShowsInitialFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	require.Equal(t, []string{flow.Initial.ID()}, h.renderer.Started())
	require.Equal(t, []flow.Action{flow.ActionFlowRestart}, h.Actions())
	require.Same(t, flow.Initial, h.panel.Rendered())
	require.NotNil(t, h.panel.Controller().Get())
}

func TestPatchThenRestart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	ctx := context.Background()

	h.emit(t, wire.EventPlayerInit, `{"playerID":"p1","plugins":{"core":{}}}`)
	h.waitInstances(t, 1)
	require.NoError(t, h.panel.SelectInstance(ctx, "p1"))
	require.Equal(t, store.Selection{InstanceID: "p1", PluginID: "core"}, h.panel.Store().Selection())

	// No flow yet: the initial flow stays up.
	require.Equal(t, []flow.Action{flow.ActionFlowRestart, flow.ActionNoOp}, h.Actions())

	h.emit(t, wire.EventFlowStart, `{"playerID":"p1","pluginID":"core","flow":{"id":"F1","views":[{"id":"a"}]}}`)
	h.waitActions(t, 3)
	require.Equal(t, []string{flow.Initial.ID(), "F1"}, h.renderer.Started())

	h.emit(t, wire.EventDataChange, `{"playerID":"p1","pluginID":"core","data":{"x":1}}`)
	actions := h.waitActions(t, 4)
	require.Equal(t, flow.ActionDataPatch, actions[3])
	require.Equal(t, []map[string]any{{"x": float64(1)}}, h.ctrl.Patches())
	require.Equal(t, []string{flow.Initial.ID(), "F1"}, h.renderer.Started(), "a data patch must not restart")

	h.emit(t, wire.EventFlowStart, `{"playerID":"p1","pluginID":"core","flow":{"id":"F2"}}`)
	actions = h.waitActions(t, 5)
	require.Equal(t, flow.ActionFlowRestart, actions[4])
	require.Equal(t, []string{flow.Initial.ID(), "F1", "F2"}, h.renderer.Started())

	h.emit(t, wire.EventPlayerRemoved, `{"playerID":"p1"}`)
	h.waitActions(t, 6)
	require.Same(t, flow.Initial, h.panel.Rendered())
	require.Equal(t, store.Selection{}, h.panel.Store().Selection())
}

func TestNoControllerRestarts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false, WithStoreOptions(store.WithAutoSelect(true)))

	h.emit(t, wire.EventPlayerInit, `{"playerID":"p1","plugins":{"core":{"flow":{"id":"F1"}}}}`)
	h.waitActions(t, 2)
	h.emit(t, wire.EventDataChange, `{"playerID":"p1","pluginID":"core","data":{"x":1}}`)
	actions := h.waitActions(t, 3)

	require.Equal(t, flow.ActionFlowRestart, actions[2])
	require.Equal(t, []string{flow.Initial.ID(), "F1", "F1"}, h.renderer.Started())
}

func TestFailedPatchRestarts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true, WithStoreOptions(store.WithAutoSelect(true)))
	h.ctrl.err = errors.New("detached")

	h.emit(t, wire.EventPlayerInit, `{"playerID":"p1","plugins":{"core":{"flow":{"id":"F1"}}}}`)
	h.waitActions(t, 2)
	h.emit(t, wire.EventDataChange, `{"playerID":"p1","pluginID":"core","data":{"x":1}}`)
	actions := h.waitActions(t, 3)

	require.Equal(t, flow.ActionFlowRestart, actions[2])
	require.Len(t, h.renderer.Started(), 3)
}

func TestBackgroundUpdatesAreDeferred(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	ctx := context.Background()

	h.emit(t, wire.EventPlayerInit, `{"playerID":"p1","plugins":{"core":{}}}`)
	h.emit(t, wire.EventPlayerInit, `{"playerID":"p2","plugins":{"core":{}}}`)
	h.waitInstances(t, 2)
	require.NoError(t, h.panel.SelectInstance(ctx, "p1"))

	h.emit(t, wire.EventFlowStart, `{"playerID":"p2","pluginID":"core","flow":{"id":"B"}}`)
	require.Eventually(t, func() bool {
		snap := h.panel.Store().Snapshot()
		return snap.Instances["p2"].Plugins["core"].Flow != nil
	}, waitFor, tick)
	require.Equal(t, []string{flow.Initial.ID()}, h.renderer.Started())

	require.NoError(t, h.panel.SelectInstance(ctx, "p2"))
	require.Equal(t, []string{flow.Initial.ID(), "B"}, h.renderer.Started())
}

func TestMalformedAndUnknownMessagesAreDropped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	require.NoError(t, h.rt.Send(wire.Message{Type: "player-custom", Payload: json.RawMessage(`{}`)}))
	require.NoError(t, h.rt.Send(wire.Message{Type: "getState", ID: "nobody", Payload: json.RawMessage(`{}`)}))
	h.emit(t, wire.EventPlayerRemoved, `{}`)
	h.emit(t, wire.EventPlayerInit, `{"playerID":"p1"}`)

	h.waitInstances(t, 1)
	require.Equal(t, []string{"p1"}, h.panel.Store().InstanceIDs())
}

func TestRPCThroughPanel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)
	h.rt.Reply(wire.KindGetState, map[string]bool{"ok": true})

	state, err := h.panel.RPC().GetState(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]any{"ok": true}, state)
	require.Empty(t, h.panel.Store().InstanceIDs(), "responses are not events")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEchoLogs(t *testing.T) {
	buf := &syncBuffer{}
	prev := logger.Output()
	logger.SetOutput(buf)
	t.Cleanup(func() { logger.SetOutput(prev) })

	h := newHarness(t, false, WithEchoLogs(true))
	h.emit(t, wire.EventLog, `{"playerID":"p1","severity":"warn","message":"slow binding"}`)

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "[p1] slow binding")
	}, waitFor, tick)
	require.Contains(t, buf.String(), "WARN")
	require.Len(t, h.panel.Store().Logs(), 1)
}

func TestControllerHandle(t *testing.T) {
	t.Parallel()

	var h ControllerHandle
	require.Nil(t, h.Get())
	ctrl := &fakeController{}
	h.Capture(ctrl)
	require.Equal(t, ctrl, h.Get())
	h.Revoke()
	require.Nil(t, h.Get())
}
