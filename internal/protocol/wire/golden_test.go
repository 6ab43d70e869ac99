package wire

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func readTestdata(t *testing.T, name string) Message {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestGolden_PlayerInit(t *testing.T) {
	msg := readTestdata(t, "player_init.json")
	require.Equal(t, string(EventPlayerInit), msg.Type)
	require.True(t, IsEventType(msg.Type))
	require.Empty(t, msg.ID)

	var payload PlayerInitPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	require.Equal(t, "p1", payload.PlayerID)
	require.Equal(t, "0.7.1", payload.Version)
	require.Contains(t, payload.Plugins, "core")
	require.JSONEq(t,
		`{"id": "flow-1", "views": [{"id": "view-1", "type": "info"}], "data": {"count": 1}}`,
		string(payload.Plugins["core"].Flow),
	)
	require.Equal(t, float64(1), payload.Plugins["core"].Data["count"])
}

func TestGolden_FlowStart(t *testing.T) {
	msg := readTestdata(t, "flow_start.json")

	var payload FlowStartPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	require.Equal(t, "core", payload.PluginID)
	require.Contains(t, string(payload.Flow), `"flow-2"`)
}

func TestGolden_RPCResponses(t *testing.T) {
	ok := readTestdata(t, "rpc_response.json")
	require.True(t, IsKind(ok.Type))
	require.NotEmpty(t, ok.ID)
	require.Empty(t, ok.Error)

	var info RuntimeInfoResult
	require.NoError(t, json.Unmarshal(ok.Payload, &info))
	require.Equal(t, []string{"core", "profiler"}, info.Plugins)

	failed := readTestdata(t, "rpc_error.json")
	require.Equal(t, string(KindRunExpression), failed.Type)
	require.Equal(t, "player p9 not found", failed.Error)
	require.Empty(t, failed.Payload)
}

func TestTagSetsAreDisjoint(t *testing.T) {
	for _, et := range EventTypes {
		require.False(t, IsKind(string(et)), "event tag %q collides with an RPC kind", et)
	}
	require.False(t, IsEventType("unknown-tag"))
	require.False(t, IsKind("unknown-kind"))
}

func TestResponseBuilders(t *testing.T) {
	req := Message{Type: string(KindGetState), ID: "abc", Params: json.RawMessage(`{}`)}

	resp, err := NewResponse(req, map[string]bool{"ok": true})
	require.NoError(t, err)
	require.Equal(t, req.Type, resp.Type)
	require.Equal(t, "abc", resp.ID)
	require.JSONEq(t, `{"ok":true}`, string(resp.Payload))

	failed := NewErrorResponse(req, "")
	require.Equal(t, "request failed", failed.Error)
	require.Equal(t, "abc", failed.ID)

	ev, err := NewEvent(EventPlayerRemoved, PlayerRemovedPayload{PlayerID: "p1"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"player-removed","payload":{"playerID":"p1"}}`, mustJSON(t, ev))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}
