package transport

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bhandras/devpanel/internal/protocol/wire"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// loopback delivers every sent message to its own subscribers.
type loopback struct {
	Router
	mu   sync.Mutex
	sent []wire.Message
}

func (l *loopback) Send(msg wire.Message) error {
	l.mu.Lock()
	l.sent = append(l.sent, msg)
	l.mu.Unlock()
	l.Deliver(msg)
	return nil
}

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern, typ string
		want         bool
	}{
		{"*", "player-init", true},
		{"*", "getState", true},
		{"player-*", "player-log", true},
		{"player-*", "getState", false},
		{"getState", "getState", true},
		{"getState", "getConfig", false},
		{"[", "anything", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Match(tt.pattern, tt.typ), "%s vs %s", tt.pattern, tt.typ)
	}
}

func TestRouterDeliversInSubscriptionOrder(t *testing.T) {
	t.Parallel()

	var r Router
	var got []string
	r.Subscribe("*", func(m wire.Message) { got = append(got, "all:"+m.Type) })
	id := r.Subscribe("getState", func(m wire.Message) { got = append(got, "state") })
	r.Subscribe("", func(m wire.Message) { got = append(got, "empty:"+m.Type) })

	require.True(t, r.Deliver(wire.Message{Type: "getState"}))
	require.Equal(t, []string{"all:getState", "state", "empty:getState"}, got)

	got = nil
	r.Unsubscribe(id)
	r.Unsubscribe(id)
	r.Unsubscribe(12345)
	require.Equal(t, 2, r.Len())
	r.Deliver(wire.Message{Type: "getState"})
	require.Equal(t, []string{"all:getState", "empty:getState"}, got)
}

func TestRouterUnsubscribeDuringDelivery(t *testing.T) {
	t.Parallel()

	var r Router
	calls := 0
	var id SubscriptionID
	id = r.Subscribe("*", func(wire.Message) {
		calls++
		r.Unsubscribe(id)
	})
	r.Deliver(wire.Message{Type: "a"})
	r.Deliver(wire.Message{Type: "b"})
	require.Equal(t, 1, calls)
	require.False(t, r.Deliver(wire.Message{Type: "c"}))
}

func TestQueuePreservesOrder(t *testing.T) {
	t.Parallel()

	q := NewQueue(4)
	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, q.Do(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	q.Close()
	q.Close()

	select {
	case <-q.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not drain")
	}
	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
	require.ErrorIs(t, q.Do(func() {}), ErrNotConnected)
	require.NoError(t, q.Do(nil))
}

func testKey(b byte) *[32]byte {
	var k [32]byte
	for i := range k {
		k[i] = b
	}
	return &k
}

func TestSealedRoundTrip(t *testing.T) {
	t.Parallel()

	inner := &loopback{}
	s := NewSealed(inner, testKey(1))

	var got []wire.Message
	s.Subscribe("*", func(m wire.Message) { got = append(got, m) })

	msg := wire.Message{
		Type:    "getState",
		ID:      "c1",
		Params:  json.RawMessage(`{"playerID":"p1"}`),
		Payload: json.RawMessage(`{"ok":true}`),
	}
	require.NoError(t, s.Send(msg))

	require.Len(t, inner.sent, 1)
	onWire := inner.sent[0]
	require.Equal(t, "getState", onWire.Type)
	require.Equal(t, "c1", onWire.ID)
	require.NotContains(t, string(onWire.Payload), "ok")
	require.NotContains(t, string(onWire.Params), "p1")

	require.Len(t, got, 1)
	require.JSONEq(t, `{"ok":true}`, string(got[0].Payload))
	require.JSONEq(t, `{"playerID":"p1"}`, string(got[0].Params))
}

func TestSealedDropsForeignMessages(t *testing.T) {
	t.Parallel()

	inner := &loopback{}
	receiver := NewSealed(inner, testKey(1))
	var got []wire.Message
	receiver.Subscribe("*", func(m wire.Message) { got = append(got, m) })

	// Wrong key.
	other := &loopback{}
	sender := NewSealed(other, testKey(2))
	require.NoError(t, sender.Send(wire.Message{Type: "player-log", Payload: json.RawMessage(`{}`)}))
	inner.Deliver(other.sent[0])

	// Plaintext body.
	inner.Deliver(wire.Message{Type: "player-log", Payload: json.RawMessage(`{"playerID":"p1"}`)})

	// Truncated box.
	inner.Deliver(wire.Message{Type: "player-log", Payload: json.RawMessage(`"AAAA"`)})

	require.Empty(t, got)

	// Empty bodies pass through untouched.
	inner.Deliver(wire.Message{Type: "stopProfiler", ID: "x"})
	require.Len(t, got, 1)

	receiver.Detach()
	require.Equal(t, 0, inner.Len())
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	_, err := open(json.RawMessage(`"!!!"`), testKey(1))
	require.ErrorIs(t, err, ErrSealed)
	_, err = open(json.RawMessage(`42`), testKey(1))
	require.ErrorIs(t, err, ErrSealed)
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	key, err := ParseKey("AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE=")
	require.NoError(t, err)
	require.Equal(t, testKey(1), key)

	_, err = ParseKey("AQID")
	require.Error(t, err)
	_, err = ParseKey("not base64!")
	require.Error(t, err)
}

func TestTokenExpiry(t *testing.T) {
	t.Parallel()

	exp := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	got, ok, err := TokenExpiry(signed)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, exp.Equal(got))

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, ok, err = TokenExpiry(noExp)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = TokenExpiry("opaque-token")
	require.Error(t, err)

	WarnIfExpired(signed, exp.Add(time.Hour))
	WarnIfExpired("opaque-token", exp)
	WarnIfExpired("", exp)
}
