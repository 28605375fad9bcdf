package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpstrack/internal/dashboard"
	"gpstrack/internal/hub"
	"gpstrack/internal/stats"
	"gpstrack/internal/store"
)

type wsEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readEnvelope(ctx context.Context, t *testing.T, conn *websocket.Conn) wsEnvelope {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var env wsEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func writeText(ctx context.Context, t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(msg)))
}

func TestWS_SubscribeSendsInitialStateThenLiveUpdates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := hub.NewHub(discard)
	go h.Run(ctx)

	layers := store.New()
	layers.Reset("surface-1", store.View{Zoom: 13})
	layers.Add(store.Layer{ID: "base", Kind: store.LayerTile})

	d := dashboard.New(&stubControl{}, stats.New(), stubMap{}, stubResolver{}, h, "", discard)
	srv := httptest.NewServer(http.HandlerFunc(NewWSHandler(h, layers, d, discard).ServeWS))
	defer srv.Close()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeText(ctx, t, conn, `{"type":"subscribe","payload":{"topics":["map","bogus"]}}`)

	env := readEnvelope(ctx, t, conn)
	require.Equal(t, MsgSnapshot, env.Type)
	var snap store.Snapshot
	require.NoError(t, json.Unmarshal(env.Payload, &snap))
	assert.Equal(t, "surface-1", snap.SurfaceID)
	require.Len(t, snap.Layers, 1)

	h.Publish(hub.TopicMap, "layer.remove", map[string]string{"id": "base"})
	env = readEnvelope(ctx, t, conn)
	assert.Equal(t, "layer.remove", env.Type)

	writeText(ctx, t, conn, `{"type":"ping"}`)
	env = readEnvelope(ctx, t, conn)
	assert.Equal(t, MsgPong, env.Type)
}

func TestWS_StatsSubscriberGetsCurrentState(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := hub.NewHub(discard)
	go h.Run(ctx)

	d := dashboard.New(&stubControl{}, stats.New(), stubMap{}, stubResolver{}, h, "", discard)
	srv := httptest.NewServer(http.HandlerFunc(NewWSHandler(h, store.New(), d, discard).ServeWS))
	defer srv.Close()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeText(ctx, t, conn, `{"type":"subscribe","payload":{"topics":["stats"]}}`)

	env := readEnvelope(ctx, t, conn)
	require.Equal(t, dashboard.MsgStats, env.Type)
	var st dashboard.State
	require.NoError(t, json.Unmarshal(env.Payload, &st))
	assert.Equal(t, "Union Square", st.Address)
}
