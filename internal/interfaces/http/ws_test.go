package http

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	return payload
}

func TestPredictionStream_InitAndControls(t *testing.T) {
	server := newTestServer()
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	conn := dialWS(t, ts, "/ws/predictions")

	init := readFrame(t, conn)
	assert.Equal(t, "init", init["type"])
	snapshot := init["data"].(map[string]any)
	assert.Contains(t, snapshot, "history")
	assert.Contains(t, snapshot, "trends")
	assert.Contains(t, snapshot, "latest")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	pong := readFrame(t, conn)
	assert.Equal(t, "pong", pong["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "get_trends"}))
	trends := readFrame(t, conn)
	assert.Equal(t, "trends", trends["type"])
	data := trends["data"].(map[string]any)
	assert.Equal(t, "insufficient_data", data["status"])
}

func TestIngest_AckCarriesPrediction(t *testing.T) {
	server := newTestServer()
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	conn := dialWS(t, ts, "/ws/ingest")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"domain": "environmental",
		"aqi":    260.0,
	}))
	ack := readFrame(t, conn)
	assert.Equal(t, "ack", ack["type"])
	assert.Equal(t, "environmental", ack["domain"])
	assert.Equal(t, true, ack["updated"])
	assert.Equal(t, false, ack["rate_limited"])
	require.Contains(t, ack, "prediction")
	assert.Contains(t, ack, "inference_time_ms")

	// A field-less update merges nothing and the ack says so.
	require.NoError(t, conn.WriteJSON(map[string]any{"domain": "environmental"}))
	ack = readFrame(t, conn)
	require.Equal(t, "ack", ack["type"])
	assert.Equal(t, false, ack["updated"])
}

func TestIngest_RateGateRejectsBurst(t *testing.T) {
	server := newTestServer()
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	conn := dialWS(t, ts, "/ws/ingest")

	limited := 0
	for i := 0; i < 5; i++ {
		require.NoError(t, conn.WriteJSON(map[string]any{
			"domain":        "health",
			"hospital_load": 0.5 + float64(i)*0.05,
		}))
		ack := readFrame(t, conn)
		require.Equal(t, "ack", ack["type"])
		if ack["rate_limited"] == true {
			limited++
			// No fresh inference ran, so the ack carries no timing or record.
			assert.NotContains(t, ack, "inference_time_ms")
			assert.NotContains(t, ack, "prediction")
		}
	}
	assert.GreaterOrEqual(t, limited, 2, "a fast burst must hit the rate gate")
}

func TestIngest_UnknownDomainError(t *testing.T) {
	server := newTestServer()
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	conn := dialWS(t, ts, "/ws/ingest")

	require.NoError(t, conn.WriteJSON(map[string]any{"domain": "traffic"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["message"], "traffic")
}

func TestIngest_BroadcastReachesStreamSubscribers(t *testing.T) {
	server := newTestServer()
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	stream := dialWS(t, ts, "/ws/predictions")
	init := readFrame(t, stream)
	require.Equal(t, "init", init["type"])

	ingest := dialWS(t, ts, "/ws/ingest")
	require.NoError(t, ingest.WriteJSON(map[string]any{
		"domain": "environmental",
		"aqi":    300.0,
	}))
	ack := readFrame(t, ingest)
	require.Equal(t, "ack", ack["type"])
	require.Equal(t, false, ack["rate_limited"])

	prediction := readFrame(t, stream)
	assert.Equal(t, "prediction", prediction["type"])
	assert.Contains(t, prediction, "data")
	assert.Contains(t, prediction, "trends")
}
