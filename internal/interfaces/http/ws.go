package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cityscope/urbanrisk/internal/metrics"
	"github.com/cityscope/urbanrisk/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser dashboards connect from arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn serializes writes to one websocket connection so the broadcast
// path and control replies never interleave frames.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

type wsControl struct {
	Type string `json:"type"`
}

// PredictionStream attaches a subscriber to the live prediction feed. The
// first frame is an init snapshot; afterwards the broadcast loop delivers
// predictions and the read loop answers control messages.
func (h *Handlers) PredictionStream(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("prediction stream upgrade failed")
		return
	}
	conn := &wsConn{conn: raw}

	sub := h.hub.Subscribe(conn)
	metrics.StreamSubscribers.Set(float64(h.hub.Count()))
	defer func() {
		h.hub.Unsubscribe(sub.ID)
		metrics.StreamSubscribers.Set(float64(h.hub.Count()))
	}()

	if err := h.hub.Send(sub.ID, map[string]any{
		"type": "init",
		"data": map[string]any{
			"history": h.manager.History(),
			"trends":  h.manager.Trends(),
			"latest":  h.manager.Latest(),
		},
	}); err != nil {
		return
	}

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return
		}
		var ctrl wsControl
		if err := json.Unmarshal(data, &ctrl); err != nil {
			continue
		}
		switch ctrl.Type {
		case "ping":
			_ = h.hub.Send(sub.ID, map[string]any{"type": "pong", "timestamp": time.Now().UTC()})
		case "get_trends":
			_ = h.hub.Send(sub.ID, map[string]any{"type": "trends", "data": h.manager.Trends()})
		case "get_history":
			_ = h.hub.Send(sub.ID, map[string]any{"type": "history", "data": h.manager.History()})
		}
	}
}

// Ingest accepts per-domain metric updates over a websocket. Each update
// merges into the live state and triggers a rate-gated inference; the ack
// reports whether the gate admitted a fresh run.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ingest upgrade failed")
		return
	}
	conn := &wsConn{conn: raw}
	defer conn.Close()

	writeJSONFrame := func(payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return conn.WriteMessage(data)
	}

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return
		}

		var update realtime.Update
		if err := json.Unmarshal(data, &update); err != nil {
			_ = writeJSONFrame(map[string]any{"type": "error", "message": "malformed update"})
			continue
		}
		updated, err := h.manager.ApplyUpdate(update)
		if err != nil {
			_ = writeJSONFrame(map[string]any{"type": "error", "message": err.Error()})
			continue
		}

		start := time.Now()
		record, rateLimited, err := h.manager.RunInference(r.Context())
		if err != nil {
			metrics.InferenceTotal.WithLabelValues("error").Inc()
			_ = writeJSONFrame(map[string]any{"type": "error", "message": err.Error()})
			continue
		}

		ack := map[string]any{
			"type":         "ack",
			"domain":       update.Domain,
			"updated":      updated,
			"rate_limited": rateLimited,
		}
		if rateLimited {
			metrics.RateGateRejections.Inc()
		} else {
			metrics.InferenceTotal.WithLabelValues("ok").Inc()
			metrics.InferenceDuration.Observe(time.Since(start).Seconds())
			ack["inference_time_ms"] = float64(time.Since(start)) / float64(time.Millisecond)
			ack["prediction"] = record
			if failed := h.hub.Broadcast(map[string]any{
				"type":   "prediction",
				"data":   record,
				"trends": h.manager.Trends(),
			}); failed > 0 {
				metrics.StreamDeliveryFailures.Add(float64(failed))
				metrics.StreamSubscribers.Set(float64(h.hub.Count()))
			}
		}
		_ = writeJSONFrame(ack)
	}
}
