package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"gpstrack/internal/dashboard"
	"gpstrack/internal/hub"
	"gpstrack/internal/store"
)

const (
	MsgSnapshot = "snapshot"
	MsgPong     = "pong"
)

type WSHandler struct {
	hub       *hub.Hub
	layers    *store.LayerStore
	dashboard Dashboard
	logger    *slog.Logger
}

func NewWSHandler(h *hub.Hub, layers *store.LayerStore, d Dashboard, logger *slog.Logger) *WSHandler {
	return &WSHandler{hub: h, layers: layers, dashboard: d, logger: logger.With("component", "websocket")}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TopicsPayload struct {
	Topics []string `json:"topics"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := hub.NewClient(uuid.NewString(), 256)
	h.hub.Register(client)
	ServerStats.IncWSConnections()
	defer ServerStats.DecWSConnections()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}
		ServerStats.IncWSMessagesIn()

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			var payload TopicsPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			topics := validTopics(payload.Topics)
			if len(topics) == 0 {
				continue
			}
			h.hub.Subscribe(client, topics)
			for _, t := range topics {
				h.sendInitial(client, t)
			}

		case "unsubscribe":
			var payload TopicsPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				continue
			}
			if len(payload.Topics) > 0 {
				h.hub.Unsubscribe(client, payload.Topics)
			}

		case "ping":
			h.send(client, hub.Message{Type: MsgPong})
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
			ServerStats.IncWSMessagesOut()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// sendInitial brings a new subscriber up to date before live updates arrive
func (h *WSHandler) sendInitial(client *hub.Client, topic string) {
	switch topic {
	case hub.TopicMap:
		h.send(client, hub.Message{Type: MsgSnapshot, Payload: h.layers.Snapshot()})
	case hub.TopicStats:
		h.send(client, hub.Message{Type: dashboard.MsgStats, Payload: h.dashboard.State()})
	}
}

func (h *WSHandler) send(client *hub.Client, msg hub.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	if !client.Offer(data) {
		h.logger.Debug("failed to send message", "client_id", client.ID, "type", msg.Type)
	}
}

func validTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if t == hub.TopicMap || t == hub.TopicStats {
			out = append(out, t)
		}
	}
	return out
}
