package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"openboard/internal/board"
	"openboard/internal/bus"
	"openboard/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second

	// sendBuffer bounds the per-client outbound queue. A client that cannot
	// keep up loses presence frames rather than stalling the relay.
	sendBuffer = 256
)

// wsEnvelope frames every message on the socket in both directions.
type wsEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// enqueue queues a frame for the write pump, dropping it when the client's
// buffer is full.
func (c *wsClient) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// handleWebsocket relays the board's realtime channels to one client: store
// change notifications and presence traffic flow out, and the client's own
// mutations and presence signals flow in. The relay holds no board state
// beyond the initial snapshot; the client runs its own reconciler.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "Anonymous"
	}
	sessionID := uuid.NewString()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", slog.String("error", err.Error()))
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	s.registerClient(client)
	defer s.unregisterClient(client)

	logger := s.logger.With(slog.String("board", boardID), slog.String("session", sessionID))

	unsubBus, err := s.bus.Subscribe(r.Context(), boardID, func(m bus.Message) {
		s.relay(client, logger, "presence", m)
	})
	if err != nil {
		logger.Error("bus subscribe", slog.String("error", err.Error()))
		conn.Close()
		return
	}
	defer unsubBus()

	unsubStore, err := s.store.Subscribe(r.Context(), boardID, func(ev store.ChangeEvent) {
		s.relay(client, logger, "change", ev)
	})
	if err != nil {
		logger.Error("store subscribe", slog.String("error", err.Error()))
		conn.Close()
		return
	}
	defer unsubStore()

	objects, err := s.store.ListObjects(r.Context(), boardID)
	if err != nil {
		logger.Error("initial snapshot", slog.String("error", err.Error()))
		conn.Close()
		return
	}
	if objects == nil {
		objects = []board.Object{}
	}
	s.relay(client, logger, "init", map[string]any{
		"sessionId": sessionID,
		"objects":   objects,
	})

	go s.writePump(client, logger)
	s.readPump(r.Context(), client, logger, boardID, sessionID, name)

	// The socket is gone; make sure the rest of the board sees the departure
	// even when the client never sent a leave.
	leave := bus.Message{Kind: bus.KindLeave, SessionID: sessionID, Name: name}
	if err := s.bus.Publish(context.Background(), boardID, leave); err != nil {
		logger.Error("publish leave", slog.String("error", err.Error()))
	}
}

func (s *Server) relay(client *wsClient, logger *slog.Logger, msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Error("marshal relay payload", slog.String("type", msgType), slog.String("error", err.Error()))
		return
	}
	frame, err := json.Marshal(wsEnvelope{Type: msgType, Payload: raw})
	if err != nil {
		logger.Error("marshal relay frame", slog.String("type", msgType), slog.String("error", err.Error()))
		return
	}
	if !client.enqueue(frame) {
		logger.Warn("client send buffer full, dropping frame", slog.String("type", msgType))
	}
}

func (s *Server) writePump(client *wsClient, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(ctx context.Context, client *wsClient, logger *slog.Logger, boardID, sessionID, name string) {
	client.conn.SetReadLimit(s.cfg.MaxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("websocket read", slog.String("error", err.Error()))
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Warn("malformed frame", slog.String("error", err.Error()))
			continue
		}

		switch env.Type {
		case "presence":
			var m bus.Message
			if err := json.Unmarshal(env.Payload, &m); err != nil {
				logger.Warn("malformed presence payload", slog.String("error", err.Error()))
				continue
			}
			// The relay owns the identity; clients cannot impersonate each
			// other.
			m.SessionID = sessionID
			m.Name = name
			if err := s.bus.Publish(ctx, boardID, m); err != nil {
				logger.Error("publish presence", slog.String("error", err.Error()))
			}
		case "upsert":
			var obj board.Object
			if err := json.Unmarshal(env.Payload, &obj); err != nil || obj.ID == "" {
				logger.Warn("malformed upsert payload")
				continue
			}
			if err := s.store.UpsertObject(ctx, boardID, obj); err != nil {
				logger.Error("upsert object", slog.String("object", obj.ID), slog.String("error", err.Error()))
			}
		case "delete":
			var payload struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.ID == "" {
				logger.Warn("malformed delete payload")
				continue
			}
			if err := s.store.DeleteObject(ctx, payload.ID); err != nil {
				logger.Error("delete object", slog.String("object", payload.ID), slog.String("error", err.Error()))
			}
		default:
			logger.Warn("unknown frame type", slog.String("type", env.Type))
		}
	}
}

func (s *Server) registerClient(client *wsClient) {
	s.mu.Lock()
	s.conns[client] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) unregisterClient(client *wsClient) {
	s.mu.Lock()
	delete(s.conns, client)
	s.mu.Unlock()
	client.conn.Close()
}

func (s *Server) closeAllClients() {
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.conns))
	for c := range s.conns {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"), deadline)
		c.conn.Close()
	}
}
