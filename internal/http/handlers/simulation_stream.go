package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/wolfman30/funcionariopro/internal/bus"
	"github.com/wolfman30/funcionariopro/pkg/logging"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPongTimeout  = 60 * time.Second
	streamPingInterval = (streamPongTimeout * 9) / 10
)

// Subscriber is satisfied by *bus.Bus.
type Subscriber interface {
	Subscribe(sessionID string) (<-chan bus.Message, func())
}

// StreamHandler pushes a session's bus messages over a websocket. The first
// frame is the current simulation snapshot.
type StreamHandler struct {
	wizard   Wizard
	bus      Subscriber
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

func NewStreamHandler(w Wizard, sub Subscriber, checkOrigin func(*http.Request) bool, logger *logging.Logger) *StreamHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StreamHandler{
		wizard: w,
		bus:    sub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

type snapshotFrame struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	// Subscribe before the snapshot so no turn falls between the two.
	msgs, unsubscribe := h.bus.Subscribe(id)
	defer unsubscribe()

	snap, err := h.wizard.Simulation(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, "op", "stream", "session_id", id)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session_id", id, "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(snapshotFrame{Kind: "simulation.snapshot", Payload: snap}); err != nil {
		return
	}

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case msg, ok := <-msgs:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(streamWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("websocket write failed", "session_id", id, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
func (h *StreamHandler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", "error", err)
			}
			return
		}
	}
}
