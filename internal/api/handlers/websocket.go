package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	ws "github.com/host-calendar-sync/backend/internal/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards may be served from another origin during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketUpgrade returns a handler that upgrades HTTP connections to WebSocket.
func WebSocketUpgrade(hub *ws.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := ws.NewClient(hub)
		hub.Register(client)

		replies := make(chan []byte, 8)
		go writePump(conn, client, replies)
		go readPump(conn, client, hub, replies, logger)
	}
}

// writePump pumps hub broadcasts and direct replies to the connection.
func writePump(conn *websocket.Conn, client *ws.Client, replies <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	write := func(messageType int, data []byte) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(messageType, data)
	}

	for {
		select {
		case message, ok := <-client.Send():
			if !ok {
				_ = write(websocket.CloseMessage, []byte{})
				return
			}
			if err := write(websocket.TextMessage, message); err != nil {
				return
			}

		case reply := <-replies:
			if err := write(websocket.TextMessage, reply); err != nil {
				return
			}

		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client commands until the connection drops.
func readPump(conn *websocket.Conn, client *ws.Client, hub *ws.Hub, replies chan<- []byte, logger *zap.Logger) {
	defer func() {
		hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		reply := handleClientMessage(message)
		select {
		case replies <- reply:
		default:
			logger.Debug("dropping websocket reply, client not reading")
		}
	}
}

// handleClientMessage answers a client command. Only ping is understood.
func handleClientMessage(message []byte) []byte {
	var cmd struct {
		Type ws.MessageType `json:"type"`
	}

	var msg ws.Message
	switch {
	case json.Unmarshal(message, &cmd) != nil:
		msg = ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: "bad_message", Message: "Message is not valid JSON"})
	case cmd.Type == ws.TypePing:
		msg = ws.NewMessage(ws.TypePong, nil)
	default:
		msg = ws.NewMessage(ws.TypeError, ws.ErrorPayload{
			Code:         "unknown_type",
			Message:      "Unsupported message type",
			OriginalType: string(cmd.Type),
		})
	}

	data, _ := msg.JSON()
	return data
}
