package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type MessageType string

const (
	MessagePredict MessageType = "predict"
	MessageResult  MessageType = "result"
	MessageError   MessageType = "error"
	MessagePing    MessageType = "ping"
	MessagePong    MessageType = "pong"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsMaxMessage   = 64 << 10
)

// Message is the envelope for both directions. Replies echo the request ID.
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type wsClient struct {
	conn     *websocket.Conn
	send     chan Message
	done     chan struct{}
	clientID string
	api      *API
	logger   *zap.Logger
}

// handleWebSocket scores feature objects as they arrive, letting the form
// update its result while sliders move.
func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &wsClient{
		conn:     conn,
		send:     make(chan Message, 16),
		done:     make(chan struct{}),
		clientID: uuid.NewString(),
		api:      a,
		logger:   a.logger,
	}
	client.logger.Debug("websocket connected", zap.String("client_id", client.clientID))

	go client.writePump()
	client.readPump(r.Context())
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Debug("websocket write failed", zap.String("client_id", c.clientID), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump(ctx context.Context) {
	defer func() {
		close(c.send)
		c.logger.Debug("websocket disconnected", zap.String("client_id", c.clientID))
	}()

	c.conn.SetReadLimit(wsMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.String("client_id", c.clientID), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		select {
		case c.send <- c.handle(ctx, msg):
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) handle(ctx context.Context, msg Message) Message {
	reply := Message{ID: msg.ID, Timestamp: time.Now().UTC()}
	switch msg.Type {
	case MessagePing:
		reply.Type = MessagePong
		return reply
	case MessagePredict:
	default:
		return errorMessage(reply, map[string]string{"error": "unknown message type " + string(msg.Type)})
	}

	var document map[string]interface{}
	if err := json.Unmarshal(msg.Data, &document); err != nil {
		return errorMessage(reply, map[string]string{"error": "data must be a JSON object"})
	}
	record, err := c.api.service.Decode(document)
	if err == nil {
		result, perr := c.api.service.Predict(ctx, record)
		if perr == nil {
			reply.Type = MessageResult
			reply.Data, _ = json.Marshal(result)
			return reply
		}
		err = perr
	}
	_, body := predictionError(err)
	return errorMessage(reply, body)
}

func errorMessage(reply Message, body interface{}) Message {
	reply.Type = MessageError
	reply.Data, _ = json.Marshal(body)
	return reply
}
