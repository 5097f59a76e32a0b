package watch

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	PingInterval   = 30 * time.Second
	maxInboundSize = 4 * 1024
)

// WSConn adapts a gorilla websocket connection to Conn. Watchers never send
// application data, so the inbound side only tracks liveness.
type WSConn struct {
	conn   *websocket.Conn
	logger *zap.Logger
}

// NewWSConn wraps conn.
func NewWSConn(conn *websocket.Conn, logger *zap.Logger) *WSConn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSConn{conn: conn, logger: logger}
}

// Send writes msg as one JSON text frame.
func (c *WSConn) Send(msg Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// Ping writes a ping control frame.
func (c *WSConn) Ping() error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// Close sends a normal close frame and closes the socket.
func (c *WSConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return c.conn.Close()
}

// ReadPump discards inbound frames and calls cancel once the peer goes away
// or stops answering pings.
func (c *WSConn) ReadPump(cancel context.CancelFunc) {
	defer cancel()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("watch read error", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
