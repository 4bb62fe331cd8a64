package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriteTimeout bounds one output write to the viewer. A peer that is
// dead but never sent a close frame fails the write instead of stalling
// the session's output path.
const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	// Cross-origin terminals are allowed; task access is enforced by the
	// authorization evaluator before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsChannel adapts a websocket connection to session.Channel. Output
// writes are serialized: the process pump and the history replay may race
// on the same connection.
type wsChannel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newWSChannel(conn *websocket.Conn) *wsChannel {
	return &wsChannel{conn: conn}
}

func (c *wsChannel) WriteOutput(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (c *wsChannel) ReadInput() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	return payload, err
}

func (c *wsChannel) Close() {
	_ = c.conn.Close()
}
