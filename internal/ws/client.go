package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// client is the live transport handle for one connection. Writes are
// serialized with a mutex because fan-outs from other sessions and this
// session's own responses target the same underlying connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn}
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *client) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(payload)
}

func (c *client) close() error {
	return c.conn.Close()
}
