package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// readWait is how long a connection may stay silent. Clients ping well
	// within it.
	readWait = 5 * time.Minute
)

// Conn serializes writes to a WebSocket connection. gorilla/websocket allows
// one concurrent writer, while session views, commands and replies are
// produced from several goroutines.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// NewConn wraps ws.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// WriteTyped sends a strongly-typed payload over the WebSocket.
func (c *Conn) WriteTyped(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse.
func (c *Conn) WriteError(code, errMsg string) error {
	return c.WriteTyped(ErrorResponse{
		Event: EventError,
		Code:  code,
		Error: errMsg,
	})
}

// WriteFields sends a validation failure with per-field messages.
func (c *Conn) WriteFields(code string, fields map[string]string) error {
	return c.WriteTyped(ErrorResponse{
		Event:  EventError,
		Code:   code,
		Error:  "invalid message",
		Fields: fields,
	})
}

// ReadMessage reads one raw message. It sets a read deadline.
func (c *Conn) ReadMessage() ([]byte, error) {
	c.ws.SetReadDeadline(time.Now().Add(readWait))
	_, raw, err := c.ws.ReadMessage()
	return raw, err
}

// Close sends a close frame with reason and closes the connection.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	c.mu.Unlock()
	return c.ws.Close()
}
