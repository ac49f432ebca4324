package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 128
)

// ErrConnectionClosed is returned by Send after Close.
var ErrConnectionClosed = errors.New("connection closed")

// ErrConnectionBufferExceeded is returned when a client cannot keep up with its outbound frames.
var ErrConnectionBufferExceeded = errors.New("connection buffer exceeded")

// Connection wraps a websocket and serialises outbound writes through a buffered channel.
// It is safe for concurrent use.
type Connection struct {
	ID     string
	UserID uint

	ws    *websocket.Conn
	send  chan []byte
	once  sync.Once
	close chan struct{}
}

// NewConnection constructs a Connection for the given user.
func NewConnection(userID uint, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:     uuid.NewString(),
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		close:  make(chan struct{}),
	}
}

// Start launches the write loop and installs the read deadline and pong
// handler. It must be called exactly once per connection.
func (c *Connection) Start() {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.writeLoop()
}

// Done is closed when the connection has been closed.
func (c *Connection) Done() <-chan struct{} {
	return c.close
}

// SendJSON encodes v and enqueues it.
func (c *Connection) SendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

// Send enqueues payload for delivery. If the buffer is full the connection is
// closed so that backpressure stays bounded.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.close:
		return ErrConnectionClosed
	default:
	}
	select {
	case <-c.close:
		return ErrConnectionClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseTryAgainLater, "send buffer full")
		return ErrConnectionBufferExceeded
	}
}

// Close terminates the connection and stops the write loop.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// ReadLoop discards client frames until the peer goes away. It keeps pong
// handling alive and returns when the socket fails.
func (c *Connection) ReadLoop() {
	c.ws.SetReadLimit(4096)
	for {
		if _, _, err := c.ws.NextReader(); err != nil {
			c.Close(websocket.CloseNormalClosure, "peer closed")
			return
		}
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseInternalServerErr, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}
