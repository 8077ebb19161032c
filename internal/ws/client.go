package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/scanorder/api/internal/notify"
	"github.com/scanorder/api/internal/views"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBuffer = 64
)

var (
	errConnClosed = errors.New("websocket connection closed")
	errSlowClient = errors.New("websocket client is not reading")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Staff routes are guarded by JWT, customer routes are public
	},
}

// Frame is one JSON message sent to the client.
type Frame struct {
	Type string `json:"type"`
	View string `json:"view,omitempty"`
	Data any    `json:"data"`
}

// Conn is a single websocket connection. It is the output of exactly one
// view and one of the sinks of that view's notifications.
type Conn struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *zap.Logger
}

func newConn(conn *websocket.Conn, logger *zap.Logger) *Conn {
	return &Conn{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *Conn) Snapshot(_ context.Context, view string, data any) error {
	return c.enqueue(Frame{Type: views.FrameSnapshot, View: view, Data: data})
}

func (c *Conn) Highlight(_ context.Context, h views.Highlight) error {
	return c.enqueue(Frame{Type: views.FrameHighlight, Data: h})
}

func (c *Conn) Name() string { return "websocket" }

func (c *Conn) Send(_ context.Context, n notify.Notification) error {
	return c.enqueue(Frame{Type: views.FrameNotification, Data: n})
}

func (c *Conn) enqueue(f Frame) error {
	msg, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", f.Type, err)
	}
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errSlowClient
	}
}

// readPump only detects disconnects: clients never send anything useful.
func (c *Conn) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read", zap.Error(err))
			}
			return
		}
	}
}

// writePump sends queued frames and pings until ctx is done or a write
// fails. It owns closing the connection.
func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
