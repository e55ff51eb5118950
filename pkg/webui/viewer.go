package webui

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ghostwriter/pkg/logx"
	"ghostwriter/pkg/proto"
	"ghostwriter/pkg/session"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Ping period must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

//nolint:gochecknoglobals // Standard upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// wsViewer is one WebSocket connection attached to a book session. It
// implements session.Viewer; outbound frames go through a buffered channel so
// a slow reader never blocks the session.
type wsViewer struct {
	id     string
	conn   *websocket.Conn
	logger *logx.Logger

	// mu orders Send against close so a frame is never queued onto a
	// closed channel.
	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newWSViewer(conn *websocket.Conn, logger *logx.Logger) *wsViewer {
	return &wsViewer{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger,
	}
}

func (v *wsViewer) ID() string {
	return v.id
}

// Send queues a frame for delivery. Returns an error when the connection is
// closed or the buffer is full; the session drops the frame and the viewer
// recovers through its next init.
func (v *wsViewer) Send(msg *proto.Msg) error {
	data, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", msg.Type, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return errors.New("viewer closed")
	}
	select {
	case v.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full, dropping %s", msg.Type)
	}
}

func (v *wsViewer) close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true
	close(v.send)
}

// readPump reads client frames and hands them to the session. It owns the
// connection's read side and tears the viewer down when the peer goes away.
func (v *wsViewer) readPump(sess *session.Session) {
	defer func() {
		sess.Detach(v)
		v.close()
		_ = v.conn.Close()
	}()

	v.conn.SetReadLimit(maxMessageSize)
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				v.logger.Warn("viewer %s read error: %v", v.id, err)
			}
			return
		}

		msg, err := proto.FromJSON(data)
		if err != nil {
			v.logger.Warn("viewer %s sent malformed frame: %v", v.id, err)
			continue
		}
		if err := msg.Validate(); err != nil {
			v.logger.Warn("viewer %s sent invalid frame: %v", v.id, err)
			continue
		}
		if !msg.Type.IsClientType() {
			v.logger.Warn("viewer %s sent server-only frame %s", v.id, msg.Type)
			continue
		}

		sess.Deliver(v, msg)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings.
func (v *wsViewer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = v.conn.Close()
	}()

	for {
		select {
		case data, ok := <-v.send:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
