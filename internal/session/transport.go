package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Close codes used on camera and viewer sockets.
const (
	CloseNotFound   = 4404 // unknown camera token
	CloseSuperseded = 4000 // camera replaced by a newer connection for the same token
	CloseShutdown   = websocket.CloseGoingAway
)

// Transport is the minimal connection surface the registry needs. The
// production implementation wraps a gorilla websocket connection; tests use
// in-memory doubles.
type Transport interface {
	// Send writes one message. Implementations must bound the write time so
	// a broken peer cannot stall broadcast fan-out.
	Send(payload []byte, binary bool) error
	// Close sends a close frame with the given status code and tears the
	// connection down. Safe to call more than once.
	Close(closeCode int, reason string) error
}

// SendClock is implemented by transports that track their most recent
// successful send. Keepalive senders use it to stay quiet while the
// connection already carries traffic.
type SendClock interface {
	LastSendAt() time.Time
}

// wsTransport adapts a gorilla websocket connection to the Transport
// interface. Gorilla connections support one concurrent writer, so all
// writes go through a mutex.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
	closed       bool
	lastSend     time.Time
}

// NewWebSocketTransport wraps conn with the per-send write deadline used by
// broadcast fan-out.
func NewWebSocketTransport(conn *websocket.Conn, writeTimeout time.Duration) Transport {
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *wsTransport) Send(payload []byte, binary bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	messageType := websocket.TextMessage
	if binary {
		messageType = websocket.BinaryMessage
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	if err := t.conn.WriteMessage(messageType, payload); err != nil {
		return err
	}
	t.lastSend = time.Now()
	return nil
}

// LastSendAt returns when the last message was written successfully, zero
// before the first send.
func (t *wsTransport) LastSendAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSend
}

func (t *wsTransport) Close(closeCode int, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	message := websocket.FormatCloseMessage(closeCode, reason)
	deadline := time.Now().Add(t.writeTimeout)
	// Best effort close frame, the peer may already be gone
	_ = t.conn.WriteControl(websocket.CloseMessage, message, deadline)
	return t.conn.Close()
}
