package gateway

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// fakeConn is a scripted Conn used to drive the client state machine
// without a real socket, in the spirit of a fake server-side peer that
// feeds pre-built frames and records what the client sends back.
type fakeConn struct {
	mu     sync.Mutex
	toRead chan []byte
	sent   [][]byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		toRead: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) push(m Message) {
	c.toRead <- encodeMessage(m)
}

func (c *fakeConn) pushRaw(data []byte) {
	c.toRead <- data
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.toRead:
		return websocket.BinaryMessage, data, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) sentMessages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, 0, len(c.sent))
	for _, raw := range c.sent {
		m, err := decodeMessage(raw, false)
		if err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []Conn
	next  int
}

func (d *fakeDialer) Dial(_ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= len(d.conns) {
		return nil, errors.New("fakeDialer: no more scripted connections")
	}
	c := d.conns[d.next]
	d.next++
	return c, nil
}
