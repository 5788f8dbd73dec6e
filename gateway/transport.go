package gateway

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of *websocket.Conn the engine depends on. Tests
// substitute a fake implementation to script server behavior without a
// real socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// dialer opens a Conn to a gateway URL. The production implementation
// wraps gorilla/websocket.Dialer; tests supply a fake.
type dialer interface {
	Dial(url string) (Conn, error)
}

type websocketDialer struct {
	inner *websocket.Dialer
}

func newWebsocketDialer() *websocketDialer {
	return &websocketDialer{inner: websocket.DefaultDialer}
}

func (d *websocketDialer) Dial(url string) (Conn, error) {
	conn, _, err := d.inner.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// TransportErrorKind distinguishes the three ways reading a frame off the
// wire can fail, mirroring which ones are recoverable.
type TransportErrorKind int

const (
	TransportErrWebsocket TransportErrorKind = iota
	TransportErrNotBinaryFrame
	TransportErrParseMessageFailed
)

// TransportError wraps a single frame's read failure.
type TransportError struct {
	Kind TransportErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case TransportErrWebsocket:
		return fmt.Sprintf("websocket read failed: %v", e.Err)
	case TransportErrNotBinaryFrame:
		return "received non-binary websocket frame"
	case TransportErrParseMessageFailed:
		return fmt.Sprintf("parse message failed: %v", e.Err)
	default:
		return "unknown transport error"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// NeedStop reports whether this error should terminate the connection.
// A non-binary frame is dropped and read continues; an unknown message
// type inside an otherwise well-formed frame is also recoverable; every
// other failure is fatal.
func (e *TransportError) NeedStop() bool {
	switch e.Kind {
	case TransportErrNotBinaryFrame:
		return false
	case TransportErrParseMessageFailed:
		if pme, ok := e.Err.(*ParseMessageError); ok {
			return pme.Fatal()
		}
		return true
	default:
		return true
	}
}

// messageStream reads and writes Messages over a Conn, handling frame
// decoding, compression and the fatal/non-fatal split for read errors.
type messageStream struct {
	conn       Conn
	compressed bool
}

func newMessageStream(conn Conn, compressed bool) *messageStream {
	return &messageStream{conn: conn, compressed: compressed}
}

// next reads the next Message. Every read failure, fatal or not, is
// returned alongside a zero Message; the caller uses NeedStop to decide
// whether to continue reading or stop.
func (s *messageStream) next() (Message, error) {
	kind, data, err := s.conn.ReadMessage()
	if err != nil {
		return Message{}, &TransportError{Kind: TransportErrWebsocket, Err: err}
	}
	if kind != websocket.BinaryMessage {
		return Message{}, &TransportError{Kind: TransportErrNotBinaryFrame}
	}

	msg, err := decodeMessage(data, s.compressed)
	if err != nil {
		return Message{}, &TransportError{Kind: TransportErrParseMessageFailed, Err: err}
	}
	return msg, nil
}

// send writes a Message as a single binary frame. Outgoing frames are
// never compressed, matching the gateway wire contract.
func (s *messageStream) send(m Message) error {
	return s.conn.WriteMessage(websocket.BinaryMessage, encodeMessage(m))
}

func (s *messageStream) close() error {
	return s.conn.Close()
}
