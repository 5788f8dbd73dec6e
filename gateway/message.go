package gateway

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	json "github.com/segmentio/encoding/json"
)

// MessageType is the wire discriminant carried in a frame's "s" field.
type MessageType int64

const (
	MessageEvent     MessageType = 0
	MessageHello     MessageType = 1
	MessagePing      MessageType = 2
	MessagePong      MessageType = 3
	MessageResume    MessageType = 4
	MessageReconnect MessageType = 5
	MessageResumeACK MessageType = 6
)

func (t MessageType) String() string {
	switch t {
	case MessageEvent:
		return "Event"
	case MessageHello:
		return "Hello"
	case MessagePing:
		return "Ping"
	case MessagePong:
		return "Pong"
	case MessageResume:
		return "Resume"
	case MessageReconnect:
		return "Reconnect"
	case MessageResumeACK:
		return "ResumeACK"
	default:
		return fmt.Sprintf("Unknown(%d)", int64(t))
	}
}

// EventFrame is the payload of an Event message.
type EventFrame struct {
	SN   uint64      `json:"sn"`
	Data EventPayload `json:"d"`
}

// HelloPayload is the payload of a Hello message.
type HelloPayload struct {
	Code      int64   `json:"code"`
	SessionID *string `json:"session_id,omitempty"`
}

// ReconnectPayload is the payload of a Reconnect message.
type ReconnectPayload struct {
	Code int64  `json:"code"`
	Err  string `json:"err"`
}

// ResumeACKPayload is the payload of a ResumeACK message.
type ResumeACKPayload struct {
	SessionID string `json:"session_id"`
}

// Message is the tagged frame exchanged over the gateway connection.
// Exactly one of the variant-specific fields is meaningful, selected by
// Type; the zero value for unused fields is never interpreted.
type Message struct {
	Type MessageType

	Event     *EventFrame
	Hello     *HelloPayload
	PingSN    uint64
	ResumeSN  uint64
	Reconnect *ReconnectPayload
	ResumeACK *ResumeACKPayload
}

func EventMessage(sn uint64, data EventPayload) Message {
	return Message{Type: MessageEvent, Event: &EventFrame{SN: sn, Data: data}}
}

func HelloMessage(code int64, sessionID *string) Message {
	return Message{Type: MessageHello, Hello: &HelloPayload{Code: code, SessionID: sessionID}}
}

func PingMessage(sn uint64) Message {
	return Message{Type: MessagePing, PingSN: sn}
}

func PongMessage() Message {
	return Message{Type: MessagePong}
}

func ResumeMessage(sn uint64) Message {
	return Message{Type: MessageResume, ResumeSN: sn}
}

func ReconnectMessage(code int64, err string) Message {
	return Message{Type: MessageReconnect, Reconnect: &ReconnectPayload{Code: code, Err: err}}
}

func ResumeACKMessage(sessionID string) Message {
	return Message{Type: MessageResumeACK, ResumeACK: &ResumeACKPayload{SessionID: sessionID}}
}

// ParseErrorKind identifies which stage of decoding failed.
type ParseErrorKind int

const (
	ParseErrDecompressFailed ParseErrorKind = iota
	ParseErrInvalidJSON
	ParseErrMessageNotObject
	ParseErrNoMessageType
	ParseErrMessageTypeNotNumber
	ParseErrUnknownMessageType
	ParseErrTypedShapeMismatch
)

// ParseMessageError reports why a frame failed to decode into a Message.
// Per the wire contract, ParseErrUnknownMessageType is the only non-fatal
// kind: the frame is dropped and the stream continues.
type ParseMessageError struct {
	Kind ParseErrorKind
	Type int64 // populated when Kind == ParseErrUnknownMessageType
	Err  error
}

func (e *ParseMessageError) Error() string {
	switch e.Kind {
	case ParseErrDecompressFailed:
		return fmt.Sprintf("decompress message failed: %v", e.Err)
	case ParseErrInvalidJSON:
		return fmt.Sprintf("parse message json failed: %v", e.Err)
	case ParseErrMessageNotObject:
		return "parsed message is not a json object"
	case ParseErrNoMessageType:
		return "message has no s field"
	case ParseErrMessageTypeNotNumber:
		return "message s field is not a number"
	case ParseErrUnknownMessageType:
		return fmt.Sprintf("message has unknown type %d", e.Type)
	case ParseErrTypedShapeMismatch:
		return fmt.Sprintf("message did not match its declared type: %v", e.Err)
	default:
		return "unknown parse error"
	}
}

func (e *ParseMessageError) Unwrap() error { return e.Err }

// Fatal reports whether this error should terminate the stream. Only an
// unrecognized message type is recoverable.
func (e *ParseMessageError) Fatal() bool {
	return e.Kind != ParseErrUnknownMessageType
}

// decompress inflates a zlib-wrapped frame.
func decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseMessageError{Kind: ParseErrDecompressFailed, Err: err}
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseMessageError{Kind: ParseErrDecompressFailed, Err: err}
	}
	return out, nil
}

// decodeMessage turns a raw frame into a Message, inflating it first when
// compressed is true.
func decodeMessage(raw []byte, compressed bool) (Message, error) {
	buf := raw
	if compressed {
		inflated, err := decompress(raw)
		if err != nil {
			return Message{}, err
		}
		buf = inflated
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(buf, &generic); err != nil {
		return Message{}, &ParseMessageError{Kind: ParseErrInvalidJSON, Err: err}
	}
	if generic == nil {
		return Message{}, &ParseMessageError{Kind: ParseErrMessageNotObject}
	}

	sRaw, ok := generic["s"]
	if !ok {
		return Message{}, &ParseMessageError{Kind: ParseErrNoMessageType}
	}

	var s int64
	if err := json.Unmarshal(sRaw, &s); err != nil {
		return Message{}, &ParseMessageError{Kind: ParseErrMessageTypeNotNumber, Err: err}
	}

	switch MessageType(s) {
	case MessageEvent:
		var frame EventFrame
		if err := decodeField(generic, &frame); err != nil {
			return Message{}, err
		}
		return EventMessage(frame.SN, frame.Data), nil

	case MessageHello:
		var d HelloPayload
		if err := decodeNested(generic, &d); err != nil {
			return Message{}, err
		}
		return HelloMessage(d.Code, d.SessionID), nil

	case MessagePing:
		var sn struct {
			SN uint64 `json:"sn"`
		}
		if err := decodeField(generic, &sn); err != nil {
			return Message{}, err
		}
		return PingMessage(sn.SN), nil

	case MessagePong:
		return PongMessage(), nil

	case MessageResume:
		var sn struct {
			SN uint64 `json:"sn"`
		}
		if err := decodeField(generic, &sn); err != nil {
			return Message{}, err
		}
		return ResumeMessage(sn.SN), nil

	case MessageReconnect:
		var d ReconnectPayload
		if err := decodeNested(generic, &d); err != nil {
			return Message{}, err
		}
		return ReconnectMessage(d.Code, d.Err), nil

	case MessageResumeACK:
		var d ResumeACKPayload
		if err := decodeNested(generic, &d); err != nil {
			return Message{}, err
		}
		return ResumeACKMessage(d.SessionID), nil

	default:
		return Message{}, &ParseMessageError{Kind: ParseErrUnknownMessageType, Type: s}
	}
}

// decodeField re-marshals the generic object (minus "s") into v.
func decodeField(generic map[string]json.RawMessage, v interface{}) error {
	fields := make(map[string]json.RawMessage, len(generic))
	for k, val := range generic {
		if k == "s" {
			continue
		}
		fields[k] = val
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return &ParseMessageError{Kind: ParseErrTypedShapeMismatch, Err: err}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &ParseMessageError{Kind: ParseErrTypedShapeMismatch, Err: err}
	}
	return nil
}

// decodeNested unmarshals the "d" field of the generic object into v.
func decodeNested(generic map[string]json.RawMessage, v interface{}) error {
	d, ok := generic["d"]
	if !ok {
		return &ParseMessageError{Kind: ParseErrTypedShapeMismatch, Err: fmt.Errorf("missing d field")}
	}
	if err := json.Unmarshal(d, v); err != nil {
		return &ParseMessageError{Kind: ParseErrTypedShapeMismatch, Err: err}
	}
	return nil
}

// encodeMessage serializes a Message to its wire JSON form. It never fails:
// the variants' shapes are fixed and always marshal cleanly.
func encodeMessage(m Message) []byte {
	var out map[string]interface{}

	switch m.Type {
	case MessageEvent:
		out = map[string]interface{}{"s": int64(MessageEvent), "sn": m.Event.SN, "d": m.Event.Data}
	case MessageHello:
		d := map[string]interface{}{"code": m.Hello.Code}
		if m.Hello.SessionID != nil {
			d["session_id"] = *m.Hello.SessionID
		}
		out = map[string]interface{}{"s": int64(MessageHello), "d": d}
	case MessagePing:
		out = map[string]interface{}{"s": int64(MessagePing), "sn": m.PingSN}
	case MessagePong:
		out = map[string]interface{}{"s": int64(MessagePong)}
	case MessageResume:
		out = map[string]interface{}{"s": int64(MessageResume), "sn": m.ResumeSN}
	case MessageReconnect:
		out = map[string]interface{}{
			"s": int64(MessageReconnect),
			"d": map[string]interface{}{"code": m.Reconnect.Code, "err": m.Reconnect.Err},
		}
	case MessageResumeACK:
		out = map[string]interface{}{
			"s": int64(MessageResumeACK),
			"d": map[string]interface{}{"session_id": m.ResumeACK.SessionID},
		}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		// Unreachable for well-formed messages: every variant above marshals
		// plain maps of strings and numbers, plus the Event payload, which is
		// already raw JSON.
		panic(fmt.Sprintf("gateway: encode message: %v", err))
	}
	return raw
}
