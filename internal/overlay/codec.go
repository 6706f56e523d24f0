package overlay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coder/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec selects the wire encoding of outbound events.
type Codec int

const (
	// JSON sends text frames.
	JSON Codec = iota
	// MsgPack sends binary frames.
	MsgPack
)

// String returns the codec's query-parameter name.
func (c Codec) String() string {
	if c == MsgPack {
		return "msgpack"
	}
	return "json"
}

// ParseCodec maps a query-parameter value to a codec. Anything unknown is JSON.
func ParseCodec(s string) Codec {
	if s == "msgpack" {
		return MsgPack
	}
	return JSON
}

// ErrNoType is returned for envelopes without a type.
var ErrNoType = errors.New("overlay: message has no type")

// envelope is the outbound wire shape.
type envelope struct {
	Type string `json:"type" msgpack:"type"`
	Data any    `json:"data,omitempty" msgpack:"data,omitempty"`
}

type jsonInbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type msgpackInbound struct {
	Type string             `msgpack:"type"`
	Data msgpack.RawMessage `msgpack:"data"`
}

// Inbound is one decoded envelope. Its payload is decoded lazily with
// [Inbound.Decode] because only the receiver knows the payload type.
type Inbound struct {
	Type  string
	codec Codec
	data  []byte
}

// NewInbound builds an inbound message from an already-encoded payload.
func NewInbound(typ string, codec Codec, data []byte) Inbound {
	return Inbound{Type: typ, codec: codec, data: data}
}

// Decode unmarshals the payload into v.
func (in Inbound) Decode(v any) error {
	if len(in.data) == 0 {
		return fmt.Errorf("overlay: %s: empty payload", in.Type)
	}
	var err error
	if in.codec == MsgPack {
		err = msgpack.Unmarshal(in.data, v)
	} else {
		err = json.Unmarshal(in.data, v)
	}
	if err != nil {
		return fmt.Errorf("overlay: %s: decode: %w", in.Type, err)
	}
	return nil
}

// DecodeInbound parses one WebSocket message. Text frames are JSON, binary
// frames are msgpack.
func DecodeInbound(typ websocket.MessageType, data []byte) (Inbound, error) {
	if typ == websocket.MessageBinary {
		var m msgpackInbound
		if err := msgpack.Unmarshal(data, &m); err != nil {
			return Inbound{}, fmt.Errorf("overlay: decode msgpack envelope: %w", err)
		}
		if m.Type == "" {
			return Inbound{}, ErrNoType
		}
		return Inbound{Type: m.Type, codec: MsgPack, data: m.Data}, nil
	}
	var m jsonInbound
	if err := json.Unmarshal(data, &m); err != nil {
		return Inbound{}, fmt.Errorf("overlay: decode json envelope: %w", err)
	}
	if m.Type == "" {
		return Inbound{}, ErrNoType
	}
	return Inbound{Type: m.Type, codec: JSON, data: m.Data}, nil
}

// Encode marshals one outbound event.
func Encode(c Codec, event string, payload any) ([]byte, error) {
	env := envelope{Type: event, Data: payload}
	if c == MsgPack {
		b, err := msgpack.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("overlay: encode %s: %w", event, err)
		}
		return b, nil
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("overlay: encode %s: %w", event, err)
	}
	return b, nil
}

func (c Codec) messageType() websocket.MessageType {
	if c == MsgPack {
		return websocket.MessageBinary
	}
	return websocket.MessageText
}
