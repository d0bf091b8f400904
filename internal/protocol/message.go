// Package protocol defines the wire format shared by the server and its
// clients: one JSON object per newline-terminated UTF-8 line, with exactly
// two top-level fields, "type" and "data".
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Message type tags. Client-to-server requests and server-to-client events
// share the same envelope.
const (
	TypeConnect         = "connect"
	TypeConnectResponse = "connect_response"
	TypeDisconnect      = "disconnect"
	TypeCreateRoom      = "create_room"
	TypeListRooms       = "list_rooms"
	TypeRoomsUpdate     = "rooms_update"
	TypeJoinRoom        = "join_room"
	TypeLeaveRoom       = "leave_room"
	TypeKickPlayer      = "kick_player"
	TypeSetGameConfig   = "set_game_config"
	TypeSetReady        = "set_ready"
	TypeRoomUpdate      = "room_update"
	TypeStartGame       = "start_game"
	TypeNextRound       = "next_round"
	TypeEndGame         = "end_game"
	TypeDraw            = "draw"
	TypeDrawSync        = "draw_sync"
	TypeGuess           = "guess"
	TypeGuessResult     = "guess_result"
	TypeChat            = "chat"
	TypeGiveScore       = "give_score"
	TypeGameResult      = "game_result"
	TypeEvent           = "event"
	TypeAck             = "ack"
	TypeError           = "error"
)

// ErrProtocol indicates a frame that could not be parsed into a Message.
// Callers must treat this as "drop the frame and continue", never as fatal
// to the connection.
var ErrProtocol = errors.New("malformed protocol frame")

// Message is one wire-protocol unit. It is immutable once constructed.
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// New creates a Message with the given type tag and payload.
//
// Postcondition: the returned Message has a non-nil Data map.
func New(msgType string, data map[string]any) *Message {
	if data == nil {
		data = map[string]any{}
	}
	return &Message{Type: msgType, Data: data}
}

// Encode serializes a Message to its wire form: a single JSON line
// terminated by '\n'. Non-ASCII text is transmitted as literal UTF-8,
// never escaped to numeric code-point sequences.
//
// Precondition: m.Type must be non-empty.
// Postcondition: the returned bytes end with exactly one '\n'.
func Encode(m *Message) ([]byte, error) {
	if m.Type == "" {
		return nil, fmt.Errorf("%w: empty type", ErrProtocol)
	}
	if m.Data == nil {
		m.Data = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding message %q: %w", m.Type, err)
	}
	// json.Encoder.Encode appends the terminating newline.
	return buf.Bytes(), nil
}

// Decode parses one frame into a Message. Byte subsequences that are not
// valid UTF-8 are substituted with U+FFFD rather than discarded, so message
// boundaries and lengths stay predictable for the receiver. The frame fails
// with an error wrapping ErrProtocol when the text is not a JSON object
// with a non-empty "type" string and an object-valued "data" field.
//
// Postcondition: on success the returned Message has a non-nil Data map.
func Decode(frame []byte) (*Message, error) {
	clean := Sanitize(frame)

	var raw struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(clean, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if raw.Type == "" {
		return nil, fmt.Errorf("%w: missing type field", ErrProtocol)
	}

	m := &Message{Type: raw.Type, Data: map[string]any{}}
	if len(raw.Data) == 0 || bytes.Equal(raw.Data, []byte("null")) {
		return m, nil
	}
	if err := json.Unmarshal(raw.Data, &m.Data); err != nil {
		return nil, fmt.Errorf("%w: data is not an object", ErrProtocol)
	}
	return m, nil
}

// Sanitize replaces every run of invalid UTF-8 bytes in b with the Unicode
// replacement character (U+FFFD). Valid input is returned unchanged. This is
// a pure function useful for testing and protocol parsing.
func Sanitize(b []byte) []byte {
	return bytes.ToValidUTF8(b, []byte("�"))
}

// Text returns the string payload field for key, or "" when absent or not
// a string.
func (m Message) Text(key string) string {
	s, _ := m.Data[key].(string)
	return s
}

// Int returns the integer payload field for key, or 0 when absent.
// JSON numbers arrive as float64 and are truncated toward zero.
func (m Message) Int(key string) int {
	switch v := m.Data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// Bool returns the boolean payload field for key, or false when absent or
// not a boolean.
func (m Message) Bool(key string) bool {
	b, _ := m.Data[key].(bool)
	return b
}

// Equal reports whether two messages carry the same type and payload.
// Payloads are compared by their canonical JSON form (Marshal sorts map
// keys, so key order is irrelevant).
func Equal(a, b *Message) bool {
	if a.Type != b.Type {
		return false
	}
	aj, errA := json.Marshal(a.Data)
	bj, errB := json.Marshal(b.Data)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
