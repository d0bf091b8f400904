package protocol

import (
	"bytes"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncode_NewlineTerminated(t *testing.T) {
	m := New(TypeChat, map[string]any{"text": "hello"})
	b, err := Encode(m)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(b, []byte("\n")))
	assert.Equal(t, 1, bytes.Count(b, []byte("\n")))
}

func TestEncode_UnicodeVerbatim(t *testing.T) {
	m := New(TypeChat, map[string]any{"text": "你好世界😀"})
	b, err := Encode(m)
	require.NoError(t, err)
	// The payload travels as literal UTF-8, not \uXXXX escapes.
	assert.Contains(t, string(b), "你好世界😀")
	assert.NotContains(t, string(b), `\u4f60`)
}

func TestEncode_EmptyType(t *testing.T) {
	_, err := Encode(&Message{})
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecode_RoundTrip(t *testing.T) {
	m := New(TypeChat, map[string]any{"text": "你好世界😀", "by": "p1"})
	b, err := Encode(m)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.True(t, Equal(m, got))
}

func TestDecode_MissingType(t *testing.T) {
	_, err := Decode([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecode_DataNotObject(t *testing.T) {
	_, err := Decode([]byte(`{"type":"chat","data":5}`))
	assert.ErrorIs(t, err, ErrProtocol)

	_, err = Decode([]byte(`{"type":"chat","data":[1,2]}`))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecode_NotJSON(t *testing.T) {
	_, err := Decode([]byte("not json at all"))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecode_MissingDataDefaultsEmpty(t *testing.T) {
	m, err := Decode([]byte(`{"type":"leave_room"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeLeaveRoom, m.Type)
	assert.NotNil(t, m.Data)
	assert.Empty(t, m.Data)
}

func TestDecode_NullData(t *testing.T) {
	m, err := Decode([]byte(`{"type":"chat","data":null}`))
	require.NoError(t, err)
	assert.NotNil(t, m.Data)
}

func TestDecode_TruncatedMultibyte(t *testing.T) {
	// "你" is 0xE4 0xBD 0xA0; the frame carries only its first two bytes.
	frame := append([]byte(`{"type":"chat","data":{"text":"ab`), 0xE4, 0xBD)
	frame = append(frame, []byte(`"}}`)...)

	m, err := Decode(frame)
	require.NoError(t, err)
	// The broken sequence is substituted, not silently dropped.
	assert.Equal(t, "ab�", m.Text("text"))
}

func TestSanitize_ValidPassthrough(t *testing.T) {
	in := []byte("plain ascii and 你好")
	assert.Equal(t, in, Sanitize(in))
}

func TestSanitize_InvalidRunSubstituted(t *testing.T) {
	in := []byte{'a', 0xFF, 0xFE, 'b'}
	out := Sanitize(in)
	assert.True(t, utf8.Valid(out))
	assert.Equal(t, "a�b", string(out))
}

func TestMessage_Accessors(t *testing.T) {
	m := New(TypeSetGameConfig, map[string]any{
		"max_rounds": float64(5),
		"room_id":    "r1",
		"ok":         true,
	})
	assert.Equal(t, 5, m.Int("max_rounds"))
	assert.Equal(t, "r1", m.Text("room_id"))
	assert.True(t, m.Bool("ok"))

	assert.Equal(t, 0, m.Int("missing"))
	assert.Equal(t, "", m.Text("missing"))
	assert.False(t, m.Bool("missing"))
}

// Property: decode(encode(m)) == m for arbitrary string payloads.
func TestPropertyRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		name := rapid.String().Draw(t, "name")
		m := New(TypeChat, map[string]any{"text": text, "by_name": name})

		b, err := Encode(m)
		require.NoError(t, err)
		got, err := Decode(b)
		require.NoError(t, err)
		assert.True(t, Equal(m, got), "round trip changed the message")
	})
}

// Property: Sanitize always yields valid UTF-8 and preserves valid input.
func TestPropertySanitize(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		length := rapid.IntRange(0, 200).Draw(t, "length")
		in := make([]byte, length)
		for i := range in {
			in[i] = byte(rapid.IntRange(0, 255).Draw(t, "byte"))
		}
		out := Sanitize(in)
		assert.True(t, utf8.Valid(out))
		if utf8.Valid(in) {
			assert.Equal(t, in, out)
		}
	})
}
