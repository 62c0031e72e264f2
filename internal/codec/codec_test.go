package codec

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/simbridge/internal/state"
)

func TestEncodeAppendsOneTerminator(t *testing.T) {
	frame, err := Encode(NewCommand(TypeSetElevator, 1, state.Document{"yoke_pitch_ratio": state.Number(0.25)}))
	require.NoError(t, err)

	assert.Equal(t, Terminator, frame[len(frame)-1])
	assert.Equal(t, 1, bytes.Count(frame, []byte{Terminator}))
	assert.JSONEq(t, `{"type":"SET_ELEVATOR","requestId":1,"data":{"yoke_pitch_ratio":0.25}}`, string(frame[:len(frame)-1]))
}

func TestEncodeNilDataIsEmptyObject(t *testing.T) {
	frame, err := Encode(Command{Type: "PING"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"PING","requestId":0,"data":{}}`, string(frame[:len(frame)-1]))
}

func TestRoundTrip(t *testing.T) {
	commands := []Command{
		NewCommand(TypeSetElevator, 1, state.Document{"yoke_pitch_ratio": state.Number(-0.75)}),
		NewCommand(TypeSetPlaneState, 42, state.Document{
			"sim/flightmodel/position/local_y": state.Number(1523.25),
			"sim/flightmodel/position/q[0]":    state.Number(0.9986),
		}),
		NewCommand("NESTED", -7, state.Document{
			"flags": state.Map(state.Document{
				"armed":  state.Bool(true),
				"label":  state.String("glide"),
				"levels": state.List(state.Number(1), state.Number(2.5), state.Null()),
				"deeper": state.Map(state.Document{"x": state.Number(1e-9)}),
			}),
		}),
		NewCommand("EMPTY", 0, state.Document{}),
	}

	for _, cmd := range commands {
		t.Run(cmd.Type, func(t *testing.T) {
			frame, err := Encode(cmd)
			require.NoError(t, err)

			env, err := Decode(frame)
			require.NoError(t, err)

			got := env.Command()
			assert.Equal(t, cmd.Type, got.Type)
			assert.Equal(t, cmd.RequestID, got.RequestID)
			assert.True(t, cmd.Data.Equal(got.Data), "data mismatch: %v vs %v", cmd.Data.Any(), got.Data.Any())
		})
	}
}

func TestDecodeWithoutTerminator(t *testing.T) {
	env, err := Decode([]byte(`{"type":"PLANE_STATE","requestId":3,"data":{"h_ind":1500}}`))
	require.NoError(t, err)
	assert.True(t, env.IsState())
	assert.EqualValues(t, 3, env.RequestID)

	h, ok := env.Data.Float(state.Path("h_ind"))
	assert.True(t, ok)
	assert.Equal(t, 1500.0, h)
}

func TestDecodeMissingDataIsEmpty(t *testing.T) {
	env, err := Decode([]byte(`{"type":"HELLO","requestId":1}` + "\f"))
	require.NoError(t, err)
	assert.Empty(t, env.Data)

	env, err = Decode([]byte(`{"type":"HELLO","data":null}`))
	require.NoError(t, err)
	assert.NotNil(t, env.Data)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"empty", "", ErrEmptyFrame},
		{"terminator only", "\f", ErrEmptyFrame},
		{"whitespace", "  \n\f", ErrEmptyFrame},
		{"missing type", `{"requestId":1,"data":{}}`, ErrMissingType},
		{"empty type", `{"type":"","data":{}}`, ErrMissingType},
		{"data is list", `{"type":"X","data":[1,2]}`, ErrDataNotMap},
		{"data is number", `{"type":"X","data":5}`, ErrDataNotMap},
		{"truncated", `{"type":"PLANE_STATE","data":{"a":`, nil},
		{"not json", `hello world`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			require.Error(t, err)

			var de *DecodeError
			require.True(t, errors.As(err, &de), "expected *DecodeError, got %T", err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestDecodeSnippetIsBounded(t *testing.T) {
	long := `{"type":` + strings.Repeat("x", 1000)
	_, err := Decode([]byte(long))

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.LessOrEqual(t, len(de.Frame), maxSnippet)
}

func TestFrameReaderSplitsStream(t *testing.T) {
	var stream bytes.Buffer
	for i := 0; i < 3; i++ {
		frame, err := Encode(NewCommand(TypePlaneState, int64(i), state.Document{"i": state.Number(float64(i))}))
		require.NoError(t, err)
		stream.Write(frame)
	}
	stream.WriteString(`{"type":"TAIL"}`)

	fr := NewFrameReader(&stream, 0)
	for i := 0; i < 3; i++ {
		frame, err := fr.Next()
		require.NoError(t, err)
		env, err := Decode(frame)
		require.NoError(t, err)
		assert.EqualValues(t, i, env.RequestID)
	}

	frame, err := fr.Next()
	require.NoError(t, err)
	env, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, "TAIL", env.Type)

	_, err = fr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameReaderSkipsOversized(t *testing.T) {
	var stream bytes.Buffer
	stream.WriteString(`{"type":"BIG","data":{"pad":"` + strings.Repeat("p", 300) + `"}}`)
	stream.WriteByte(Terminator)
	stream.WriteString(`{"type":"SMALL"}`)
	stream.WriteByte(Terminator)

	fr := NewFrameReader(&stream, 64)

	_, err := fr.Next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	frame, err := fr.Next()
	require.NoError(t, err)
	env, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, "SMALL", env.Type)
}

func TestFrameReaderLargerThanBuffer(t *testing.T) {
	pad := strings.Repeat("a", 200*1024)
	frame, err := Encode(NewCommand(TypePlaneState, 9, state.Document{"pad": state.String(pad)}))
	require.NoError(t, err)

	fr := NewFrameReader(bytes.NewReader(frame), 0)
	got, err := fr.Next()
	require.NoError(t, err)

	env, err := Decode(got)
	require.NoError(t, err)
	s, _ := env.Data["pad"].Str()
	assert.Len(t, s, len(pad))
}
