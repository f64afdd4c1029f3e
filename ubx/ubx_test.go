package ubx_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/assistnow/ubx"
)

// recorder keeps each Write as one frame.
type recorder struct {
	frames [][]byte
	fail   error
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.fail != nil {
		return 0, r.fail
	}
	r.frames = append(r.frames, bytes.Clone(p))
	return len(p), nil
}

func TestEncode(t *testing.T) {
	frame := ubx.Encode(ubx.ClassMGA, 0x40, []byte{0x01, 0x02, 0x03})

	require.Len(t, frame, ubx.Overhead+3)
	assert.Equal(t, []byte{0xB5, 0x62, 0x13, 0x40, 0x03, 0x00}, frame[:6])

	h, err := ubx.ParseHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, ubx.Header{Class: ubx.ClassMGA, ID: 0x40, Length: 3}, h)

	n, err := ubx.Validate(frame, 0, ubx.ClassMGA)
	require.NoError(t, err)
	assert.Equal(t, len(frame), n)
}

func TestValidate(t *testing.T) {
	good := ubx.Encode(ubx.ClassMGA, 0x06, []byte{0xAA, 0xBB})

	t.Run("Length is little endian", func(t *testing.T) {
		payload := make([]byte, 0x0102)
		frame := ubx.Encode(ubx.ClassMGA, 0x00, payload)
		assert.Equal(t, byte(0x02), frame[4])
		assert.Equal(t, byte(0x01), frame[5])
	})

	t.Run("Truncated frame", func(t *testing.T) {
		_, err := ubx.Validate(good[:len(good)-1], 0, 0)
		assert.ErrorIs(t, err, ubx.ErrShort)
	})

	t.Run("Length field beyond the buffer", func(t *testing.T) {
		frame := bytes.Clone(good)
		frame[4] = 0xFF
		_, err := ubx.Validate(frame, 0, 0)
		assert.ErrorIs(t, err, ubx.ErrShort)
	})

	t.Run("Wrong class", func(t *testing.T) {
		frame := ubx.Encode(0x06, 0x01, nil)
		_, err := ubx.Validate(frame, 0, ubx.ClassMGA)
		assert.ErrorIs(t, err, ubx.ErrClass)

		_, err = ubx.Validate(frame, 0, 0)
		assert.NoError(t, err)
	})

	t.Run("Flipped checksum bit", func(t *testing.T) {
		frame := bytes.Clone(good)
		frame[len(frame)-1] ^= 0x01
		_, err := ubx.Validate(frame, 0, 0)
		assert.ErrorIs(t, err, ubx.ErrChecksum)
	})

	t.Run("Bad sync", func(t *testing.T) {
		_, err := ubx.Validate(append([]byte{0x00}, good...), 0, 0)
		assert.ErrorIs(t, err, ubx.ErrSync)
	})
}

func TestInject(t *testing.T) {
	first := ubx.Encode(ubx.ClassMGA, 0x00, []byte{1, 2, 3, 4})
	second := ubx.Encode(ubx.ClassMGA, 0x06, []byte{5, 6})
	in := ubx.Injector{Class: ubx.ClassMGA}

	t.Run("Well formed frames are forwarded one per write", func(t *testing.T) {
		sink := &recorder{}
		res, err := in.Inject(append(bytes.Clone(first), second...), sink)

		require.NoError(t, err)
		assert.Equal(t, ubx.Result{Frames: 2, Bytes: len(first) + len(second)}, res)
		require.Len(t, sink.frames, 2)
		assert.Equal(t, first, sink.frames[0])
		assert.Equal(t, second, sink.frames[1])
	})

	t.Run("Corrupt frame is skipped and the next one forwarded", func(t *testing.T) {
		corrupt := bytes.Clone(first)
		corrupt[len(corrupt)-1] ^= 0x01
		sink := &recorder{}

		res, err := in.Inject(append(corrupt, second...), sink)

		assert.ErrorIs(t, err, ubx.ErrIncomplete)
		assert.Equal(t, 1, res.Frames)
		assert.Equal(t, 1, res.Rejected)
		require.Len(t, sink.frames, 1)
		assert.Equal(t, second, sink.frames[0])
	})

	t.Run("Leading garbage is skipped", func(t *testing.T) {
		sink := &recorder{}
		res, err := in.Inject(append([]byte{0x00, 0x11}, first...), sink)

		assert.ErrorIs(t, err, ubx.ErrIncomplete)
		assert.Equal(t, 1, res.Frames)
		assert.Equal(t, [][]byte{first}, sink.frames)
	})

	t.Run("Truncated tail is not forwarded", func(t *testing.T) {
		sink := &recorder{}
		res, err := in.Inject(append(bytes.Clone(first), second[:5]...), sink)

		assert.ErrorIs(t, err, ubx.ErrIncomplete)
		assert.Equal(t, 1, res.Frames)
		assert.Len(t, sink.frames, 1)
	})

	t.Run("Sink failure is reported after the scan", func(t *testing.T) {
		boom := errors.New("uart gone")
		sink := &recorder{fail: boom}

		res, err := in.Inject(append(bytes.Clone(first), second...), sink)

		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, ubx.ErrIncomplete)
		assert.Zero(t, res.Frames)
		assert.Equal(t, 2, res.Failed)
	})

	t.Run("Empty buffer", func(t *testing.T) {
		res, err := in.Inject(nil, &recorder{})
		assert.NoError(t, err)
		assert.Zero(t, res)
	})
}
