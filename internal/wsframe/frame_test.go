package wsframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeHeaderLengthBySize(t *testing.T) {
	small := Encode(OpText, make([]byte, 10))
	assert.Len(t, small[:2], 2)
	assert.Equal(t, byte(10), small[1])

	mid := Encode(OpText, make([]byte, 200))
	assert.Equal(t, byte(126), mid[1])
	assert.Len(t, mid, 4+200)

	big := Encode(OpText, make([]byte, 70000))
	assert.Equal(t, byte(127), big[1])
	assert.Len(t, big, 10+70000)
}

func TestDecodeMaskedClientFrameHello(t *testing.T) {
	var d Decoder
	frame := []byte{
		0x81, 0x85,
		0x37, 0xFA, 0x21, 0x3D,
		0x7F, 0x9F, 0x4D, 0x51, 0x58,
	}
	frames, err := d.Feed(frame)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	f := frames[0]
	assert.True(t, f.Final)
	assert.Equal(t, OpText, f.Opcode)
	assert.True(t, f.Masked)
	assert.Equal(t, "Hello", string(f.Payload))
}

func TestReaderReassemblesFragmentedMessage(t *testing.T) {
	var r Reader

	msgs, err := r.Feed(encodeRaw(false, OpText, false, []byte("Hel")))
	require.NoError(t, err)
	require.Len(t, msgs, 0)

	finalFrame := encodeRaw(false, OpContinuation, true, []byte("lo"))
	msgs, err = r.Feed(finalFrame)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello", string(msgs[0].Payload))
	assert.Equal(t, OpText, msgs[0].Opcode)
}

func TestDecodeRejectsFragmentedControlFrame(t *testing.T) {
	var d Decoder
	// Ping frame with FIN=0 — not allowed.
	frame := []byte{0x09, 0x00}
	_, err := d.Feed(frame)
	assert.ErrorIs(t, err, ErrFragmentedControl)
}

func TestDecodeRejectsOversizeControlFrame(t *testing.T) {
	var d Decoder
	payload := make([]byte, 126)
	frame := append([]byte{0x89, 126, 0, 126}, payload...)
	_, err := d.Feed(frame)
	assert.ErrorIs(t, err, ErrControlTooLarge)
}

func TestDecoderSplitAcrossFeeds(t *testing.T) {
	var d Decoder
	frame := []byte{0x81, 0x05, 'H', 'e', 'l', 'l', 'o'}

	frames, err := d.Feed(frame[:3])
	require.NoError(t, err)
	require.Len(t, frames, 0)

	frames, err = d.Feed(frame[3:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "Hello", string(frames[0].Payload))
}

func TestReaderPassesThroughControlFrames(t *testing.T) {
	var r Reader
	ping := encodeRaw(true, OpPing, false, []byte("ping-data"))
	msgs, err := r.Feed(ping)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, OpPing, msgs[0].Opcode)
	assert.Equal(t, "ping-data", string(msgs[0].Payload))
}

// encodeRaw builds a frame with an explicit final bit and opcode, used to
// construct the non-final / continuation frames Encode cannot produce
// (Encode always emits final, unmasked, single frames for server use).
func encodeRaw(final bool, op Opcode, masked bool, payload []byte) []byte {
	b0 := byte(op)
	if final {
		b0 |= 0x80
	}
	header := []byte{b0, byte(len(payload))}
	if masked {
		header[1] |= 0x80
		header = append(header, 0, 0, 0, 0)
	}
	return append(header, payload...)
}
