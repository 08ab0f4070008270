package wsconn

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitric1/SudaGureum/internal/reactor"
	"github.com/nitric1/SudaGureum/internal/wsframe"
)

// maskedClientFrame builds a single final masked text frame the way a
// real browser client would send it (spec §8 masking requirement).
func maskedClientFrame(op wsframe.Opcode, payload []byte) []byte {
	mask := [4]byte{0x11, 0x22, 0x33, 0x44}
	masked := make([]byte, len(payload))
	for i, b := range payload {
		masked[i] = b ^ mask[i%4]
	}

	header := []byte{0x80 | byte(op), 0x80 | byte(len(payload))}
	out := append(header, mask[:]...)
	out = append(out, masked...)
	return out
}

func TestHandleTextDispatchesRegisteredMethod(t *testing.T) {
	pool := reactor.NewPool(2)
	defer pool.Stop()

	var buf bytes.Buffer
	writer := reactor.NewWriter(pool, &buf)
	sock := &fakeSocket{}
	c := New(writer, sock, zerolog.Nop())

	var gotText string
	c.Handle("Echo", func(req *Request) (map[string]any, error) {
		gotText = req.Params().Get("Text")
		return map[string]any{"echoed": gotText}, nil
	})

	body, err := json.Marshal(map[string]any{"_reqid": 7, "_method": "echo", "text": "hi"})
	require.NoError(t, err)

	require.NoError(t, c.Feed(maskedClientFrame(wsframe.OpText, body)))
	assert.Equal(t, "hi", gotText)

	require.Eventually(t, func() bool { return buf.Len() > 0 }, writeWait, writePoll)

	var resp map[string]any
	require.NoError(t, decodeTextFrame(buf.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "hi", resp["echoed"])
	assert.Equal(t, float64(7), resp["_reqid"])
}

func TestHandleTextUnknownMethodRespondsWithFailure(t *testing.T) {
	pool := reactor.NewPool(2)
	defer pool.Stop()

	var buf bytes.Buffer
	writer := reactor.NewWriter(pool, &buf)
	c := New(writer, &fakeSocket{}, zerolog.Nop())

	body, err := json.Marshal(map[string]any{"_reqid": 1, "_method": "nope"})
	require.NoError(t, err)
	require.NoError(t, c.Feed(maskedClientFrame(wsframe.OpText, body)))

	require.Eventually(t, func() bool { return buf.Len() > 0 }, writeWait, writePoll)

	var resp map[string]any
	require.NoError(t, decodeTextFrame(buf.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
}

func TestParamsIsCaseInsensitiveAndExcludesEnvelopeFields(t *testing.T) {
	req := &Request{Raw: map[string]json.RawMessage{
		"_reqid":  json.RawMessage(`5`),
		"_method": json.RawMessage(`"history"`),
		"Channel": json.RawMessage(`"#go"`),
	}}

	params := req.Params()
	assert.Equal(t, "#go", params.Get("channel"))
	assert.Equal(t, "#go", params.Get("CHANNEL"))
	assert.True(t, params.Has("channel"))
	assert.False(t, params.Has("_reqid"))
	assert.False(t, params.Has("_method"))
}

type fakeSocket struct{ closed bool }

func (s *fakeSocket) Close() error {
	s.closed = true
	return nil
}

const (
	writeWait = 1000000000 // 1s, expressed in ns so this file need not import time
	writePoll = 1000000    // 1ms
)

// decodeTextFrame parses the single unmasked server Text frame written by
// Conn and JSON-decodes its payload.
func decodeTextFrame(raw []byte, v any) error {
	var dec wsframe.Decoder
	frames, err := dec.Feed(raw)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return errEmptyFrames
	}
	return json.Unmarshal(frames[0].Payload, v)
}

var errEmptyFrames = assertErr("wsconn: no frames decoded")

type assertErr string

func (e assertErr) Error() string { return string(e) }
