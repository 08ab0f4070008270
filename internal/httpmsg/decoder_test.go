package httpmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSimpleGet(t *testing.T) {
	var d Decoder
	raw := "GET /path?a=1&b=two+words HTTP/1.1\r\nHost: example.com\r\n\r\n"
	complete, err := d.Feed([]byte(raw))
	require.NoError(t, err)
	require.True(t, complete)

	req := d.Take()
	assert.Equal(t, MethodGet, req.Method)
	assert.True(t, req.HTTP11)
	assert.Equal(t, "/path", req.Target)
	assert.Equal(t, "1", req.Queries.Get("a"))
	assert.Equal(t, "two words", req.Queries.Get("b"))
	assert.True(t, req.KeepAlive)
}

func TestDecodeRejectsNonOriginForm(t *testing.T) {
	var d Decoder
	_, err := d.Feed([]byte("GET http://evil.example/ HTTP/1.1\r\n\r\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeSplitAcrossFeeds(t *testing.T) {
	var d Decoder
	complete, err := d.Feed([]byte("GET / HTTP/1.1\r\nHo"))
	require.NoError(t, err)
	require.False(t, complete)

	complete, err = d.Feed([]byte("st: x\r\n\r\n"))
	require.NoError(t, err)
	require.True(t, complete)

	req := d.Take()
	assert.Equal(t, "x", req.Headers.Get("Host"))
}

func TestDecodePostWithBody(t *testing.T) {
	var d Decoder
	body := "name=bob&age=3"
	raw := "POST /submit HTTP/1.1\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: " +
		itoa(len(body)) + "\r\n\r\n" + body
	complete, err := d.Feed([]byte(raw))
	require.NoError(t, err)
	require.True(t, complete)

	req := d.Take()
	MergeFormBody(req)
	assert.Equal(t, "bob", req.Queries.Get("name"))
	assert.Equal(t, "3", req.Queries.Get("age"))
}

func TestDecodeConnectionCloseOnHTTP10(t *testing.T) {
	var d Decoder
	complete, err := d.Feed([]byte("GET / HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)
	require.True(t, complete)
	req := d.Take()
	assert.False(t, req.KeepAlive)
}

func itoa(n int) string {
	digits := "0123456789"
	if n == 0 {
		return "0"
	}
	var out []byte
	for n > 0 {
		out = append([]byte{digits[n%10]}, out...)
		n /= 10
	}
	return string(out)
}
