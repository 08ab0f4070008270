package ircclient

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitric1/SudaGureum/internal/reactor"
)

// pipeDialer returns the client-facing half of a net.Pipe; newMockClient
// hands the server-facing half to the test, mirroring girc's MockConnect
// test pattern.
type pipeDialer struct{ conn net.Conn }

func (d *pipeDialer) Dial(_, _ string) (net.Conn, error) { return d.conn, nil }

func newMockClient(t *testing.T, events Events) (*Client, *bufio.Reader, net.Conn) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	pool := reactor.NewPool(2)
	t.Cleanup(pool.Stop)

	c := New(Config{
		Host:  "irc.example.net",
		Port:  6667,
		Nicks: []string{"alice", "alice_", "alice__"},
		Dialer: &pipeDialer{conn: clientSide},
	}, events, pool)

	go func() { _ = c.Connect(context.Background()) }()

	return c, bufio.NewReader(serverSide), serverSide
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestNicknameNegotiationExhaustsList(t *testing.T) {
	c, r, server := newMockClient(t, Events{})
	defer server.Close()

	_ = readLine(t, r) // USER
	_ = readLine(t, r) // NICK alice

	for i := 0; i < 2; i++ {
		_, err := server.Write([]byte(":irc.example.net 433 * alice :Nickname is already in use\r\n"))
		require.NoError(t, err)
		line := readLine(t, r)
		assert.Contains(t, line, "NICK")
	}

	_, err := server.Write([]byte(":irc.example.net 433 * alice__ :Nickname is already in use\r\n"))
	require.NoError(t, err)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not disconnect after exhausting nicknames")
	}
}

func TestNicknameNegotiationAcceptsAfterRetries(t *testing.T) {
	c, r, server := newMockClient(t, Events{})
	defer server.Close()

	_ = readLine(t, r) // USER
	_ = readLine(t, r) // NICK alice

	_, err := server.Write([]byte(":irc.example.net 433 * alice :in use\r\n"))
	require.NoError(t, err)
	_ = readLine(t, r) // NICK alice_

	_, err = server.Write([]byte(":irc.example.net 433 * alice_ :in use\r\n"))
	require.NoError(t, err)
	_ = readLine(t, r) // NICK alice__

	_, err = server.Write([]byte(":irc.example.net 001 alice__ :Welcome\r\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.Nickname() == "alice__" && !c.ConnectBeginning()
	}, time.Second, 10*time.Millisecond)
}

func TestPingPong(t *testing.T) {
	_, r, server := newMockClient(t, Events{})
	defer server.Close()

	_ = readLine(t, r)
	_ = readLine(t, r)

	_, err := server.Write([]byte("PING :x\r\n"))
	require.NoError(t, err)

	line := readLine(t, r)
	assert.Equal(t, "PONG :x\r\n", line)
}

func TestISupportParsing(t *testing.T) {
	c, r, server := newMockClient(t, Events{})
	defer server.Close()
	_ = readLine(t, r)
	_ = readLine(t, r)

	_, err := server.Write([]byte(":irc.example.net 005 alice CHANTYPES=#& CHANMODES=b,k,l,imnpst PREFIX=(qaohv)~&@%+ :are supported\r\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		v, ok := c.Options().Get("CHANTYPES")
		return ok && v == "#&"
	}, time.Second, 10*time.Millisecond)

	c.mu.RLock()
	pm := c.prefixes
	c.mu.RUnlock()

	assert.Equal(t, byte('v'), pm.symbolToLetter['+'])
	assert.Equal(t, byte('h'), pm.symbolToLetter['%'])
	assert.Equal(t, byte('o'), pm.symbolToLetter['@'])
	assert.Equal(t, byte('a'), pm.symbolToLetter['&'])
	assert.Equal(t, byte('q'), pm.symbolToLetter['~'])
}

func TestJoinAndNameList(t *testing.T) {
	joined := make(chan string, 1)
	c, r, server := newMockClient(t, Events{
		OnJoinChannel: func(_ *Client, channel, nick string) { joined <- nick + "@" + channel },
	})
	defer server.Close()
	_ = readLine(t, r)
	_ = readLine(t, r)

	_, err := server.Write([]byte(":alice!u@h JOIN #room\r\n"))
	require.NoError(t, err)
	_, err = server.Write([]byte(":irc.example.net 353 alice = #room :@alice +bob carol\r\n"))
	require.NoError(t, err)
	_, err = server.Write([]byte(":irc.example.net 366 alice #room :End of /NAMES list.\r\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ch, ok := c.Channel("#room")
		return ok && len(ch.Participants()) == 3
	}, time.Second, 10*time.Millisecond)

	ch, _ := c.Channel("#room")
	assert.Equal(t, AccessivityPublic, ch.Accessivity)

	alice, ok := ch.Participant("alice")
	require.True(t, ok)
	assert.True(t, alice.Modes.Has(ModeOp))

	bob, ok := ch.Participant("bob")
	require.True(t, ok)
	assert.True(t, bob.Modes.Has(ModeVoice))

	carol, ok := ch.Participant("carol")
	require.True(t, ok)
	assert.Equal(t, ModeBit(0), carol.Modes)

	// The client's own JOIN only creates the channel entry; OnJoinChannel
	// fires for other users joining.
	_, err = server.Write([]byte(":dave!u@h JOIN #room\r\n"))
	require.NoError(t, err)

	select {
	case got := <-joined:
		assert.Equal(t, "dave@#room", got)
	case <-time.After(time.Second):
		t.Fatal("OnJoinChannel never fired")
	}
}

func TestGracefulClose(t *testing.T) {
	c, r, server := newMockClient(t, Events{})
	defer server.Close()
	_ = readLine(t, r)
	_ = readLine(t, r)

	c.Close()
	line := readLine(t, r)
	assert.Contains(t, line, "QUIT :Bye!")
}
