package ircclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nitric1/SudaGureum/internal/ircmsg"
	"github.com/nitric1/SudaGureum/internal/reactor"
)

// Config configures a single IRC connection (spec §3 UserServerInfo).
type Config struct {
	Host     string
	Port     int
	Encoding string
	Nicks    []string
	SSL      bool

	// CloseTimeout is the grace period after QUIT before the socket is
	// force-closed (default 5s, spec §4.3/§6).
	CloseTimeout time.Duration

	Dialer Dialer
	Logger zerolog.Logger
}

// Dialer abstracts net.Dial for tests.
type Dialer interface {
	Dial(network, address string) (net.Conn, error)
}

// Client is a single connection's worth of IRC state (spec IrcClientState).
type Client struct {
	cfg    Config
	events Events
	pool   *reactor.Pool

	mu                  sync.RWMutex
	conn                net.Conn
	writer              *reactor.Writer
	decoder             ircmsg.Decoder
	nickname            string
	nickIdx             int
	connectBeginning    bool
	quitReady           bool
	closeTimer          *time.Timer
	options             *ServerOptions
	channelTypes        []byte
	modeClasses         channelModeClasses
	prefixes            prefixMap
	channels            map[string]*Channel
	stop                context.CancelFunc
	closedNotify        chan struct{}
}

// New creates a Client bound to cfg, using pool for all async I/O. Connect
// must be called to actually dial.
func New(cfg Config, events Events, pool *reactor.Pool) *Client {
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 5 * time.Second
	}
	// Until the server sends 005 PREFIX, NAMES/MODE use the common
	// (qaohv)~&@%+ mapping.
	prefixes, _ := parsePrefix("(qaohv)~&@%+")
	return &Client{
		cfg:          cfg,
		events:       events,
		pool:         pool,
		prefixes:     prefixes,
		options:      newServerOptions(),
		channels:     make(map[string]*Channel),
		closedNotify: make(chan struct{}),
	}
}

// Nickname returns the currently accepted nickname.
func (c *Client) Nickname() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nickname
}

// ConnectBeginning reports whether registration (NICK/USER through
// RPL_WELCOME) is still in progress.
func (c *Client) ConnectBeginning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectBeginning
}

// Channel returns the tracked state for name, if this client is a member.
func (c *Client) Channel(name string) (*Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[CaseFold(name)]
	return ch, ok
}

// Options exposes the ISUPPORT tracker.
func (c *Client) Options() *ServerOptions { return c.options }

// Connect dials the server, performs initial registration, and blocks,
// processing events, until the connection ends (error, QUIT, or Close).
func (c *Client) Connect(ctx context.Context) error {
	if len(c.cfg.Nicks) == 0 {
		return fmt.Errorf("ircclient: no nicknames configured")
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	dialer := c.cfg.Dialer
	if dialer == nil {
		dialer = &net.Dialer{Timeout: 10 * time.Second}
	}

	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		c.cfg.Logger.Warn().Err(err).Str("addr", addr).Msg("irc dial failed")
		return fmt.Errorf("ircclient: dial %s: %w", addr, err)
	}

	if c.cfg.SSL {
		conn = tls.Client(conn, &tls.Config{ServerName: c.cfg.Host}) //nolint:gosec
	}

	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.conn = conn
	c.writer = reactor.NewWriter(c.pool, conn)
	c.nickIdx = 0
	c.nickname = c.cfg.Nicks[0]
	c.connectBeginning = true
	c.stop = cancel
	c.mu.Unlock()

	c.sendRaw(&ircmsg.Message{Command: "USER", Params: []string{c.cfg.Nicks[0], "0", "*", c.cfg.Nicks[0]}})
	c.sendRaw(&ircmsg.Message{Command: "NICK", Params: []string{c.cfg.Nicks[0]}})

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return c.readLoop(gctx) })

	err = group.Wait()
	close(c.closedNotify)
	return err
}

func (c *Client) readLoop(ctx context.Context) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(300 * time.Second))
		n, err := c.conn.Read(buf)
		if n > 0 {
			msgs, derr := c.decoder.Feed(buf[:n])
			for _, m := range msgs {
				c.dispatch(m)
			}
			if derr != nil {
				return derr
			}
		}
		if err != nil {
			return err
		}
	}
}

// sendRaw encodes and enqueues an IRC message for send (spec
// "Send path"). Writes for one connection are always serialized in
// submission order by the reactor Writer.
func (c *Client) sendRaw(m *ircmsg.Message) {
	c.mu.RLock()
	w := c.writer
	c.mu.RUnlock()
	if w == nil {
		return
	}
	line := append([]byte(m.Encode()), '\r', '\n')
	w.Enqueue(line, nil)
}

// Send is the public API for application code (orchestrator) to issue raw
// commands, e.g. PRIVMSG, JOIN, MODE.
func (c *Client) Send(command string, params ...string) {
	c.sendRaw(&ircmsg.Message{Command: command, Params: params})
}

// Close sends QUIT and force-closes the socket after CloseTimeout if the
// peer never drops the connection first (spec §4.3 "Graceful close").
func (c *Client) Close() {
	c.mu.Lock()
	if c.quitReady {
		c.mu.Unlock()
		return
	}
	c.quitReady = true
	timeout := c.cfg.CloseTimeout
	c.mu.Unlock()

	c.sendRaw(&ircmsg.Message{Command: "QUIT", Params: []string{"Bye!"}})

	c.mu.Lock()
	c.closeTimer = time.AfterFunc(timeout, c.forceClose)
	c.mu.Unlock()
}

func (c *Client) forceClose() {
	c.mu.Lock()
	conn := c.conn
	stop := c.stop
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if stop != nil {
		stop()
	}
}

// Done returns a channel closed once Connect has returned.
func (c *Client) Done() <-chan struct{} { return c.closedNotify }
