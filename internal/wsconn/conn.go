// Package wsconn implements the WebSocket connection lifecycle (spec §4.5
// C8): close handshake, ping/pong, and the application RPC envelope carried
// inside Text frames. Framing itself is delegated to internal/wsframe;
// ordered writes to internal/reactor.
package wsconn

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nitric1/SudaGureum/internal/reactor"
	"github.com/nitric1/SudaGureum/internal/wsframe"
)

// Request is a decoded application RPC envelope (spec §4.5
// SudaGureumRequest): {"_reqid": <u32>, "_method": <string>, ...params}.
type Request struct {
	ID     uint32
	Method string
	Raw    map[string]json.RawMessage
}

// Params is the case-insensitive string-valued map spec §3 defines for
// SudaGureumRequest.params, letting handlers read a param without
// hand-rolling JSON decoding or key folding themselves.
type Params map[string]string

// Get returns the value for key, matched case-insensitively, or "" if
// absent.
func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

// Has reports whether key is present, matched case-insensitively.
func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

// Params decodes every field of the envelope other than _reqid/_method
// into a case-insensitive string map. Non-string values are left out, the
// way a handler that expects string params would reject them anyway.
func (r *Request) Params() Params {
	out := make(Params, len(r.Raw))
	for k, raw := range r.Raw {
		lk := strings.ToLower(k)
		if lk == "_reqid" || lk == "_method" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		out[lk] = s
	}
	return out
}

// Handler answers a Request with a JSON-mergeable response body. Returning
// an error produces {"success": false, "message": err.Error()}.
type Handler func(req *Request) (map[string]any, error)

// DefaultCloseTimeout is the grace period between sending a Close frame and
// force-closing the socket if the peer never echoes it (spec §4.5, §6).
const DefaultCloseTimeout = 5 * time.Second

// Socket is the minimal byte-stream contract wsconn needs; net.Conn
// satisfies it for both plain and TLS sockets.
type Socket interface {
	Close() error
}

// Conn is one WebSocket connection: frame reassembly in, RPC dispatch,
// frame encoding out through an ordered reactor.Writer.
type Conn struct {
	log zerolog.Logger

	writer *reactor.Writer
	sock   Socket

	reader wsframe.Reader

	handlers map[string]Handler

	mu           sync.Mutex
	sentClose    bool
	recvClose    bool
	closeTimer   *time.Timer
	closeTimeout time.Duration
}

// New constructs a Conn writing frames through writer and closing sock when
// the close handshake completes or times out.
func New(writer *reactor.Writer, sock Socket, log zerolog.Logger) *Conn {
	return &Conn{
		log:          log,
		writer:       writer,
		sock:         sock,
		handlers:     map[string]Handler{},
		closeTimeout: DefaultCloseTimeout,
	}
}

// Handle registers the handler for an RPC method (spec §4.5 dispatch
// slots). Registering "heartbeat" is the only initial wiring; additional
// methods are slots the caller fills in.
func (c *Conn) Handle(method string, h Handler) {
	c.handlers[strings.ToLower(method)] = h
}

// Feed hands newly-read bytes to the frame reassembler and processes every
// completed message (control or application) in arrival order.
func (c *Conn) Feed(chunk []byte) error {
	msgs, err := c.reader.Feed(chunk)
	for _, msg := range msgs {
		c.dispatch(msg)
	}
	return err
}

func (c *Conn) dispatch(msg wsframe.Message) {
	switch msg.Opcode {
	case wsframe.OpText:
		c.handleText(msg.Payload)
	case wsframe.OpPing:
		c.send(wsframe.OpPong, msg.Payload)
	case wsframe.OpPong:
		// No keepalive accounting specified; ignore.
	case wsframe.OpClose:
		c.handleClose()
	}
}

func (c *Conn) handleText(payload []byte) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		c.sendError(0, "malformed JSON request")
		return
	}

	req := &Request{Raw: raw}
	if idRaw, ok := raw["_reqid"]; ok {
		_ = json.Unmarshal(idRaw, &req.ID)
	}
	if methodRaw, ok := raw["_method"]; ok {
		_ = json.Unmarshal(methodRaw, &req.Method)
	}

	h, ok := c.handlers[strings.ToLower(req.Method)]
	if !ok {
		c.sendError(req.ID, "unknown method: "+req.Method)
		return
	}

	body, err := h(req)
	if err != nil {
		c.sendError(req.ID, err.Error())
		return
	}
	c.sendResult(req.ID, body)
}

func (c *Conn) sendResult(id uint32, body map[string]any) {
	if body == nil {
		body = map[string]any{}
	}
	body["_reqid"] = id
	body["success"] = true
	c.sendJSON(body)
}

func (c *Conn) sendError(id uint32, message string) {
	c.sendJSON(map[string]any{
		"_reqid":  id,
		"success": false,
		"message": message,
	})
}

func (c *Conn) sendJSON(body map[string]any) {
	data, err := json.Marshal(body)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to marshal RPC response")
		return
	}
	c.send(wsframe.OpText, data)
}

func (c *Conn) send(op wsframe.Opcode, payload []byte) {
	c.writer.Enqueue(wsframe.Encode(op, payload), nil)
}

// InitiateClose begins the close handshake (e.g. server shutdown):
// sends a Close frame and arms the close timer, unless already in flight.
func (c *Conn) InitiateClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initiateCloseLocked()
}

func (c *Conn) initiateCloseLocked() {
	if c.sentClose {
		return
	}
	c.sentClose = true
	c.send(wsframe.OpClose, nil)
	c.armCloseTimerLocked()
}

func (c *Conn) armCloseTimerLocked() {
	c.closeTimer = time.AfterFunc(c.closeTimeout, func() {
		c.forceClose()
	})
}

func (c *Conn) handleClose() {
	c.mu.Lock()
	alreadySent := c.sentClose
	c.recvClose = true
	if !alreadySent {
		c.initiateCloseLocked()
	}
	timer := c.closeTimer
	c.mu.Unlock()

	if alreadySent {
		if timer != nil {
			timer.Stop()
		}
		c.forceClose()
	}
}

func (c *Conn) forceClose() {
	c.mu.Lock()
	if c.closeTimer != nil {
		c.closeTimer.Stop()
	}
	c.mu.Unlock()
	_ = c.sock.Close()
}
