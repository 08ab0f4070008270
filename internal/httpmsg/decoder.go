package httpmsg

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

// ErrMalformed is returned for any request-line/header grammar violation
// (spec §4.4, §7: HTTP protocol errors get a 400 response then close).
var ErrMalformed = errors.New("httpmsg: malformed request")

type decodePhase int

const (
	phaseRequestLine decodePhase = iota
	phaseHeaders
	phaseBody
	phaseDone
)

// Decoder incrementally parses one HTTP/1.x request at a time from a byte
// stream, the way an accept loop feeds bytes as they arrive off the wire
// (spec §4.4). Call Feed repeatedly; when a request completes, Take
// returns it and the decoder resets for the next request on the same
// keep-alive connection.
type Decoder struct {
	buf   []byte
	phase decodePhase

	req          *Request
	contentLen   int
	haveContentLen bool
}

// Feed appends chunk and reports whether a full request is now available
// (call Take to retrieve it). Bytes buffered beyond that request stay in
// the decoder and are returned by Pending.
func (d *Decoder) Feed(chunk []byte) (complete bool, err error) {
	d.buf = append(d.buf, chunk...)

	for {
		switch d.phase {
		case phaseRequestLine:
			line, rest, ok := cutLine(d.buf)
			if !ok {
				return false, nil
			}
			req, err := parseRequestLine(line)
			if err != nil {
				return false, err
			}
			d.req = req
			d.buf = rest
			d.phase = phaseHeaders
		case phaseHeaders:
			line, rest, ok := cutLine(d.buf)
			if !ok {
				return false, nil
			}
			if len(line) == 0 {
				// End of headers.
				d.buf = rest
				d.finishHeaders()
				if d.contentLen == 0 {
					d.phase = phaseDone
					return true, nil
				}
				d.phase = phaseBody
				continue
			}
			name, value, ok := strings.Cut(string(line), ":")
			if !ok {
				return false, ErrMalformed
			}
			d.req.Headers.Add(name, value)
			d.buf = rest
		case phaseBody:
			if len(d.buf) < d.contentLen {
				return false, nil
			}
			d.req.RawBody = append([]byte(nil), d.buf[:d.contentLen]...)
			d.buf = d.buf[d.contentLen:]
			d.phase = phaseDone
			return true, nil
		case phaseDone:
			return true, nil
		}
	}
}

// Take returns the completed request and resets the decoder to parse the
// next request from any remaining buffered bytes (HTTP keep-alive).
func (d *Decoder) Take() *Request {
	req := d.req
	d.req = nil
	d.phase = phaseRequestLine
	d.contentLen = 0
	d.haveContentLen = false
	return req
}

// Pending returns bytes buffered beyond the just-completed request — used
// to hand any already-read bytes off to a fresh WebSocket connection after
// an Upgrade.
func (d *Decoder) Pending() []byte { return d.buf }

func cutLine(buf []byte) (line, rest []byte, ok bool) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		return nil, buf, false
	}
	line = buf[:i]
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return line, buf[i+1:], true
}

func parseRequestLine(line []byte) (*Request, error) {
	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) != 3 {
		return nil, ErrMalformed
	}
	method, rawTarget, version := parts[0], parts[1], parts[2]

	if len(rawTarget) == 0 || rawTarget[0] != '/' {
		return nil, ErrMalformed
	}

	var http11 bool
	switch version {
	case "HTTP/1.1":
		http11 = true
	case "HTTP/1.0":
		http11 = false
	default:
		return nil, ErrMalformed
	}

	target, queries, err := splitTarget(rawTarget)
	if err != nil {
		return nil, ErrMalformed
	}

	return &Request{
		Method:    methodFromString(method),
		HTTP11:    http11,
		RawTarget: rawTarget,
		Target:    target,
		Queries:   queries,
		Headers:   newHeader(),
	}, nil
}

func (d *Decoder) finishHeaders() {
	req := d.req

	req.Upgrade = req.Headers.ContainsToken("Connection", "upgrade") && req.Headers.Has("Upgrade")

	if req.HTTP11 {
		req.KeepAlive = !req.Headers.ContainsToken("Connection", "close")
	} else {
		req.KeepAlive = req.Headers.ContainsToken("Connection", "keep-alive")
	}

	if cl := req.Headers.Get("Content-Length"); cl != "" {
		if n, err := strconv.Atoi(cl); err == nil && n >= 0 {
			d.contentLen = n
			d.haveContentLen = true
		}
	}

	if req.Method == MethodPost && strings.HasPrefix(req.Headers.Get("Content-Type"), "application/x-www-form-urlencoded") {
		// Body parsing (merge into Queries) happens once RawBody is
		// populated; see MergeFormBody called from Take's caller (server).
	}
}

// MergeFormBody parses req.RawBody as application/x-www-form-urlencoded
// and merges the result into req.Queries (spec §4.4). The server calls
// this after Take() once it knows the body is fully buffered.
func MergeFormBody(req *Request) {
	if req.Method != MethodPost {
		return
	}
	if !strings.HasPrefix(req.Headers.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return
	}
	_ = parseQueryInto(req.Queries, string(req.RawBody))
}
