// Package httpserver implements the HTTP/1.1 accept loop, keep-alive
// connection lifecycle, resource dispatch, and RFC 6455 Upgrade handoff
// (spec §4.4 C6).
package httpserver

import (
	"bytes"
	"compress/flate"
	"context"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nitric1/SudaGureum/internal/httpmsg"
	"github.com/nitric1/SudaGureum/internal/reactor"
)

// wsMagicGUID is RFC 6455's fixed accept-key suffix.
const wsMagicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Handler answers an HTTP request with a status code and body.
type Handler func(req *httpmsg.Request) (status int, body []byte)

// Upgrader is handed the underlying socket plus any bytes already read past
// the HTTP headers once a WebSocket upgrade is accepted, so it can hand off
// to a fresh wsconn.Conn without losing buffered data.
type Upgrader func(sock net.Conn, writer *reactor.Writer, pending []byte)

// Config holds the tunables from spec §6.
type Config struct {
	Addr                string
	TLS                 *tls.Config
	KeepAliveTimeout    time.Duration
	KeepAliveMaxCount   int
	ReadBufferSize      int
}

func (c Config) withDefaults() Config {
	if c.KeepAliveTimeout == 0 {
		c.KeepAliveTimeout = 5 * time.Second
	}
	if c.KeepAliveMaxCount == 0 {
		c.KeepAliveMaxCount = 20
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = 64 * 1024
	}
	return c
}

// Server accepts HTTP/1.1 connections, serving registered path handlers and
// handing WebSocket upgrades to Upgrader.
type Server struct {
	cfg      Config
	reactor  *reactor.Pool
	handlers map[string]Handler
	upgrade  Upgrader
	log      zerolog.Logger

	listener net.Listener
}

// New constructs a Server. Register path handlers with Handle before
// calling Serve.
func New(cfg Config, pool *reactor.Pool, upgrade Upgrader, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg.withDefaults(),
		reactor:  pool,
		handlers: map[string]Handler{},
		upgrade:  upgrade,
		log:      log,
	}
}

// Handle registers a path -> handler mapping (spec §4.4 step 3).
func (s *Server) Handle(path string, h Handler) {
	s.handlers[path] = h
}

// Serve binds the listening socket (IPv6 with IPv4 fallback, spec §4.4) and
// accepts connections until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp6", s.cfg.Addr)
	if err != nil {
		ln, err = net.Listen("tcp4", s.cfg.Addr)
		if err != nil {
			return err
		}
	}
	if s.cfg.TLS != nil {
		ln = tls.NewListener(ln, s.cfg.TLS)
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Warn().Err(err).Msg("accept failed")
				return err
			}
		}
		go s.serveConn(conn)
	}
}

// Addr returns the bound listener address, or nil before Serve is called.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) serveConn(conn net.Conn) {
	writer := reactor.NewWriter(s.reactor, conn)
	remaining := s.cfg.KeepAliveMaxCount

	var dec httpmsg.Decoder
	buf := make([]byte, s.cfg.ReadBufferSize)

	for {
		if s.cfg.KeepAliveTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.KeepAliveTimeout))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			complete, derr := dec.Feed(buf[:n])
			if derr != nil {
				s.respondError(writer, 400, "Bad Request", false)
				_ = conn.Close()
				return
			}
			if !complete {
				continue
			}

			req := dec.Take()
			httpmsg.MergeFormBody(req)

			keepAlive := req.KeepAlive && remaining > 0
			remaining--

			if req.Upgrade && req.Headers.Has("Upgrade") && strings.EqualFold(req.Headers.Get("Upgrade"), "websocket") {
				if !s.handleUpgrade(conn, writer, req, dec.Pending()) {
					_ = conn.Close()
					return
				}
				return
			}

			s.respond(writer, req, keepAlive, remaining)
			if !keepAlive {
				_ = conn.Close()
				return
			}
			continue
		}
		if err != nil {
			_ = conn.Close()
			return
		}
	}
}

func (s *Server) handleUpgrade(conn net.Conn, writer *reactor.Writer, req *httpmsg.Request, pending []byte) bool {
	if !req.HTTP11 || !strings.Contains(req.Headers.Get("Sec-WebSocket-Version"), "13") {
		s.respondError(writer, 400, "Bad Request", false)
		return false
	}
	key := req.Headers.Get("Sec-WebSocket-Key")
	if key == "" {
		s.respondError(writer, 400, "Bad Request", false)
		return false
	}

	accept := acceptKey(key)

	resp := buildStatusLine(req.HTTP11, 101, "Switching Protocols")
	resp = append(resp, "Upgrade: websocket\r\n"...)
	resp = append(resp, "Connection: Upgrade\r\n"...)
	resp = append(resp, "Sec-WebSocket-Version: 13\r\n"...)
	resp = append(resp, ("Date: " + nowRFC1123() + "\r\n")...)
	resp = append(resp, ("Sec-WebSocket-Accept: " + accept + "\r\n\r\n")...)

	done := make(chan struct{})
	writer.Enqueue(resp, func(error) { close(done) })
	<-done

	if s.upgrade != nil {
		s.upgrade(conn, writer, pending)
	}
	return true
}

// acceptKey computes Base64(SHA1(key + magic GUID)) per RFC 6455 (spec §8).
func acceptKey(key string) string {
	sum := sha1.Sum([]byte(key + wsMagicGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (s *Server) respond(writer *reactor.Writer, req *httpmsg.Request, keepAlive bool, remaining int) {
	status, body := 404, []byte("Not found")
	if h, ok := s.handlers[req.Target]; ok {
		status, body = h(req)
	}
	s.writeResponse(writer, req, status, statusText(status), body, keepAlive, remaining)
}

func (s *Server) respondError(writer *reactor.Writer, status int, message string, keepAlive bool) {
	s.writeResponse(writer, &httpmsg.Request{HTTP11: true}, status, message, []byte(message), keepAlive, 0)
}

func (s *Server) writeResponse(writer *reactor.Writer, req *httpmsg.Request, status int, statusMsg string, body []byte, keepAlive bool, remaining int) {
	encoding := ""
	if req.Headers.ContainsToken("Accept-Encoding", "deflate") {
		if compressed, ok := deflate(body); ok {
			body = compressed
			encoding = "deflate"
		}
	}

	resp := buildStatusLine(req.HTTP11, status, statusMsg)
	resp = append(resp, "Server: SudaGureum\r\n"...)
	resp = append(resp, ("Date: " + nowRFC1123() + "\r\n")...)
	if encoding != "" {
		resp = append(resp, ("Content-Encoding: " + encoding + "\r\n")...)
	}
	resp = append(resp, ("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")...)

	if keepAlive {
		resp = append(resp, "Connection: keep-alive\r\n"...)
		resp = append(resp, ("Keep-Alive: timeout=" + strconv.Itoa(int(s.cfg.KeepAliveTimeout.Seconds())) + ", max=" + strconv.Itoa(remaining) + "\r\n")...)
	} else {
		resp = append(resp, "Connection: close\r\n"...)
	}
	resp = append(resp, "\r\n"...)
	resp = append(resp, body...)

	// Wait for the write so a caller that closes the connection next does
	// not cut the response off.
	done := make(chan struct{})
	writer.Enqueue(resp, func(error) { close(done) })
	<-done
}

func buildStatusLine(http11 bool, status int, message string) []byte {
	version := "HTTP/1.0"
	if http11 {
		version = "HTTP/1.1"
	}
	return []byte(version + " " + strconv.Itoa(status) + " " + message + "\r\n")
}

// deflate compresses body at max level, returning ok=false if it does not
// actually shrink the body (spec §4.4 step 4).
func deflate(body []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, false
	}
	if _, err := w.Write(body); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	if buf.Len() >= len(body) {
		return nil, false
	}
	return buf.Bytes(), true
}

func nowRFC1123() string {
	return time.Now().UTC().Format(time.RFC1123)
}

func statusText(status int) string {
	switch status {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	default:
		return "Unknown"
	}
}
