// Package ircmsg implements the IRC wire format: an incremental
// byte-stream decoder plus the IrcMessage type (RFC 1459 section 2.3.1).
//
//	<message>  :: [':' <prefix> <SPACE>] <command> <params> <crlf>
//	<prefix>   :: <servername> | <nick> ['!' <user>] ['@' <host>]
//	<command>  :: <letter>{<letter>} | <digit> <digit> <digit>
//	<params>   :: <SPACE> [':' <trailing> | <middle> <params>]
package ircmsg

import (
	"errors"
	"strings"
)

const (
	maxParams = 15
	space     = ' '
)

// ErrMalformed is returned by Parse when raw does not match the grammar.
var ErrMalformed = errors.New("ircmsg: malformed message")

// Message is a parsed IRC protocol line.
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

// Parse decodes a single line (without the trailing CRLF) into a Message.
func Parse(line string) (*Message, error) {
	if line == "" {
		return nil, ErrMalformed
	}

	m := &Message{}
	rest := line

	if rest[0] == ':' {
		i := strings.IndexByte(rest, space)
		if i < 2 {
			// ":" alone, or prefix immediately followed by end of line.
			return nil, ErrMalformed
		}
		m.Prefix = rest[1:i]
		rest = rest[i+1:]
	}

	// Command: letters only, or exactly three digits.
	i := strings.IndexByte(rest, space)
	var cmd string
	if i < 0 {
		cmd = rest
		rest = ""
	} else {
		cmd = rest[:i]
		rest = rest[i+1:]
	}
	if !validCommand(cmd) {
		return nil, ErrMalformed
	}
	m.Command = cmd

	for rest != "" && len(m.Params) < maxParams {
		if rest[0] == ':' {
			m.Params = append(m.Params, rest[1:])
			rest = ""
			break
		}

		i = strings.IndexByte(rest, space)
		if i < 0 {
			m.Params = append(m.Params, rest)
			rest = ""
			break
		}

		m.Params = append(m.Params, rest[:i])
		rest = rest[i+1:]
		// Collapse runs of spaces the way RFC middle-parameter tokenizing does.
		for rest != "" && rest[0] == space {
			rest = rest[1:]
		}
	}

	// Anything left (16th+ whitespace-separated tokens, or a trailing we
	// didn't reach because the param cap was hit first) folds into the
	// last parameter with single-space separators.
	if rest != "" {
		if len(m.Params) == 0 {
			m.Params = append(m.Params, rest)
		} else {
			fields := strings.Fields(rest)
			last := m.Params[len(m.Params)-1] + space + strings.Join(fields, string(space))
			m.Params[len(m.Params)-1] = last
		}
	}

	return m, nil
}

func validCommand(s string) bool {
	if s == "" {
		return false
	}
	if len(s) == 3 && isDigits(s) {
		return true
	}
	for i := 0; i < len(s); i++ {
		if !isLetter(s[i]) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// Encode serializes the message back to wire form, without the trailing
// CRLF. The last parameter is always sent in the trailing (":"-prefixed)
// form, so it may contain spaces, be empty, or start with ':'; earlier
// parameters are written as-is.
func (m *Message) Encode() string {
	var b strings.Builder

	if m.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(m.Prefix)
		b.WriteByte(space)
	}

	b.WriteString(m.Command)

	for i, p := range m.Params {
		b.WriteByte(space)
		last := i == len(m.Params)-1
		if last {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}

	return b.String()
}
