package ircmsg

import "errors"

// MaxLineLength is the buffer threshold (spec §4.2); exceeding it without
// finding a line terminator is a parse error.
const MaxLineLength = 4096

type decodeState int

const (
	stateNone decodeState = iota
	stateInLine
	stateWaitLF
)

// ErrBufferTooLarge is latched once a line exceeds MaxLineLength.
var ErrBufferTooLarge = errors.New("ircmsg: line exceeds buffer threshold")

// ErrBareCR is latched when a lone '\r' is seen, not followed by '\n'.
var ErrBareCR = errors.New("ircmsg: bare CR not followed by LF")

// Decoder incrementally splits a byte stream into lines terminated by
// "\r\n" (preferred) or a bare "\n", then parses each line into a Message.
// Once an error occurs, the decoder latches it and rejects all further
// input (spec §4.2, §7).
type Decoder struct {
	state deCoderState
	buf   []byte
	err   error
}

type deCoderState = decodeState

// Feed appends bytes to the decoder and returns every Message completed as
// a result, in order. If a parse error occurs (grammar or oversize-buffer),
// it is returned alongside any messages successfully parsed earlier in
// this call, and the decoder will return the same error on every
// subsequent call.
func (d *Decoder) Feed(chunk []byte) ([]*Message, error) {
	if d.err != nil {
		return nil, d.err
	}

	var out []*Message

	for _, c := range chunk {
		switch d.state {
		case stateNone, stateInLine:
			switch c {
			case '\r':
				d.state = stateWaitLF
			case '\n':
				msg, err := d.completeLine()
				if err != nil {
					d.err = err
					return out, err
				}
				if msg != nil {
					out = append(out, msg)
				}
				d.state = stateNone
			default:
				d.buf = append(d.buf, c)
				d.state = stateInLine
				if len(d.buf) > MaxLineLength {
					d.err = ErrBufferTooLarge
					return out, d.err
				}
			}
		case stateWaitLF:
			if c == '\n' {
				msg, err := d.completeLine()
				if err != nil {
					d.err = err
					return out, err
				}
				if msg != nil {
					out = append(out, msg)
				}
				d.state = stateNone
			} else {
				// Bare CR not followed by LF.
				d.err = ErrBareCR
				return out, d.err
			}
		}
	}

	return out, nil
}

func (d *Decoder) completeLine() (*Message, error) {
	line := string(d.buf)
	d.buf = d.buf[:0]

	if line == "" {
		return nil, nil
	}

	msg, err := Parse(line)
	if err != nil {
		return nil, err
	}
	return msg, nil
}
