package wsframe

import "errors"

// ErrUnexpectedContinuation is returned when a Continuation frame arrives
// with no message in progress, or a new data frame arrives mid-message.
var ErrUnexpectedContinuation = errors.New("wsframe: unexpected continuation state")

// Message is a fully reassembled application-level WebSocket message:
// either a data message (Text/Binary) or a control message
// (Close/Ping/Pong), spec §4.5.
type Message struct {
	Opcode  Opcode
	Payload []byte
}

// Reader wraps Decoder with fragmentation reassembly: non-control frames
// are concatenated until a final frame completes the message; control
// frames are delivered immediately since they may not be fragmented.
type Reader struct {
	dec Decoder

	inMessage   bool
	msgOpcode   Opcode
	accumulated []byte
}

// Feed appends chunk and returns every application message completed so
// far (data messages and control messages, interleaved in arrival order).
func (r *Reader) Feed(chunk []byte) ([]Message, error) {
	frames, err := r.dec.Feed(chunk)

	var out []Message
	for _, f := range frames {
		msg, ok, ferr := r.apply(f)
		if ferr != nil {
			return out, ferr
		}
		if ok {
			out = append(out, msg)
		}
	}

	if err != nil {
		return out, err
	}
	return out, nil
}

func (r *Reader) apply(f Frame) (Message, bool, error) {
	if f.Opcode.IsControl() {
		return Message{Opcode: f.Opcode, Payload: f.Payload}, true, nil
	}

	switch f.Opcode {
	case OpText, OpBinary:
		if r.inMessage {
			return Message{}, false, ErrUnexpectedContinuation
		}
		r.inMessage = true
		r.msgOpcode = f.Opcode
		r.accumulated = append(r.accumulated[:0], f.Payload...)
	case OpContinuation:
		if !r.inMessage {
			return Message{}, false, ErrUnexpectedContinuation
		}
		r.accumulated = append(r.accumulated, f.Payload...)
	default:
		return Message{}, false, nil
	}

	if !f.Final {
		return Message{}, false, nil
	}

	msg := Message{Opcode: r.msgOpcode, Payload: append([]byte(nil), r.accumulated...)}
	r.inMessage = false
	r.accumulated = nil
	return msg, true, nil
}
