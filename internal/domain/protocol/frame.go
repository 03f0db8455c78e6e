// Package protocol frames and parses the binary messages exchanged with
// clients and between nodes. A client frame is [opcode:1][payload:N] with no
// length prefix beyond the transport's own framing.
package protocol

import "errors"

type Opcode byte

const (
	// OpSync is sent by a client that just joined; the server answers with
	// the current snapshot bytes, or nothing if no snapshot exists yet.
	OpSync Opcode = 0x00
	// OpPresence is ephemeral (cursor position etc.) — broadcast only,
	// never persisted.
	OpPresence Opcode = 0x01
	// OpEdit is a CRDT delta — persisted and fanned out.
	OpEdit Opcode = 0x02
)

var (
	ErrEmptyFrame    = errors.New("protocol: empty frame")
	ErrUnknownOpcode = errors.New("protocol: unknown opcode")
)

// Frame is a decoded client message.
type Frame struct {
	Op      Opcode
	Payload []byte
}

// ParseFrame validates and splits a raw inbound frame.
func ParseFrame(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	op := Opcode(raw[0])
	switch op {
	case OpSync, OpPresence, OpEdit:
	default:
		return Frame{}, ErrUnknownOpcode
	}
	return Frame{Op: op, Payload: raw[1:]}, nil
}

// Encode renders the frame back to wire form.
func (f Frame) Encode() []byte {
	out := make([]byte, 1+len(f.Payload))
	out[0] = byte(f.Op)
	copy(out[1:], f.Payload)
	return out
}
