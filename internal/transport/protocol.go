// Package transport implements the migration wire protocol: a tagged
// message envelope grounded on a fixed binary header, plus a concrete
// in-process transport (an unbuffered io.Pipe between one writer and
// one reader) that carries it. Real inter-process transport is
// out of scope per spec.md; this package gives the interface a
// testable implementation without claiming to be a production RPC
// layer.
package transport

import (
	"encoding/binary"
	"errors"
	"io"
)

// Tag identifies the semantic meaning of a migration message.
type Tag uint8

const (
	// TagNumEntities announces the entity count for the batch that
	// follows.
	TagNumEntities Tag = 0x01
	// TagEntityLen announces the shared byte length L used by every
	// entity record in the batch.
	TagEntityLen Tag = 0x02
	// TagEntityFitness carries one entity's fitness scalar.
	TagEntityFitness Tag = 0x03
	// TagEntityChromosome carries one entity's opaque chromosome
	// bytes, always exactly L bytes for the current batch.
	TagEntityChromosome Tag = 0x04
)

// HeaderSize is the fixed wire header preceding every message's
// payload: [Tag:1][Flags:1][Seq:4][Ack:4][Len:2].
const HeaderSize = 12

const (
	FlagNone    uint8 = 0x00
	FlagNeedAck uint8 = 0x01
)

// Message is one framed migration protocol message.
type Message struct {
	Tag     Tag
	Flags   uint8
	Seq     uint32
	Ack     uint32
	Payload []byte
}

// ErrPayloadTooLarge is returned by Encode when Payload exceeds the
// 16-bit length field's range.
var ErrPayloadTooLarge = errors.New("transport: payload exceeds maximum size")

// Encode writes m to w as a fixed header followed by its payload.
func (m *Message) Encode(w io.Writer) error {
	if len(m.Payload) > 65535 {
		return ErrPayloadTooLarge
	}

	header := make([]byte, HeaderSize)
	header[0] = byte(m.Tag)
	header[1] = m.Flags
	binary.BigEndian.PutUint32(header[2:6], m.Seq)
	binary.BigEndian.PutUint32(header[6:10], m.Ack)
	binary.BigEndian.PutUint16(header[10:12], uint16(len(m.Payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		if _, err := w.Write(m.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads one framed message from r.
func Decode(r io.Reader) (*Message, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	payloadLen := binary.BigEndian.Uint16(header[10:12])
	m := &Message{
		Tag:   Tag(header[0]),
		Flags: header[1],
		Seq:   binary.BigEndian.Uint32(header[2:6]),
		Ack:   binary.BigEndian.Uint32(header[6:10]),
	}
	if payloadLen > 0 {
		m.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewMessage builds a message with FlagNone set.
func NewMessage(tag Tag, payload []byte) *Message {
	return &Message{Tag: tag, Payload: payload}
}
