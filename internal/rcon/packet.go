// Package rcon implements the Minecraft remote console protocol client.
package rcon

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Packet types. The auth response and exec command share a value; direction disambiguates.
const (
	TypeResponseValue int32 = 0
	TypeExecCommand   int32 = 2
	TypeAuthResponse  int32 = 2
	TypeAuth          int32 = 3
)

const (
	// MinPacketLength is id + type + two null terminators.
	MinPacketLength = 10
	// MaxBodyLength is the largest body a server sends in one fragment.
	MaxBodyLength = 4096
	// MaxCommandLength is the longest command body a Minecraft server accepts.
	MaxCommandLength = 1446
)

// ErrMalformedPacket reports a frame that violates the length or terminator rules.
var ErrMalformedPacket = errors.New("malformed rcon packet")

// Packet is one decoded frame.
type Packet struct {
	ID   int32
	Type int32
	Body string
}

// Encode returns the little-endian wire form of p.
func Encode(p Packet) []byte {
	length := MinPacketLength + len(p.Body)
	buf := make([]byte, 4+length)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(length))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.ID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(p.Type))
	copy(buf[12:], p.Body)
	// last two bytes stay zero
	return buf
}

// WritePacket writes p to w in one call.
func WritePacket(w io.Writer, p Packet) error {
	_, err := w.Write(Encode(p))
	return err
}

// ReadPacket reads exactly one frame from r.
func ReadPacket(r io.Reader) (Packet, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Packet{}, err
	}
	length := int32(binary.LittleEndian.Uint32(head[:]))
	if length < MinPacketLength || length > MinPacketLength+MaxBodyLength {
		return Packet{}, fmt.Errorf("%w: length %d", ErrMalformedPacket, length)
	}

	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Packet{}, err
	}
	if rest[length-1] != 0 || rest[length-2] != 0 {
		return Packet{}, fmt.Errorf("%w: missing terminators", ErrMalformedPacket)
	}

	return Packet{
		ID:   int32(binary.LittleEndian.Uint32(rest[0:4])),
		Type: int32(binary.LittleEndian.Uint32(rest[4:8])),
		Body: string(rest[8 : length-2]),
	}, nil
}
