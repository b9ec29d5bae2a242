package proto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"

	"dev.c0redev.nowgate/internal/ident"
)

var ErrIntegrity = errors.New("packet shorter than header")
var ErrChecksumMismatch = errors.New("packet checksum mismatch")
var ErrPayloadTooLarge = errors.New("payload too large")

// EncodePacket serializes p; crc computed last over the full buffer.
func EncodePacket(p *Packet) []byte {
	b := make([]byte, HeaderSize+len(p.Payload))
	b[offKind] = byte(p.Kind)
	b[offState] = p.State
	binary.LittleEndian.PutUint16(b[offSeq:], p.Seq)
	binary.LittleEndian.PutUint32(b[offToken:], p.Token)
	copy(b[HeaderSize:], p.Payload)
	p.CRC = packetCRC(b)
	binary.LittleEndian.PutUint16(b[offCRC:], p.CRC)
	return b
}

// Encode builds a packet for dest: kind from broadcast, random token, payload copied.
func Encode(dest ident.MAC, payload []byte) ([]byte, error) {
	if HeaderSize+len(payload) > MaxPacketSize {
		return nil, ErrPayloadTooLarge
	}
	kind := KindUnicast
	if dest.IsBroadcast() {
		kind = KindBroadcast
	}
	return EncodePacket(&Packet{Kind: kind, Token: randToken(), Payload: payload}), nil
}

// Decode parses b; ErrIntegrity if short, ErrChecksumMismatch if crc differs.
// Payload is copied out of b.
func Decode(b []byte) (*Packet, error) {
	if len(b) < HeaderSize {
		return nil, ErrIntegrity
	}
	stored := binary.LittleEndian.Uint16(b[offCRC:])
	if packetCRC(b) != stored {
		return nil, ErrChecksumMismatch
	}
	p := &Packet{
		Kind:    Kind(b[offKind]),
		State:   b[offState],
		Seq:     binary.LittleEndian.Uint16(b[offSeq:]),
		CRC:     stored,
		Token:   binary.LittleEndian.Uint32(b[offToken:]),
		Payload: make([]byte, len(b)-HeaderSize),
	}
	copy(p.Payload, b[HeaderSize:])
	return p, nil
}

func randToken() uint32 {
	var b [4]byte
	rand.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}
