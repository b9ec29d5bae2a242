package proto

// Kind: byte 0 of the header.
type Kind uint8

const (
	KindBroadcast Kind = 0
	KindUnicast   Kind = 1
)

// HeaderSize: kind(1) + state(1) + seq(2) + crc(2) + token(4) = 10 bytes.
const HeaderSize = 10

// MaxPacketSize header + payload (gateway send buffer).
const MaxPacketSize = 1024

// header field offsets
const (
	offKind  = 0
	offState = 1
	offSeq   = 2
	offCRC   = 4
	offToken = 6
)

// Packet: radio link packet (header + JSON payload). Seq is advisory, Token a
// coarse sender nonce; neither is used for ordering or replay protection.
type Packet struct {
	Kind    Kind
	State   uint8
	Seq     uint16
	CRC     uint16 // decoded packets only; Encode overwrites
	Token   uint32
	Payload []byte
}
